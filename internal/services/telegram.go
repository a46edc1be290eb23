package services

import (
	"context"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramAPI is the subset of *bot.Bot used by the front-end.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*tgmodels.File, error)
	FileDownloadLink(f *tgmodels.File) string
}

var _ TelegramAPI = (*bot.Bot)(nil)

package services

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

var ErrSendFailed = errors.New("failed to send message after retry")

type MessageManager struct {
	api      TelegramAPI
	errMgr   *ErrorManager
	maxRetry int
}

func NewMessageManager(api TelegramAPI, errMgr *ErrorManager) *MessageManager {
	return &MessageManager{
		api:      api,
		errMgr:   errMgr,
		maxRetry: 2,
	}
}

func (m *MessageManager) SendWithRetry(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetry; attempt++ {
		msg, err := m.api.SendMessage(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	chatID, _ := params.ChatID.(int64)
	if m.errMgr != nil {
		m.errMgr.NotifySendFailure(ctx, chatID, params, lastErr)
	}
	return nil, errors.Join(ErrSendFailed, lastErr)
}

// Send delivers an HTML formatted text with an optional inline keyboard.
func (m *MessageManager) Send(ctx context.Context, chatID int64, text string, keyboard *tgmodels.InlineKeyboardMarkup) (*tgmodels.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	return m.SendWithRetry(ctx, params)
}

// EditOrSend replaces the text of messageID and falls back to a new message
// when the original can no longer be edited.
func (m *MessageManager) EditOrSend(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgmodels.InlineKeyboardMarkup) (*tgmodels.Message, error) {
	if messageID != 0 {
		params := &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: messageID,
			Text:      text,
			ParseMode: tgmodels.ParseModeHTML,
		}
		if keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		msg, err := m.api.EditMessageText(ctx, params)
		if err == nil {
			return msg, nil
		}
		if isMessageNotModified(err) {
			return nil, nil
		}
	}
	return m.Send(ctx, chatID, text, keyboard)
}

// AnswerCallback acknowledges a button press. A non-empty text is shown as
// an alert.
func (m *MessageManager) AnswerCallback(ctx context.Context, callbackID, text string) {
	_, _ = m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       text != "",
	})
}

func (m *MessageManager) SendDocumentWithRetry(ctx context.Context, chatID int64, filename string, data []byte, caption string) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetry; attempt++ {
		msg, err := m.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &tgmodels.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
			Caption:  caption,
		})
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	if m.errMgr != nil {
		m.errMgr.NotifySendFailure(ctx, chatID, map[string]any{"chat_id": chatID, "document": filename}, lastErr)
	}
	return nil, errors.Join(ErrSendFailed, lastErr)
}

func isMessageNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

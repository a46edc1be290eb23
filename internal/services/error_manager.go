package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const maxAdminMessage = 4000

type ErrorManager struct {
	api     TelegramAPI
	adminID int64
	logger  *zap.Logger
}

func NewErrorManager(api TelegramAPI, adminID int64, logger *zap.Logger) *ErrorManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorManager{
		api:     api,
		adminID: adminID,
		logger:  logger,
	}
}

func (e *ErrorManager) NotifyAdmin(ctx context.Context, panicValue interface{}, update *tgmodels.Update) {
	userInfo := UpdateSender(update)
	stack := string(debug.Stack())

	e.logger.Error("panic in handler",
		zap.String("user", userInfo),
		zap.Any("panic", panicValue),
		zap.String("stack", stack),
	)

	e.send(ctx, fmt.Sprintf("🚨 Panic in handler\nUser: %s\nError: %v\n\nStack trace:\n%s",
		userInfo, panicValue, stack))
}

// NotifySendFailure reports a message that could not be delivered together
// with an equivalent curl command for manual replay.
func (e *ErrorManager) NotifySendFailure(ctx context.Context, chatID int64, request interface{}, err error) {
	e.logger.Warn("message delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))

	// Avoid a loop when the admin chat itself is unreachable.
	if chatID == e.adminID {
		return
	}
	e.send(ctx, fmt.Sprintf("❌ Failed to send message\nUser: [%d]\nError: %v\n\nCurl:\n%s",
		chatID, err, buildCurlCommand(request)))
}

func (e *ErrorManager) send(ctx context.Context, msg string) {
	if e.api == nil || e.adminID == 0 {
		return
	}
	if len(msg) > maxAdminMessage {
		msg = msg[:maxAdminMessage] + "\n... (truncated)"
	}
	if _, err := e.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: e.adminID, Text: msg}); err != nil {
		e.logger.Warn("admin notification failed", zap.Error(err))
	}
}

func buildCurlCommand(request interface{}) string {
	jsonData, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return fmt.Sprintf("# Failed to serialize request: %v", err)
	}
	return fmt.Sprintf("curl -X POST 'https://api.telegram.org/bot[BOT_TOKEN]/sendMessage' \\\n  -H 'Content-Type: application/json' \\\n  -d '%s'",
		string(jsonData))
}

// UpdateSender describes the author of update for logs and admin messages.
func UpdateSender(update *tgmodels.Update) string {
	if update == nil {
		return "unknown"
	}
	if update.Message != nil && update.Message.From != nil {
		return TelegramUser(*update.Message.From).DisplayName()
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From.ID != 0 {
		return TelegramUser(update.CallbackQuery.From).DisplayName()
	}
	return "unknown"
}

func TelegramUser(u tgmodels.User) *models.User {
	return &models.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
	}
}

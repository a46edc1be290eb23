package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/imaging"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/services"
	"github.com/ad/go-telegram-screening/internal/wizard"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// maxDownload caps files fetched from Telegram. Bots cannot download more
// than 20 MB anyway.
const maxDownload = 20 << 20

// AssessmentBackend is the read side of the evaluation service.
type AssessmentBackend interface {
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	DownloadReport(ctx context.Context, id string) (string, []byte, error)
	ModelMetrics(ctx context.Context) (*models.ModelMetrics, error)
}

type BotHandler struct {
	api            services.TelegramAPI
	adminID        int64
	errorManager   *services.ErrorManager
	msgManager     *services.MessageManager
	sessions       *services.SessionManager
	formatter      *services.Formatter
	sanitizer      *services.Sanitizer
	userRepo       *db.UserRepository
	submissionRepo *db.SubmissionRepository
	stats          *services.StatisticsService
	backend        AssessmentBackend
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewBotHandler(
	api services.TelegramAPI,
	adminID int64,
	errorManager *services.ErrorManager,
	msgManager *services.MessageManager,
	sessions *services.SessionManager,
	formatter *services.Formatter,
	userRepo *db.UserRepository,
	submissionRepo *db.SubmissionRepository,
	stats *services.StatisticsService,
	backend AssessmentBackend,
	httpClient *http.Client,
	logger *zap.Logger,
) *BotHandler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotHandler{
		api:            api,
		adminID:        adminID,
		errorManager:   errorManager,
		msgManager:     msgManager,
		sessions:       sessions,
		formatter:      formatter,
		sanitizer:      services.NewSanitizer(),
		userRepo:       userRepo,
		submissionRepo: submissionRepo,
		stats:          stats,
		backend:        backend,
		httpClient:     httpClient,
		logger:         logger,
	}
}

func (h *BotHandler) HandleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	defer h.recoverPanic(ctx, update)

	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *BotHandler) recoverPanic(ctx context.Context, update *tgmodels.Update) {
	if r := recover(); r != nil {
		h.errorManager.NotifyAdmin(ctx, r, update)
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgmodels.Message) {
	if msg.From == nil {
		return
	}

	switch command(msg.Text) {
	case "/start":
		h.handleStart(ctx, msg)
		return
	case "/assess":
		h.handleAssess(ctx, msg)
		return
	case "/history":
		h.handleHistory(ctx, msg)
		return
	case "/metrics":
		h.handleMetrics(ctx, msg)
		return
	case "/cancel":
		h.handleCancel(ctx, msg)
		return
	case "/stats":
		if msg.From.ID == h.adminID {
			h.handleStats(ctx, msg)
			return
		}
	}

	if len(msg.Photo) > 0 {
		h.handlePhoto(ctx, msg)
		return
	}
	if msg.Document != nil {
		h.handleDocument(ctx, msg)
		return
	}
	if msg.Text != "" {
		h.handleTextAnswer(ctx, msg)
	}
}

// command returns the bot command of text without the @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return cmd
}

func (h *BotHandler) registerUser(from *tgmodels.User) {
	if err := h.userRepo.CreateOrUpdate(services.TelegramUser(*from)); err != nil {
		h.logger.Warn("user not saved", zap.Int64("user_id", from.ID), zap.Error(err))
	}
}

func (h *BotHandler) handleStart(ctx context.Context, msg *tgmodels.Message) {
	h.registerUser(msg.From)
	h.msgManager.Send(ctx, msg.Chat.ID, h.formatter.Welcome(), nil)
}

func (h *BotHandler) handleAssess(ctx context.Context, msg *tgmodels.Message) {
	h.registerUser(msg.From)
	w, err := h.sessions.Start(msg.Chat.ID)
	if err != nil && w == nil {
		h.sendError(ctx, msg.Chat.ID, "Could not start an assessment, please try again later.")
		return
	}
	h.sendPrompt(ctx, msg.Chat.ID, w, 0)
}

func (h *BotHandler) handleCancel(ctx context.Context, msg *tgmodels.Message) {
	cancelled, err := h.sessions.Cancel(msg.Chat.ID)
	switch {
	case err != nil:
		h.sendError(ctx, msg.Chat.ID, "Could not discard the draft, please try again.")
	case cancelled:
		h.msgManager.Send(ctx, msg.Chat.ID, "Draft discarded. Use /assess to start again.", nil)
	default:
		h.msgManager.Send(ctx, msg.Chat.ID, "There is no assessment in progress.", nil)
	}
}

func (h *BotHandler) handleHistory(ctx context.Context, msg *tgmodels.Message) {
	subs, err := h.submissionRepo.ListByUser(msg.From.ID, 10)
	if err != nil {
		h.logger.Error("history query failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.sendError(ctx, msg.Chat.ID, "History is unavailable right now.")
		return
	}
	var kb *tgmodels.InlineKeyboardMarkup
	if len(subs) > 0 {
		kb = BuildReportKeyboard(subs[0].AssessmentID)
	}
	h.msgManager.Send(ctx, msg.Chat.ID, h.formatter.History(subs), kb)
}

func (h *BotHandler) handleMetrics(ctx context.Context, msg *tgmodels.Message) {
	metrics, err := h.backend.ModelMetrics(ctx)
	if err != nil {
		h.logger.Warn("model metrics unavailable", zap.Error(err))
		h.sendError(ctx, msg.Chat.ID, "Model metrics are unavailable right now.")
		return
	}
	h.msgManager.Send(ctx, msg.Chat.ID, h.formatter.Metrics(metrics), nil)
}

func (h *BotHandler) handleStats(ctx context.Context, msg *tgmodels.Message) {
	stats, err := h.stats.CalculateStats()
	if err != nil {
		h.logger.Error("statistics query failed", zap.Error(err))
		h.sendError(ctx, msg.Chat.ID, "Statistics are unavailable right now.")
		return
	}
	h.msgManager.Send(ctx, msg.Chat.ID, services.FormatStatistics(stats), nil)
}

func (h *BotHandler) session(chatID int64) *wizard.Wizard {
	w, ok, err := h.sessions.Get(chatID)
	if err != nil {
		h.logger.Error("draft lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if !ok {
		return nil
	}
	return w
}

// currentField returns the first unanswered demographic field.
func (h *BotHandler) currentField(w *wizard.Wizard) (questionnaire.Field, bool) {
	if w.Step() != fsm.StepDemographics {
		return questionnaire.Field{}, false
	}
	missing := w.MissingFields()
	if len(missing) == 0 {
		return questionnaire.Field{}, false
	}
	return h.formatter.Questionnaire().Field(missing[0])
}

func (h *BotHandler) handleTextAnswer(ctx context.Context, msg *tgmodels.Message) {
	chatID := msg.Chat.ID
	w := h.session(chatID)
	if w == nil {
		h.msgManager.Send(ctx, chatID, "Use /assess to start a screening.", nil)
		return
	}

	field, ok := h.currentField(w)
	if !ok || field.Kind == questionnaire.KindChoice {
		h.msgManager.Send(ctx, chatID, "Please use the buttons of the last message.", nil)
		return
	}

	raw := msg.Text
	if field.Kind == questionnaire.KindText {
		raw = h.sanitizer.Sanitize(raw)
	}
	value, err := field.Accept(raw)
	if err != nil {
		h.sendError(ctx, chatID, fmt.Sprintf("%s: %v", field.Label, err))
		return
	}

	if err := editable(w); err != nil {
		h.msgManager.Send(ctx, chatID, wizardNotice(err), nil)
		return
	}
	w.SetField(field.Key, value)
	h.sessions.Persist(chatID, w)
	h.sendPrompt(ctx, chatID, w, 0)
}

func (h *BotHandler) handleCallback(ctx context.Context, callback *tgmodels.CallbackQuery) {
	chatID, messageID := callbackTarget(callback)
	notice := h.dispatchCallback(ctx, chatID, messageID, callback)
	h.msgManager.AnswerCallback(ctx, callback.ID, notice)
}

func (h *BotHandler) dispatchCallback(ctx context.Context, chatID int64, messageID int, callback *tgmodels.CallbackQuery) string {
	data := callback.Data

	if strings.HasPrefix(data, cbReport+":") {
		return h.sendReport(ctx, chatID, callback.From.ID, strings.TrimPrefix(data, cbReport+":"))
	}

	w := h.session(chatID)
	if w == nil {
		return "No assessment in progress. Use /assess to start one."
	}

	if data != cbSubmit && data != cbPhotoSkip {
		if err := editable(w); err != nil {
			return wizardNotice(err)
		}
	}

	var notice string
	switch {
	case strings.HasPrefix(data, cbSet+":"):
		notice = h.setFromCallback(w, data)
	case data == cbNext:
		err := w.Advance()
		var vErr *wizard.ValidationError
		if errors.As(err, &vErr) {
			return h.formatter.MissingFields(vErr.Missing)
		}
		notice = wizardNotice(err)
	case data == cbBack:
		w.Retreat()
	case data == cbClear:
		notice = wizardNotice(w.ClearCapture())
	case data == cbSubmit || data == cbPhotoSkip:
		return h.submit(ctx, chatID, callback.From.ID, w, messageID)
	default:
		return ""
	}

	h.sessions.Persist(chatID, w)
	h.sendPrompt(ctx, chatID, w, messageID)
	return notice
}

// setFromCallback stores a button answer. Answers for another step come from
// a stale keyboard and are rejected.
func (h *BotHandler) setFromCallback(w *wizard.Wizard, data string) string {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || !models.IsKnownField(parts[1]) {
		return ""
	}
	key, value := parts[1], parts[2]

	step := w.Step()
	owned := false
	for _, k := range wizard.RequiredFields(step) {
		if k == key {
			owned = true
			break
		}
	}
	if !owned {
		return "This question belongs to another step."
	}

	if field, ok := h.formatter.Questionnaire().Field(key); ok {
		v, err := field.Accept(value)
		if err != nil {
			return fmt.Sprintf("%s: %v", field.Label, err)
		}
		value = v
	} else if value != "0" && value != "1" {
		return "Answers must be 0 or 1."
	}

	w.SetField(key, value)
	return ""
}

func (h *BotHandler) handlePhoto(ctx context.Context, msg *tgmodels.Message) {
	chatID := msg.Chat.ID
	w := h.mediaSession(ctx, chatID)
	if w == nil {
		return
	}

	photo := msg.Photo[len(msg.Photo)-1]
	data, err := h.download(ctx, photo.FileID)
	if err != nil {
		h.logger.Warn("photo download failed", zap.Int64("chat_id", chatID), zap.Error(err))
		h.sendError(ctx, chatID, "Could not download the photo from Telegram, please send it again.")
		return
	}

	_, err = w.CaptureFromFile(ctx, wizard.CapturedMedia{
		Name:        fmt.Sprintf("photo_%s.jpg", photo.FileUniqueID),
		ContentType: imaging.JPEGContentType,
		Data:        bytes.NewReader(data),
	})
	h.afterCapture(ctx, chatID, w, err)
}

// handleDocument accepts images sent as files. JPEG files are forwarded as
// they are; other formats are re-encoded to JPEG first.
func (h *BotHandler) handleDocument(ctx context.Context, msg *tgmodels.Message) {
	chatID := msg.Chat.ID
	doc := msg.Document
	if !strings.HasPrefix(doc.MimeType, "image/") {
		h.sendError(ctx, chatID, "Only image files are accepted.")
		return
	}
	w := h.mediaSession(ctx, chatID)
	if w == nil {
		return
	}

	data, err := h.download(ctx, doc.FileID)
	if err != nil {
		h.logger.Warn("document download failed", zap.Int64("chat_id", chatID), zap.Error(err))
		h.sendError(ctx, chatID, "Could not download the file from Telegram, please send it again.")
		return
	}

	if doc.MimeType == imaging.JPEGContentType {
		name := doc.FileName
		if name == "" {
			name = "image.jpg"
		}
		_, err = w.CaptureFromFile(ctx, wizard.CapturedMedia{Name: name, ContentType: doc.MimeType, Data: bytes.NewReader(data)})
		h.afterCapture(ctx, chatID, w, err)
		return
	}

	frame, _, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		h.sendError(ctx, chatID, "This image format is not supported. Please send a JPEG or PNG picture.")
		return
	}
	_, err = w.CaptureFromCamera(ctx, frame)
	h.afterCapture(ctx, chatID, w, err)
}

func (h *BotHandler) mediaSession(ctx context.Context, chatID int64) *wizard.Wizard {
	w := h.session(chatID)
	if w == nil {
		h.msgManager.Send(ctx, chatID, "Use /assess to start a screening first.", nil)
		return nil
	}
	if w.Step() != fsm.StepMediaCapture {
		h.sendError(ctx, chatID, "Photos are accepted on the last step only.")
		return nil
	}
	return w
}

func (h *BotHandler) afterCapture(ctx context.Context, chatID int64, w *wizard.Wizard, err error) {
	if err != nil {
		if errors.Is(err, wizard.ErrAbandoned) {
			return
		}
		h.sendError(ctx, chatID, wizardNotice(err))
		return
	}
	h.sessions.Persist(chatID, w)
	h.sendPrompt(ctx, chatID, w, 0)
}

func (h *BotHandler) submit(ctx context.Context, chatID, userID int64, w *wizard.Wizard, messageID int) string {
	hasImage := w.Draft().HasImage()
	id, err := w.Submit(ctx)
	if err != nil {
		var vErr *wizard.ValidationError
		if errors.As(err, &vErr) {
			return h.formatter.MissingFields(vErr.Missing)
		}
		if errors.Is(err, wizard.ErrSubmission) {
			h.logger.Warn("submission failed", zap.Int64("chat_id", chatID), zap.Error(err))
			h.sendError(ctx, chatID, "Submission failed. Your answers are kept, press Submit to try again.")
			return ""
		}
		return wizardNotice(err)
	}

	if err := h.sessions.Finish(chatID, w); err != nil {
		h.logger.Warn("draft not removed", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	sub := &models.Submission{UserID: userID, AssessmentID: id, HasImage: hasImage}
	assessment, err := h.backend.GetAssessment(ctx, id)
	if err != nil {
		h.logger.Warn("assessment not loaded", zap.String("assessment_id", id), zap.Error(err))
	} else {
		sub.RiskLevel = assessment.RiskLevel
	}
	if err := h.submissionRepo.Create(sub); err != nil {
		h.logger.Error("submission not recorded", zap.String("assessment_id", id), zap.Error(err))
	}

	if assessment == nil {
		text := fmt.Sprintf("Assessment %s was saved, but the result is not available yet. Check /history later.", services.FormatCode(id))
		h.msgManager.EditOrSend(ctx, chatID, messageID, text, nil)
		return ""
	}
	h.msgManager.EditOrSend(ctx, chatID, messageID, h.formatter.Result(assessment), BuildReportKeyboard(id))
	return ""
}

func (h *BotHandler) sendReport(ctx context.Context, chatID, userID int64, id string) string {
	owned, err := h.submissionRepo.BelongsTo(userID, id)
	if err != nil || !owned {
		return "This report is not available."
	}
	filename, data, err := h.backend.DownloadReport(ctx, id)
	if err != nil {
		h.logger.Warn("report download failed", zap.String("assessment_id", id), zap.Error(err))
		return "The report could not be generated, please try again later."
	}
	if _, err := h.msgManager.SendDocumentWithRetry(ctx, chatID, filename, data, "ASD assessment report"); err != nil {
		return "The report could not be sent."
	}
	return ""
}

// sendPrompt renders the current step. Button presses pass the message they
// came from so the prompt is edited in place; typed answers get a new one.
func (h *BotHandler) sendPrompt(ctx context.Context, chatID int64, w *wizard.Wizard, messageID int) {
	d := w.Draft()
	var text string
	var kb *tgmodels.InlineKeyboardMarkup

	switch step := w.Step(); step {
	case fsm.StepDemographics:
		if field, ok := h.currentField(w); ok {
			text = h.formatter.DemographicPrompt(field, d)
			if field.Kind == questionnaire.KindChoice {
				kb = BuildChoiceKeyboard(field)
			}
		} else {
			text = h.formatter.Progress(step) + "\n\n" + h.formatter.DemographicSummary(d)
			kb = keyboard(navRow(step, true))
		}
	case fsm.StepBehavioralBlock1, fsm.StepBehavioralBlock2:
		text = h.formatter.BehavioralPrompt(step, d)
		kb = BuildBehavioralKeyboard(step, d)
	case fsm.StepMediaCapture:
		if !d.HasImage() {
			if err := w.OpenCapture(); err != nil {
				h.logger.Debug("capture not opened", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		}
		text = h.formatter.MediaPrompt(d)
		kb = BuildMediaKeyboard(d)
	}

	h.msgManager.EditOrSend(ctx, chatID, messageID, text, kb)
}

func (h *BotHandler) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func (h *BotHandler) sendError(ctx context.Context, chatID int64, text string) {
	h.msgManager.Send(ctx, chatID, "⚠️ "+services.Escape(text), nil)
}

// editable reports why the draft of w cannot be changed right now.
func editable(w *wizard.Wizard) error {
	switch w.Phase() {
	case fsm.PhaseIdle:
		return nil
	case fsm.PhaseSubmitted:
		return wizard.ErrCompleted
	}
	return wizard.ErrBusy
}

func wizardNotice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, wizard.ErrBusy):
		return "Please wait, the previous request is still running."
	case errors.Is(err, wizard.ErrAlreadyImaged):
		return "A photo is already attached. Remove it to send another one."
	case errors.Is(err, wizard.ErrWrongStep):
		return "Photos are accepted on the last step only."
	case errors.Is(err, wizard.ErrUpload):
		return "The photo could not be uploaded, please try again."
	case errors.Is(err, wizard.ErrNotReady):
		return "Please finish all steps first."
	case errors.Is(err, wizard.ErrCompleted):
		return "This assessment was already submitted."
	case errors.Is(err, wizard.ErrAbandoned):
		return "This assessment was cancelled. Use /assess to start again."
	}
	return "Something went wrong, please try again."
}

func callbackTarget(cb *tgmodels.CallbackQuery) (int64, int) {
	if m := cb.Message.Message; m != nil {
		return m.Chat.ID, m.ID
	}
	if m := cb.Message.InaccessibleMessage; m != nil {
		return m.Chat.ID, 0
	}
	return cb.From.ID, 0
}

package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "modernc.org/sqlite"
)

// fakeAPI records outgoing Telegram calls. Files are served by an httptest
// server keyed by file id.
type fakeAPI struct {
	mu        sync.Mutex
	texts     []string
	keyboards []*tgmodels.InlineKeyboardMarkup
	alerts    []string
	documents []*bot.SendDocumentParams
	fileHost  string
	nextID    int
}

func (f *fakeAPI) record(text string, markup tgmodels.ReplyMarkup) {
	kb, _ := markup.(*tgmodels.InlineKeyboardMarkup)
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(params.Text, params.ReplyMarkup)
	f.nextID++
	return &tgmodels.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(params.Text, params.ReplyMarkup)
	return &tgmodels.Message{ID: params.MessageID}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, params.Text)
	return true, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, params)
	return &tgmodels.Message{ID: 1}, nil
}

func (f *fakeAPI) GetFile(_ context.Context, params *bot.GetFileParams) (*tgmodels.File, error) {
	return &tgmodels.File{FileID: params.FileID, FilePath: params.FileID}, nil
}

func (f *fakeAPI) FileDownloadLink(file *tgmodels.File) string {
	return f.fileHost + "/" + file.FilePath
}

func (f *fakeAPI) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeAPI) lastKeyboard() *tgmodels.InlineKeyboardMarkup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keyboards) == 0 {
		return nil
	}
	return f.keyboards[len(f.keyboards)-1]
}

func (f *fakeAPI) lastAlert() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return ""
	}
	return f.alerts[len(f.alerts)-1]
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

type fakeBackend struct {
	mu         sync.Mutex
	uploads    []upload
	requests   []models.AssessmentRequest
	assessErr  error
	metricsHit func()
}

func (b *fakeBackend) UploadImage(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, upload{name, contentType, data})
	return "stored_" + name, nil
}

func (b *fakeBackend) Assess(_ context.Context, req models.AssessmentRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.assessErr != nil {
		return "", b.assessErr
	}
	b.requests = append(b.requests, req)
	return "abc123", nil
}

func (b *fakeBackend) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req := b.requests[len(b.requests)-1]
	return &models.Assessment{
		ID:            id,
		Demographic:   req.Demographic,
		Behavioral:    req.Behavioral,
		ImageFilename: req.ImageFilename,
		Probability:   0.87,
		Confidence:    0.9,
		RiskLevel:     models.RiskHigh,
	}, nil
}

func (b *fakeBackend) DownloadReport(_ context.Context, id string) (string, []byte, error) {
	return "ASD_Assessment_Report_" + id + ".pdf", []byte("%PDF-1.4"), nil
}

func (b *fakeBackend) ModelMetrics(_ context.Context) (*models.ModelMetrics, error) {
	if b.metricsHit != nil {
		b.metricsHit()
	}
	return &models.ModelMetrics{}, nil
}

type testEnv struct {
	handler     *BotHandler
	api         *fakeAPI
	backend     *fakeBackend
	submissions *db.SubmissionRepository
	files       map[string][]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}
	queue := db.NewDBQueueForTest(sqlDB)
	t.Cleanup(func() {
		queue.Close()
		sqlDB.Close()
	})

	env := &testEnv{api: &fakeAPI{}, backend: &fakeBackend{}, files: make(map[string][]byte)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := env.files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.Copy(w, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	env.api.fileHost = server.URL

	errMgr := services.NewErrorManager(env.api, 999, nil)
	msgMgr := services.NewMessageManager(env.api, errMgr)
	sessions := services.NewSessionManager(db.NewDraftRepository(queue), env.backend, nil, nil)
	env.submissions = db.NewSubmissionRepository(queue)
	env.handler = NewBotHandler(
		env.api,
		999,
		errMgr,
		msgMgr,
		sessions,
		services.NewFormatter(questionnaire.MustLoad()),
		db.NewUserRepository(queue),
		env.submissions,
		services.NewStatisticsService(queue),
		env.backend,
		server.Client(),
		nil,
	)
	return env
}

const testChat = int64(42)

func (e *testEnv) text(text string) {
	e.textFrom(testChat, text)
}

func (e *testEnv) textFrom(userID int64, text string) {
	e.handler.HandleUpdate(context.Background(), nil, &tgmodels.Update{Message: &tgmodels.Message{
		ID:   1,
		From: &tgmodels.User{ID: userID, FirstName: "Alex"},
		Chat: tgmodels.Chat{ID: userID},
		Text: text,
	}})
}

func (e *testEnv) press(data string) {
	e.handler.HandleUpdate(context.Background(), nil, &tgmodels.Update{CallbackQuery: &tgmodels.CallbackQuery{
		ID:   "cb",
		From: tgmodels.User{ID: testChat},
		Data: data,
		Message: tgmodels.MaybeInaccessibleMessage{
			Message: &tgmodels.Message{ID: 100, Chat: tgmodels.Chat{ID: testChat}},
		},
	}})
}

func (e *testEnv) photo(fileID string, data []byte) {
	e.files[fileID] = data
	e.handler.HandleUpdate(context.Background(), nil, &tgmodels.Update{Message: &tgmodels.Message{
		ID:    2,
		From:  &tgmodels.User{ID: testChat},
		Chat:  tgmodels.Chat{ID: testChat},
		Photo: []tgmodels.PhotoSize{{FileID: "thumb", FileUniqueID: "t"}, {FileID: fileID, FileUniqueID: "u1"}},
	}})
}

func (e *testEnv) document(fileID, name, mime string, data []byte) {
	e.files[fileID] = data
	e.handler.HandleUpdate(context.Background(), nil, &tgmodels.Update{Message: &tgmodels.Message{
		ID:       3,
		From:     &tgmodels.User{ID: testChat},
		Chat:     tgmodels.Chat{ID: testChat},
		Document: &tgmodels.Document{FileID: fileID, FileName: name, MimeType: mime},
	}})
}

// answerDemographics walks the demographic prompts of the reference case.
func (e *testEnv) answerDemographics() {
	e.text("Alex")
	e.text("7")
	e.press("set:gender:0")
	e.text("3")
	e.text("US")
	e.press("set:jaundice:1")
	e.press("set:family_history:0")
	e.press("set:respondent:Parent")
}

func (e *testEnv) answerBlock(from, to int, value string) {
	for i := from; i <= to; i++ {
		e.press("set:" + models.BehavioralField(i) + ":" + value)
	}
}

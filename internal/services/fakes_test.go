package services

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"

	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "modernc.org/sqlite"
)

type fakeAPI struct {
	mu        sync.Mutex
	failSends int
	editErr   error
	sent      []*bot.SendMessageParams
	edited    []*bot.EditMessageTextParams
	answered  []*bot.AnswerCallbackQueryParams
	documents []*bot.SendDocumentParams
	nextID    int
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSends > 0 {
		f.failSends--
		return nil, errNetwork
	}
	f.sent = append(f.sent, params)
	f.nextID++
	return &tgmodels.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edited = append(f.edited, params)
	return &tgmodels.Message{ID: params.MessageID}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, params)
	return true, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, params)
	f.nextID++
	return &tgmodels.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) GetFile(_ context.Context, params *bot.GetFileParams) (*tgmodels.File, error) {
	return &tgmodels.File{FileID: params.FileID, FilePath: "photos/" + params.FileID + ".jpg"}, nil
}

func (f *fakeAPI) FileDownloadLink(file *tgmodels.File) string {
	return "https://files.example/" + file.FilePath
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []models.AssessmentRequest
}

func (b *fakeBackend) UploadImage(_ context.Context, _, _ string, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	return "uploaded.jpg", nil
}

func (b *fakeBackend) Assess(_ context.Context, req models.AssessmentRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return "abc123", nil
}

func setupTestQueue(t testing.TB) *db.DBQueue {
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
	return queue
}

func setupDraftStore(t *testing.T) *db.DraftRepository {
	t.Helper()
	return db.NewDraftRepository(setupTestQueue(t))
}

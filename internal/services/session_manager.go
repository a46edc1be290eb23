package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ad/go-telegram-screening/internal/wizard"
	"go.uber.org/zap"
)

type DraftStore interface {
	Save(chatID int64, snap wizard.Snapshot) error
	Get(chatID int64) (wizard.Snapshot, error)
	Delete(chatID int64) error
}

type Backend interface {
	wizard.Uploader
	wizard.Evaluator
}

// SessionManager owns one wizard per chat. Drafts are persisted after every
// change so that a restarted bot resumes where the respondent left off.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*wizard.Wizard
	store    DraftStore
	backend  Backend
	encoder  wizard.FrameEncoder
	logger   *zap.Logger
}

func NewSessionManager(store DraftStore, backend Backend, encoder wizard.FrameEncoder, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[int64]*wizard.Wizard),
		store:    store,
		backend:  backend,
		encoder:  encoder,
		logger:   logger,
	}
}

// Start opens a fresh wizard for chatID and abandons the previous one.
func (m *SessionManager) Start(chatID int64) (*wizard.Wizard, error) {
	w := wizard.New(m.backend, m.backend, m.options(chatID)...)

	m.mu.Lock()
	prev := m.sessions[chatID]
	m.sessions[chatID] = w
	m.mu.Unlock()

	if prev != nil {
		prev.Abandon()
	}
	if err := m.Persist(chatID, w); err != nil {
		return w, err
	}
	m.logger.Info("assessment started", zap.Int64("chat_id", chatID))
	return w, nil
}

// Get returns the active wizard of chatID, restoring it from the store when
// needed. ok is false when the chat has no draft.
func (m *SessionManager) Get(chatID int64) (w *wizard.Wizard, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.sessions[chatID]; ok {
		return w, true, nil
	}

	snap, err := m.store.Get(chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load draft: %w", err)
	}

	w = wizard.Restore(snap, m.backend, m.backend, m.options(chatID)...)
	m.sessions[chatID] = w
	m.logger.Info("draft restored", zap.Int64("chat_id", chatID), zap.Stringer("step", snap.Step))
	return w, true, nil
}

func (m *SessionManager) Persist(chatID int64, w *wizard.Wizard) error {
	m.mu.Lock()
	current := m.sessions[chatID]
	m.mu.Unlock()
	if current != w {
		m.logger.Debug("stale draft not saved", zap.Int64("chat_id", chatID))
		return nil
	}
	if err := m.store.Save(chatID, w.Snapshot()); err != nil {
		m.logger.Warn("draft not saved", zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Finish drops the draft of a completed assessment owned by w. When the chat
// has since started another wizard, that session and its draft are kept.
func (m *SessionManager) Finish(chatID int64, w *wizard.Wizard) error {
	m.mu.Lock()
	current, ok := m.sessions[chatID]
	if ok && current != w {
		m.mu.Unlock()
		m.logger.Debug("stale finish ignored", zap.Int64("chat_id", chatID))
		return nil
	}
	delete(m.sessions, chatID)
	m.mu.Unlock()
	return m.store.Delete(chatID)
}

// Cancel abandons the active wizard and deletes its draft. It reports whether
// there was anything to cancel.
func (m *SessionManager) Cancel(chatID int64) (bool, error) {
	w, ok, err := m.Get(chatID)
	if err != nil || !ok {
		return false, err
	}
	w.Abandon()
	if err := m.Finish(chatID, w); err != nil {
		return true, err
	}
	m.logger.Info("assessment cancelled", zap.Int64("chat_id", chatID))
	return true, nil
}

func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) options(chatID int64) []wizard.Option {
	opts := []wizard.Option{wizard.WithObserver(m.logEvent(chatID))}
	if m.encoder != nil {
		opts = append(opts, wizard.WithEncoder(m.encoder))
	}
	return opts
}

func (m *SessionManager) logEvent(chatID int64) wizard.Observer {
	logger := m.logger.With(zap.Int64("chat_id", chatID))
	return func(e wizard.Event) {
		fields := []zap.Field{zap.String("event", string(e.Kind)), zap.Stringer("step", e.Step)}
		switch e.Kind {
		case wizard.EventUploadFailed, wizard.EventSubmitFailed:
			logger.Warn("wizard event", append(fields, zap.Error(e.Err))...)
		case wizard.EventCompleted:
			logger.Info("wizard event", append(fields, zap.String("assessment_id", e.AssessmentID))...)
		default:
			logger.Debug("wizard event", fields...)
		}
	}
}

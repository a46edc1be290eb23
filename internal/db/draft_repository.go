package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/wizard"
)

// DraftRepository keeps the last persisted wizard snapshot of every chat.
type DraftRepository struct {
	queue *DBQueue
}

func NewDraftRepository(queue *DBQueue) *DraftRepository {
	return &DraftRepository{queue: queue}
}

func (r *DraftRepository) Save(chatID int64, snap wizard.Snapshot) error {
	draft := snap.Draft
	if draft == nil {
		draft = wizard.NewDraft()
	}
	values, err := json.Marshal(draft.Values)
	if err != nil {
		return fmt.Errorf("encode draft values: %w", err)
	}

	_, err = r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO drafts (chat_id, step, field_values, image_reference, image_name, capture_open, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(chat_id) DO UPDATE SET
				step = excluded.step,
				field_values = excluded.field_values,
				image_reference = excluded.image_reference,
				image_name = excluded.image_name,
				capture_open = excluded.capture_open,
				updated_at = CURRENT_TIMESTAMP
		`, chatID, int(snap.Step), string(values), draft.ImageReference, draft.ImageName, snap.CaptureOpen)
		return nil, err
	})
	return err
}

// Get returns sql.ErrNoRows when the chat has no stored draft.
func (r *DraftRepository) Get(chatID int64) (wizard.Snapshot, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT step, field_values, image_reference, image_name, capture_open
			FROM drafts WHERE chat_id = ?
		`, chatID)

		var step int
		var values string
		var captureOpen sql.NullBool
		draft := wizard.NewDraft()
		if err := row.Scan(&step, &values, &draft.ImageReference, &draft.ImageName, &captureOpen); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(values), &draft.Values); err != nil {
			return nil, fmt.Errorf("decode draft values: %w", err)
		}
		if draft.Values == nil {
			draft.Values = make(map[string]string)
		}
		return wizard.Snapshot{Step: fsm.Step(step), Draft: draft, CaptureOpen: captureOpen.Bool}, nil
	})
	if err != nil {
		return wizard.Snapshot{}, err
	}
	return result.(wizard.Snapshot), nil
}

func (r *DraftRepository) Delete(chatID int64) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`DELETE FROM drafts WHERE chat_id = ?`, chatID)
		return nil, err
	})
	return err
}

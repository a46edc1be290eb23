package db

import (
	"database/sql"

	"github.com/ad/go-telegram-screening/internal/models"
)

type SubmissionRepository struct {
	queue *DBQueue
}

func NewSubmissionRepository(queue *DBQueue) *SubmissionRepository {
	return &SubmissionRepository{queue: queue}
}

// Create records an assessment id. Recording the same id twice keeps the
// first row and updates its risk level.
func (r *SubmissionRepository) Create(sub *models.Submission) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var id int64
		err := db.QueryRow(`
			INSERT INTO submissions (user_id, assessment_id, risk_level, has_image)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(assessment_id) DO UPDATE SET risk_level = excluded.risk_level
			RETURNING id
		`, sub.UserID, sub.AssessmentID, string(sub.RiskLevel), sub.HasImage).Scan(&id)
		if err != nil {
			return nil, err
		}
		sub.ID = id
		return nil, nil
	})
	return err
}

// ListByUser returns the submissions of userID, newest first.
func (r *SubmissionRepository) ListByUser(userID int64, limit int) ([]*models.Submission, error) {
	if limit <= 0 {
		limit = 10
	}
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`
			SELECT id, user_id, assessment_id, risk_level, has_image, created_at
			FROM submissions WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, userID, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var subs []*models.Submission
		for rows.Next() {
			var sub models.Submission
			var risk string
			var hasImage sql.NullBool
			if err := rows.Scan(&sub.ID, &sub.UserID, &sub.AssessmentID, &risk, &hasImage, &sub.CreatedAt); err != nil {
				return nil, err
			}
			sub.RiskLevel = models.RiskLevel(risk)
			sub.HasImage = hasImage.Bool
			subs = append(subs, &sub)
		}
		return subs, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Submission), nil
}

// BelongsTo reports whether assessmentID was produced by userID.
func (r *SubmissionRepository) BelongsTo(userID int64, assessmentID string) (bool, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var n int
		err := db.QueryRow(`
			SELECT COUNT(*) FROM submissions WHERE user_id = ? AND assessment_id = ?
		`, userID, assessmentID).Scan(&n)
		return n > 0, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

package models

import "time"

// Submission links a Telegram user to an assessment produced by the backend.
type Submission struct {
	ID           int64
	UserID       int64
	AssessmentID string
	RiskLevel    RiskLevel
	HasImage     bool
	CreatedAt    time.Time
}

package wizard

import (
	"github.com/ad/go-telegram-screening/internal/fsm"
)

type EventKind string

const (
	EventStepChanged      EventKind = "step_changed"
	EventValidationFailed EventKind = "validation_failed"
	EventUploadStarted    EventKind = "upload_started"
	EventUploadFailed     EventKind = "upload_failed"
	EventUploadAbandoned  EventKind = "upload_abandoned"
	EventImageCaptured    EventKind = "image_captured"
	EventCaptureCleared   EventKind = "capture_cleared"
	EventSubmitStarted    EventKind = "submit_started"
	EventSubmitFailed     EventKind = "submit_failed"
	EventCompleted        EventKind = "completed"
)

type Event struct {
	Kind           EventKind
	Step           fsm.Step
	Missing        []string
	ImageReference string
	AssessmentID   string
	Err            error
}

// Observer is called synchronously after a state change, outside the wizard
// lock, so it may call back into the wizard.
type Observer func(Event)

func (w *Wizard) unlockAndEmit(events ...Event) {
	observers := append([]Observer(nil), w.observers...)
	w.mu.Unlock()
	for _, e := range events {
		for _, o := range observers {
			o(e)
		}
	}
}

func (w *Wizard) emit(events ...Event) {
	w.mu.Lock()
	w.unlockAndEmit(events...)
}

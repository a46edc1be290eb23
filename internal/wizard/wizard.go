// Package wizard implements the assessment wizard: step navigation with
// validation gating, photo acquisition and the single final submission.
//
// A Wizard owns exactly one Draft. All methods are safe for concurrent use;
// remote calls run without holding the lock and the Phase state machine keeps
// at most one of them in flight.
package wizard

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/imaging"
	"github.com/ad/go-telegram-screening/internal/models"
)

type Uploader interface {
	UploadImage(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

type Evaluator interface {
	Assess(ctx context.Context, req models.AssessmentRequest) (string, error)
}

type FrameEncoder interface {
	Encode(frame image.Image) ([]byte, error)
}

// CapturedMedia is a picked or captured image on its way to the uploader.
// Only the reference returned by the upload is kept afterwards.
type CapturedMedia struct {
	Name        string
	ContentType string
	Data        io.Reader
}

type Snapshot struct {
	Step        fsm.Step `json:"step"`
	Draft       *Draft   `json:"draft"`
	CaptureOpen bool     `json:"capture_open"`
}

type Wizard struct {
	mu          sync.Mutex
	step        fsm.Step
	draft       *Draft
	phase       fsm.Phase
	captureOpen bool
	generation  uint64
	abandoned   bool

	uploader  Uploader
	evaluator Evaluator
	encoder   FrameEncoder
	observers []Observer
}

type Option func(*Wizard)

func WithEncoder(e FrameEncoder) Option {
	return func(w *Wizard) {
		w.encoder = e
	}
}

func WithObserver(o Observer) Option {
	return func(w *Wizard) {
		w.observers = append(w.observers, o)
	}
}

// New creates a wizard with an empty draft on the first step.
func New(uploader Uploader, evaluator Evaluator, opts ...Option) *Wizard {
	w := &Wizard{
		step:      fsm.FirstStep,
		draft:     NewDraft(),
		phase:     fsm.PhaseIdle,
		uploader:  uploader,
		evaluator: evaluator,
		encoder:   imaging.NewEncoder(imaging.DefaultMaxWidth, imaging.DefaultMaxHeight, imaging.DefaultQuality),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Restore rebuilds a wizard from a persisted snapshot. In-flight operations
// are never persisted, so the restored wizard is idle.
func Restore(s Snapshot, uploader Uploader, evaluator Evaluator, opts ...Option) *Wizard {
	w := New(uploader, evaluator, opts...)
	if s.Step.Valid() {
		w.step = s.Step
	}
	if s.Draft != nil {
		w.draft = s.Draft.Clone()
	}
	w.captureOpen = s.CaptureOpen && w.step == fsm.StepMediaCapture
	return w
}

func (w *Wizard) Subscribe(o Observer) {
	w.mu.Lock()
	w.observers = append(w.observers, o)
	w.mu.Unlock()
}

func (w *Wizard) Step() fsm.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Phase() fsm.Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Draft returns a copy of the current draft.
func (w *Wizard) Draft() *Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Clone()
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{Step: w.step, Draft: w.draft.Clone(), CaptureOpen: w.captureOpen}
}

func (w *Wizard) CaptureOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.captureOpen
}

// ControlsEnabled reports whether capture and submit controls accept input.
func (w *Wizard) ControlsEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase == fsm.PhaseIdle && !w.abandoned
}

// SetField stores value under key. It performs no validation. While an upload
// or a submission is pending, or after submission, the draft is frozen and the
// write is dropped.
func (w *Wizard) SetField(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != fsm.PhaseIdle {
		return
	}
	w.draft.Values[key] = value
}

func (w *Wizard) ValidateCurrentStep() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.draft.Missing(w.step)) == 0
}

func (w *Wizard) MissingFields() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Missing(w.step)
}

// Advance moves to the next step when the current one is complete. On the
// last step it is a no-op.
func (w *Wizard) Advance() error {
	w.mu.Lock()
	if err := w.checkUsable(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.phase != fsm.PhaseIdle {
		w.mu.Unlock()
		return ErrBusy
	}
	if missing := w.draft.Missing(w.step); len(missing) > 0 {
		step := w.step
		w.unlockAndEmit(Event{Kind: EventValidationFailed, Step: step, Missing: missing})
		return &ValidationError{Step: step, Missing: missing}
	}
	if w.step == fsm.LastStep {
		w.mu.Unlock()
		return nil
	}
	w.step++
	w.unlockAndEmit(Event{Kind: EventStepChanged, Step: w.step})
	return nil
}

// Retreat moves to the previous step. On the first step and while a remote
// call is pending it is a no-op.
func (w *Wizard) Retreat() {
	w.mu.Lock()
	if w.checkUsable() != nil || w.phase != fsm.PhaseIdle || w.step == fsm.FirstStep {
		w.mu.Unlock()
		return
	}
	w.step--
	w.unlockAndEmit(Event{Kind: EventStepChanged, Step: w.step})
}

func (w *Wizard) OpenCapture() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkCapture(); err != nil {
		return err
	}
	w.captureOpen = true
	return nil
}

// CloseCapture hides the capture overlay. The result of an upload still in
// flight is dropped when it arrives; the transfer itself is not cancelled.
func (w *Wizard) CloseCapture() {
	w.mu.Lock()
	w.captureOpen = false
	if w.phase != fsm.PhaseUploading {
		w.mu.Unlock()
		return
	}
	w.generation++
	w.phase = fsm.PhaseIdle
	w.unlockAndEmit(Event{Kind: EventUploadAbandoned, Step: w.step})
}

// CaptureFromFile forwards a locally selected image unmodified to the upload
// service and keeps the returned reference.
func (w *Wizard) CaptureFromFile(ctx context.Context, media CapturedMedia) (string, error) {
	w.mu.Lock()
	if err := w.checkCapture(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	w.phase = fsm.PhaseUploading
	gen := w.generation
	w.unlockAndEmit(Event{Kind: EventUploadStarted, Step: fsm.StepMediaCapture})

	ref, err := w.uploader.UploadImage(ctx, media.Name, media.ContentType, media.Data)
	if err == nil && ref == "" {
		err = fmt.Errorf("upload returned no reference")
	}

	w.mu.Lock()
	if w.abandoned || gen != w.generation {
		w.mu.Unlock()
		return "", ErrAbandoned
	}
	w.phase = fsm.PhaseIdle
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpload, err)
		w.unlockAndEmit(Event{Kind: EventUploadFailed, Step: w.step, Err: err})
		return "", err
	}
	w.draft.ImageReference = ref
	w.draft.ImageName = media.Name
	w.captureOpen = false
	w.unlockAndEmit(Event{Kind: EventImageCaptured, Step: w.step, ImageReference: ref})
	return ref, nil
}

// CaptureFromCamera encodes a frame from a live capture source as JPEG and
// uploads it the same way as a picked file.
func (w *Wizard) CaptureFromCamera(ctx context.Context, frame image.Image) (string, error) {
	w.mu.Lock()
	if err := w.checkCapture(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	w.mu.Unlock()

	data, err := w.encoder.Encode(frame)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpload, err)
		w.emit(Event{Kind: EventUploadFailed, Step: fsm.StepMediaCapture, Err: err})
		return "", err
	}

	return w.CaptureFromFile(ctx, CapturedMedia{
		Name:        imaging.CameraFileName,
		ContentType: imaging.JPEGContentType,
		Data:        bytes.NewReader(data),
	})
}

// ClearCapture forgets the uploaded image so another one can be captured.
// The uploaded object stays on the backend.
func (w *Wizard) ClearCapture() error {
	w.mu.Lock()
	if err := w.checkUsable(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.phase != fsm.PhaseIdle {
		w.mu.Unlock()
		return ErrBusy
	}
	if !w.draft.HasImage() {
		w.mu.Unlock()
		return nil
	}
	w.draft.ImageReference = ""
	w.draft.ImageName = ""
	w.unlockAndEmit(Event{Kind: EventCaptureCleared, Step: w.step})
	return nil
}

// Submit sends the draft to the evaluation service exactly once and returns
// the assessment id. On failure the draft is left untouched and Submit may be
// called again.
func (w *Wizard) Submit(ctx context.Context) (string, error) {
	w.mu.Lock()
	if err := w.checkUsable(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	if w.phase != fsm.PhaseIdle {
		w.mu.Unlock()
		return "", ErrBusy
	}
	if w.step != fsm.LastStep {
		w.mu.Unlock()
		return "", ErrNotReady
	}
	if step, missing := w.draft.MissingAll(); len(missing) > 0 {
		w.unlockAndEmit(Event{Kind: EventValidationFailed, Step: step, Missing: missing})
		return "", &ValidationError{Step: step, Missing: missing}
	}
	payload, err := BuildPayload(w.draft)
	if err != nil {
		w.unlockAndEmit(Event{Kind: EventSubmitFailed, Step: w.step, Err: err})
		return "", err
	}
	w.phase = fsm.PhaseSubmitting
	gen := w.generation
	w.unlockAndEmit(Event{Kind: EventSubmitStarted, Step: fsm.LastStep})

	id, err := w.evaluator.Assess(ctx, payload)
	if err == nil && id == "" {
		err = fmt.Errorf("evaluation returned no assessment id")
	}

	w.mu.Lock()
	if w.abandoned || gen != w.generation {
		w.mu.Unlock()
		return "", ErrAbandoned
	}
	if err != nil {
		w.phase = fsm.PhaseIdle
		err = fmt.Errorf("%w: %w", ErrSubmission, err)
		w.unlockAndEmit(Event{Kind: EventSubmitFailed, Step: w.step, Err: err})
		return "", err
	}
	w.phase = fsm.PhaseSubmitted
	w.unlockAndEmit(Event{Kind: EventCompleted, Step: w.step, AssessmentID: id})
	return id, nil
}

// Abandon detaches the wizard: results of in-flight calls are ignored and
// every later operation fails with ErrAbandoned.
func (w *Wizard) Abandon() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandoned = true
	w.generation++
	w.captureOpen = false
	if w.phase != fsm.PhaseSubmitted {
		w.phase = fsm.PhaseIdle
	}
}

func (w *Wizard) checkUsable() error {
	if w.abandoned {
		return ErrAbandoned
	}
	if w.phase == fsm.PhaseSubmitted {
		return ErrCompleted
	}
	return nil
}

func (w *Wizard) checkCapture() error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if w.phase != fsm.PhaseIdle {
		return ErrBusy
	}
	if w.step != fsm.StepMediaCapture {
		return ErrWrongStep
	}
	if w.draft.HasImage() {
		return ErrAlreadyImaged
	}
	return nil
}

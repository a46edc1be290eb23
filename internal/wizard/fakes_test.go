package wizard

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/models"
)

var errBackendDown = errors.New("backend down")

type uploadCall struct {
	Name        string
	ContentType string
	Data        []byte
}

// fakeBackend implements Uploader and Evaluator. When gate is set both calls
// signal started and wait for the gate to close.
type fakeBackend struct {
	mu        sync.Mutex
	uploadRef string
	uploadErr error
	assessID  string
	assessErr error

	uploads  []uploadCall
	requests []models.AssessmentRequest

	gate    chan struct{}
	started chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{uploadRef: "uploaded.jpg", assessID: "abc123"}
}

func (f *fakeBackend) blockCalls() {
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 4)
}

func (f *fakeBackend) wait() {
	if f.gate == nil {
		return
	}
	f.started <- struct{}{}
	<-f.gate
}

func (f *fakeBackend) UploadImage(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploadCall{Name: name, ContentType: contentType, Data: data})
	return f.uploadRef, f.uploadErr
}

func (f *fakeBackend) Assess(_ context.Context, req models.AssessmentRequest) (string, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.assessID, f.assessErr
}

func (f *fakeBackend) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeBackend) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) last(kind EventKind) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind == kind {
			return l.events[i], true
		}
	}
	return Event{}, false
}

// alexDraft is the demographic and behavioral data of the reference scenario.
func alexDraft() map[string]string {
	values := map[string]string{
		models.FieldName:          "Alex",
		models.FieldAge:           "7",
		models.FieldGender:        "0",
		models.FieldEthnicity:     "3",
		models.FieldCountry:       "US",
		models.FieldJaundice:      "1",
		models.FieldFamilyHistory: "0",
		models.FieldRespondent:    "Parent",
	}
	for i := 1; i <= models.BehavioralItemCount; i++ {
		values[models.BehavioralField(i)] = "1"
	}
	return values
}

func fill(w *Wizard, values map[string]string) {
	for k, v := range values {
		w.SetField(k, v)
	}
}

// walkToLastStep fills values and advances to the photo step.
func walkToLastStep(w *Wizard, values map[string]string) error {
	fill(w, values)
	for w.Step() != fsm.LastStep {
		if err := w.Advance(); err != nil {
			return err
		}
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Package cli is the terminal front-end of the screening wizard.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/services"
	"github.com/ad/go-telegram-screening/internal/wizard"
	"go.uber.org/zap"
)

const (
	optNext       = "Next"
	optBack       = "Back"
	optAgree      = "1 - agree"
	optDisagree   = "0 - disagree"
	optUpload     = "Upload an image file"
	optCamera     = "Capture from camera"
	optSkip       = "Skip photo and submit"
	optSubmit     = "Submit"
	optRemove     = "Remove photo"
	defaultAnswer = -1
)

// Backend is everything the runner needs from the evaluation service.
type Backend interface {
	wizard.Uploader
	wizard.Evaluator
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
}

type Runner struct {
	driver  PromptDriver
	q       *questionnaire.Questionnaire
	backend Backend
	camera  FrameSource
	encoder wizard.FrameEncoder
	out     io.Writer
	logger  *zap.Logger
}

type Option func(*Runner)

// WithCamera enables the camera capture choice.
func WithCamera(c FrameSource) Option {
	return func(r *Runner) {
		r.camera = c
	}
}

func WithEncoder(e wizard.FrameEncoder) Option {
	return func(r *Runner) {
		r.encoder = e
	}
}

func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

func NewRunner(driver PromptDriver, q *questionnaire.Questionnaire, backend Backend, opts ...Option) *Runner {
	r := &Runner{
		driver:  driver,
		q:       q,
		backend: backend,
		out:     os.Stdout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run walks one assessment from the first step to a submitted result and
// returns the assessment id.
func (r *Runner) Run(ctx context.Context) (string, error) {
	opts := []wizard.Option{wizard.WithObserver(r.logEvent)}
	if r.encoder != nil {
		opts = append(opts, wizard.WithEncoder(r.encoder))
	}
	w := wizard.New(r.backend, r.backend, opts...)
	defer w.Abandon()

	for {
		var err error
		switch step := w.Step(); step {
		case fsm.StepDemographics:
			err = r.demographics(ctx, w)
		case fsm.StepBehavioralBlock1, fsm.StepBehavioralBlock2:
			err = r.behavioral(ctx, w, step)
		case fsm.StepMediaCapture:
			var id string
			id, err = r.media(ctx, w)
			if err == nil && id != "" {
				r.printResult(ctx, id)
				return id, nil
			}
		}
		if err != nil {
			return "", err
		}
	}
}

func (r *Runner) header(ctx context.Context, step fsm.Step) error {
	return r.driver.Info(ctx, fmt.Sprintf("\nStep %d of %d: %s", int(step)+1, fsm.StepCount, services.StepTitle(step)))
}

func (r *Runner) demographics(ctx context.Context, w *wizard.Wizard) error {
	if err := r.header(ctx, fsm.StepDemographics); err != nil {
		return err
	}
	for _, field := range r.q.Demographics {
		value, err := r.askField(ctx, field, w.Draft().Get(field.Key))
		if err != nil {
			return err
		}
		w.SetField(field.Key, value)
	}
	return r.navigate(ctx, w)
}

func (r *Runner) askField(ctx context.Context, field questionnaire.Field, current string) (string, error) {
	if field.Kind == questionnaire.KindChoice {
		labels := make([]string, 0, len(field.Choices))
		def := defaultAnswer
		for i, c := range field.Choices {
			labels = append(labels, c.Label)
			if c.Value == current {
				def = i
			}
		}
		i, err := r.driver.Select(ctx, SelectConfig{Message: field.Prompt, Options: labels, DefaultIndex: def})
		if err != nil {
			return "", err
		}
		if i < 0 || i >= len(field.Choices) {
			return "", fmt.Errorf("%s: no choice selected", field.Label)
		}
		return field.Choices[i].Value, nil
	}

	for {
		raw, err := r.driver.Input(ctx, InputConfig{
			Message: field.Prompt,
			Default: current,
			Validator: func(s string) error {
				_, err := field.Accept(s)
				return err
			},
		})
		if err != nil {
			return "", err
		}
		value, err := field.Accept(raw)
		if err == nil {
			return value, nil
		}
		if err := r.driver.Info(ctx, fmt.Sprintf("%s: %v", field.Label, err)); err != nil {
			return "", err
		}
	}
}

func (r *Runner) behavioral(ctx context.Context, w *wizard.Wizard, step fsm.Step) error {
	if err := r.header(ctx, step); err != nil {
		return err
	}
	required := make(map[string]bool)
	for _, key := range wizard.RequiredFields(step) {
		required[key] = true
	}
	for i, item := range r.q.Items {
		if !required[item.Key] {
			continue
		}
		def := defaultAnswer
		switch w.Draft().Get(item.Key) {
		case "1":
			def = 0
		case "0":
			def = 1
		}
		choice, err := r.driver.Select(ctx, SelectConfig{
			Message:      fmt.Sprintf("%d. %s", i+1, item.Text),
			Options:      []string{optAgree, optDisagree},
			DefaultIndex: def,
		})
		if err != nil {
			return err
		}
		value := "1"
		if choice == 1 {
			value = "0"
		}
		w.SetField(item.Key, value)
	}
	return r.navigate(ctx, w)
}

// navigate asks whether to continue. Advancing with missing answers reports
// them and stays on the step.
func (r *Runner) navigate(ctx context.Context, w *wizard.Wizard) error {
	options := []string{optNext}
	if w.Step() != fsm.FirstStep {
		options = append(options, optBack)
	}
	i, err := r.driver.Select(ctx, SelectConfig{Message: "Continue?", Options: options})
	if err != nil {
		return err
	}
	if i >= 0 && options[i] == optBack {
		w.Retreat()
		return nil
	}

	err = w.Advance()
	var vErr *wizard.ValidationError
	if errors.As(err, &vErr) {
		return r.driver.Info(ctx, r.missing(vErr.Missing))
	}
	return err
}

func (r *Runner) missing(keys []string) string {
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		labels = append(labels, r.q.Label(k))
	}
	return "Please complete all required fields: " + strings.Join(labels, ", ")
}

// media runs the photo step until the draft is submitted or the user goes
// back. It returns the assessment id after a successful submission.
func (r *Runner) media(ctx context.Context, w *wizard.Wizard) (string, error) {
	if err := r.header(ctx, fsm.StepMediaCapture); err != nil {
		return "", err
	}
	defer w.CloseCapture()

	for {
		d := w.Draft()
		if d.HasImage() {
			if err := r.driver.Info(ctx, "Photo attached: "+d.ImageName); err != nil {
				return "", err
			}
		} else if err := w.OpenCapture(); err != nil {
			r.logger.Debug("capture not opened", zap.Error(err))
		}
		options := r.mediaOptions(d.HasImage())

		i, err := r.driver.Select(ctx, SelectConfig{Message: "Facial image (optional)", Options: options})
		if err != nil {
			return "", err
		}
		if i < 0 {
			continue
		}

		var notice string
		switch options[i] {
		case optUpload:
			notice, err = r.uploadFile(ctx, w)
		case optCamera:
			notice = r.captureFrame(ctx, w)
		case optRemove:
			if cerr := w.ClearCapture(); cerr != nil {
				notice = cerr.Error()
			}
		case optBack:
			w.Retreat()
			return "", nil
		case optSubmit, optSkip:
			var id string
			id, notice = r.submit(ctx, w)
			if id != "" {
				return id, nil
			}
		}
		if err != nil {
			return "", err
		}
		if notice != "" {
			if err := r.driver.Info(ctx, notice); err != nil {
				return "", err
			}
		}
	}
}

func (r *Runner) mediaOptions(hasImage bool) []string {
	if hasImage {
		return []string{optSubmit, optRemove, optBack}
	}
	options := []string{optUpload}
	if r.camera != nil {
		options = append(options, optCamera)
	}
	return append(options, optSkip, optBack)
}

func (r *Runner) uploadFile(ctx context.Context, w *wizard.Wizard) (string, error) {
	path, err := r.driver.Input(ctx, InputConfig{Message: "Path to the image file"})
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("Cannot open %s: %v", path, err), nil
	}
	defer f.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = w.CaptureFromFile(ctx, wizard.CapturedMedia{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        f,
	})
	if err != nil {
		return "Upload failed: " + err.Error(), nil
	}
	return "", nil
}

func (r *Runner) captureFrame(ctx context.Context, w *wizard.Wizard) string {
	frame, err := r.camera.Capture(ctx)
	if err != nil {
		r.logger.Warn("camera capture failed", zap.Error(err))
		return "Camera capture failed: " + err.Error()
	}
	if _, err := w.CaptureFromCamera(ctx, frame); err != nil {
		return "Upload failed: " + err.Error()
	}
	return ""
}

func (r *Runner) submit(ctx context.Context, w *wizard.Wizard) (string, string) {
	id, err := w.Submit(ctx)
	if err == nil {
		return id, ""
	}
	var vErr *wizard.ValidationError
	if errors.As(err, &vErr) {
		return "", r.missing(vErr.Missing)
	}
	return "", fmt.Sprintf("Submission failed: %v. Your answers are kept, choose Submit to try again.", err)
}

func (r *Runner) printResult(ctx context.Context, id string) {
	a, err := r.backend.GetAssessment(ctx, id)
	if err != nil {
		r.logger.Warn("assessment not loaded", zap.String("assessment_id", id), zap.Error(err))
		fmt.Fprintf(r.out, "\nAssessment %s was saved, but the result is not available yet.\n", id)
		return
	}
	fmt.Fprint(r.out, FormatResult(r.q, a))
}

func (r *Runner) logEvent(e wizard.Event) {
	fields := []zap.Field{zap.String("event", string(e.Kind)), zap.Stringer("step", e.Step)}
	if e.Err != nil {
		r.logger.Warn("wizard event", append(fields, zap.Error(e.Err))...)
		return
	}
	r.logger.Debug("wizard event", fields...)
}

// FormatResult renders an assessment as plain text.
func FormatResult(q *questionnaire.Questionnaire, a *models.Assessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nAssessment %s\n", a.ID)
	fmt.Fprintf(&sb, "Risk level:       %s\n", a.RiskLevel)
	fmt.Fprintf(&sb, "ASD probability:  %s\n", services.Percent(a.Probability))
	fmt.Fprintf(&sb, "Model confidence: %s\n", services.Percent(a.Confidence))
	fmt.Fprintf(&sb, "AQ-10 score:      %d/%d\n", a.Behavioral.Total(), models.BehavioralItemCount)
	if a.ImageFilename != nil {
		sb.WriteString("Facial image:     analyzed\n")
	}
	if recs := q.Recommendations[a.RiskLevel]; len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, rec := range recs {
			fmt.Fprintf(&sb, "  - %s\n", rec)
		}
	}
	if q.Disclaimer != "" {
		fmt.Fprintf(&sb, "\n%s\n", q.Disclaimer)
	}
	return sb.String()
}

// FormatHistory renders the assessments stored on the backend, newest first.
func FormatHistory(assessments []models.Assessment) string {
	if len(assessments) == 0 {
		return "No assessments recorded yet.\n"
	}
	var sb strings.Builder
	for i, a := range assessments {
		fmt.Fprintf(&sb, "%2d. %s  %-8s %6s  %s\n",
			i+1, services.FormatDateTime(a.Timestamp), a.RiskLevel, services.Percent(a.Probability), a.ID)
	}
	return sb.String()
}

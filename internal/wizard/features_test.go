package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/cucumber/godog"
)

type scenario struct {
	backend *fakeBackend
	wizard  *Wizard
	values  map[string]string

	advanceErr error
	submitID   string
	submitErr  error
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenario{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = scenario{}
		return ctx, nil
	})

	sc.Step(`^a new wizard$`, s.aNewWizard)
	sc.Step(`^the respondent answers the demographics for "([^"]*)"$`, s.answersDemographics)
	sc.Step(`^the respondent answers every behavioral item with "([^"]*)"$`, s.answersBehavioral)
	sc.Step(`^the respondent clears "([^"]*)"$`, s.clears)
	sc.Step(`^the respondent advances to the photo step$`, s.advancesToPhotoStep)
	sc.Step(`^the respondent advances (\d+) times?$`, s.advancesTimes)
	sc.Step(`^the respondent tries to advance$`, s.triesToAdvance)
	sc.Step(`^the respondent uploads "([^"]*)"$`, s.uploads)
	sc.Step(`^the respondent submits$`, s.submits)
	sc.Step(`^the evaluation service returns "([^"]*)"$`, s.evaluationReturns)
	sc.Step(`^the evaluation service fails$`, s.evaluationFails)
	sc.Step(`^the submission succeeds with "([^"]*)"$`, s.submissionSucceeds)
	sc.Step(`^the submission fails$`, s.submissionFails)
	sc.Step(`^the submission is rejected for "([^"]*)"$`, s.submissionRejected)
	sc.Step(`^the payload has no image filename$`, s.payloadHasNoImage)
	sc.Step(`^the payload image filename is "([^"]*)"$`, s.payloadImageIs)
	sc.Step(`^the payload answer "([^"]*)" is (\d+)$`, s.payloadAnswerIs)
	sc.Step(`^the wizard stays on step "([^"]*)"$`, s.staysOnStep)
	sc.Step(`^the missing fields are "([^"]*)"$`, s.missingFieldsAre)
	sc.Step(`^the draft still has "([^"]*)" set to "([^"]*)"$`, s.draftHas)
}

func (s *scenario) aNewWizard() error {
	s.backend = newFakeBackend()
	s.wizard = New(s.backend, s.backend)
	s.values = alexDraft()
	return nil
}

func (s *scenario) answersDemographics(name string) error {
	s.values["name"] = name
	for _, key := range RequiredFields(fsm.StepDemographics) {
		s.wizard.SetField(key, s.values[key])
	}
	return nil
}

func (s *scenario) answersBehavioral(value string) error {
	for _, block := range []fsm.Step{fsm.StepBehavioralBlock1, fsm.StepBehavioralBlock2} {
		for _, key := range RequiredFields(block) {
			s.wizard.SetField(key, value)
		}
	}
	return nil
}

func (s *scenario) clears(key string) error {
	s.wizard.SetField(key, "")
	return nil
}

func (s *scenario) advancesToPhotoStep() error {
	return walkToLastStep(s.wizard, nil)
}

func (s *scenario) advancesTimes(n int) error {
	for i := 0; i < n; i++ {
		if err := s.wizard.Advance(); err != nil {
			return err
		}
	}
	return nil
}

func (s *scenario) triesToAdvance() error {
	s.advanceErr = s.wizard.Advance()
	return nil
}

func (s *scenario) uploads(name string) error {
	_, err := s.wizard.CaptureFromFile(context.Background(), CapturedMedia{
		Name:        name,
		ContentType: "image/jpeg",
		Data:        strings.NewReader("jpeg-bytes"),
	})
	return err
}

func (s *scenario) submits() error {
	s.submitID, s.submitErr = s.wizard.Submit(context.Background())
	return nil
}

func (s *scenario) evaluationReturns(id string) error {
	s.backend.mu.Lock()
	s.backend.assessID, s.backend.assessErr = id, nil
	s.backend.mu.Unlock()
	return nil
}

func (s *scenario) evaluationFails() error {
	s.backend.mu.Lock()
	s.backend.assessErr = errBackendDown
	s.backend.mu.Unlock()
	return nil
}

func (s *scenario) submissionSucceeds(id string) error {
	if s.submitErr != nil {
		return fmt.Errorf("submission failed: %w", s.submitErr)
	}
	if s.submitID != id {
		return fmt.Errorf("expected assessment %q, got %q", id, s.submitID)
	}
	return nil
}

func (s *scenario) submissionFails() error {
	if !errors.Is(s.submitErr, ErrSubmission) {
		return fmt.Errorf("expected submission error, got %v", s.submitErr)
	}
	return nil
}

func (s *scenario) submissionRejected(list string) error {
	var vErr *ValidationError
	if !errors.As(s.submitErr, &vErr) {
		return fmt.Errorf("expected validation error, got %v", s.submitErr)
	}
	if got := strings.Join(vErr.Missing, ","); got != list {
		return fmt.Errorf("expected missing %s, got %s", list, got)
	}
	if n := s.backend.requestCount(); n != 0 {
		return fmt.Errorf("evaluation service called %d times", n)
	}
	return nil
}

func (s *scenario) lastRequest() (int, error) {
	n := s.backend.requestCount()
	if n == 0 {
		return 0, errors.New("evaluation service was not called")
	}
	return n - 1, nil
}

func (s *scenario) payloadHasNoImage() error {
	i, err := s.lastRequest()
	if err != nil {
		return err
	}
	if ref := s.backend.requests[i].ImageFilename; ref != nil {
		return fmt.Errorf("expected null image filename, got %q", *ref)
	}
	return nil
}

func (s *scenario) payloadImageIs(name string) error {
	i, err := s.lastRequest()
	if err != nil {
		return err
	}
	ref := s.backend.requests[i].ImageFilename
	if ref == nil || *ref != name {
		return fmt.Errorf("expected image filename %q, got %v", name, ref)
	}
	return nil
}

func (s *scenario) payloadAnswerIs(key string, want int) error {
	i, err := s.lastRequest()
	if err != nil {
		return err
	}
	var n int
	if _, err := fmt.Sscanf(key, "a%d_score", &n); err != nil {
		return fmt.Errorf("not an item key %q", key)
	}
	if got := s.backend.requests[i].Behavioral.Scores()[n-1]; got != want {
		return fmt.Errorf("expected %s=%d, got %d", key, want, got)
	}
	return nil
}

func (s *scenario) staysOnStep(name string) error {
	if got := s.wizard.Step().String(); got != name {
		return fmt.Errorf("expected step %q, got %q", name, got)
	}
	if !errors.Is(s.advanceErr, ErrValidation) {
		return fmt.Errorf("expected validation error, got %v", s.advanceErr)
	}
	return nil
}

func (s *scenario) missingFieldsAre(list string) error {
	want := strings.Split(list, ",")
	got := s.wizard.MissingFields()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected missing %v, got %v", want, got)
	}
	return nil
}

func (s *scenario) draftHas(key, value string) error {
	if got := s.wizard.Draft().Get(key); got != value {
		return fmt.Errorf("expected %s=%q, got %q", key, value, got)
	}
	return nil
}

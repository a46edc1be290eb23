package fsm

// Step is a wizard page. Steps are strictly linear.
type Step int

const (
	StepDemographics Step = iota
	StepBehavioralBlock1
	StepBehavioralBlock2
	StepMediaCapture
)

const (
	FirstStep = StepDemographics
	LastStep  = StepMediaCapture
	StepCount = int(LastStep) + 1
)

func (s Step) String() string {
	switch s {
	case StepDemographics:
		return "demographics"
	case StepBehavioralBlock1:
		return "behavioral_1"
	case StepBehavioralBlock2:
		return "behavioral_2"
	case StepMediaCapture:
		return "media_capture"
	}
	return "unknown"
}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

// Phase tracks the single remote operation a wizard may have outstanding.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
)

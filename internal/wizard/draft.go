package wizard

import (
	"errors"
	"slices"
	"strconv"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/models"
)

// Draft is the in-progress assessment. Numeric answers stay strings until the
// payload is built; an empty string means unset.
type Draft struct {
	Values         map[string]string `json:"values"`
	ImageReference string            `json:"image_reference,omitempty"`
	ImageName      string            `json:"image_name,omitempty"`
}

func NewDraft() *Draft {
	return &Draft{Values: make(map[string]string)}
}

func (d *Draft) Get(key string) string {
	return d.Values[key]
}

func (d *Draft) HasImage() bool {
	return d.ImageReference != ""
}

func (d *Draft) Clone() *Draft {
	c := &Draft{
		Values:         make(map[string]string, len(d.Values)),
		ImageReference: d.ImageReference,
		ImageName:      d.ImageName,
	}
	for k, v := range d.Values {
		c.Values[k] = v
	}
	return c
}

// RequiredFields returns the keys that must be set before leaving step.
func RequiredFields(step fsm.Step) []string {
	switch step {
	case fsm.StepDemographics:
		return slices.Clone(models.DemographicFields)
	case fsm.StepBehavioralBlock1:
		return models.BehavioralFields()[:5]
	case fsm.StepBehavioralBlock2:
		return models.BehavioralFields()[5:]
	}
	return nil
}

// Missing returns the unset required fields of step in display order.
func (d *Draft) Missing(step fsm.Step) []string {
	var missing []string
	for _, key := range RequiredFields(step) {
		if d.Values[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// MissingAll returns the unset required fields of every step and the first
// step that has any.
func (d *Draft) MissingAll() (fsm.Step, []string) {
	first := fsm.LastStep
	var missing []string
	for step := fsm.FirstStep; step <= fsm.LastStep; step++ {
		m := d.Missing(step)
		if len(m) > 0 && len(missing) == 0 {
			first = step
		}
		missing = append(missing, m...)
	}
	return first, missing
}

var (
	errNotInteger = errors.New("not an integer")
	errNotBinary  = errors.New("must be 0 or 1")
	errRespondent = errors.New("unknown respondent")
)

// BuildPayload coerces the draft into the evaluation request. A draft without
// image reference produces a null image_filename.
func BuildPayload(d *Draft) (models.AssessmentRequest, error) {
	var req models.AssessmentRequest
	var err error

	demo := &req.Demographic
	demo.Name = d.Get(models.FieldName)
	demo.Country = d.Get(models.FieldCountry)
	demo.Respondent = d.Get(models.FieldRespondent)
	if !models.IsRespondent(demo.Respondent) {
		return req, &CoercionError{Field: models.FieldRespondent, Value: demo.Respondent, Err: errRespondent}
	}
	if demo.Age, err = integer(d, models.FieldAge); err != nil {
		return req, err
	}
	if demo.Ethnicity, err = integer(d, models.FieldEthnicity); err != nil {
		return req, err
	}
	if demo.Gender, err = binary(d, models.FieldGender); err != nil {
		return req, err
	}
	if demo.Jaundice, err = binary(d, models.FieldJaundice); err != nil {
		return req, err
	}
	if demo.FamilyHistory, err = binary(d, models.FieldFamilyHistory); err != nil {
		return req, err
	}

	for i := 1; i <= models.BehavioralItemCount; i++ {
		v, err := binary(d, models.BehavioralField(i))
		if err != nil {
			return req, err
		}
		req.Behavioral.SetScore(i, v)
	}

	if d.ImageReference != "" {
		ref := d.ImageReference
		req.ImageFilename = &ref
	}
	return req, nil
}

func integer(d *Draft, key string) (int, error) {
	raw := d.Get(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &CoercionError{Field: key, Value: raw, Err: errNotInteger}
	}
	return n, nil
}

func binary(d *Draft, key string) (int, error) {
	n, err := integer(d, key)
	if err != nil {
		return 0, err
	}
	if n != 0 && n != 1 {
		return 0, &CoercionError{Field: key, Value: d.Get(key), Err: errNotBinary}
	}
	return n, nil
}

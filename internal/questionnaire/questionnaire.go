// Package questionnaire holds the screening instrument content: the AQ-10
// items, the demographic prompts and the follow-up recommendations.
package questionnaire

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ad/go-telegram-screening/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed aq10.yaml
var defaultContent []byte

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindChoice FieldKind = "choice"
)

type Choice struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

type Field struct {
	Key     string    `yaml:"key"`
	Label   string    `yaml:"label"`
	Prompt  string    `yaml:"prompt"`
	Kind    FieldKind `yaml:"kind"`
	Min     *int      `yaml:"min"`
	Max     *int      `yaml:"max"`
	Choices []Choice  `yaml:"choices"`
}

// ChoiceLabel returns the label of value, or value itself when it is not one
// of the field's choices.
func (f Field) ChoiceLabel(value string) string {
	for _, c := range f.Choices {
		if c.Value == value {
			return c.Label
		}
	}
	return value
}

var (
	ErrEmptyValue   = errors.New("value is required")
	ErrNotANumber   = errors.New("value must be a whole number")
	ErrOutOfRange   = errors.New("value is out of range")
	ErrUnknownValue = errors.New("value is not one of the choices")
)

// Accept checks raw user input for the field and returns the value to store
// in the draft.
func (f Field) Accept(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrEmptyValue
	}
	switch f.Kind {
	case KindNumber:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", ErrNotANumber
		}
		if (f.Min != nil && n < *f.Min) || (f.Max != nil && n > *f.Max) {
			return "", fmt.Errorf("%w: %s", ErrOutOfRange, f.rangeText())
		}
		return strconv.Itoa(n), nil
	case KindChoice:
		for _, c := range f.Choices {
			if c.Value == value || strings.EqualFold(c.Label, value) {
				return c.Value, nil
			}
		}
		return "", ErrUnknownValue
	}
	return value, nil
}

func (f Field) rangeText() string {
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("%d-%d", *f.Min, *f.Max)
	case f.Min != nil:
		return fmt.Sprintf(">= %d", *f.Min)
	case f.Max != nil:
		return fmt.Sprintf("<= %d", *f.Max)
	}
	return "any"
}

type Item struct {
	Key  string `yaml:"key"`
	Text string `yaml:"text"`
}

type Questionnaire struct {
	Demographics    []Field                       `yaml:"demographics"`
	Items           []Item                        `yaml:"items"`
	Recommendations map[models.RiskLevel][]string `yaml:"recommendations"`
	Disclaimer      string                        `yaml:"disclaimer"`
}

// Load returns the embedded AQ-10 questionnaire.
func Load() (*Questionnaire, error) {
	return Parse(defaultContent)
}

func MustLoad() *Questionnaire {
	q, err := Load()
	if err != nil {
		panic(err)
	}
	return q
}

func Parse(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse questionnaire: %w", err)
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

func (q *Questionnaire) validate() error {
	if len(q.Items) != models.BehavioralItemCount {
		return fmt.Errorf("questionnaire must have %d items, got %d", models.BehavioralItemCount, len(q.Items))
	}
	for i, item := range q.Items {
		if want := models.BehavioralField(i + 1); item.Key != want {
			return fmt.Errorf("item %d: expected key %s, got %s", i+1, want, item.Key)
		}
		if item.Text == "" {
			return fmt.Errorf("item %s has no text", item.Key)
		}
	}

	if len(q.Demographics) != len(models.DemographicFields) {
		return fmt.Errorf("questionnaire must have %d demographic fields, got %d", len(models.DemographicFields), len(q.Demographics))
	}
	for i, f := range q.Demographics {
		if want := models.DemographicFields[i]; f.Key != want {
			return fmt.Errorf("demographic field %d: expected key %s, got %s", i+1, want, f.Key)
		}
		switch f.Kind {
		case KindText, KindNumber:
		case KindChoice:
			if len(f.Choices) == 0 {
				return fmt.Errorf("choice field %s has no choices", f.Key)
			}
		default:
			return fmt.Errorf("field %s has unknown kind %q", f.Key, f.Kind)
		}
	}
	return nil
}

func (q *Questionnaire) Field(key string) (Field, bool) {
	for _, f := range q.Demographics {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Item returns AQ-10 item i (1-based).
func (q *Questionnaire) Item(i int) Item {
	return q.Items[i-1]
}

// Label returns a human readable name for any draft field key.
func (q *Questionnaire) Label(key string) string {
	if f, ok := q.Field(key); ok {
		return f.Label
	}
	for i, item := range q.Items {
		if item.Key == key {
			return fmt.Sprintf("Question %d", i+1)
		}
	}
	return key
}

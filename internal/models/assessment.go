package models

import (
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

const (
	RespondentSelf               = "Self"
	RespondentParent             = "Parent"
	RespondentHealthProfessional = "Health Professional"
	RespondentRelative           = "Relative"
	RespondentOther              = "Other"
)

var Respondents = []string{
	RespondentSelf,
	RespondentParent,
	RespondentHealthProfessional,
	RespondentRelative,
	RespondentOther,
}

func IsRespondent(v string) bool {
	for _, r := range Respondents {
		if r == v {
			return true
		}
	}
	return false
}

type Demographic struct {
	Name          string `json:"name"`
	Age           int    `json:"age"`
	Gender        int    `json:"gender"`
	Ethnicity     int    `json:"ethnicity"`
	Country       string `json:"country"`
	Jaundice      int    `json:"jaundice"`
	FamilyHistory int    `json:"family_history"`
	Respondent    string `json:"respondent"`
}

// Behavioral holds the AQ-10 answers in questionnaire order.
type Behavioral struct {
	A1Score  int `json:"a1_score"`
	A2Score  int `json:"a2_score"`
	A3Score  int `json:"a3_score"`
	A4Score  int `json:"a4_score"`
	A5Score  int `json:"a5_score"`
	A6Score  int `json:"a6_score"`
	A7Score  int `json:"a7_score"`
	A8Score  int `json:"a8_score"`
	A9Score  int `json:"a9_score"`
	A10Score int `json:"a10_score"`
}

func (b *Behavioral) scores() [10]*int {
	return [10]*int{
		&b.A1Score, &b.A2Score, &b.A3Score, &b.A4Score, &b.A5Score,
		&b.A6Score, &b.A7Score, &b.A8Score, &b.A9Score, &b.A10Score,
	}
}

// SetScore assigns the answer of item i (1-based). Out of range indexes are ignored.
func (b *Behavioral) SetScore(i, v int) {
	if i < 1 || i > 10 {
		return
	}
	*b.scores()[i-1] = v
}

func (b Behavioral) Scores() []int {
	out := make([]int, 0, 10)
	for _, p := range b.scores() {
		out = append(out, *p)
	}
	return out
}

func (b Behavioral) Total() int {
	total := 0
	for _, s := range b.Scores() {
		total += s
	}
	return total
}

// AssessmentRequest is the body of POST /api/assess. ImageFilename is
// serialized as null when no photo was captured.
type AssessmentRequest struct {
	Demographic   Demographic `json:"demographic"`
	Behavioral    Behavioral  `json:"behavioral"`
	ImageFilename *string     `json:"image_filename"`
}

type Assessment struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	Demographic   Demographic `json:"demographic"`
	Behavioral    Behavioral  `json:"behavioral"`
	ImageFilename *string     `json:"image_filename"`
	Prediction    int         `json:"prediction"`
	Probability   float64     `json:"probability"`
	Confidence    float64     `json:"confidence"`
	RiskLevel     RiskLevel   `json:"risk_level"`
}

type ROCCurve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
	AUC *float64  `json:"auc,omitempty"`
}

type MetricSet struct {
	Accuracy        *float64  `json:"accuracy"`
	Precision       *float64  `json:"precision"`
	Recall          *float64  `json:"recall"`
	F1Score         *float64  `json:"f1_score"`
	ConfusionMatrix [][]int   `json:"confusion_matrix,omitempty"`
	ROCCurve        *ROCCurve `json:"roc_curve,omitempty"`
}

type ModuleMetrics struct {
	TestMetrics       *MetricSet         `json:"test_metrics"`
	TrainMetrics      *MetricSet         `json:"train_metrics"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// ModelMetrics mirrors GET /api/model-metrics. Either module may be absent
// when the corresponding model has not been trained.
type ModelMetrics struct {
	Questionnaire *ModuleMetrics `json:"questionnaire"`
	Image         *ModuleMetrics `json:"image"`
}

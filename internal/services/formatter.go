package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/wizard"
)

var stepTitles = map[fsm.Step]string{
	fsm.StepDemographics:     "Demographic information",
	fsm.StepBehavioralBlock1: "Behavioral questions (1-5)",
	fsm.StepBehavioralBlock2: "Behavioral questions (6-10)",
	fsm.StepMediaCapture:     "Facial image (optional)",
}

// Formatter renders wizard state and backend results as Telegram HTML.
type Formatter struct {
	q *questionnaire.Questionnaire
}

func NewFormatter(q *questionnaire.Questionnaire) *Formatter {
	return &Formatter{q: q}
}

func (f *Formatter) Questionnaire() *questionnaire.Questionnaire {
	return f.q
}

func (f *Formatter) Welcome() string {
	return SafeConcat(
		FormatBold("ASD screening assistant"), "\n\n",
		"This bot walks you through the AQ-10 screening questionnaire with an optional facial photo ",
		"and returns an estimated risk level.\n\n",
		"/assess - start a new assessment\n",
		"/history - your previous assessments\n",
		"/metrics - model performance\n",
		"/cancel - discard the current draft\n\n",
		FormatItalic(f.q.Disclaimer),
	)
}

func StepTitle(step fsm.Step) string {
	if t, ok := stepTitles[step]; ok {
		return t
	}
	return step.String()
}

// Progress renders "Step 2 of 4" followed by a bar.
func (f *Formatter) Progress(step fsm.Step) string {
	done := int(step) + 1
	bar := strings.Repeat("▰", done) + strings.Repeat("▱", fsm.StepCount-done)
	return fmt.Sprintf("Step %d of %d %s\n%s", done, fsm.StepCount, bar, FormatBold(StepTitle(step)))
}

func (f *Formatter) DemographicPrompt(field questionnaire.Field, d *wizard.Draft) string {
	var sb strings.Builder
	sb.WriteString(f.Progress(fsm.StepDemographics))
	sb.WriteString("\n\n")
	if summary := f.DemographicSummary(d); summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	sb.WriteString(Escape(field.Prompt))
	return sb.String()
}

// DemographicSummary lists the demographic answers given so far.
func (f *Formatter) DemographicSummary(d *wizard.Draft) string {
	var sb strings.Builder
	for _, field := range f.q.Demographics {
		v := d.Get(field.Key)
		if v == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", Escape(field.Label), Escape(field.ChoiceLabel(v)))
	}
	return sb.String()
}

func (f *Formatter) BehavioralPrompt(step fsm.Step, d *wizard.Draft) string {
	var sb strings.Builder
	sb.WriteString(f.Progress(step))
	sb.WriteString("\nAnswer every question with 1 (agree) or 0 (disagree).\n")
	for _, key := range wizard.RequiredFields(step) {
		mark := "…"
		switch d.Get(key) {
		case "1":
			mark = "✅ 1"
		case "0":
			mark = "⬜ 0"
		}
		n := itemNumber(key)
		fmt.Fprintf(&sb, "\n%d. %s\n%s\n", n, Escape(f.q.Item(n).Text), mark)
	}
	return sb.String()
}

func (f *Formatter) MediaPrompt(d *wizard.Draft) string {
	var sb strings.Builder
	sb.WriteString(f.Progress(fsm.StepMediaCapture))
	sb.WriteString("\n\n")
	if d.HasImage() {
		fmt.Fprintf(&sb, "📎 Photo attached: %s\n\n", FormatCode(d.ImageName))
		sb.WriteString("Press Submit to get the result or remove the photo to pick another one.")
	} else {
		sb.WriteString("Send a clear frontal photo of the face as a picture or an image file, ")
		sb.WriteString("or skip this step and submit the questionnaire alone.")
	}
	return sb.String()
}

func (f *Formatter) MissingFields(missing []string) string {
	labels := make([]string, 0, len(missing))
	for _, key := range missing {
		labels = append(labels, f.q.Label(key))
	}
	return "Please complete all required fields: " + Escape(strings.Join(labels, ", "))
}

func (f *Formatter) Result(a *models.Assessment) string {
	var sb strings.Builder
	sb.WriteString(FormatBold("Assessment result"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "%s %s\n", riskIcon(a.RiskLevel), FormatBold(string(a.RiskLevel)+" risk"))
	if a.Demographic.Name != "" {
		fmt.Fprintf(&sb, "Name: %s, age %d\n", Escape(a.Demographic.Name), a.Demographic.Age)
	}
	fmt.Fprintf(&sb, "ASD probability: %s\n", Percent(a.Probability))
	fmt.Fprintf(&sb, "Model confidence: %s\n", Percent(a.Confidence))
	fmt.Fprintf(&sb, "AQ-10 score: %d/%d\n", a.Behavioral.Total(), models.BehavioralItemCount)
	if a.ImageFilename != nil {
		sb.WriteString("Facial image: analyzed\n")
	}
	if recs := f.q.Recommendations[a.RiskLevel]; len(recs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(FormatBold("Recommendations"))
		sb.WriteString("\n")
		for _, r := range recs {
			fmt.Fprintf(&sb, "• %s\n", Escape(r))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(FormatItalic(f.q.Disclaimer))
	return sb.String()
}

func (f *Formatter) History(subs []*models.Submission) string {
	if len(subs) == 0 {
		return "No assessments yet. Use /assess to start one."
	}
	var sb strings.Builder
	sb.WriteString(FormatBold("Your assessments"))
	sb.WriteString("\n")
	for i, s := range subs {
		risk := string(s.RiskLevel)
		if risk == "" {
			risk = "pending"
		}
		photo := ""
		if s.HasImage {
			photo = " 📷"
		}
		fmt.Fprintf(&sb, "\n%d. %s %s%s\n%s %s\n", i+1, riskIcon(s.RiskLevel), Escape(risk), photo,
			FormatDateTime(s.CreatedAt), FormatCode(s.AssessmentID))
	}
	return sb.String()
}

func (f *Formatter) Metrics(m *models.ModelMetrics) string {
	var sb strings.Builder
	sb.WriteString(FormatBold("Model performance"))
	sb.WriteString("\n")
	writeModule(&sb, "Questionnaire model", m.Questionnaire)
	writeModule(&sb, "Image model", m.Image)
	return sb.String()
}

func writeModule(sb *strings.Builder, title string, mm *models.ModuleMetrics) {
	sb.WriteString("\n")
	sb.WriteString(FormatBold(title))
	sb.WriteString("\n")
	if mm == nil || mm.TestMetrics == nil {
		sb.WriteString("not trained\n")
		return
	}
	t := mm.TestMetrics
	fmt.Fprintf(sb, "Accuracy: %s\nPrecision: %s\nRecall: %s\nF1 score: %s\n",
		percentPtr(t.Accuracy), percentPtr(t.Precision), percentPtr(t.Recall), percentPtr(t.F1Score))
	if t.ROCCurve != nil && t.ROCCurve.AUC != nil {
		fmt.Fprintf(sb, "ROC AUC: %.3f\n", *t.ROCCurve.AUC)
	}
	if top := topFeatures(mm.FeatureImportance, 3); len(top) > 0 {
		fmt.Fprintf(sb, "Top features: %s\n", Escape(strings.Join(top, ", ")))
	}
}

func topFeatures(importance map[string]float64, n int) []string {
	keys := make([]string, 0, len(importance))
	for k := range importance {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if importance[keys[i]] != importance[keys[j]] {
			return importance[keys[i]] > importance[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Percent formats a 0..1 ratio with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func percentPtr(v *float64) string {
	if v == nil {
		return "—"
	}
	return Percent(*v)
}

func riskIcon(level models.RiskLevel) string {
	switch level {
	case models.RiskHigh:
		return "🔴"
	case models.RiskModerate:
		return "🟠"
	case models.RiskLow:
		return "🟢"
	}
	return "⚪"
}

func itemNumber(key string) int {
	var n int
	fmt.Sscanf(key, "a%d_score", &n)
	return n
}

func FormatDateTime(t time.Time) string {
	return t.Format("02 Jan 2006, 15:04")
}

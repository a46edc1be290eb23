package handlers

import (
	"fmt"

	"github.com/ad/go-telegram-screening/internal/fsm"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/wizard"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	cbSet       = "set"
	cbNext      = "nav:next"
	cbBack      = "nav:back"
	cbPhotoSkip = "photo:skip"
	cbClear     = "photo:clear"
	cbSubmit    = "submit"
	cbReport    = "report"
)

func button(text, data string) tgmodels.InlineKeyboardButton {
	return tgmodels.InlineKeyboardButton{Text: text, CallbackData: data}
}

func setData(key, value string) string {
	return fmt.Sprintf("%s:%s:%s", cbSet, key, value)
}

func navRow(step fsm.Step, next bool) []tgmodels.InlineKeyboardButton {
	var row []tgmodels.InlineKeyboardButton
	if step != fsm.FirstStep {
		row = append(row, button("◀ Back", cbBack))
	}
	if next {
		row = append(row, button("Next ▶", cbNext))
	}
	return row
}

func keyboard(rows ...[]tgmodels.InlineKeyboardButton) *tgmodels.InlineKeyboardMarkup {
	var kb [][]tgmodels.InlineKeyboardButton
	for _, r := range rows {
		if len(r) > 0 {
			kb = append(kb, r)
		}
	}
	if len(kb) == 0 {
		return nil
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// BuildChoiceKeyboard offers every choice of field, one per row for long
// lists.
func BuildChoiceKeyboard(field questionnaire.Field) *tgmodels.InlineKeyboardMarkup {
	var rows [][]tgmodels.InlineKeyboardButton
	var row []tgmodels.InlineKeyboardButton
	for _, c := range field.Choices {
		row = append(row, button(c.Label, setData(field.Key, c.Value)))
		if len(row) == 2 || len(field.Choices) > 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, row)
	return keyboard(rows...)
}

// BuildBehavioralKeyboard has one row per item of the block plus navigation.
func BuildBehavioralKeyboard(step fsm.Step, d *wizard.Draft) *tgmodels.InlineKeyboardMarkup {
	var rows [][]tgmodels.InlineKeyboardButton
	for i, key := range wizard.RequiredFields(step) {
		n := int(step-fsm.StepBehavioralBlock1)*5 + i + 1
		yes, no := fmt.Sprintf("%d: 1", n), fmt.Sprintf("%d: 0", n)
		switch d.Get(key) {
		case "1":
			yes = "✅ " + yes
		case "0":
			no = "✅ " + no
		}
		rows = append(rows, []tgmodels.InlineKeyboardButton{
			button(yes, setData(key, "1")),
			button(no, setData(key, "0")),
		})
	}
	rows = append(rows, navRow(step, true))
	return keyboard(rows...)
}

func BuildMediaKeyboard(d *wizard.Draft) *tgmodels.InlineKeyboardMarkup {
	if d.HasImage() {
		return keyboard(
			[]tgmodels.InlineKeyboardButton{button("🗑 Remove photo", cbClear)},
			[]tgmodels.InlineKeyboardButton{button("◀ Back", cbBack), button("✅ Submit", cbSubmit)},
		)
	}
	return keyboard(
		[]tgmodels.InlineKeyboardButton{button("Skip photo and submit", cbPhotoSkip)},
		navRow(fsm.StepMediaCapture, false),
	)
}

func BuildReportKeyboard(assessmentID string) *tgmodels.InlineKeyboardMarkup {
	return keyboard([]tgmodels.InlineKeyboardButton{
		button("📄 Download PDF report", fmt.Sprintf("%s:%s", cbReport, assessmentID)),
	})
}

package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/models"
	"github.com/ad/go-telegram-screening/internal/wizard"
	"pgregory.net/rapid"
)

func TestProperty_StatisticsCountsSubmissions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		queue := setupTestQueue(t)
		users := db.NewUserRepository(queue)
		subs := db.NewSubmissionRepository(queue)
		drafts := db.NewDraftRepository(queue)
		stats := NewStatisticsService(queue)

		levels := []models.RiskLevel{models.RiskLow, models.RiskModerate, models.RiskHigh, ""}
		numUsers := rapid.IntRange(1, 4).Draw(rt, "numUsers")
		want := Statistics{Users: numUsers, ByRisk: make(map[models.RiskLevel]int)}

		for u := 1; u <= numUsers; u++ {
			if err := users.CreateOrUpdate(&models.User{ID: int64(u)}); err != nil {
				rt.Fatal(err)
			}
			n := rapid.IntRange(0, 4).Draw(rt, "submissions")
			for i := 0; i < n; i++ {
				level := rapid.SampledFrom(levels).Draw(rt, "level")
				image := rapid.Bool().Draw(rt, "image")
				sub := &models.Submission{
					UserID:       int64(u),
					AssessmentID: fmt.Sprintf("a-%d-%d", u, i),
					RiskLevel:    level,
					HasImage:     image,
				}
				if err := subs.Create(sub); err != nil {
					rt.Fatal(err)
				}
				want.Submissions++
				if image {
					want.WithImage++
				}
				if level == "" {
					want.PendingRisks++
				} else {
					want.ByRisk[level]++
				}
			}
			if rapid.Bool().Draw(rt, "draft") {
				if err := drafts.Save(int64(u), wizard.Snapshot{Draft: wizard.NewDraft()}); err != nil {
					rt.Fatal(err)
				}
				want.OpenDrafts++
			}
		}

		got, err := stats.CalculateStats()
		if err != nil {
			rt.Fatal(err)
		}
		if got.Users != want.Users || got.Submissions != want.Submissions || got.WithImage != want.WithImage ||
			got.OpenDrafts != want.OpenDrafts || got.PendingRisks != want.PendingRisks {
			rt.Fatalf("expected %+v, got %+v", want, *got)
		}
		for _, level := range levels[:3] {
			if got.ByRisk[level] != want.ByRisk[level] {
				rt.Fatalf("%s: expected %d, got %d", level, want.ByRisk[level], got.ByRisk[level])
			}
		}
	})
}

func TestFormatStatistics(t *testing.T) {
	text := FormatStatistics(&Statistics{
		Users:        3,
		Submissions:  4,
		WithImage:    1,
		ByRisk:       map[models.RiskLevel]int{models.RiskHigh: 2, models.RiskLow: 1},
		PendingRisks: 1,
	})
	for _, want := range []string{"Users: 3", "Assessments: 4 (with photo: 1)", "🔴 High: 2", "🟠 Moderate: 0", "⚪ pending: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}

	empty := FormatStatistics(&Statistics{ByRisk: map[models.RiskLevel]int{}})
	if strings.Contains(empty, "High") {
		t.Errorf("risk breakdown must be omitted without submissions:\n%s", empty)
	}
}

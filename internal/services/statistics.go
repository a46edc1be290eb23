package services

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/models"
)

type Statistics struct {
	Users        int
	Submissions  int
	WithImage    int
	OpenDrafts   int
	ByRisk       map[models.RiskLevel]int
	PendingRisks int
}

type StatisticsService struct {
	queue *db.DBQueue
}

func NewStatisticsService(queue *db.DBQueue) *StatisticsService {
	return &StatisticsService{queue: queue}
}

func (s *StatisticsService) CalculateStats() (*Statistics, error) {
	result, err := s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		stats := &Statistics{ByRisk: make(map[models.RiskLevel]int)}

		if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.Users); err != nil {
			return nil, err
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM drafts`).Scan(&stats.OpenDrafts); err != nil {
			return nil, err
		}
		if err := db.QueryRow(`
			SELECT COUNT(*), COALESCE(SUM(CASE WHEN has_image THEN 1 ELSE 0 END), 0)
			FROM submissions
		`).Scan(&stats.Submissions, &stats.WithImage); err != nil {
			return nil, err
		}

		rows, err := db.Query(`SELECT risk_level, COUNT(*) FROM submissions GROUP BY risk_level`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var level string
			var count int
			if err := rows.Scan(&level, &count); err != nil {
				return nil, err
			}
			if level == "" {
				stats.PendingRisks += count
				continue
			}
			stats.ByRisk[models.RiskLevel(level)] = count
		}
		return stats, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.(*Statistics), nil
}

func FormatStatistics(stats *Statistics) string {
	var sb strings.Builder
	sb.WriteString(FormatBold("Screening statistics"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Users: %d\n", stats.Users)
	fmt.Fprintf(&sb, "Assessments: %d (with photo: %d)\n", stats.Submissions, stats.WithImage)
	fmt.Fprintf(&sb, "Drafts in progress: %d\n", stats.OpenDrafts)

	if stats.Submissions > 0 {
		sb.WriteString("\n")
		for _, level := range []models.RiskLevel{models.RiskHigh, models.RiskModerate, models.RiskLow} {
			fmt.Fprintf(&sb, "%s %s: %d\n", riskIcon(level), level, stats.ByRisk[level])
		}
		if stats.PendingRisks > 0 {
			fmt.Fprintf(&sb, "%s pending: %d\n", riskIcon(""), stats.PendingRisks)
		}
	}
	return sb.String()
}

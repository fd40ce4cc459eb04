package telemetry

import (
	"time"

	"bahr/analytics/models"
)

// ComputeStats derives SessionStats from session at now. It does not modify session.
func ComputeStats(session *models.Session, now time.Time) models.SessionStats {
	stats := models.SessionStats{
		SessionID:   session.SessionID,
		Duration:    now.Sub(session.StartTime),
		PageViews:   session.PageViews,
		TotalEvents: len(session.Events),
		EventCounts: make(map[models.EventName]int),
	}
	stats.DurationMs = stats.Duration.Milliseconds()

	for _, e := range session.Events {
		stats.EventCounts[e.Name]++
	}
	stats.Submitted = stats.EventCounts[models.EventAnalyzeSubmit]
	stats.Succeeded = stats.EventCounts[models.EventAnalyzeSuccess]
	stats.Failed = stats.EventCounts[models.EventAnalyzeError]

	if stats.Submitted > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Submitted)
	}
	return stats
}

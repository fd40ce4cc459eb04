// analytics/store/analytics_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"bahr/analytics/database"
	"bahr/analytics/models"
	"bahr/analytics/utils"
)

const analyticsEventsDDL = `
	CREATE TABLE IF NOT EXISTS analytics_events (
		event_id    String,
		event_name  LowCardinality(String),
		session_id  String,
		user_id     String,
		timestamp   DateTime64(3, 'UTC'),
		properties  String,
		ip_address  String,
		user_agent  String,
		referrer    String,
		created_at  DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (event_name, timestamp)
`

type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

type EventCountByTime struct {
	Time      time.Time `json:"time"`
	EventName *string   `json:"eventName,omitempty"`
	Count     uint64    `json:"count"`
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{DB: chClient}
}

// EnsureSchema creates the analytics_events table if it does not exist.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, analyticsEventsDDL); err != nil {
		return fmt.Errorf("failed to create analytics_events: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) InsertEvents(ctx context.Context, events []models.CollectedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_name, session_id, user_id, timestamp, properties,
			ip_address, user_agent, referrer, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.Name,
			event.SessionID,
			event.UserID,
			event.Timestamp,
			string(event.Properties),
			event.IPAddress,
			event.UserAgent,
			event.Referrer,
			event.CreatedAt,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append event %s to batch: %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Inserted %d analytics events.", len(events))
	return nil
}

// GetSummary reports usage over the last days days.
func (s *AnalyticsStore) GetSummary(ctx context.Context, days int, now time.Time) (*models.StatsSummary, error) {
	since := now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
	summary := &models.StatsSummary{
		Days:           days,
		TopEvents:      []models.NameCount{},
		RecentActivity: []models.CollectedEvent{},
	}

	var successes uint64
	err := s.DB.Conn.QueryRow(ctx, `
		SELECT
			uniqExact(session_id),
			count(),
			countIf(event_name = 'analyze_submit'),
			countIf(event_name = 'analyze_success')
		FROM analytics_events
		WHERE timestamp >= ?
	`, since).Scan(&summary.TotalSessions, &summary.TotalEvents, &summary.TotalAnalyses, &successes)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	if summary.TotalAnalyses > 0 {
		summary.SuccessRate = float64(successes) / float64(summary.TotalAnalyses)
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_name, count() AS event_count
		FROM analytics_events
		WHERE timestamp >= ?
		GROUP BY event_name
		ORDER BY event_count DESC
		LIMIT 10
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query top events: %w", err)
	}
	for rows.Next() {
		var nc models.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan top event: %w", err)
		}
		summary.TopEvents = append(summary.TopEvents, nc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row error during top events query: %w", err)
	}
	rows.Close()

	recent, err := s.RecentEvents(ctx, since, 10)
	if err != nil {
		return nil, err
	}
	summary.RecentActivity = recent
	return summary, nil
}

func (s *AnalyticsStore) RecentEvents(ctx context.Context, since time.Time, limit uint64) ([]models.CollectedEvent, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_id, event_name, session_id, timestamp, created_at
		FROM analytics_events
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	results := []models.CollectedEvent{}
	for rows.Next() {
		var e models.CollectedEvent
		if err := rows.Scan(&e.EventID, &e.Name, &e.SessionID, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent event: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during recent events query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventName string) ([]EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	filtered := eventName != ""

	if filtered {
		selectCols += ", event_name"
		groupByCols += ", event_name"
		whereClause += " AND event_name = ?"
		args = append(args, eventName)
		orderByCols += ", event_name ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	results := []EventCountByTime{}
	for rows.Next() {
		var (
			bucket time.Time
			count  uint64
			name   string
			result EventCountByTime
		)
		if filtered {
			if err := rows.Scan(&bucket, &count, &name); err != nil {
				return nil, fmt.Errorf("failed to scan event count row: %w", err)
			}
			result.EventName = &name
		} else if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count row: %w", err)
		}
		result.Time = bucket
		result.Count = count
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(session_id) AS unique_sessions
		FROM analytics_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique sessions over time: %w", err)
	}
	defer rows.Close()

	results := []EventCountByTime{}
	for rows.Next() {
		var r EventCountByTime
		if err := rows.Scan(&r.Time, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan unique sessions row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique sessions: %w", err)
	}
	return results, nil
}

// GetTopPagePaths ranks page_view events by their path property.
func (s *AnalyticsStore) GetTopPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT JSONExtractString(properties, 'path') AS path, count() AS view_count
		FROM analytics_events
		WHERE event_name = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY path
		ORDER BY view_count DESC
		LIMIT ?
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	results := []models.TopPathResult{}
	for rows.Next() {
		var r models.TopPathResult
		if err := rows.Scan(&r.Path, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top page path: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}
	return results, nil
}

// GetAverageProperty averages a numeric property of one event kind, such as
// the score of analyze_success events.
func (s *AnalyticsStore) GetAverageProperty(ctx context.Context, eventName, property string, start, end time.Time) (float64, error) {
	if property == "" {
		return 0, fmt.Errorf("property name for average calculation cannot be empty")
	}

	var avg float64
	err := s.DB.Conn.QueryRow(ctx, `
		SELECT avg(JSONExtractFloat(properties, ?))
		FROM analytics_events
		WHERE event_name = ? AND timestamp >= ? AND timestamp <= ? AND JSONHas(properties, ?)
	`, property, eventName, start, end, property).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to query average of property '%s': %w", property, err)
	}

	// avg over no rows is NaN, which encoding/json rejects.
	if math.IsNaN(avg) {
		return 0, nil
	}
	return avg, nil
}

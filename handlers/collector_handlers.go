// analytics/handlers/collector_handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bahr/analytics/models"
	"bahr/analytics/store"
	"bahr/analytics/utils"
)

// EventStore is the collector's view of the event warehouse.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.CollectedEvent) error
	GetSummary(ctx context.Context, days int, now time.Time) (*models.StatsSummary, error)
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventName string) ([]store.EventCountByTime, error)
	GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]store.EventCountByTime, error)
	GetTopPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetAverageProperty(ctx context.Context, eventName, property string, start, end time.Time) (float64, error)
}

const (
	defaultWindow = 7 * 24 * time.Hour
	maxStatsDays  = 365
)

type AnalyticsHandlers struct {
	Store EventStore
	now   func() time.Time
}

func NewAnalyticsHandlers(s EventStore) *AnalyticsHandlers {
	return &AnalyticsHandlers{Store: s, now: time.Now}
}

// CreateEvent ingests one event sent by a client forwarder.
func (h *AnalyticsHandlers) CreateEvent(c *gin.Context) {
	var incoming models.Event
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	collected, err := h.collect(c, incoming)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Store.InsertEvents(ctx, []models.CollectedEvent{collected}); err != nil {
		log.Printf("Error inserting analytics event into ClickHouse: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics event"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         collected.EventID,
		"event_name": collected.Name,
		"session_id": collected.SessionID,
		"timestamp":  collected.Timestamp,
		"created_at": collected.CreatedAt,
	})
}

// CreateEvents ingests an array of events in one insert.
func (h *AnalyticsHandlers) CreateEvents(c *gin.Context) {
	var incoming []models.Event
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}

	toInsert := make([]models.CollectedEvent, 0, len(incoming))
	for i, event := range incoming {
		collected, err := h.collect(c, event)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("event %d: %v", i, err)})
			return
		}
		toInsert = append(toInsert, collected)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Store.InsertEvents(ctx, toInsert); err != nil {
		log.Printf("Error inserting analytics events into ClickHouse: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics events"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"accepted": len(toInsert)})
}

func (h *AnalyticsHandlers) collect(c *gin.Context, event models.Event) (models.CollectedEvent, error) {
	if !event.Name.Valid() {
		return models.CollectedEvent{}, fmt.Errorf("unknown event name %q", event.Name)
	}
	if event.SessionID == "" {
		return models.CollectedEvent{}, fmt.Errorf("sessionId is required")
	}

	var props json.RawMessage
	if len(event.Properties) > 0 {
		for k, v := range event.Properties {
			switch v.(type) {
			case string, float64, bool:
			default:
				return models.CollectedEvent{}, fmt.Errorf("property %q must be a string, number or boolean", k)
			}
		}
		data, err := json.Marshal(event.Properties)
		if err != nil {
			return models.CollectedEvent{}, fmt.Errorf("invalid properties: %w", err)
		}
		props = data
	}

	return models.CollectedEvent{
		EventID:    utils.GenerateEventID(),
		Name:       string(event.Name),
		SessionID:  event.SessionID,
		UserID:     event.UserID,
		Timestamp:  event.Timestamp.UTC(),
		Properties: props,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
		Referrer:   c.GetHeader("Referer"),
		CreatedAt:  h.now().UTC(),
	}, nil
}

// GetStats returns the usage summary for the last ?days= days (default 7).
func (h *AnalyticsHandlers) GetStats(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxStatsDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid 'days' parameter. Must be between 1 and %d.", maxStatsDays)})
			return
		}
		days = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summary, err := h.Store.GetSummary(ctx, days, h.now())
	if err != nil {
		log.Printf("Error getting analytics summary: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}
	eventName := c.Query("eventName")
	if eventName != "" && !models.EventName(eventName).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown eventName %q", eventName)})
		return
	}

	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetEventCountsOverTime(ctx, interval, start, end, eventName)
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetUniqueSessionsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}

	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetUniqueSessionsOverTime(ctx, interval, start, end)
	if err != nil {
		log.Printf("Error getting unique sessions over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique session statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetTopPagePaths(c *gin.Context) {
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetTopPagePaths(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top page paths: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetAverageProperty(c *gin.Context) {
	eventName := c.Query("eventName")
	property := c.Query("property")
	if !models.EventName(eventName).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventName query parameter must name a known event"})
		return
	}
	if property == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property query parameter is required (e.g. 'score', 'verse_length')"})
		return
	}

	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avg, err := h.Store.GetAverageProperty(ctx, eventName, property, start, end)
	if err != nil {
		log.Printf("Error getting average of property '%s' for %s: %v", property, eventName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average property statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventName":    eventName,
		"property":     property,
		"startDate":    start.Format(time.RFC3339),
		"endDate":      end.Format(time.RFC3339),
		"averageValue": avg,
	})
}

// timeRange parses ?start=&end= and writes a 400 on failure.
func (h *AnalyticsHandlers) timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, end, err := utils.ParseTimeRange(c.Query("start"), c.Query("end"), defaultWindow, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

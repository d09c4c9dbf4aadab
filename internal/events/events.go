// Package events carries order-dashboard notifications between instances over NATS.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event subjects
const (
	SubjectFetchCompleted   = "orders.fetch.completed"
	SubjectCacheInvalidated = "orders.cache.invalidated"
)

// FetchCompletedEvent is published after an upstream fetch refreshed the cache.
type FetchCompletedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	InstanceID  string    `json:"instance_id"`
	DateFrom    string    `json:"date_from"`
	DateTo      string    `json:"date_to"`
	Orders      int       `json:"orders"`
	Pages       int       `json:"pages"`
	Coverage    int       `json:"coverage"`
	MissingDays []string  `json:"missing_days,omitempty"`
	StopReason  string    `json:"stop_reason"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// CacheInvalidatedEvent asks every instance to drop cached orders. An empty
// date range means every entry.
type CacheInvalidatedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	InstanceID string    `json:"instance_id"`
	DateFrom   string    `json:"date_from,omitempty"`
	DateTo     string    `json:"date_to,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AllRanges reports whether the event targets every cached range.
func (e *CacheInvalidatedEvent) AllRanges() bool {
	return e.DateFrom == "" && e.DateTo == ""
}

package analytics

import "time"

type EventType string

const (
	EventSearch    EventType = "search"
	EventBrowse    EventType = "browse"
	EventRecommend EventType = "recommend"
)

// SearchEvent describes one catalog listing or recommendation request.
// For recommendations Query holds the joined input tags and Outcome the
// recommender's verdict.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query,omitempty"`
	Category  string    `json:"category,omitempty"`
	Sort      string    `json:"sort,omitempty"`
	Page      int       `json:"page,omitempty"`
	Total     int       `json:"total"`
	Returned  int       `json:"returned"`
	Random    bool      `json:"random,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

package model

import (
	"strings"
	"time"
)

// Level is a normalized log level.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelUnknown Level = "UNKNOWN"
)

var levelAliases = map[string]Level{
	"WARNING": LevelWarn,
	"ERR":     LevelError,
}

// ParseLevel upper-cases s and folds common aliases onto the fixed vocabulary.
// Words outside the vocabulary pass through upper-cased; an empty string is UNKNOWN.
func ParseLevel(s string) Level {
	u := strings.ToUpper(strings.TrimSpace(s))
	if u == "" {
		return LevelUnknown
	}
	if l, ok := levelAliases[u]; ok {
		return l
	}
	return Level(u)
}

// ParsedLog is what a line parser extracts before normalization.
type ParsedLog struct {
	Timestamp time.Time // always UTC
	Service   string
	Level     Level
	Message   string
	RequestID string // empty when the source format has none
}

// Event is the canonical, normalized log event consumed by the pattern store.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Level     Level     `json:"level"`
	Template  string    `json:"template"`
	Raw       string    `json:"raw,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Key returns the aggregation identity of the event.
func (e Event) Key() PatternKey {
	return PatternKey{Service: e.Service, Level: e.Level, Template: e.Template}
}

// PatternKey identifies a pattern series. Two events aggregate together iff all
// three fields are equal.
type PatternKey struct {
	Service  string `json:"service"`
	Level    Level  `json:"level"`
	Template string `json:"template"`
}

func (k PatternKey) String() string {
	return k.Service + " " + string(k.Level) + " " + k.Template
}

// Less orders keys by service, then level, then template.
func (k PatternKey) Less(o PatternKey) bool {
	if k.Service != o.Service {
		return k.Service < o.Service
	}
	if k.Level != o.Level {
		return k.Level < o.Level
	}
	return k.Template < o.Template
}

// Bucket is the event count of one pattern in one fixed-size time slot.
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// PatternStats is the lifetime history of a pattern. Unlike buckets it is never evicted.
type PatternStats struct {
	TotalCount int       `json:"total_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

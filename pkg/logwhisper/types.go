package logwhisper

import "time"

// Log is a raw log entry with optional metadata. Use with IngestLog when
// you know where the line came from; for plain text use Ingest.
type Log struct {
	Text     string         // the raw line
	Source   string         // origin name (optional)
	Metadata map[string]any // additional context (optional, not used in detection)
}

// Event is a parsed, normalized log line.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Level     string    `json:"level"`    // DEBUG, INFO, WARN, ERROR or UNKNOWN
	Template  string    `json:"template"` // message with variable parts replaced by placeholders
	RequestID string    `json:"request_id,omitempty"`
	Raw       string    `json:"raw,omitempty"`
}

// Pattern is a service, level and template with its lifetime statistics.
type Pattern struct {
	Service    string    `json:"service"`
	Level      string    `json:"level"`
	Template   string    `json:"template"`
	TotalCount int       `json:"total_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// Anomaly is a pattern whose recent activity is abnormal.
type Anomaly struct {
	Service          string    `json:"service"`
	Level            string    `json:"level"`
	Template         string    `json:"template"`
	Reason           string    `json:"reason"` // "spike" or "new_pattern"
	Severity         float64   `json:"severity"`
	Band             string    `json:"band"` // low, medium, high or critical
	RecentWeighted   float64   `json:"recent_weighted"`
	BaselineWeighted float64   `json:"baseline_weighted"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// Stats summarizes ingestion so far.
type Stats struct {
	Parsed           int            `json:"parsed"`
	Failed           int            `json:"failed"`
	FailuresByReason map[string]int `json:"failures_by_reason"`
	Patterns         int            `json:"patterns"`
}

package model

import "time"

// PatternCount is a pattern with its raw event count inside some window.
type PatternCount struct {
	Key   PatternKey `json:"key"`
	Count int        `json:"count"`
}

// AnomalyContext is the co-occurring activity gathered around one anomaly.
type AnomalyContext struct {
	Anomaly         Anomaly        `json:"anomaly"`
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	RelatedPatterns []PatternCount `json:"related_patterns,omitempty"` // same service, other keys
	LevelBreakdown  map[Level]int  `json:"level_breakdown,omitempty"`
	Deploy          *DeployEvent   `json:"deploy,omitempty"`
	RequestIDs      []string       `json:"request_ids,omitempty"`
}

// Explanation is the structured narrative produced for an anomaly.
type Explanation struct {
	Summary      string  `json:"summary"`
	WhyItMatters string  `json:"why_it_matters"`
	WhereToLook  string  `json:"where_to_look"`
	Confidence   float64 `json:"confidence"`
}

// Report is the unit written to outputs: one anomaly with everything known about it.
type Report struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Band        string          `json:"band"`
	Anomaly     Anomaly         `json:"anomaly"`
	Context     *AnomalyContext `json:"context,omitempty"`
	Explanation *Explanation    `json:"explanation,omitempty"`
	Samples     []string        `json:"samples,omitempty"` // raw lines, trimmed by verbosity
}

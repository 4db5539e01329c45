package model

import "time"

// Reason explains why a pattern was flagged.
type Reason string

const (
	ReasonSpike      Reason = "spike"
	ReasonNewPattern Reason = "new_pattern"
)

// Anomaly is one flagged pattern. Produced fresh by every detection pass.
type Anomaly struct {
	Key              PatternKey `json:"key"`
	Reason           Reason     `json:"reason"`
	Severity         float64    `json:"severity"`
	RecentWeighted   float64    `json:"recent_weighted"`
	BaselineWeighted float64    `json:"baseline_weighted"`
	FirstSeen        time.Time  `json:"first_seen"`
	LastSeen         time.Time  `json:"last_seen"`
}

// NearMiss is a pattern that came within 70% of its spike threshold without crossing it.
type NearMiss struct {
	Key              PatternKey `json:"key"`
	RecentWeighted   float64    `json:"recent_weighted"`
	BaselineWeighted float64    `json:"baseline_weighted"`
	Threshold        float64    `json:"threshold"`
}

// DeployEvent marks a deployment of a service, used for correlation.
type DeployEvent struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

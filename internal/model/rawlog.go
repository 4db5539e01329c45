package model

import "time"

// RawLog is the intermediate type produced by connectors and consumed by the engine.
// Timestamp is when the line was received; event time always comes from the line itself.
type RawLog struct {
	Timestamp time.Time
	Source    string         // connector name (e.g. "file", "stdin", "http")
	Raw       string         // original log line
	Metadata  map[string]any // connector-specific metadata (path, offset, remote addr)
}

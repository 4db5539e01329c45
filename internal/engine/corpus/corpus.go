// Package corpus embeds a labeled set of log lines with the service, level
// and template the engine must produce for each, or the reason it must
// reject them.
package corpus

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed corpus.json
var corpusJSON []byte

// Entry is a labeled log line.
type Entry struct {
	Raw         string `json:"raw"`
	Shape       string `json:"shape"` // json, key_value, timestamp_text or unknown
	Service     string `json:"service,omitempty"`
	Level       string `json:"level,omitempty"`
	Template    string `json:"template,omitempty"`
	Reject      string `json:"reject,omitempty"` // failure reason when the line must be dropped
	Description string `json:"description"`
}

// Load parses the embedded corpus.json and returns all entries.
func Load() ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}

// Package connector defines log sources. Each provider registers a constructor
// under its name; the pipeline looks it up from configuration.
package connector

import (
	"context"
	"io"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// Connector defines the interface all log source connectors must implement.
type Connector interface {
	// Stream sends raw lines as they arrive until ctx is cancelled or the
	// source is exhausted, then closes the channel.
	Stream(ctx context.Context, cfg ConnectorConfig) (<-chan model.RawLog, error)

	// Query reads every line currently available from the source.
	Query(ctx context.Context, cfg ConnectorConfig, params QueryParams) ([]model.RawLog, error)
}

// ConnectorConfig holds provider-specific settings.
type ConnectorConfig struct {
	Provider  string
	Path      string    // file providers
	FromStart bool      // followed files: read existing content first
	Reader    io.Reader // stdin provider: overrides os.Stdin
	Extra     map[string]string
}

// QueryParams bounds a Query.
type QueryParams struct {
	Limit int // max lines, 0 for no limit
}

// MaxLineBytes is the longest line a connector will deliver. Longer lines are
// skipped and reading resumes at the next line.
const MaxLineBytes = 1 << 20

// Package output delivers anomaly reports to their destinations.
package output

import (
	"context"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// Output defines the interface for report destinations.
type Output interface {
	Write(ctx context.Context, report model.Report) error
	Close() error
}

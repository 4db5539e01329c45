// Package stdin reads log lines from standard input.
package stdin

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/model"
)

const providerName = "stdin"

func init() {
	connector.Register(providerName, func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements connector.Connector over os.Stdin, or cfg.Reader when set.
type Connector struct{}

func reader(cfg connector.ConnectorConfig) io.Reader {
	if cfg.Reader != nil {
		return cfg.Reader
	}
	return os.Stdin
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.RawLog, error) {
	logs, err := connector.ReadLines(ctx, reader(cfg), providerName, params.Limit, func(n int) map[string]any {
		return map[string]any{"line": n}
	})
	if err != nil {
		return logs, fmt.Errorf("stdin connector: %w", err)
	}
	return logs, nil
}

// Stream emits lines until EOF. A read blocked on the terminal is not
// interrupted by ctx; the goroutine exits at the next line or EOF.
func (c *Connector) Stream(ctx context.Context, cfg connector.ConnectorConfig) (<-chan model.RawLog, error) {
	r := reader(cfg)
	ch := make(chan model.RawLog, 64)
	go func() {
		defer close(ch)
		lr := connector.NewLineReader(r)
		for {
			line, n, err := lr.Next()
			if err != nil {
				return
			}
			raw := model.RawLog{
				Timestamp: time.Now().UTC(),
				Source:    providerName,
				Raw:       line,
				Metadata:  map[string]any{"line": n},
			}
			select {
			case ch <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

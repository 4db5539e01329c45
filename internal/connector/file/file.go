// Package file reads log lines from files on disk. Query reads a whole file,
// decompressing .gz and .zst by extension. Stream follows a plain file the
// way tail -F does, surviving truncation and rotation.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/model"
)

const (
	providerName        = "file"
	defaultPollInterval = time.Second
)

func init() {
	connector.Register(providerName, func() connector.Connector {
		return New()
	})
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger used for watch and read errors.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// Connector implements connector.Connector for local files.
type Connector struct {
	log *zap.Logger
}

// New creates a file connector.
func New(opts ...Option) *Connector {
	c := &Connector{log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open opens path for reading, transparently decompressing .gz and .zst files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file connector: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("file connector: gzip %s: %w", path, err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("file connector: zstd %s: %w", path, err)
		}
		rc := dec.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	default:
		return f, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.RawLog, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file connector: missing path")
	}
	rc, err := Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	logs, err := connector.ReadLines(ctx, rc, providerName, params.Limit, func(n int) map[string]any {
		return map[string]any{"path": cfg.Path, "line": n}
	})
	if err != nil {
		return logs, fmt.Errorf("file connector: read %s: %w", cfg.Path, err)
	}
	return logs, nil
}

func (c *Connector) Stream(ctx context.Context, cfg connector.ConnectorConfig) (<-chan model.RawLog, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file connector: missing path")
	}
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".gz", ".zst", ".zstd":
		return nil, fmt.Errorf("file connector: cannot follow compressed file %s", cfg.Path)
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("file connector: %w", err)
	}

	pollInterval := defaultPollInterval
	if raw := cfg.Extra["poll_interval"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			pollInterval = d
		}
	}

	t := &tailer{path: path, log: c.log.With(zap.String("path", path))}
	if err := t.open(cfg.FromStart); err != nil {
		return nil, fmt.Errorf("file connector: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(path))
		if err != nil {
			watcher.Close()
			watcher = nil
		}
	}
	if err != nil {
		c.log.Warn("file watch unavailable, polling only", zap.String("path", path), zap.Error(err))
	}

	ch := make(chan model.RawLog, 64)
	go func() {
		defer close(ch)
		defer t.close()
		var (
			events <-chan fsnotify.Event
			errs   <-chan error
		)
		if watcher != nil {
			defer watcher.Close()
			events, errs = watcher.Events, watcher.Errors
		}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		if !t.drain(ctx, ch) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if !t.sync(ctx, ch) {
					return
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				c.log.Warn("file watch error", zap.String("path", path), zap.Error(err))
			case <-ticker.C:
				if !t.sync(ctx, ch) {
					return
				}
			}
		}
	}()

	return ch, nil
}

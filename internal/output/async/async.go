// Package async decouples report production from slow outputs.
package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 256.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithLogger sets the logger for drops and the default error callback.
func WithLogger(l *zap.Logger) Option {
	return func(a *Async) { a.log = l }
}

// WithOnError sets the callback invoked when the inner output's Write fails.
// Default: logs a warning.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write return immediately (dropping the report) when
// the buffer is full, instead of blocking.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for queued reports. Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// Async queues reports on a buffered channel; a background goroutine drains
// it to the wrapped output. Errors from the inner output go to errFunc
// rather than back to the caller.
type Async struct {
	inner        output.Output
	ch           chan model.Report
	done         chan struct{}
	log          *zap.Logger
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// New wraps inner. The drain goroutine starts immediately.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.errFunc == nil {
		a.errFunc = func(err error) { a.log.Warn("async output write error", zap.Error(err)) }
	}
	a.ch = make(chan model.Report, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write queues the report. By default it blocks while the buffer is full;
// with WithDropOnFull the report is dropped instead. Writes after Close are
// discarded.
func (a *Async) Write(ctx context.Context, report model.Report) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	if a.dropOnFull {
		select {
		case a.ch <- report:
		default:
			a.log.Warn("async output buffer full, dropping report",
				zap.String("id", report.ID), zap.String("band", report.Band))
			a.dropped.Add(1)
		}
		return nil
	}
	select {
	case a.ch <- report:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many reports were discarded because the buffer was full.
func (a *Async) Dropped() int {
	return int(a.dropped.Load())
}

// Close stops accepting reports, waits for the queue to drain (up to the
// drain timeout), then closes the inner output. Safe to call more than once.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(a.drainTimeout):
		a.log.Warn("async output drain timed out")
	}
	return a.inner.Close()
}

func (a *Async) drain() {
	defer close(a.done)
	for report := range a.ch {
		if err := a.inner.Write(context.Background(), report); err != nil {
			a.errFunc(err)
		}
	}
}

// Package webhook POSTs batches of reports to an HTTP endpoint.
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/httpclient"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
)

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithToken sends a bearer token with every POST.
func WithToken(token string) Option {
	return func(o *Output) { o.token = token }
}

// WithBatchSize sets the number of reports accumulated before a flush. Default: 50.
func WithBatchSize(n int) Option {
	return func(o *Output) { o.batchSize = n }
}

// WithFlushInterval sets the maximum time between flushes. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.timeout = d }
}

// WithBackoff sets the first retry delay. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithVerbosity trims reports before they are sent. Default: Standard.
func WithVerbosity(v compactor.Verbosity) Option {
	return func(o *Output) { o.verbosity = v }
}

// WithLogger sets the logger used by the default error callback.
func WithLogger(l *zap.Logger) Option {
	return func(o *Output) { o.log = l }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// Output POSTs batched reports to an HTTP endpoint as a JSON array.
// Reports accumulate in an internal buffer and are flushed when batchSize is
// reached or flushInterval elapses. Retries on 429 and 5xx with exponential
// backoff.
type Output struct {
	client        *httpclient.Client
	url           string
	token         string
	headers       map[string]string
	timeout       time.Duration
	backoff       time.Duration
	batchSize     int
	flushInterval time.Duration
	verbosity     compactor.Verbosity
	log           *zap.Logger
	errFunc       func(error)

	mu      sync.Mutex
	pending []model.Report
	timer   *time.Timer
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		url:           url,
		timeout:       defaultTimeout,
		backoff:       time.Second,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		verbosity:     compactor.Standard,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.errFunc == nil {
		o.errFunc = func(err error) { o.log.Warn("webhook flush error", zap.Error(err)) }
	}
	copts := []httpclient.Option{httpclient.WithTimeout(o.timeout), httpclient.WithBackoff(o.backoff)}
	for k, v := range o.headers {
		copts = append(copts, httpclient.WithHeader(k, v))
	}
	o.client = httpclient.New(url, o.token, copts...)
	return o
}

// Write appends a report to the batch. When batchSize is reached, the batch
// is flushed immediately. A timer is started on the first report to ensure
// the batch flushes even if batchSize is never reached.
func (o *Output) Write(ctx context.Context, report model.Report) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = append(o.pending, output.FormatReport(report, o.verbosity))

	if len(o.pending) >= o.batchSize {
		return o.flushLocked(ctx)
	}

	// Start timer on first report in a new batch.
	if len(o.pending) == 1 {
		o.timer = time.AfterFunc(o.flushInterval, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if err := o.flushLocked(context.Background()); err != nil {
				o.errFunc(err)
			}
		})
	}
	return nil
}

// Close flushes any remaining reports and stops the timer.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	return o.flushLocked(context.Background())
}

// flushLocked sends the pending batch. Caller must hold o.mu.
func (o *Output) flushLocked(ctx context.Context) error {
	if len(o.pending) == 0 {
		return nil
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	batch := o.pending
	o.pending = nil

	if err := o.client.PostJSON(ctx, "", batch, nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

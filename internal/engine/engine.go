package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/engine/format"
	"github.com/hejijunhao/logwhisper/internal/engine/normalizer"
	"github.com/hejijunhao/logwhisper/internal/engine/parser"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// Coarse failure reasons. A parser failure is additionally counted under its
// own fine-grained reason (bad_timestamp, bad_json, ...).
const (
	ReasonUnrecognizedFormat = "unrecognized_format"
	ReasonUnparseable        = "unparseable_line"
	ReasonInternal           = "internal_error"
)

// Failure is returned by Process for a line that did not become an event.
type Failure struct {
	Raw    string
	Reason string // coarse reason
	Detail string // fine reason from the parser, if any
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("engine: %s (%s)", f.Reason, f.Detail)
	}
	return "engine: " + f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// IngestMetrics is a point-in-time snapshot of the engine's counters.
type IngestMetrics struct {
	Parsed           int            `json:"parsed"`
	Failed           int            `json:"failed"`
	FailuresByReason map[string]int `json:"failures_by_reason"`
}

// Option configures an Engine.
type Option func(*Engine) error

// WithNormalizer replaces the default rule table.
func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(e *Engine) error {
		e.normalizer = n
		return nil
	}
}

// WithLogger sets the logger used for dropped lines (debug level).
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithTemplateCache memoizes message -> template in a bigcache of at most
// sizeMB megabytes. Zero disables the memo.
func WithTemplateCache(sizeMB int) Option {
	return func(e *Engine) error {
		if sizeMB <= 0 {
			return nil
		}
		cfg := bigcache.DefaultConfig(30 * time.Minute)
		cfg.Shards = 64
		cfg.MaxEntrySize = 512
		cfg.HardMaxCacheSize = sizeMB
		cfg.Verbose = false
		c, err := bigcache.New(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("engine: template cache: %w", err)
		}
		e.cache = c
		return nil
	}
}

// Engine turns raw lines into normalized events: detect format, parse,
// normalize, assemble. It never panics and is safe for concurrent use.
type Engine struct {
	normalizer *normalizer.Normalizer
	cache      *bigcache.BigCache
	log        *zap.Logger

	mu       sync.Mutex
	parsed   int
	failed   int
	byReason map[string]int
}

// New creates an Engine with the default normalizer unless overridden.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		log:      zap.NewNop(),
		byReason: make(map[string]int),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.normalizer == nil {
		e.normalizer = normalizer.New()
	}
	return e, nil
}

// Process converts one raw log into an event. On failure the returned error is
// a *Failure and the failure counters have been incremented.
func (e *Engine) Process(raw model.RawLog) (ev model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = model.Event{}
			err = e.fail(raw.Raw, ReasonInternal, "", fmt.Errorf("panic: %v", r))
		}
	}()

	shape := format.Detect(raw.Raw)
	if shape == format.Unknown {
		return model.Event{}, e.fail(raw.Raw, ReasonUnrecognizedFormat, "", nil)
	}

	p, perr := parser.Parse(shape, raw.Raw)
	if perr != nil {
		detail := ""
		var pe *parser.Error
		if errors.As(perr, &pe) {
			detail = pe.Reason
		}
		return model.Event{}, e.fail(raw.Raw, ReasonUnparseable, detail, perr)
	}

	ev = model.Event{
		Timestamp: p.Timestamp,
		Service:   p.Service,
		Level:     p.Level,
		Template:  e.template(p.Message),
		Raw:       raw.Raw,
		RequestID: p.RequestID,
	}

	e.mu.Lock()
	e.parsed++
	e.mu.Unlock()
	return ev, nil
}

// Ingest is Process for a bare line. ok is false when the line was dropped.
func (e *Engine) Ingest(line string) (model.Event, bool) {
	ev, err := e.Process(model.RawLog{Raw: line, Timestamp: time.Now()})
	return ev, err == nil
}

// ProcessBatch processes raws in order and returns the events that parsed.
// Dropped lines are only reflected in the counters.
func (e *Engine) ProcessBatch(raws []model.RawLog) []model.Event {
	if len(raws) == 0 {
		return nil
	}
	events := make([]model.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := e.Process(raw)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// Metrics returns a snapshot of the success and failure counters.
func (e *Engine) Metrics() IngestMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	by := make(map[string]int, len(e.byReason))
	for k, v := range e.byReason {
		by[k] = v
	}
	return IngestMetrics{Parsed: e.parsed, Failed: e.failed, FailuresByReason: by}
}

// Normalizer returns the rule table in use.
func (e *Engine) Normalizer() *normalizer.Normalizer { return e.normalizer }

// Close releases the template cache, if any.
func (e *Engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

func (e *Engine) template(msg string) string {
	if e.cache == nil || msg == "" {
		return e.normalizer.Normalize(msg)
	}
	if b, err := e.cache.Get(msg); err == nil {
		return string(b)
	}
	t := e.normalizer.Normalize(msg)
	// A full cache only costs a recompute next time.
	_ = e.cache.Set(msg, []byte(t))
	return t
}

func (e *Engine) fail(raw, reason, detail string, err error) *Failure {
	e.mu.Lock()
	e.failed++
	e.byReason[reason]++
	if detail != "" {
		e.byReason[detail]++
	}
	e.mu.Unlock()
	e.log.Debug("line dropped",
		zap.String("reason", reason),
		zap.String("detail", detail),
		zap.Int("len", len(raw)),
	)
	return &Failure{Raw: raw, Reason: reason, Detail: detail, Err: err}
}

// Package pipeline wires a connector, the engine, the pattern store, the
// detector and the outputs together. Query mode reads a source once and
// detects once; stream mode ingests continuously and detects on a ticker.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/correlate"
	"github.com/hejijunhao/logwhisper/internal/detector"
	"github.com/hejijunhao/logwhisper/internal/engine"
	"github.com/hejijunhao/logwhisper/internal/engine/dedup"
	"github.com/hejijunhao/logwhisper/internal/explain"
	"github.com/hejijunhao/logwhisper/internal/metrics"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
	"github.com/hejijunhao/logwhisper/internal/store"
)

// NowMode selects the clock used by stream-mode detection.
type NowMode string

const (
	NowWall  NowMode = "wall"  // time.Now
	NowEvent NowMode = "event" // latest event timestamp ingested
)

// Config tunes the pipeline. Zero fields take the defaults below.
type Config struct {
	Interval       time.Duration // stream detection interval (30s)
	NowMode        NowMode       // stream clock (wall)
	ContextWindow  time.Duration // look-back for correlation (5m)
	ExplainTimeout time.Duration // per-anomaly explainer deadline (30s)
	ExplainMinBand detector.Band // lowest band worth an explanation (low)
	Samples        int           // raw lines attached per report (5)
	Bands          detector.Bands
	BatchSize      int           // stream lines per ingest batch (256)
	BatchWindow    time.Duration // max wait before a partial batch is ingested (200ms)
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.NowMode == "" {
		c.NowMode = NowWall
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = correlate.DefaultWindow
	}
	if c.ExplainTimeout <= 0 {
		c.ExplainTimeout = 30 * time.Second
	}
	if c.ExplainMinBand == "" {
		c.ExplainMinBand = detector.BandLow
	}
	if c.Samples <= 0 {
		c.Samples = 5
	}
	if c.Bands == (detector.Bands{}) {
		c.Bands = detector.DefaultBands()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 200 * time.Millisecond
	}
	return c
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the pipeline tuning.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithExplainer attaches narrative explanations to reports.
func WithExplainer(e *explain.Explainer) Option {
	return func(p *Pipeline) { p.explainer = e }
}

// WithDedup suppresses repeated stream-mode reports.
func WithDedup(d *dedup.Deduplicator) Option {
	return func(p *Pipeline) { p.dedup = d }
}

// WithMetrics records pipeline activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock replaces time.Now for wall-clock detection.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.clock = now }
}

// Result is the outcome of one detection pass.
type Result struct {
	Now        time.Time            `json:"now"`
	Reports    []model.Report       `json:"reports"`
	NearMisses []model.NearMiss     `json:"near_misses,omitempty"`
	Ingest     engine.IngestMetrics `json:"ingest"`
}

// Pipeline connects a connector, engine, store, detector and output.
type Pipeline struct {
	connector connector.Connector
	engine    *engine.Engine
	store     *store.Store
	detector  *detector.Detector
	output    output.Output

	cfg       Config
	explainer *explain.Explainer
	dedup     *dedup.Deduplicator
	metrics   *metrics.Metrics
	log       *zap.Logger
	clock     func() time.Time

	deploys    *correlate.DeployTracker
	requests   *correlate.RequestIndex
	correlator *correlate.Builder

	mu     sync.Mutex
	latest time.Time
	last   Result
}

// New creates a Pipeline from the given components. conn may be nil when
// lines only arrive through Ingest.
func New(conn connector.Connector, eng *engine.Engine, st *store.Store, det *detector.Detector, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector: conn,
		engine:    eng,
		store:     st,
		detector:  det,
		output:    out,
		log:       zap.NewNop(),
		clock:     time.Now,
		deploys:   correlate.NewDeployTracker(0),
		requests:  correlate.NewRequestIndex(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg = p.cfg.withDefaults()
	p.correlator = correlate.New(st, p.cfg.ContextWindow)
	if p.metrics != nil {
		p.metrics.WatchEngine(eng.Metrics)
		p.metrics.WatchPatterns(st.Len)
	}
	return p
}

// Store returns the pattern store the pipeline feeds.
func (p *Pipeline) Store() *store.Store { return p.store }

// Engine returns the ingestion engine.
func (p *Pipeline) Engine() *engine.Engine { return p.engine }

// Ingest processes one raw line and records it. It reports whether the line
// was accepted. Safe to call concurrently with Stream.
func (p *Pipeline) Ingest(raw model.RawLog) bool {
	ev, err := p.engine.Process(raw)
	if err != nil {
		return false
	}
	p.record(ev)
	return true
}

func (p *Pipeline) ingestBatch(raws []model.RawLog) int {
	events := p.engine.ProcessBatch(raws)
	for _, ev := range events {
		p.record(ev)
	}
	return len(events)
}

func (p *Pipeline) record(ev model.Event) {
	p.store.Add(ev)
	p.requests.Observe(ev)
	if p.deploys.Observe(ev) {
		p.log.Debug("deploy marker", zap.String("service", ev.Service), zap.Time("at", ev.Timestamp))
	}
	p.mu.Lock()
	if ev.Timestamp.After(p.latest) {
		p.latest = ev.Timestamp
	}
	p.mu.Unlock()
}

// Latest returns the newest event timestamp ingested so far.
func (p *Pipeline) Latest() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// LastResult returns the outcome of the most recent detection pass.
func (p *Pipeline) LastResult() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Detect runs one detection pass at now and turns every anomaly into a
// report with its context and samples. Reports are not explained or written.
func (p *Pipeline) Detect(now time.Time) Result {
	start := time.Now()
	anomalies, misses := p.detector.Detect(now)
	if p.metrics != nil {
		p.metrics.ObserveDetection(time.Since(start), len(misses))
	}

	deploys := p.deploys.Events()
	reports := make([]model.Report, 0, len(anomalies))
	for _, a := range anomalies {
		band := p.cfg.Bands.Label(a.Severity)
		actx := p.correlator.Build(a, deploys, p.requests)
		reports = append(reports, model.Report{
			ID:          uuid.NewString(),
			GeneratedAt: now,
			Band:        string(band),
			Anomaly:     a,
			Context:     &actx,
			Samples:     p.requests.Samples(a.Key, p.cfg.Samples),
		})
		if p.metrics != nil {
			p.metrics.Anomaly(string(a.Reason), string(band))
		}
	}

	res := Result{Now: now, Reports: reports, NearMisses: misses, Ingest: p.engine.Metrics()}
	p.mu.Lock()
	p.last = res
	p.mu.Unlock()
	return res
}

// Query ingests everything the connector returns, detects once and writes
// every report. A zero now means the latest event timestamp seen.
func (p *Pipeline) Query(ctx context.Context, cfg connector.ConnectorConfig, now time.Time) (Result, error) {
	if p.connector == nil {
		return Result{}, fmt.Errorf("pipeline query: no connector")
	}
	raws, err := p.connector.Query(ctx, cfg, connector.QueryParams{})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline query: %w", err)
	}

	accepted := p.ingestBatch(raws)
	p.log.Info("ingested", zap.Int("lines", len(raws)), zap.Int("accepted", accepted), zap.Int("patterns", p.store.Len()))

	if now.IsZero() {
		now = p.Latest()
	}
	res := p.Detect(now)
	p.explainAll(ctx, res.Reports)
	if err := p.write(ctx, res.Reports); err != nil {
		return res, err
	}
	return res, nil
}

// Stream ingests lines as they arrive and runs detection every interval.
// Reports pass through dedup and the explainer before being written. Blocks
// until ctx is cancelled or the source is exhausted; an exhausted source
// gets one final detection pass.
func (p *Pipeline) Stream(ctx context.Context, cfg connector.ConnectorConfig) error {
	if p.connector == nil {
		return fmt.Errorf("pipeline stream: no connector")
	}
	ch, err := p.connector.Stream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline stream: %w", err)
	}

	buf := newLineBuffer(p.cfg.BatchWindow, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.ingestBatch(buf.take())
			return ctx.Err()

		case raw, ok := <-ch:
			if !ok {
				p.ingestBatch(buf.take())
				return p.tick(ctx)
			}
			if buf.add(raw) {
				p.ingestBatch(buf.take())
			}

		case <-buf.flushCh():
			p.ingestBatch(buf.take())

		case <-ticker.C:
			p.ingestBatch(buf.take())
			if err := p.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one stream-mode detection pass: evict, detect, dedup, explain
// and write.
func (p *Pipeline) Tick(ctx context.Context) error {
	return p.tick(ctx)
}

func (p *Pipeline) tick(ctx context.Context) error {
	now := p.streamNow()
	if now.IsZero() {
		return nil
	}
	p.store.Evict(now)

	res := p.Detect(now)
	reports := res.Reports
	if p.dedup != nil {
		before := len(reports)
		reports = p.dedup.Filter(reports, now)
		if p.metrics != nil {
			p.metrics.Suppressed(before - len(reports))
		}
		p.dedup.Prune(now)
	}
	p.log.Debug("detection pass",
		zap.Time("now", now),
		zap.Int("anomalies", len(res.Reports)),
		zap.Int("reported", len(reports)),
		zap.Int("near_misses", len(res.NearMisses)),
	)

	p.explainAll(ctx, reports)
	return p.write(ctx, reports)
}

func (p *Pipeline) streamNow() time.Time {
	if p.cfg.NowMode == NowEvent {
		return p.Latest()
	}
	return p.clock().UTC()
}

// explainAll fills in explanations in place. A failed explanation is logged
// and the report goes out without one.
func (p *Pipeline) explainAll(ctx context.Context, reports []model.Report) {
	if p.explainer == nil {
		return
	}
	for i := range reports {
		r := &reports[i]
		if detector.Band(r.Band).Rank() < p.cfg.ExplainMinBand.Rank() || r.Context == nil {
			continue
		}
		ectx, cancel := context.WithTimeout(ctx, p.cfg.ExplainTimeout)
		start := time.Now()
		ex, err := p.explainer.Explain(ectx, *r.Context)
		cancel()
		if p.metrics != nil {
			p.metrics.Explained(time.Since(start), err)
		}
		if err != nil {
			p.log.Warn("explain failed", zap.String("id", r.ID), zap.Stringer("key", r.Anomaly.Key), zap.Error(err))
			continue
		}
		r.Explanation = &ex
	}
}

func (p *Pipeline) write(ctx context.Context, reports []model.Report) error {
	for _, r := range reports {
		err := p.output.Write(ctx, r)
		if p.metrics != nil {
			p.metrics.ReportWritten(err)
		}
		if err != nil {
			return fmt.Errorf("pipeline output: %w", err)
		}
	}
	return nil
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	return p.output.Close()
}

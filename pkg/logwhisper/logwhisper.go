package logwhisper

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/detector"
	"github.com/hejijunhao/logwhisper/internal/engine"
	"github.com/hejijunhao/logwhisper/internal/engine/normalizer"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/store"
)

// Logwhisper ingests log lines and detects anomalous patterns.
// Safe for concurrent use.
type Logwhisper struct {
	engine   *engine.Engine
	store    *store.Store
	detector *detector.Detector
	bands    detector.Bands

	mu     sync.Mutex
	latest time.Time
}

// New creates a Logwhisper instance.
func New(opts ...Option) (*Logwhisper, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var rules []normalizer.Rule
	if o.rulesFile != "" {
		var err error
		if rules, err = normalizer.LoadRules(o.rulesFile); err != nil {
			return nil, fmt.Errorf("logwhisper: %w", err)
		}
	}
	eng, err := engine.New(
		engine.WithNormalizer(normalizer.New(normalizer.WithRules(rules...))),
		engine.WithTemplateCache(o.templateCacheMB),
	)
	if err != nil {
		return nil, fmt.Errorf("logwhisper: %w", err)
	}

	st, err := store.New(o.window, o.bucket)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("logwhisper: %w", err)
	}
	det, err := detector.New(st, detector.Config{
		RecentWindow:    o.recentWindow,
		SpikeMultiplier: o.spikeMultiplier,
		MinBaseline:     o.minBaseline,
	})
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("logwhisper: %w", err)
	}
	return &Logwhisper{engine: eng, store: st, detector: det, bands: o.bands}, nil
}

// Ingest parses and records a single line.
func (w *Logwhisper) Ingest(line string) (Event, error) {
	return w.IngestLog(Log{Text: line})
}

// IngestLog parses and records a log entry. A rejected line returns an
// error naming the reason, such as unrecognized_format.
func (w *Logwhisper) IngestLog(l Log) (Event, error) {
	ev, err := w.engine.Process(model.RawLog{
		Timestamp: time.Now().UTC(),
		Source:    l.Source,
		Raw:       l.Text,
		Metadata:  l.Metadata,
	})
	if err != nil {
		return Event{}, err
	}
	w.record(ev)
	return eventFromModel(ev), nil
}

// IngestReader records every non-blank line of r and reports how many
// were accepted and rejected. Lines over the size limit count as rejected.
// It stops at the first read error.
func (w *Logwhisper) IngestReader(r io.Reader) (accepted, rejected int, err error) {
	lr := connector.NewLineReader(r)
	raws, err := connector.Collect(context.Background(), lr, "reader", 0, nil)
	for _, ev := range w.engine.ProcessBatch(raws) {
		w.record(ev)
		accepted++
	}
	return accepted, len(raws) - accepted + lr.Dropped, err
}

func (w *Logwhisper) record(ev model.Event) {
	w.store.Add(ev)
	w.mu.Lock()
	if ev.Timestamp.After(w.latest) {
		w.latest = ev.Timestamp
	}
	w.mu.Unlock()
}

// Detect returns the anomalies as of now, most severe first. A zero now
// means the newest event timestamp ingested so far.
func (w *Logwhisper) Detect(now time.Time) []Anomaly {
	if now.IsZero() {
		w.mu.Lock()
		now = w.latest
		w.mu.Unlock()
	}
	found, _ := w.detector.Detect(now)
	out := make([]Anomaly, len(found))
	for i, a := range found {
		out[i] = Anomaly{
			Service:          a.Key.Service,
			Level:            string(a.Key.Level),
			Template:         a.Key.Template,
			Reason:           string(a.Reason),
			Severity:         a.Severity,
			Band:             string(w.bands.Label(a.Severity)),
			RecentWeighted:   a.RecentWeighted,
			BaselineWeighted: a.BaselineWeighted,
			FirstSeen:        a.FirstSeen,
			LastSeen:         a.LastSeen,
		}
	}
	return out
}

// Patterns returns every pattern seen so far, in key order.
func (w *Logwhisper) Patterns() []Pattern {
	var out []Pattern
	w.store.View(func(r store.Reader) {
		for _, key := range r.Keys() {
			st, _ := r.Stats(key)
			out = append(out, Pattern{
				Service:    key.Service,
				Level:      string(key.Level),
				Template:   key.Template,
				TotalCount: st.TotalCount,
				FirstSeen:  st.FirstSeen,
				LastSeen:   st.LastSeen,
			})
		}
	})
	return out
}

// Stats returns ingestion counters.
func (w *Logwhisper) Stats() Stats {
	m := w.engine.Metrics()
	return Stats{
		Parsed:           m.Parsed,
		Failed:           m.Failed,
		FailuresByReason: m.FailuresByReason,
		Patterns:         w.store.Len(),
	}
}

// Label maps a severity to its band name.
func (w *Logwhisper) Label(severity float64) string {
	return string(w.bands.Label(severity))
}

// Close releases the template cache.
func (w *Logwhisper) Close() error {
	return w.engine.Close()
}

func eventFromModel(ev model.Event) Event {
	return Event{
		Timestamp: ev.Timestamp,
		Service:   ev.Service,
		Level:     string(ev.Level),
		Template:  ev.Template,
		RequestID: ev.RequestID,
		Raw:       ev.Raw,
	}
}

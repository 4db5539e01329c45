// Package dedup suppresses repeated anomaly reports. A pattern that stays
// anomalous across consecutive detection passes is reported once per window,
// unless its severity band escalates.
package dedup

import (
	"sync"
	"time"

	"github.com/hejijunhao/logwhisper/internal/detector"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// Config controls deduplication behavior.
type Config struct {
	Window time.Duration // quiet period after a report (default 15m)
}

type entry struct {
	at   time.Time
	band detector.Band
}

// Deduplicator remembers when each pattern was last reported and at which band.
type Deduplicator struct {
	cfg Config

	mu         sync.Mutex
	last       map[model.PatternKey]entry
	suppressed int
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Deduplicator{cfg: cfg, last: make(map[model.PatternKey]entry)}
}

// Allow reports whether an anomaly on key at band should be reported at now,
// and records it if so. A report is suppressed when the same key was reported
// less than Window ago at the same or a higher band.
func (d *Deduplicator) Allow(key model.PatternKey, band detector.Band, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.last[key]
	if ok && now.Sub(prev.at) < d.cfg.Window && band.Rank() <= prev.band.Rank() {
		d.suppressed++
		return false
	}
	d.last[key] = entry{at: now, band: band}
	return true
}

// Filter returns the reports that Allow lets through, in order.
func (d *Deduplicator) Filter(reports []model.Report, now time.Time) []model.Report {
	if len(reports) == 0 {
		return nil
	}
	out := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		if d.Allow(r.Anomaly.Key, detector.Band(r.Band), now) {
			out = append(out, r)
		}
	}
	return out
}

// Suppressed returns how many reports have been held back so far.
func (d *Deduplicator) Suppressed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

// Prune forgets keys last reported more than Window before now.
func (d *Deduplicator) Prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, e := range d.last {
		if now.Sub(e.at) >= d.cfg.Window {
			delete(d.last, k)
		}
	}
}

// Len returns the number of keys currently remembered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

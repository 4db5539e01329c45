// Package detector flags patterns whose recent activity is abnormal relative
// to their own history in the store.
package detector

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/store"
)

// NearMissRatio is the fraction of the spike threshold at which a key is
// reported as a near miss.
const NearMissRatio = 0.7

// Source is a store that can hand out a consistent read snapshot.
type Source interface {
	View(fn func(store.Reader))
}

// Config controls detection.
type Config struct {
	RecentWindow    time.Duration // trailing window compared against the baseline
	SpikeMultiplier float64       // recent must reach baseline*multiplier to spike
	MinBaseline     float64       // baselines below this never spike
	TrackNearMiss   bool
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RecentWindow:    5 * time.Minute,
		SpikeMultiplier: 5,
		MinBaseline:     5,
		TrackNearMiss:   true,
	}
}

// Validate reports whether cfg can be used for detection.
func (c Config) Validate() error {
	var errs []error
	if c.RecentWindow <= 0 {
		errs = append(errs, fmt.Errorf("recent window %s must be positive", c.RecentWindow))
	}
	if c.SpikeMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("spike multiplier %v must be positive", c.SpikeMultiplier))
	}
	if c.MinBaseline < 0 {
		errs = append(errs, fmt.Errorf("min baseline %v must not be negative", c.MinBaseline))
	}
	if len(errs) > 0 {
		return fmt.Errorf("detector: %w", errors.Join(errs...))
	}
	return nil
}

// Detector scans a store for spikes and new patterns. It holds no state of its
// own between scans, so Detect is deterministic given the store and now.
type Detector struct {
	src Source
	cfg Config
}

// New creates a Detector over src.
func New(src Source, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{src: src, cfg: cfg}, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect classifies every known key at now. Anomalies come back sorted by
// descending severity, ties in key order; near misses by how close they came.
func (d *Detector) Detect(now time.Time) ([]model.Anomaly, []model.NearMiss) {
	var (
		anomalies []model.Anomaly
		misses    []model.NearMiss
	)
	cutoff := now.Add(-d.cfg.RecentWindow)

	d.src.View(func(r store.Reader) {
		for _, key := range r.Keys() {
			buckets := r.Buckets(key)
			if len(buckets) == 0 {
				continue
			}
			recent := r.WeightedCount(key, cutoff)
			baseline := baselineAvg(buckets, cutoff)
			st, _ := r.Stats(key)

			switch {
			case baseline == 0 && recent > 0:
				anomalies = append(anomalies, model.Anomaly{
					Key:            key,
					Reason:         model.ReasonNewPattern,
					Severity:       recent,
					RecentWeighted: recent,
					FirstSeen:      st.FirstSeen,
					LastSeen:       st.LastSeen,
				})
			case baseline > 0 && baseline >= d.cfg.MinBaseline:
				threshold := baseline * d.cfg.SpikeMultiplier
				if recent >= threshold {
					anomalies = append(anomalies, model.Anomaly{
						Key:              key,
						Reason:           model.ReasonSpike,
						Severity:         recent / baseline,
						RecentWeighted:   recent,
						BaselineWeighted: baseline,
						FirstSeen:        st.FirstSeen,
						LastSeen:         st.LastSeen,
					})
				} else if d.cfg.TrackNearMiss && recent >= NearMissRatio*threshold {
					misses = append(misses, model.NearMiss{
						Key:              key,
						RecentWeighted:   recent,
						BaselineWeighted: baseline,
						Threshold:        threshold,
					})
				}
			}
		}
	})

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Severity > anomalies[j].Severity
	})
	sort.SliceStable(misses, func(i, j int) bool {
		return misses[i].RecentWeighted/misses[i].Threshold > misses[j].RecentWeighted/misses[j].Threshold
	})
	return anomalies, misses
}

// baselineAvg is the mean raw count of the buckets that started before cutoff.
// Counts are unweighted; only the recent signal carries level weight.
func baselineAvg(buckets []model.Bucket, cutoff time.Time) float64 {
	var counts []float64
	for _, b := range buckets {
		if b.Start.Before(cutoff) {
			counts = append(counts, float64(b.Count))
		}
	}
	if len(counts) == 0 {
		return 0
	}
	return stat.Mean(counts, nil)
}

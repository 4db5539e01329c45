package logwhisper

import (
	"time"

	"github.com/hejijunhao/logwhisper/internal/detector"
)

type options struct {
	window          time.Duration
	bucket          time.Duration
	recentWindow    time.Duration
	spikeMultiplier float64
	minBaseline     float64
	bands           detector.Bands
	rulesFile       string
	templateCacheMB int
}

// Option configures a Logwhisper instance.
type Option func(*options)

// WithWindow sets how much history is kept per pattern. It must be a
// multiple of the bucket size. Default: 1h.
func WithWindow(d time.Duration) Option {
	return func(o *options) { o.window = d }
}

// WithBucket sets the counting granularity. Default: 1m.
func WithBucket(d time.Duration) Option {
	return func(o *options) { o.bucket = d }
}

// WithRecentWindow sets the trailing window compared against the baseline.
// Default: 5m.
func WithRecentWindow(d time.Duration) Option {
	return func(o *options) { o.recentWindow = d }
}

// WithSpikeMultiplier sets how many times the baseline recent activity must
// reach to count as a spike. Default: 5.
func WithSpikeMultiplier(m float64) Option {
	return func(o *options) { o.spikeMultiplier = m }
}

// WithMinBaseline sets the baseline below which a pattern never spikes.
// Default: 5.
func WithMinBaseline(b float64) Option {
	return func(o *options) { o.minBaseline = b }
}

// WithBands sets the lower severity bounds of the critical, high and medium
// bands. Default: 20, 10, 5.
func WithBands(critical, high, medium float64) Option {
	return func(o *options) {
		o.bands = detector.Bands{Critical: critical, High: high, Medium: medium}
	}
}

// WithRulesFile loads custom normalization rules from a YAML file.
func WithRulesFile(path string) Option {
	return func(o *options) { o.rulesFile = path }
}

// WithTemplateCache memoizes templates in a cache of at most mb megabytes.
func WithTemplateCache(mb int) Option {
	return func(o *options) { o.templateCacheMB = mb }
}

func defaultOptions() options {
	d := detector.DefaultConfig()
	return options{
		window:          time.Hour,
		bucket:          time.Minute,
		recentWindow:    d.RecentWindow,
		spikeMultiplier: d.SpikeMultiplier,
		minBaseline:     d.MinBaseline,
		bands:           detector.DefaultBands(),
	}
}

// Package store aggregates events into per-pattern time buckets over a
// sliding window and keeps lifetime statistics for every pattern it has seen.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// ErrInvalidConfig is returned by New for a window/bucket pair that cannot
// produce correct bucketing.
var ErrInvalidConfig = errors.New("store: invalid configuration")

// Reader is the read API shared by the detector and the context builder.
type Reader interface {
	Keys() []model.PatternKey
	Buckets(key model.PatternKey) []model.Bucket
	Stats(key model.PatternKey) (model.PatternStats, bool)
	WeightedCount(key model.PatternKey, since time.Time) float64
	ActivityWindow(since, until time.Time) map[model.PatternKey]int
}

// Weight returns the level weight applied to recent activity.
func Weight(l model.Level) float64 {
	switch l {
	case model.LevelError:
		return 5
	case model.LevelWarn:
		return 2
	case model.LevelInfo:
		return 1
	case model.LevelDebug:
		return 0.5
	default:
		return 1
	}
}

// Store owns the bucket series and stats of every pattern key. All methods are
// safe for concurrent use; a single bucket update is never visible half-done.
type Store struct {
	window time.Duration
	bucket time.Duration

	mu     sync.RWMutex
	series map[model.PatternKey][]model.Bucket
	stats  map[model.PatternKey]*model.PatternStats
}

// New creates an empty store retaining window worth of buckets of the given size.
// window must be a positive multiple of bucket.
func New(window, bucket time.Duration) (*Store, error) {
	switch {
	case bucket <= 0:
		return nil, fmt.Errorf("%w: bucket size %s must be positive", ErrInvalidConfig, bucket)
	case window < bucket:
		return nil, fmt.Errorf("%w: window %s smaller than bucket %s", ErrInvalidConfig, window, bucket)
	case window%bucket != 0:
		return nil, fmt.Errorf("%w: window %s is not a multiple of bucket %s", ErrInvalidConfig, window, bucket)
	}
	return &Store{
		window: window,
		bucket: bucket,
		series: make(map[model.PatternKey][]model.Bucket),
		stats:  make(map[model.PatternKey]*model.PatternStats),
	}, nil
}

// Window returns the retention horizon.
func (s *Store) Window() time.Duration { return s.window }

// BucketSize returns the aggregation granularity.
func (s *Store) BucketSize() time.Duration { return s.bucket }

// BucketStart returns the start of the bucket ts falls into, truncating
// against the Unix epoch.
func (s *Store) BucketStart(ts time.Time) time.Time {
	ns := ts.UnixNano()
	size := int64(s.bucket)
	rem := ns % size
	if rem < 0 {
		rem += size
	}
	return time.Unix(0, ns-rem).UTC()
}

// Add records ev. The tail bucket is incremented when ev falls into it,
// otherwise a new bucket is appended, even when ev is older than the tail.
// Expired head buckets are evicted relative to ev's timestamp.
func (s *Store) Add(ev model.Event) {
	key := ev.Key()
	start := s.BucketStart(ev.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	bs := s.series[key]
	if n := len(bs); n > 0 && bs[n-1].Start.Equal(start) {
		bs[n-1].Count++
	} else {
		bs = append(bs, model.Bucket{Start: start, Count: 1})
	}
	s.series[key] = evictHead(bs, ev.Timestamp.Add(-s.window))

	st, ok := s.stats[key]
	if !ok {
		st = &model.PatternStats{FirstSeen: ev.Timestamp, LastSeen: ev.Timestamp}
		s.stats[key] = st
	}
	st.TotalCount++
	if ev.Timestamp.After(st.LastSeen) {
		st.LastSeen = ev.Timestamp
	}
}

// Evict drops, for every key, the buckets that started before now-window,
// including late buckets that landed behind the tail. Stats are kept.
// Running it twice is the same as running it once.
func (s *Store) Evict(now time.Time) {
	cutoff := now.Add(-s.window)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, bs := range s.series {
		live := bs[:0]
		for _, b := range bs {
			if !b.Start.Before(cutoff) {
				live = append(live, b)
			}
		}
		s.series[key] = live
	}
}

func evictHead(bs []model.Bucket, cutoff time.Time) []model.Bucket {
	i := 0
	for i < len(bs) && bs[i].Start.Before(cutoff) {
		i++
	}
	if i == len(bs) {
		return nil
	}
	// Re-slice only. The next append that outgrows the array copies just the
	// live buckets, which keeps head removal amortized O(1).
	return bs[i:]
}

// Len returns the number of keys ever seen.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stats)
}

// View runs fn with a Reader over a consistent snapshot: no Add or Evict can
// interleave with fn. fn must not call back into the Store.
func (s *Store) View(fn func(Reader)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(view{s})
}

// Keys returns every key with stats, sorted.
func (s *Store) Keys() []model.PatternKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Keys()
}

// Buckets returns a copy of key's live buckets, oldest first.
func (s *Store) Buckets(key model.PatternKey) []model.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Buckets(key)
}

// Stats returns key's lifetime stats.
func (s *Store) Stats(key model.PatternKey) (model.PatternStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Stats(key)
}

// WeightedCount sums level-weighted counts of key's buckets starting at or after since.
func (s *Store) WeightedCount(key model.PatternKey, since time.Time) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.WeightedCount(key, since)
}

// ActivityWindow returns raw counts per key for buckets in [since, until].
func (s *Store) ActivityWindow(since, until time.Time) map[model.PatternKey]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.ActivityWindow(since, until)
}

// view implements Reader without locking; callers hold s.mu.
type view struct{ s *Store }

// Keys returns every known key, sorted.
func (v view) Keys() []model.PatternKey {
	keys := make([]model.PatternKey, 0, len(v.s.stats))
	for k := range v.s.stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Buckets returns a copy of the live series for key, oldest first.
func (v view) Buckets(key model.PatternKey) []model.Bucket {
	bs := v.s.series[key]
	if len(bs) == 0 {
		return nil
	}
	out := make([]model.Bucket, len(bs))
	copy(out, bs)
	return out
}

func (v view) Stats(key model.PatternKey) (model.PatternStats, bool) {
	st, ok := v.s.stats[key]
	if !ok {
		return model.PatternStats{}, false
	}
	return *st, true
}

// WeightedCount sums the buckets of key starting at or after since,
// multiplied by the weight of the key's level.
func (v view) WeightedCount(key model.PatternKey, since time.Time) float64 {
	total := 0
	for _, b := range v.s.series[key] {
		if !b.Start.Before(since) {
			total += b.Count
		}
	}
	return float64(total) * Weight(key.Level)
}

// ActivityWindow returns raw counts per key over buckets starting in
// [since, until]. Keys without activity are omitted.
func (v view) ActivityWindow(since, until time.Time) map[model.PatternKey]int {
	out := make(map[model.PatternKey]int)
	for key, bs := range v.s.series {
		n := 0
		for _, b := range bs {
			if b.Start.Before(since) || b.Start.After(until) {
				continue
			}
			n += b.Count
		}
		if n > 0 {
			out[key] = n
		}
	}
	return out
}

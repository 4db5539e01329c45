package correlate

import (
	"sync"
	"time"

	"github.com/hejijunhao/logwhisper/internal/model"
)

type sighting struct {
	at  time.Time
	id  string
	raw string
}

// RequestIndex keeps the latest request ids and raw lines per pattern key so a
// report can point at concrete requests and example lines.
type RequestIndex struct {
	mu     sync.Mutex
	perKey int
	seen   map[model.PatternKey][]sighting
}

// NewRequestIndex keeps up to perKey sightings per key (default 32).
func NewRequestIndex(perKey int) *RequestIndex {
	if perKey <= 0 {
		perKey = 32
	}
	return &RequestIndex{perKey: perKey, seen: make(map[model.PatternKey][]sighting)}
}

// Observe records ev.
func (x *RequestIndex) Observe(ev model.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := ev.Key()
	s := append(x.seen[key], sighting{at: ev.Timestamp, id: ev.RequestID, raw: ev.Raw})
	if over := len(s) - x.perKey; over > 0 {
		s = append(s[:0], s[over:]...)
	}
	x.seen[key] = s
}

// IDs returns the distinct request ids recorded for key in [since, until],
// in the order first seen.
func (x *RequestIndex) IDs(key model.PatternKey, since, until time.Time) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []string
	dup := make(map[string]bool)
	for _, s := range x.seen[key] {
		if s.id == "" || dup[s.id] || s.at.Before(since) || s.at.After(until) {
			continue
		}
		dup[s.id] = true
		out = append(out, s.id)
	}
	return out
}

// Samples returns up to n of the most recent raw lines for key, newest last.
func (x *RequestIndex) Samples(key model.PatternKey, n int) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	s := x.seen[key]
	if n <= 0 || len(s) == 0 {
		return nil
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v.raw != "" {
			out = append(out, v.raw)
		}
	}
	return out
}

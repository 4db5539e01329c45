package pipeline

import (
	"sync"
	"time"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// lineBuffer accumulates raw lines from a stream and releases them in
// batches, either when maxSize is reached or when the flush timer fires.
type lineBuffer struct {
	window  time.Duration
	maxSize int // 0 means unlimited

	mu      sync.Mutex
	pending []model.RawLog
	timer   *time.Timer
}

func newLineBuffer(window time.Duration, maxSize int) *lineBuffer {
	return &lineBuffer{window: window, maxSize: maxSize}
}

// add appends a line. The first line of a batch starts the flush timer.
// Returns true if the buffer is full and needs flushing.
func (b *lineBuffer) add(raw model.RawLog) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, raw)
	if len(b.pending) == 1 {
		b.timer = time.NewTimer(b.window)
	}
	return b.maxSize > 0 && len(b.pending) >= b.maxSize
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *lineBuffer) flushCh() <-chan time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// take empties the buffer and returns what it held.
func (b *lineBuffer) take() []model.RawLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	raws := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return raws
}

func (b *lineBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Package frameloop drives per-frame callbacks from a ticker, the server-side
// stand-in for a browser's animation frame queue.
package frameloop

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/ports"
)

// DefaultInterval is roughly 60 frames per second.
const DefaultInterval = 16 * time.Millisecond

var _ ports.FrameSource = (*Loop)(nil)

// Loop runs requested callbacks on its own goroutine, one at a time, once per tick.
// A callback requested during a tick runs on the next tick.
type Loop struct {
	mu      sync.Mutex
	next    ports.FrameID
	pending map[ports.FrameID]func(time.Time)
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New starts a loop ticking every interval.
func New(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &Loop{
		pending: make(map[ports.FrameID]func(time.Time)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run(interval)
	return l
}

// RequestFrame schedules fn for the next tick.
func (l *Loop) RequestFrame(fn func(now time.Time)) ports.FrameID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.pending[l.next] = fn
	return l.next
}

// CancelFrame drops a pending callback. Unknown ids are ignored.
func (l *Loop) CancelFrame(id ports.FrameID) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// Pending returns the number of callbacks waiting for a tick.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close stops the loop and waits for the current tick to finish.
func (l *Loop) Close() error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

func (l *Loop) run(interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.tick(now)
		}
	}
}

func (l *Loop) tick(now time.Time) {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.pending
	l.pending = make(map[ports.FrameID]func(time.Time))
	l.mu.Unlock()

	ids := make([]ports.FrameID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		l.invoke(id, batch[id], now)
	}
}

func (l *Loop) invoke(id ports.FrameID, fn func(time.Time), now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("frame callback panicked", "frame", id, "panic", r)
		}
	}()
	fn(now)
}

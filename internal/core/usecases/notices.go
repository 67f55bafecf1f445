package usecases

import (
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
)

const defaultNoticeCapacity = 50

// NoticeBoard keeps the most recent notices of a map view and announces each one on the bus.
type NoticeBoard struct {
	bus *events.Bus
	now func() time.Time

	mu      sync.Mutex
	notices []domain.Notice
	cap     int
}

// NewNoticeBoard creates a NoticeBoard holding up to capacity notices (50 if capacity <= 0).
func NewNoticeBoard(bus *events.Bus, capacity int) *NoticeBoard {
	if capacity <= 0 {
		capacity = defaultNoticeCapacity
	}
	return &NoticeBoard{bus: bus, now: time.Now, cap: capacity}
}

// Notify records a notice and publishes it.
func (b *NoticeBoard) Notify(level domain.NoticeLevel, message string) {
	n := domain.Notice{Level: level, Message: message, At: b.now()}

	b.mu.Lock()
	b.notices = append(b.notices, n)
	if len(b.notices) > b.cap {
		b.notices = b.notices[len(b.notices)-b.cap:]
	}
	b.mu.Unlock()

	if b.bus != nil {
		events.Publish(b.bus, events.NoticePosted, events.NoticeEvent{Notice: n})
	}
}

// Recent returns the retained notices, oldest first.
func (b *NoticeBoard) Recent() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Notice(nil), b.notices...)
}

// Last returns the most recent notice.
func (b *NoticeBoard) Last() (domain.Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == 0 {
		return domain.Notice{}, false
	}
	return b.notices[len(b.notices)-1], true
}

package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
)

// SharingDurations are the accepted location-sharing durations.
var SharingDurations = map[string]time.Duration{
	"1h":        time.Hour,
	"6h":        6 * time.Hour,
	"12h":       12 * time.Hour,
	"24h":       24 * time.Hour,
	"permanent": 0,
}

// LocationSharing toggles family location sharing. Toggles apply locally at once and are
// rolled back if the backend rejects them. A timed share counts down and disables itself.
type LocationSharing struct {
	api       ports.SharingAPI
	bus       *events.Bus
	notifier  ports.Notifier
	publisher ports.EventPublisher
	scheduler ports.ExpiryScheduler
	now       func() time.Time

	mu       sync.Mutex
	state    domain.SharingState
	timer    *time.Timer
	inflight bool
	closed   bool
}

// NewLocationSharing creates a disabled sharing toggle. publisher and scheduler may be nil.
func NewLocationSharing(api ports.SharingAPI, bus *events.Bus, notifier ports.Notifier, publisher ports.EventPublisher, scheduler ports.ExpiryScheduler) *LocationSharing {
	return &LocationSharing{
		api:       api,
		bus:       bus,
		notifier:  notifier,
		publisher: publisher,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// State returns the current sharing state.
func (s *LocationSharing) State() domain.SharingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the time left before a timed share expires, or 0.
func (s *LocationSharing) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Enabled || s.state.ExpiresAt == nil {
		return 0
	}
	if d := s.state.ExpiresAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// Toggle enables or disables sharing. duration is required when enabling.
func (s *LocationSharing) Toggle(ctx context.Context, enabled bool, duration string) (*domain.SharingState, error) {
	if enabled {
		if _, ok := SharingDurations[duration]; !ok {
			return nil, domain.Invalid("duration", "must be one of: 1h 6h 12h 24h permanent")
		}
	} else {
		duration = ""
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("location sharing closed")
	}
	if s.inflight {
		s.mu.Unlock()
		return nil, domain.ErrBusy
	}
	s.inflight = true
	prev := s.state
	optimistic := domain.SharingState{Enabled: enabled, Duration: duration}
	if d := SharingDurations[duration]; enabled && d > 0 {
		exp := s.now().Add(d)
		optimistic.ExpiresAt = &exp
	}
	s.state = optimistic
	s.mu.Unlock()
	s.publish(optimistic, "toggled")

	got, err := s.api.UpdateLocationSharing(ctx, enabled, duration)

	s.mu.Lock()
	s.inflight = false
	if err != nil {
		s.state = prev
		s.mu.Unlock()
		s.publish(prev, "rolled_back")
		s.notify(domain.NoticeError, "Failed to update location sharing")
		return nil, fmt.Errorf("update location sharing: %w", err)
	}
	s.state = *got
	s.arm()
	st := s.state
	s.mu.Unlock()

	s.publish(st, "confirmed")
	if st.Enabled {
		s.notify(domain.NoticeSuccess, "Location sharing enabled")
	} else {
		s.notify(domain.NoticeSuccess, "Location sharing disabled")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSharingChanged(ctx, st); err != nil {
			slog.Warn("publish sharing changed", "error", err)
		}
	}
	if s.scheduler != nil && st.Enabled && st.ExpiresAt != nil {
		if err := s.scheduler.ScheduleSharingExpiry(ctx, *st.ExpiresAt); err != nil {
			slog.Warn("schedule sharing expiry", "error", err)
		}
	}
	return &st, nil
}

// arm (re)starts the expiry countdown for the current state. Callers hold mu.
func (s *LocationSharing) arm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.state.Enabled || s.state.ExpiresAt == nil {
		return
	}
	expiresAt := *s.state.ExpiresAt
	s.timer = time.AfterFunc(expiresAt.Sub(s.now()), func() { s.expire(expiresAt) })
}

func (s *LocationSharing) expire(expiresAt time.Time) {
	s.mu.Lock()
	if s.closed || !s.state.Enabled || s.state.ExpiresAt == nil || !s.state.ExpiresAt.Equal(expiresAt) {
		s.mu.Unlock()
		return
	}
	s.state = domain.SharingState{}
	s.timer = nil
	s.mu.Unlock()

	s.publish(domain.SharingState{}, "expired")
	s.notify(domain.NoticeInfo, "Location sharing expired")
}

// Close stops the countdown.
func (s *LocationSharing) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.closed = true
}

func (s *LocationSharing) publish(st domain.SharingState, reason string) {
	events.Publish(s.bus, events.SharingChanged, events.SharingChangedEvent{State: st, Reason: reason})
}

func (s *LocationSharing) notify(level domain.NoticeLevel, msg string) {
	if s.notifier != nil {
		s.notifier.Notify(level, msg)
	}
}

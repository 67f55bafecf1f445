package backend

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

// newBreaker opens after a 60% failure rate over at least 10 requests in a one-minute
// window, and probes again with up to 3 requests after two minutes.
func newBreaker(name string) *gobreaker.CircuitBreaker[*response] {
	metrics.BackendBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				slog.Warn("backend circuit opening",
					"failures", counts.TotalFailures, "failure_rate", ratio*100)
				return true
			}
			return false
		},
		// Client-side mistakes say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("backend circuit state transition",
				"name", name, "from", stateToString(from), "to", stateToString(to))
			metrics.BackendBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(stateToString(to)))
		},
	})
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerState reports the current circuit state, for readiness checks.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

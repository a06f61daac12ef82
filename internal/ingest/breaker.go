package ingest

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/AngelCh415/seo-monitor/internal/metrics"
)

type BreakerConfig struct {
	Failures uint32
	Cooldown time.Duration
}

// newBreaker opens after cfg.Failures consecutive failures and stays open for
// cfg.Cooldown. ErrNotConfigured never counts as a failure.
func newBreaker(source string, cfg BreakerConfig, log *slog.Logger) *gobreaker.CircuitBreaker[any] {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotConfigured)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("source breaker state change", slog.String("source", name), slog.String("from", from.String()), slog.String("to", to.String()))
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.BreakerState.WithLabelValues(name).Set(open)
		},
	})
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

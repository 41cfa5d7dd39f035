package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit around a provider.
type BreakerSettings struct {
	// ConsecutiveFailures trips the circuit (default 3).
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open (default 60s).
	OpenTimeout time.Duration
}

type guardedModel struct {
	next Model
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker guards next with a circuit breaker. While open, Generate fails
// fast with ErrUnavailable. Cancelled requests do not count as failures.
func WithBreaker(next Model, s BreakerSettings) Model {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 60 * time.Second
	}
	st := gobreaker.Settings{
		Name:     "ai-" + next.Name(),
		Interval: 60 * time.Second,
		Timeout:  s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &guardedModel{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (g *guardedModel) Name() string { return g.next.Name() }

func (g *guardedModel) Generate(ctx context.Context, req Request) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrUnavailable
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// Package resilience bounds calls to external services with a timeout, one
// retry, a circuit breaker and an optional rate limiter.
package resilience

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fabfab/estate-agent/apperr"
)

type Settings struct {
	Name    string
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	Backoff time.Duration

	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	// Breaker trips after MinRequests calls with at least FailureRatio failures
	// inside Interval, and stays open for OpenTimeout.
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	OpenTimeout  time.Duration
}

type Policy struct {
	settings Settings
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   *log.Logger
}

func New(settings Settings, logger *log.Logger) *Policy {
	if logger == nil {
		logger = log.Default()
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MinRequests == 0 {
		settings.MinRequests = 5
	}
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = 0.6
	}
	if settings.Interval <= 0 {
		settings.Interval = 30 * time.Second
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	p := &Policy{settings: settings, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	if settings.RequestsPerSecond > 0 {
		burst := settings.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), burst)
	}
	return p
}

// Do runs fn under the policy. Failures come back as *apperr.ExternalServiceError
// tagged with op and query.
func Do[T any](ctx context.Context, p *Policy, op, query string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		value, err := fn(ctx)
		if err != nil {
			return zero, apperr.External("external", op, query, err)
		}
		return value, nil
	}

	var lastErr error
	for attempt := 0; attempt <= p.settings.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.settings.Backoff); err != nil {
				lastErr = err
				break
			}
		}

		value, err := once(ctx, p, fn)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !transient(ctx, err) {
			break
		}
		p.logger.Printf("%s %s attempt %d failed for %q: %v", p.settings.Name, op, attempt+1, query, err)
	}

	return zero, apperr.External(p.settings.Name, op, query, lastErr)
}

func once[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	callCtx := ctx
	if p.settings.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.settings.Timeout)
		defer cancel()
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		v, err := fn(callCtx)
		return v, err
	})
	if err != nil {
		return zero, err
	}
	value, _ := result.(T)
	return value, nil
}

// Name is the external service the policy guards.
func (p *Policy) Name() string {
	if p == nil {
		return ""
	}
	return p.settings.Name
}

// State exposes the breaker state for health reporting.
func (p *Policy) State() string {
	if p == nil {
		return gobreaker.StateClosed.String()
	}
	return p.breaker.State().String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

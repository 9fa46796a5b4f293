// Package resilience runs backend calls with bounded retries, exponential
// backoff and a switch from the primary to the fallback backend once the
// primary has failed a configured number of times.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/avast/retry-go"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/metrics"
	"github.com/valpere/cvtran/internal/translator"
)

type Role int

const (
	Primary Role = iota
	Fallback
)

func (r Role) String() string {
	if r == Fallback {
		return "fallback"
	}
	return "primary"
}

// Policy holds the retry tuning knobs.
type Policy struct {
	MaxAttempts   uint          `mapstructure:"max_attempts" validate:"min=1"`
	BaseDelay     time.Duration `mapstructure:"base_delay" validate:"min=0"`
	FallbackAfter uint          `mapstructure:"fallback_after"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     500 * time.Millisecond,
		FallbackAfter: 2,
	}
}

// State describes one attempt of a retry sequence: how many attempts came
// before it, which backend it uses, and how long the controller waits if it
// fails with a retryable error.
type State struct {
	Attempt uint
	Role    Role
	Delay   time.Duration
}

// Operation is one attempt against svc.
type Operation func(ctx context.Context, svc translator.TranslationService, st State) (string, error)

type Controller struct {
	policy   Policy
	primary  translator.TranslationService
	fallback translator.TranslationService
	metrics  *metrics.Metrics
}

// NewController builds a controller. fallback may be nil, in which case
// every attempt uses primary.
func NewController(policy Policy, primary, fallback translator.TranslationService, m *metrics.Metrics) *Controller {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	return &Controller{
		policy:   policy,
		primary:  primary,
		fallback: fallback,
		metrics:  m,
	}
}

func (c *Controller) Primary() translator.TranslationService {
	return c.primary
}

// StateFor returns the state of the attempt with the given zero-based index.
func (c *Controller) StateFor(attempt uint) State {
	st := State{Attempt: attempt, Role: Primary, Delay: backoff(c.policy.BaseDelay, attempt)}
	if c.fallback != nil && attempt >= c.policy.FallbackAfter {
		st.Role = Fallback
	}
	return st
}

// backoff is base << n with the shift capped the way retry.BackOffDelay
// caps it, so the result never overflows a time.Duration.
func backoff(base time.Duration, n uint) time.Duration {
	if base <= 0 {
		return 0
	}
	maxShift := uint(62 - (bits.Len64(uint64(base)) - 1))
	return base << min(n, maxShift)
}

func (c *Controller) backend(r Role) translator.TranslationService {
	if r == Fallback {
		return c.fallback
	}
	return c.primary
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. A non-retryable error is returned unchanged. Running
// out of attempts returns an error wrapping both ErrRetriesExhausted and
// the last failure.
func (c *Controller) Do(ctx context.Context, op Operation) (string, error) {
	var (
		result  string
		lastErr error
		attempt uint
		logger  = slog.Default()
	)

	err := retry.Do(
		func() error {
			st := c.StateFor(attempt)
			svc := c.backend(st.Role)
			attempt++

			out, err := op(ctx, svc, st)
			if err != nil {
				lastErr = err
				if !translator.IsRetryable(err) {
					c.metrics.BackendAttempt(svc.Name(), "fatal_error")
					return retry.Unrecoverable(err)
				}
				c.metrics.BackendAttempt(svc.Name(), "retryable_error")
				return err
			}
			c.metrics.BackendAttempt(svc.Name(), "success")
			result = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.policy.MaxAttempts),
		retry.Delay(c.policy.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= c.policy.MaxAttempts || !translator.IsRetryable(err) {
				return
			}
			next := c.StateFor(n + 1)
			logger.Info("Retrying backend call",
				"attempt", n+1,
				"backoff", c.StateFor(n).Delay,
				"backend", c.backend(next.Role).Name(),
				"role", next.Role.String(),
				"lastError", err)
		}),
	)
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if lastErr == nil {
		return "", err
	}
	if !translator.IsRetryable(lastErr) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w after %d attempts: %w", internal.ErrRetriesExhausted, attempt, lastErr)
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	return errors.Is(err, internal.ErrRetriesExhausted)
}

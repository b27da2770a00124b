// Package breaker implements the failure-containment state machine wrapped
// around the pipeline's volatile dependencies: the embedding/generation API,
// the hybrid search store and each tenant's chat connector.
//
// It differs from the gobreaker-based resilience.Executor on purpose: trip
// decisions here use an absolute failure count inside a sliding time window,
// rejections carry a retry-after hint, and operators get manual force-open/
// force-close escapes. Those semantics are what the per-tenant isolation
// story needs and are not expressible with gobreaker's ratio model.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold failures inside MonitorWindow trip the breaker.
	FailureThreshold int
	MonitorWindow    time.Duration
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// SuccessThreshold consecutive half-open successes close the breaker.
	SuccessThreshold int
	// HalfOpenMaxAttempts bounds concurrent half-open trial calls.
	HalfOpenMaxAttempts int
}

func (c Config) normalize() Config {
	out := c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.MonitorWindow <= 0 {
		out.MonitorWindow = 30 * time.Second
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 30 * time.Second
	}
	if out.SuccessThreshold <= 0 {
		out.SuccessThreshold = 1
	}
	if out.HalfOpenMaxAttempts <= 0 {
		out.HalfOpenMaxAttempts = 1
	}
	return out
}

// OpenError is the fast-fail rejection returned without invoking the
// operation. It is distinguishable from ordinary operation errors so callers
// can route to a fallback instead of treating the dependency as merely slow.
type OpenError struct {
	Service    string
	RetryAfter time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s, retry after %s", e.Service, e.RetryAfter.UTC().Format(time.RFC3339))
}

type failure struct {
	at      time.Time
	message string
}

// Breaker guards one external dependency instance. All state transitions
// happen under the mutex; the wrapped operation itself runs unlocked.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu               sync.Mutex
	state            State
	failures         []failure
	successCount     int
	halfOpenInFlight int
	lastFailureTime  time.Time
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg.normalize(),
		now:   time.Now,
		state: StateClosed,
	}
}

// Execute runs the operation through the breaker. When the breaker is open
// and the reset timeout has not elapsed it fails immediately with *OpenError
// and does not invoke the operation.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	wasHalfOpen, err := b.admit()
	if err != nil {
		return err
	}

	opErr := op(ctx)
	b.record(wasHalfOpen, opErr)
	return opErr
}

// admit decides whether a call may proceed and reserves a half-open slot
// when probing.
func (b *Breaker) admit() (halfOpen bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) < b.cfg.ResetTimeout {
			return false, b.openErrorLocked()
		}
		b.transitionLocked(StateHalfOpen)
		b.successCount = 0
		b.halfOpenInFlight = 1
		return true, nil

	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxAttempts {
			return false, b.openErrorLocked()
		}
		b.halfOpenInFlight++
		return true, nil

	default:
		return false, nil
	}
}

func (b *Breaker) record(wasHalfOpen bool, opErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if wasHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if opErr == nil {
		b.onSuccessLocked()
		return
	}
	b.onFailureLocked(opErr)
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failures = nil
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.resetLocked()
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) onFailureLocked(opErr error) {
	now := b.now()
	b.lastFailureTime = now

	switch b.state {
	case StateHalfOpen:
		// No partial credit: one failed probe reopens immediately.
		b.successCount = 0
		b.transitionLocked(StateOpen)

	case StateClosed:
		b.failures = append(b.failures, failure{at: now, message: opErr.Error()})
		b.purgeWindowLocked(now)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

// purgeWindowLocked drops failure records older than the monitor window so
// the list only ever holds entries inside the window at evaluation time.
func (b *Breaker) purgeWindowLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitorWindow)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.at.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept
}

func (b *Breaker) openErrorLocked() error {
	return &OpenError{
		Service:    b.name,
		RetryAfter: b.lastFailureTime.Add(b.cfg.ResetTimeout),
	}
}

func (b *Breaker) resetLocked() {
	b.failures = nil
	b.successCount = 0
	b.halfOpenInFlight = 0
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	slog.Warn("circuit_breaker_state_change",
		"service", b.name,
		"from", from.String(),
		"to", to.String(),
	)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }

// ForceOpen is an operator escape: reject all calls until ForceClose or the
// reset timeout, bypassing normal thresholds.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureTime = b.now()
	b.transitionLocked(StateOpen)
}

// ForceClose is an operator escape: resume normal operation immediately and
// discard accumulated failure state.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	b.transitionLocked(StateClosed)
}

// IsOpen reports whether err is a breaker rejection (as opposed to an
// ordinary operation failure).
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// WithFallback executes op through the breaker and, only on an open-circuit
// rejection, runs the fallback instead of propagating the rejection.
// Ordinary operation errors pass through untouched.
func WithFallback(ctx context.Context, b *Breaker, op, fallback func(context.Context) error) error {
	err := b.Execute(ctx, op)
	if err == nil {
		return nil
	}
	if IsOpen(err) && fallback != nil {
		return fallback(ctx)
	}
	return err
}

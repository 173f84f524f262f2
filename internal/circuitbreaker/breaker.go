// Package circuitbreaker implements a per-agent three-state circuit
// breaker (CLOSED/OPEN/HALF_OPEN), grounded on the teacher's
// pkg/ratelimit/{limiter,types}.go (mutex-guarded map, Check/Record split)
// generalized from a rate limiter to a failure breaker, and on
// original_source's agents/orchestration/circuit_breaker.py for the exact
// transition semantics.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// OPEN (or HALF_OPEN with its probe budget exhausted) and no fallback was
// supplied.
var ErrCircuitOpen = errors.New("circuitbreaker: circuit is open")

// State is one of the three circuit states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Stats are the per-agent counters backing state transitions.
type Stats struct {
	Failures        int
	Successes       int
	TotalCalls      int
	LastFailureTime time.Time
	LastSuccessTime time.Time
}

// Config tunes the breaker. Zero-value Config resolves to the defaults
// named in SPEC_FULL.md §4.7.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second, HalfOpenMaxCalls: 3}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// Clock is injected so tests can control the passage of time instead of
// sleeping on the OPEN timeout, matching the teacher's testutils pattern
// of injectable clocks rather than real sleeps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// TransitionObserver is notified on every state transition, used to drive
// metrics and logging (SPEC_FULL.md §4.7) without the breaker itself
// depending on the metrics/logging packages.
type TransitionObserver func(agentID string, from, to State)

type circuit struct {
	state         State
	stats         Stats
	halfOpenCalls int
}

// Breaker is a thread-safe, per-agent-id circuit breaker. It never holds
// its lock across a wrapped call (§4.7: "must not hold locks across the
// wrapped call").
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	circuits map[string]*circuit
	onTransition TransitionObserver
}

// New creates a Breaker. A nil clock uses the real wall clock.
func New(cfg Config, clock Clock) *Breaker {
	if clock == nil {
		clock = realClock{}
	}
	return &Breaker{cfg: cfg.withDefaults(), clock: clock, circuits: make(map[string]*circuit)}
}

// OnTransition registers a callback for state transitions. Not safe to call
// concurrently with Call; intended to be set once at construction time.
func (b *Breaker) OnTransition(f TransitionObserver) { b.onTransition = f }

func (b *Breaker) circuitFor(agentID string) *circuit {
	c, ok := b.circuits[agentID]
	if !ok {
		c = &circuit{state: Closed}
		b.circuits[agentID] = c
	}
	return c
}

// State returns the current state for agentID (CLOSED if never seen).
func (b *Breaker) State(agentID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(agentID).state
}

// Stats returns a copy of the current stats for agentID.
func (b *Breaker) Stats(agentID string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(agentID).stats
}

// Call runs fn through the breaker for agentID. If the circuit rejects the
// call and fallback is non-nil, fallback runs instead and its result is
// returned (no error). If fallback is nil, ErrCircuitOpen is returned.
func (b *Breaker) Call(ctx context.Context, agentID string, fn func(context.Context) (any, error), fallback func(context.Context) (any, error)) (any, error) {
	allowed, err := b.admit(agentID)
	if err != nil {
		if fallback != nil {
			return fallback(ctx)
		}
		return nil, err
	}
	_ = allowed

	b.mu.Lock()
	b.circuitFor(agentID).stats.TotalCalls++
	b.mu.Unlock()

	result, err := fn(ctx)
	if err != nil {
		b.onFailure(agentID)
		if fallback != nil {
			return fallback(ctx)
		}
		return nil, err
	}
	b.onSuccess(agentID)
	return result, nil
}

// admit decides whether a call may proceed, performing the OPEN->HALF_OPEN
// timeout check and the HALF_OPEN probe-budget check. Returns
// ErrCircuitOpen when the call must be rejected.
func (b *Breaker) admit(agentID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(agentID)
	switch c.state {
	case Open:
		if !c.stats.LastFailureTime.IsZero() && b.clock.Now().Sub(c.stats.LastFailureTime) >= b.cfg.Timeout {
			b.transition(agentID, c, HalfOpen)
			c.halfOpenCalls = 0
		} else {
			return false, ErrCircuitOpen
		}
		fallthrough
	case HalfOpen:
		if c.state == HalfOpen {
			if c.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
				return false, ErrCircuitOpen
			}
			c.halfOpenCalls++
		}
	}
	return true, nil
}

func (b *Breaker) onSuccess(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(agentID)
	c.stats.Successes++
	c.stats.LastSuccessTime = b.clock.Now()

	if c.state == HalfOpen && c.stats.Successes >= b.cfg.SuccessThreshold {
		b.transition(agentID, c, Closed)
		c.stats.Failures = 0
		c.halfOpenCalls = 0
	}
}

func (b *Breaker) onFailure(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(agentID)
	c.stats.Failures++
	c.stats.LastFailureTime = b.clock.Now()
	c.stats.Successes = 0

	switch c.state {
	case Closed:
		if c.stats.Failures >= b.cfg.FailureThreshold {
			b.transition(agentID, c, Open)
		}
	case HalfOpen:
		b.transition(agentID, c, Open)
		c.halfOpenCalls = 0
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(agentID string, c *circuit, to State) {
	from := c.state
	c.state = to
	if b.onTransition != nil {
		b.onTransition(agentID, from, to)
	}
}

// Reset forces agentID back to CLOSED with fresh stats.
func (b *Breaker) Reset(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuits[agentID] = &circuit{state: Closed}
}

// Summary returns a snapshot of every agent's state and stats, for the
// /v1/agents/{agentId}/circuit observability endpoint.
func (b *Breaker) Summary() map[string]struct {
	State State
	Stats Stats
} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct {
		State State
		Stats Stats
	}, len(b.circuits))
	for id, c := range b.circuits {
		out[id] = struct {
			State State
			Stats Stats
		}{State: c.state, Stats: c.stats}
	}
	return out
}

func (s State) String() string { return string(s) }

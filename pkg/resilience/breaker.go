// Package resilience holds the failure-handling helpers shared by the
// services: a circuit breaker guarding the result cache, exponential backoff
// for startup connections and a deadline wrapper for blocking reads.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Breaker.Do while calls are being rejected.
var ErrOpen = errors.New("circuit open")

// State is the phase a Breaker is in.
type State int32

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
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// BreakerConfig tunes a Breaker. OnStateChange runs with the breaker lock
// held and must not call back into it.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before a single probe.
	Cooldown      time.Duration
	OnStateChange func(name string, from, to State)
}

// BreakerCounts is a point-in-time view of a Breaker.
type BreakerCounts struct {
	State    State `json:"-"`
	Failures int   `json:"consecutive_failures"`
	Opened   int64 `json:"times_opened"`
	Rejected int64 `json:"rejected"`
}

// Breaker stops calling a failing dependency for a cooldown period after
// Threshold consecutive failures, then lets one probe through.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	opened   int64
	rejected int64
}

// NewBreaker returns a closed Breaker. Zero config values default to five
// failures and a thirty second cooldown.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do runs fn unless the circuit is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err)
	return err
}

// State returns the current phase.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the breaker's counters.
func (b *Breaker) Counts() BreakerCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerCounts{
		State:    b.state,
		Failures: b.failures,
		Opened:   b.opened,
		Rejected: b.rejected,
	}
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			b.rejected++
			return fmt.Errorf("%w: %s (retry in %v)", ErrOpen, b.name, wait.Round(time.Millisecond))
		}
		b.setState(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probing {
			b.rejected++
			return fmt.Errorf("%w: %s (probe in flight)", ErrOpen, b.name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	probe := b.state == StateHalfOpen
	if probe {
		b.probing = false
	}
	if err == nil {
		b.failures = 0
		if probe {
			b.setState(StateClosed)
			b.logger.Info("circuit closed")
		}
		return
	}
	b.failures++
	if !probe && b.failures < b.cfg.Threshold {
		return
	}
	if b.state != StateOpen {
		b.opened++
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
	}
	b.openedAt = b.now()
	b.setState(StateOpen)
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

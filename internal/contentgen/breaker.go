package contentgen

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // requests flow
	StateOpen                  // requests rejected until the cool-down ends
	StateHalfOpen              // probing whether the service recovered
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
	return "unknown"
}

// Breaker stops calls to a failing service for a cool-down period.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time

	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Cooldown         time.Duration // open period before probing
	OnStateChange    func(from, to State)
	Now              func() time.Time
}

// NewBreaker creates a breaker with the given thresholds.
func NewBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		FailureThreshold: max(failureThreshold, 1),
		SuccessThreshold: max(successThreshold, 1),
		Cooldown:         cooldown,
		Now:              time.Now,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed, moving an open breaker to
// half-open once the cool-down has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.Now().Sub(b.lastFailure) >= b.Cooldown {
			b.setState(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) setState(to State) {
	if b.OnStateChange != nil && b.state != to {
		b.OnStateChange(b.state, to)
	}
	b.state = to
}

package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type breaker struct {
	state     State
	failures  int64
	successes int64
	openedAt  time.Time
}

// CircuitBreaker counts consecutive failures per service name. After
// failureThreshold failures the circuit opens for timeout; the first call
// after that runs half-open and successThreshold successes close it again.
type CircuitBreaker struct {
	mu               sync.Mutex
	services         map[string]*breaker
	failureThreshold int64
	successThreshold int64
	timeout          time.Duration
	now              func() time.Time
}

func New(failureThreshold, successThreshold int64, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		services:         make(map[string]*breaker),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) get(serviceName string) *breaker {
	b, ok := cb.services[serviceName]
	if !ok {
		b = &breaker{}
		cb.services[serviceName] = b
	}
	return b
}

// State reports the current state for serviceName.
func (cb *CircuitBreaker) State(serviceName string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b := cb.get(serviceName)
	if b.state == StateOpen && cb.now().Sub(b.openedAt) >= cb.timeout {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs action unless the circuit for serviceName is open.
func (cb *CircuitBreaker) Execute(serviceName string, action func() error) error {
	cb.mu.Lock()
	b := cb.get(serviceName)
	if b.state == StateOpen {
		if cb.now().Sub(b.openedAt) < cb.timeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	cb.mu.Unlock()

	opErr := action()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if opErr != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= cb.failureThreshold {
			b.state = StateOpen
			b.openedAt = cb.now()
			b.failures = 0
		}
		return opErr
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= cb.successThreshold {
			b.state = StateClosed
			b.successes = 0
		}
	}
	return nil
}

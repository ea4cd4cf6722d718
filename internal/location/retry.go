package location

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrRetriesExhausted is returned once the attempt budget is spent
	ErrRetriesExhausted = errors.New("maximum retry attempts reached")
	// ErrRetryInProgress is returned when a retry is already running
	ErrRetryInProgress = errors.New("retry already in progress")
)

// DefaultRetryDelays is the backoff schedule between detection retries
var DefaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// DefaultMaxRetryAttempts bounds retries per detection session
const DefaultMaxRetryAttempts = 3

// RetryManager paces user-triggered detection retries
type RetryManager struct {
	mu          sync.Mutex
	maxAttempts int
	delays      []time.Duration
	attempts    int
	retrying    bool
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryManager returns a manager with the default schedule
func NewRetryManager() *RetryManager {
	return &RetryManager{
		maxAttempts: DefaultMaxRetryAttempts,
		delays:      DefaultRetryDelays,
		sleep:       sleepContext,
	}
}

// WithSleep replaces the delay function, mainly for tests
func (m *RetryManager) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *RetryManager {
	m.sleep = sleep
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CanRetry reports whether another attempt is allowed right now
func (m *RetryManager) CanRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts < m.maxAttempts && !m.retrying
}

// Attempts is the number of retries started so far
func (m *RetryManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Remaining is how many retries are left in the budget
func (m *RetryManager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.maxAttempts-m.attempts, 0)
}

// IsRetrying reports whether a retry is currently waiting or running
func (m *RetryManager) IsRetrying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrying
}

// NextDelay is the wait the next retry will incur
func (m *RetryManager) NextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delayFor(m.attempts)
}

func (m *RetryManager) delayFor(attempt int) time.Duration {
	if len(m.delays) == 0 {
		return 0
	}
	if attempt >= len(m.delays) {
		return m.delays[len(m.delays)-1]
	}
	return m.delays[attempt]
}

// PerformRetry waits out the backoff for this attempt, then runs op. The
// attempt counts against the budget whether or not op succeeds.
func (m *RetryManager) PerformRetry(ctx context.Context, op func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.retrying {
		m.mu.Unlock()
		return ErrRetryInProgress
	}
	if m.attempts >= m.maxAttempts {
		m.mu.Unlock()
		return ErrRetriesExhausted
	}
	delay := m.delayFor(m.attempts)
	m.attempts++
	m.retrying = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.retrying = false
		m.mu.Unlock()
	}()

	if err := m.sleep(ctx, delay); err != nil {
		return err
	}
	return op(ctx)
}

// Reset clears the attempt counter
func (m *RetryManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 0
}

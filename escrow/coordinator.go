package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultWaitBudget       = 3 * time.Second
	defaultOutcomeTTL       = 24 * time.Hour
	defaultOutcomeCapacity  = 4096
	outcomeSweepBatchBudget = 128
)

// Coordinator guarantees at most one in-flight transition per escrow id and
// replays outcomes for retried idempotency tokens. Leases are cooperative: a
// second caller for the same id waits up to the configured budget before
// failing with ErrConcurrentModification. No cross-id ordering is provided.
type Coordinator struct {
	waitBudget time.Duration
	ttl        time.Duration
	capacity   int
	nowFn      func() time.Time

	mu       sync.Mutex
	leases   map[string]*lease
	outcomes map[string]*outcome
}

type lease struct {
	ch   chan struct{}
	refs int
}

type outcome struct {
	requestHash string
	result      *Transaction
	err         error
	storedAt    time.Time
	expiresAt   time.Time
}

// CoordinatorOption customises coordinator behaviour.
type CoordinatorOption func(*Coordinator)

// WithWaitBudget bounds how long a caller waits to acquire per-id exclusivity.
func WithWaitBudget(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.waitBudget = d
		}
	}
}

// WithOutcomeTTL bounds how long replayed outcomes are retained.
func WithOutcomeTTL(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithOutcomeCapacity bounds the number of retained token outcomes.
func WithOutcomeCapacity(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithNowFunc overrides the time source, primarily used in tests.
func WithNowFunc(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.nowFn = now
		}
	}
}

// NewCoordinator constructs a coordinator with bounded wait, TTL and capacity.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		waitBudget: defaultWaitBudget,
		ttl:        defaultOutcomeTTL,
		capacity:   defaultOutcomeCapacity,
		nowFn:      time.Now,
		leases:     make(map[string]*lease),
		outcomes:   make(map[string]*outcome),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire takes the exclusive lease for the escrow id. The returned release
// function must be called exactly once. Contention past the wait budget or a
// cancelled context yields ErrConcurrentModification.
func (c *Coordinator) Acquire(ctx context.Context, id string) (func(), error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty escrow id", ErrInvalidInput)
	}
	c.mu.Lock()
	entry, ok := c.leases[id]
	if !ok {
		entry = &lease{ch: make(chan struct{}, 1)}
		entry.ch <- struct{}{}
		c.leases[id] = entry
	}
	entry.refs++
	c.mu.Unlock()

	timer := time.NewTimer(c.waitBudget)
	defer timer.Stop()

	select {
	case <-entry.ch:
		var once sync.Once
		release := func() {
			once.Do(func() {
				entry.ch <- struct{}{}
				c.unref(id, entry)
			})
		}
		return release, nil
	case <-ctx.Done():
		c.unref(id, entry)
		return nil, fmt.Errorf("%w: lease wait cancelled for %s", ErrConcurrentModification, id)
	case <-timer.C:
		c.unref(id, entry)
		return nil, fmt.Errorf("%w: escrow %s is busy", ErrConcurrentModification, id)
	}
}

func (c *Coordinator) unref(id string, entry *lease) {
	c.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(c.leases, id)
	}
	c.mu.Unlock()
}

// LookupOutcome replays a previously stored outcome for the token. A token
// reused with a different request hash yields ErrIdempotencyMismatch.
func (c *Coordinator) LookupOutcome(token, requestHash string) (*Transaction, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	entry, ok := c.outcomes[token]
	if !ok || now.After(entry.expiresAt) {
		return nil, false, nil
	}
	if entry.requestHash != requestHash {
		return nil, true, ErrIdempotencyMismatch
	}
	return entry.result.Clone(), true, entry.err
}

// StoreOutcome retains the outcome for token replay. Retryable failures are
// not retained: the caller is expected to resubmit with the same token.
func (c *Coordinator) StoreOutcome(token, requestHash string, result *Transaction, err error) {
	if token == "" {
		return
	}
	if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrUnavailable) {
		return
	}
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	if len(c.outcomes) >= c.capacity {
		c.evictOldestLocked()
	}
	c.outcomes[token] = &outcome{
		requestHash: requestHash,
		result:      result.Clone(),
		err:         err,
		storedAt:    now,
		expiresAt:   now.Add(c.ttl),
	}
}

func (c *Coordinator) sweepLocked(now time.Time) {
	swept := 0
	for token, entry := range c.outcomes {
		if now.After(entry.expiresAt) {
			delete(c.outcomes, token)
		}
		swept++
		if swept >= outcomeSweepBatchBudget {
			return
		}
	}
}

func (c *Coordinator) evictOldestLocked() {
	var oldestToken string
	var oldestAt time.Time
	for token, entry := range c.outcomes {
		if oldestToken == "" || entry.storedAt.Before(oldestAt) {
			oldestToken = token
			oldestAt = entry.storedAt
		}
	}
	if oldestToken != "" {
		delete(c.outcomes, oldestToken)
	}
}

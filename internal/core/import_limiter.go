package core

// import_limiter.go implements concurrency control for import runs.
//
// A school runs at most one import at a time: matricule probing and
// guardian reuse depend on earlier rows being visible, which two runs on
// the same tenant would break. Across schools a semaphore caps parallel
// runs; when all slots are occupied, new requests wait up to maxWait
// before failing with ErrTooManyImports.
//
// WaitForDrain blocks until all active imports complete, for graceful
// shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// ImportLimiter serializes imports per tenant and caps them globally.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.Mutex
	tenants map[string]struct{}
	active  int
}

// NewImportLimiter creates a limiter that allows at most maxConcurrent
// simultaneous imports across tenants.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		tenants:   make(map[string]struct{}),
	}
}

// Acquire reserves the tenant's import slot. It returns
// ErrImportInProgress at once when the tenant already holds one, and
// ErrTooManyImports when no global slot frees up within maxWait.
// The caller MUST call Release(tenantID) after a nil return.
func (l *ImportLimiter) Acquire(ctx context.Context, tenantID string) error {
	l.mu.Lock()
	if _, busy := l.tenants[tenantID]; busy {
		l.mu.Unlock()
		return ErrImportInProgress
	}
	l.tenants[tenantID] = struct{}{}
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		l.forget(tenantID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// Release frees the slot acquired for tenantID.
// Must be called exactly once for each successful Acquire.
func (l *ImportLimiter) Release(tenantID string) {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	l.forget(tenantID)

	<-l.semaphore
}

func (l *ImportLimiter) forget(tenantID string) {
	l.mu.Lock()
	delete(l.tenants, tenantID)
	l.mu.Unlock()
}

// IsActive reports whether tenantID holds or waits for a slot.
func (l *ImportLimiter) IsActive(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tenants[tenantID]
	return ok
}

// ActiveCount returns the number of running imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Available returns the number of free global slots.
func (l *ImportLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active imports complete or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ImportLimiterStatus is a snapshot of the limiter's state.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	return ImportLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}

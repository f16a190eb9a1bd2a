// Package gateway implements the multi-tenant chat gateway built on top of
// the provider adapters: per-upstream throttling, session lifecycle, the
// SSE action tracker, the chat orchestrator's round loop, and the HTTP
// surface that binds them together.
package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultUpstreamConcurrency is the default number of in-flight requests
// permitted per upstream id when a Throttler is created without explicit
// per-upstream limits.
const DefaultUpstreamConcurrency = 4

// Throttler is a per-upstream-id concurrency limiter with a FIFO wait
// queue, grounded on golang.org/x/sync/semaphore's weighted semaphore
// (already a teacher go.mod dependency, carried for exactly this kind of
// bounded-concurrency gate around provider HTTP calls). It does not retry;
// callers see the upstream's error verbatim. Cancellation releases the
// permit even if the request never issues.
type Throttler struct {
	mu          sync.Mutex
	limits      map[string]int64
	defaultCap  int64
	semaphores  map[string]*semaphore.Weighted
	inFlight    map[string]int64
}

// NewThrottler creates a Throttler. limits maps upstream id to its maximum
// concurrent in-flight request count; upstream ids absent from limits fall
// back to defaultCap (DefaultUpstreamConcurrency if <= 0).
func NewThrottler(limits map[string]int64, defaultCap int64) *Throttler {
	if defaultCap <= 0 {
		defaultCap = DefaultUpstreamConcurrency
	}
	t := &Throttler{
		limits:     make(map[string]int64, len(limits)),
		defaultCap: defaultCap,
		semaphores: make(map[string]*semaphore.Weighted),
		inFlight:   make(map[string]int64),
	}
	for k, v := range limits {
		t.limits[k] = v
	}
	return t
}

func (t *Throttler) semaphoreFor(upstreamID string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.semaphores[upstreamID]; ok {
		return s
	}
	cap := t.limits[upstreamID]
	if cap <= 0 {
		cap = t.defaultCap
	}
	s := semaphore.NewWeighted(cap)
	t.semaphores[upstreamID] = s
	return s
}

// ThrottledRequest acquires a permit for upstreamID (blocking in FIFO order
// behind any other waiters, bounded by ctx), runs fn, and always releases
// the permit afterward — including when ctx is cancelled before fn ever
// runs, so a cancelled caller never leaks a slot.
func (t *Throttler) ThrottledRequest(ctx context.Context, upstreamID string, fn func(ctx context.Context) error) error {
	sem := t.semaphoreFor(upstreamID)

	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	t.mu.Lock()
	t.inFlight[upstreamID]++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight[upstreamID]--
		t.mu.Unlock()
		sem.Release(1)
	}()

	return fn(ctx)
}

// InFlight returns the number of requests currently holding a permit for
// upstreamID, for status/metrics reporting.
func (t *Throttler) InFlight(upstreamID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight[upstreamID]
}

// SetLimit overrides the concurrency cap for an upstream id. It only takes
// effect on the next semaphore creation for that id — an upstream already
// in use keeps its existing semaphore until the process restarts, matching
// the read-only config-snapshot model of §5 (config changes are refreshed
// externally, not hot-swapped mid-request).
func (t *Throttler) SetLimit(upstreamID string, limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[upstreamID] = limit
}

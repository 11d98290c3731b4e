package sync

import (
	"sync"
	"time"
)

// Progress weights per size class. Page counts are unknown up front, so
// the estimate weights whole collections and lets a partially-synced
// collection approach its weight asymptotically as pages land.
const (
	weightSmall = 1.0
	weightLarge = 5.0

	// maxFraction caps the estimate below 1.0 until the session
	// actually completes.
	maxFraction = 0.95
)

func (c Collection) weight() float64 {
	if c.Size == SizeLarge {
		return weightLarge
	}
	return weightSmall
}

// Estimator turns walk position into a bounded completion fraction.
// Safe for concurrent reads while the engine advances it.
type Estimator struct {
	mu      sync.Mutex
	total   float64
	done    float64
	partial float64
}

// NewEstimator sizes the estimator for one role-filtered walk.
func NewEstimator(cols []Collection) *Estimator {
	var total float64
	for _, c := range cols {
		total += c.weight()
	}
	return &Estimator{total: total}
}

// PageDone records one applied page of the current collection. With no
// page total to divide by, the collection's contribution converges on
// its weight: n pages in count as n/(n+1) of it.
func (e *Estimator) PageDone(c Collection, pagesApplied int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pagesApplied < 0 {
		pagesApplied = 0
	}
	e.partial = c.weight() * float64(pagesApplied) / float64(pagesApplied+1)
}

// CollectionDone folds the current collection's full weight into the
// completed total.
func (e *Estimator) CollectionDone(c Collection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done += c.weight()
	e.partial = 0
}

// Fraction returns the current estimate, clamped to [0, 0.95]. It is
// monotonic over a session because done only grows and partial resets
// exactly when its collection's weight moves into done.
func (e *Estimator) Fraction() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total <= 0 {
		return 0
	}
	f := (e.done + e.partial) / e.total
	if f < 0 {
		return 0
	}
	if f > maxFraction {
		return maxFraction
	}
	return f
}

// throttle rate-limits progress publishes. Collection boundaries bypass
// it so observers never miss a transition.
type throttle struct {
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

func (t *throttle) allow(now time.Time) bool {
	if t.interval <= 0 {
		return true
	}
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

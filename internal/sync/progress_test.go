package sync

import (
	"testing"
	"time"
)

func TestEstimatorFraction(t *testing.T) {
	cols := []Collection{
		{Name: "a", Size: SizeSmall},
		{Name: "b", Size: SizeLarge},
	}
	e := NewEstimator(cols)

	if f := e.Fraction(); f != 0 {
		t.Errorf("initial Fraction() = %v, want 0", f)
	}

	e.CollectionDone(cols[0])
	small := e.Fraction()
	if small <= 0 || small >= 1 {
		t.Errorf("Fraction() after small collection = %v, want in (0,1)", small)
	}

	// Partial pages of the large collection approach but never reach
	// its full weight.
	e.PageDone(cols[1], 1)
	one := e.Fraction()
	e.PageDone(cols[1], 10)
	ten := e.Fraction()
	if !(small < one && one < ten && ten < 1) {
		t.Errorf("partial fractions not increasing: %v %v %v", small, one, ten)
	}

	e.CollectionDone(cols[1])
	if f := e.Fraction(); f != maxFraction {
		t.Errorf("full walk Fraction() = %v, want capped at %v", f, maxFraction)
	}
}

func TestEstimatorEmptyWalk(t *testing.T) {
	e := NewEstimator(nil)
	if f := e.Fraction(); f != 0 {
		t.Errorf("Fraction() on empty walk = %v, want 0", f)
	}
}

func TestThrottle(t *testing.T) {
	tr := newThrottle(500 * time.Millisecond)
	now := time.Now()

	if !tr.allow(now) {
		t.Error("first call should pass")
	}
	if tr.allow(now.Add(100 * time.Millisecond)) {
		t.Error("call inside the interval should be suppressed")
	}
	if !tr.allow(now.Add(600 * time.Millisecond)) {
		t.Error("call past the interval should pass")
	}

	// Zero interval disables throttling.
	open := newThrottle(0)
	for i := 0; i < 3; i++ {
		if !open.allow(now) {
			t.Fatal("zero-interval throttle suppressed a call")
		}
	}
}

package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDB = errors.New("connection refused")

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestBreaker(clock *testClock) *CircuitBreaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		Now:              clock.Now,
	})
}

func TestCircuitBreakerStateClosed(t *testing.T) {
	cb := newTestBreaker(&testClock{now: time.Now()})
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed, got %v", cb.GetState())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := newTestBreaker(&testClock{now: time.Now()})

	for i := 0; i < 2; i++ {
		if err := cb.Call(func() error { return errDB }); err != errDB {
			t.Errorf("Expected test error, got: %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state to be Open, got %v", cb.GetState())
	}

	called := false
	if err := cb.Call(func() error { called = true; return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got: %v", err)
	}
	if called {
		t.Error("function should not run while open")
	}
}

func TestCircuitBreakerHalfOpenThenClosed(t *testing.T) {
	clock := &testClock{now: time.Now()}
	cb := newTestBreaker(clock)

	cb.Call(func() error { return errDB })
	cb.Call(func() error { return errDB })
	clock.now = clock.now.Add(60 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected success in half-open state, got: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected half-open after one success, got %v", cb.GetState())
	}
	cb.Call(func() error { return nil })
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed, got %v", cb.GetState())
	}
}

func TestCircuitBreakerReopensOnFailureInHalfOpen(t *testing.T) {
	clock := &testClock{now: time.Now()}
	cb := newTestBreaker(clock)

	cb.Call(func() error { return errDB })
	cb.Call(func() error { return errDB })
	clock.now = clock.now.Add(60 * time.Millisecond)

	cb.Call(func() error { return errDB })
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state to be Open after failure in half-open, got %v", cb.GetState())
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errNotFound) },
	})

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return errNotFound }); err != errNotFound {
			t.Fatalf("expected errNotFound passed through, got %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.GetState())
	}
}

func TestCircuitBreakerExecuteCancelled(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatal("cancellation should not trip the breaker")
	}
}

func TestStateString(t *testing.T) {
	if StateHalfOpen.String() != "half-open" || StateOpen.String() != "open" || StateClosed.String() != "closed" {
		t.Error("unexpected state names")
	}
}

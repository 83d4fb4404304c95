package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failingCall() (interface{}, error) { return nil, errBackend }

// TestCircuitBreakerTripsAfterConsecutiveFailures verifies the breaker
// opens after MaxFailures and rejects requests without invoking the call.
func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, failingCall)
		if !errors.Is(err, errBackend) {
			t.Fatalf("call %d: got %v, want backend error", i, err)
		}
	}
	if cb.State() != "open" {
		t.Fatalf("after 3 failures: state %q, want open", cb.State())
	}

	invoked := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit: got %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("open circuit must not invoke the wrapped call")
	}
}

// TestCircuitBreakerStaysClosedOnSuccess verifies successes keep the
// circuit closed and reset the consecutive failure counter.
func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	_, _ = cb.Execute(ctx, failingCall)

	result, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if result.(string) != "ok" {
		t.Errorf("result: got %v, want ok", result)
	}
	if cb.State() != "closed" {
		t.Errorf("state: got %q, want closed", cb.State())
	}

	m := cb.Metrics()
	if m.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures: got %d, want 0", m.ConsecutiveFailures)
	}
	if m.TotalRequests != 3 {
		t.Errorf("TotalRequests: got %d, want 3", m.TotalRequests)
	}
}

// TestCircuitBreakerCancelledContext verifies a cancelled context is
// reported without invoking the call.
func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) {
		t.Fatal("call must not run with cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

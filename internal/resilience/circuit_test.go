package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func transientFailure() error {
	return NewTransientError(errors.New("upstream unavailable"), 503)
}

func TestBreaker_ClosedState_PassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfig{})

	var calls int
	err := b.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	}
	b := NewBreaker(cfg)

	// Fail 3 times to trip the breaker.
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}

	if b.State() != CircuitOpen {
		t.Errorf("expected open state after %d failures, got %s", cfg.FailureThreshold, b.State())
	}

	// Next call should be rejected immediately.
	err := b.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_NonTransientErrors_DoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: 1 * time.Minute})

	// Deterministic failures (bad token, invalid filter) should surface to
	// the caller without opening the circuit.
	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("401 unauthorized")
		})
		if err == nil {
			t.Fatal("expected error to pass through")
		}
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed state after non-transient errors, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	}
	b := NewBreaker(cfg)

	// Two failures, below threshold.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}

	// Success resets the consecutive-failure count.
	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})

	// Two more failures should not open the circuit if the count reset.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed state (counter reset by success), got %s", b.State())
	}

	// A third consecutive failure trips it.
	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return transientFailure()
	})
	if b.State() != CircuitOpen {
		t.Errorf("expected open state after 3 consecutive failures, got %s", b.State())
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
	}
	b := NewBreaker(cfg)
	b.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	// Advance time past the reset timeout.
	b.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	if b.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state after timeout, got %s", b.State())
	}

	// Successful probe closes the circuit.
	err := b.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed state after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
	}
	b := NewBreaker(cfg)
	b.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}

	// Advance time past the reset timeout, then fail the probe.
	b.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }
	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return transientFailure()
	})

	// openedAt was refreshed, so the circuit is open again for a full
	// reset window.
	if b.State() != CircuitOpen {
		t.Errorf("expected open state after failed probe, got %s", b.State())
	}
	err := b.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit reopened")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenNonTransientFailure_Closes(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
	}
	b := NewBreaker(cfg)
	b.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}

	// A probe that fails deterministically still proves the service is
	// answering, so the circuit closes.
	b.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }
	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("400 bad request")
	})

	if b.State() != CircuitClosed {
		t.Errorf("expected closed state after non-transient probe failure, got %s", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []struct{ from, to CircuitState }
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     1 * time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, struct{ from, to CircuitState }{from, to})
		},
	}
	b := NewBreaker(cfg)

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}

	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != CircuitClosed || transitions[0].to != CircuitOpen {
		t.Errorf("expected closed→open, got %s→%s", transitions[0].from, transitions[0].to)
	}
}

func TestBreaker_CustomShouldTrip(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     1 * time.Minute,
		ShouldTrip: func(err error) bool {
			return err.Error() == "tripworthy"
		},
	}
	b := NewBreaker(cfg)

	// These shouldn't count toward the threshold.
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("non-tripworthy")
		})
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed (non-tripworthy errors), got %s", b.State())
	}

	// These should trip.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("tripworthy")
		})
	}
	if b.State() != CircuitOpen {
		t.Errorf("expected open after tripworthy errors, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     1 * time.Hour,
	}
	b := NewBreaker(cfg)

	// Trip it.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return transientFailure()
		})
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	// Manual reset.
	b.Reset()
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}

	// Should work normally now.
	err := b.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	cfg := BreakerConfig{
		FailureThreshold: 100,
		ResetTimeout:     1 * time.Minute,
	}
	b := NewBreaker(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(_ context.Context) error {
				if i%2 == 0 {
					return transientFailure()
				}
				return nil
			})
		}()
	}
	wg.Wait()
	// Just verifying no race/panic.
}

func TestExecuteVal_ReturnsValue(t *testing.T) {
	b := NewBreaker(BreakerConfig{})

	val, err := ExecuteVal(context.Background(), b, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestExecuteVal_CircuitOpen(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     1 * time.Hour,
	}
	b := NewBreaker(cfg)

	// Trip the breaker.
	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return transientFailure()
	})

	val, err := ExecuteVal(context.Background(), b, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if val != 0 {
		t.Errorf("expected zero value, got %d", val)
	}
}

func TestBreaker_StopsRetriesWhenOpen(t *testing.T) {
	// The provider client runs retries around the breaker; once the circuit
	// opens, ErrCircuitOpen is not transient, so the retry loop aborts
	// instead of sleeping through the remaining attempts.
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 1 * time.Hour})
	rcfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Millisecond,
	}

	var fnCalls int
	err := Do(context.Background(), rcfg, func(ctx context.Context) error {
		return b.Execute(ctx, func(_ context.Context) error {
			fnCalls++
			return transientFailure()
		})
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after the circuit tripped, got %v", err)
	}
	if fnCalls != 1 {
		t.Errorf("expected 1 underlying call (breaker blocks the rest), got %d", fnCalls)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

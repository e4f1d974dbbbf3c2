package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (g *scriptedGenerator) GenerateContent(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	if idx < len(g.results) && g.results[idx] != nil {
		return "", g.results[idx]
	}
	return "ok", nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }

func stubWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	original := wait
	wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { wait = original })
	return &waits
}

func TestWithRetryRetriesTemporaryErrors(t *testing.T) {
	waits := stubWait(t)

	gen := &scriptedGenerator{results: []error{
		&StatusError{Provider: "test", Code: http.StatusServiceUnavailable, Err: errors.New("unavailable")},
		&StatusError{Provider: "test", Code: http.StatusTooManyRequests, Err: errors.New("slow down")},
	}}

	out, err := WithRetry(gen, 3, zap.NewNop()).GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", gen.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence: %v", *waits)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	stubWait(t)

	gen := &scriptedGenerator{results: []error{
		&StatusError{Provider: "test", Code: http.StatusUnauthorized, Err: errors.New("bad key")},
	}}

	_, err := WithRetry(gen, 3, zap.NewNop()).GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single call, got %d", gen.calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	stubWait(t)

	temp := &StatusError{Provider: "test", Code: http.StatusInternalServerError, Err: errors.New("boom")}
	gen := &scriptedGenerator{results: []error{temp, temp}}

	_, err := WithRetry(gen, 2, zap.NewNop()).GenerateContent(context.Background(), "prompt")
	if !errors.Is(err, temp) {
		t.Fatalf("expected wrapped status error, got %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.calls)
	}
}

func TestWithRetryDisabled(t *testing.T) {
	gen := &scriptedGenerator{}
	if got := WithRetry(gen, 1, nil); got != Generator(gen) {
		t.Fatalf("expected generator to be returned unchanged")
	}
}

func TestWithCircuitBreakerOpensAfterFailures(t *testing.T) {
	failure := errors.New("backend down")
	gen := &scriptedGenerator{results: []error{failure, failure, failure}}

	breaker := WithCircuitBreaker(gen, BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := breaker.GenerateContent(context.Background(), "p"); !errors.Is(err, failure) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}

	_, err := breaker.GenerateContent(context.Background(), "p")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected breaker to short-circuit the third call, got %d calls", gen.calls)
	}
	if breaker.Model() != "scripted" {
		t.Fatalf("expected model to be delegated, got %q", breaker.Model())
	}
}

func TestWithRateLimitHonoursContext(t *testing.T) {
	gen := &scriptedGenerator{}
	limited := WithRateLimit(gen, 1000, 1)

	if _, err := limited.GenerateContent(context.Background(), "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limited.GenerateContent(ctx, "p"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if gen.calls != 1 {
		t.Fatalf("expected one backend call, got %d", gen.calls)
	}

	if WithRateLimit(gen, 0, 1) != Generator(gen) {
		t.Fatal("expected non-positive rate to disable limiting")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{name: "nil", err: nil, expect: false},
		{name: "canceled", err: context.Canceled, expect: false},
		{name: "deadline", err: context.DeadlineExceeded, expect: false},
		{name: "bad gateway", err: &StatusError{Code: http.StatusBadGateway}, expect: true},
		{name: "bad request", err: &StatusError{Code: http.StatusBadRequest}, expect: false},
		{name: "plain", err: errors.New("plain"), expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

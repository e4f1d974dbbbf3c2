package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/operator-finder/internal/utils"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

var wait = utils.WaitFor

// BreakerConfig configures the circuit breaker placed in front of a Generator.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

// WithRetry retries retryable generator errors up to attempts calls in total.
// attempts <= 1 disables retrying.
func WithRetry(next Generator, attempts int, logger *zap.Logger) Generator {
	if attempts <= 1 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryGenerator{next: next, attempts: attempts, logger: logger}
}

type retryGenerator struct {
	next     Generator
	attempts int
	logger   *zap.Logger
}

func (g *retryGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if attempt > 1 {
			delay := utils.Backoff(attempt-1, retryBaseDelay, retryMaxDelay)
			g.logger.Warn("retrying generation",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", g.attempts),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := wait(ctx, delay); err != nil {
				return "", err
			}
		}

		out, err := g.next.GenerateContent(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", g.attempts, lastErr)
}

func (g *retryGenerator) Model() string { return g.next.Model() }

// WithCircuitBreaker stops calling the backend once the failure ratio trips
// the breaker; calls then fail fast with gobreaker.ErrOpenState.
func WithCircuitBreaker(next Generator, cfg BreakerConfig, logger *zap.Logger) Generator {
	if !cfg.Enabled {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("llm-%s", next.Model()),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &breakerGenerator{next: next, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

type breakerGenerator struct {
	next Generator
	cb   *gobreaker.CircuitBreaker[string]
}

func (g *breakerGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return g.cb.Execute(func() (string, error) {
		return g.next.GenerateContent(ctx, prompt)
	})
}

func (g *breakerGenerator) Model() string { return g.next.Model() }

// WithRateLimit caps the request rate towards the backend across all callers.
// A non-positive rps disables limiting.
func WithRateLimit(next Generator, rps float64, burst int) Generator {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &limitedGenerator{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type limitedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

func (g *limitedGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return g.next.GenerateContent(ctx, prompt)
}

func (g *limitedGenerator) Model() string { return g.next.Model() }

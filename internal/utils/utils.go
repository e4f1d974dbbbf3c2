package utils

import (
	"context"
	"strings"
	"time"
)

var after = time.After

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(d):
		return nil
	}
}

// Backoff returns the exponential delay before retry number attempt (1-based),
// capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}

	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

package utils

import (
	"context"
	"fmt"
	"time"
)

func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay disables a configured delay. A zero in the configuration is
// replaced by the default, so it cannot be used for that.
const NoDelay = -1

// Millis converts a millisecond count from the configuration into a duration.
// NoDelay yields 0.
func Millis(ms int) time.Duration {
	if ms <= NoDelay {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

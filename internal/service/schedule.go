package service

import (
	"context"
	"log"
	"time"
)

// RunEvery calls fn immediately and then every interval until ctx is done.
// Errors are logged and do not stop the loop.
func RunEvery(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) (int, error)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := fn(ctx); err != nil {
			log.Printf("ERROR: %s: %v", name, err)
		} else if n > 0 {
			log.Printf("%s: %d sent", name, n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

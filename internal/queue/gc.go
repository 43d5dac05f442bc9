package queue

import (
	"context"
	"fmt"
	"time"
)

// GarbageCollector periodically purges expired messages from the DLQ so
// failed generation jobs do not accumulate unbounded.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
}

// NewGarbageCollector creates a GC that purges DLQ messages older than
// retention every interval.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration) *GarbageCollector {
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
	}
}

// Start runs the GC loop until the context is cancelled
func (gc *GarbageCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := gc.collect(ctx); err != nil {
				fmt.Printf("DLQ garbage collection failed: %v\n", err)
			}
		}
	}
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.purger == nil {
		return nil
	}
	purged, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("failed to purge DLQ: %w", err)
	}
	if purged > 0 {
		fmt.Printf("DLQ garbage collection purged %d messages\n", purged)
	}
	return nil
}

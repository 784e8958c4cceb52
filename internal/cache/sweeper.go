package cache

import (
	"context"
	"time"
)

// Start runs the expiry sweep every SweepInterval. Blocks until ctx is
// cancelled.
func (c *RotorCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

package sandbox

import (
	"context"
	"time"
)

// Watch periodically polls /health for scanID's sandbox and recreates the
// container if it has been unhealthy for cfg.UnhealthyThreshold (§4.2).
// Intended to run in its own goroutine for the lifetime of the scan;
// returns when ctx is cancelled.
func (r *Runtime) Watch(ctx context.Context, scanID string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var unhealthySince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		h, ok := r.sandboxes[scanID]
		r.mu.Unlock()
		if !ok {
			return
		}

		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := r.client.health(checkCtx, h)
		cancel()

		if err == nil {
			unhealthySince = time.Time{}
			continue
		}
		if unhealthySince.IsZero() {
			unhealthySince = time.Now()
			continue
		}
		if time.Since(unhealthySince) < r.cfg.UnhealthyThreshold {
			continue
		}

		r.log.Warn("sandbox unhealthy, recreating", "scan_id", scanID)
		_ = r.Destroy(ctx, scanID)
		if _, err := r.Create(ctx, scanID); err != nil {
			r.log.Error("sandbox recreate failed", "scan_id", scanID, "error", err)
			return
		}
		unhealthySince = time.Time{}
	}
}

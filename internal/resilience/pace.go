package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between operations. Used for
// outbound email sends and directory page fetches, where burst traffic
// gets an account or an API key throttled.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer that allows one operation per interval. A
// non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next operation is allowed or the context is
// canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

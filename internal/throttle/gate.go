// Package throttle spaces out calls to rate-limited upstream services.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate admits one caller per spacing interval, across all goroutines sharing it.
// A nil Gate admits everyone immediately.
type Gate struct {
	limiter *rate.Limiter
}

func NewGate(spacing time.Duration) *Gate {
	if spacing <= 0 {
		return nil
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(spacing), 1)}
}

func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

package providers

import (
	"context"
	"time"

	"cloudarb/core/models"
)

// policyAdapter overrides an adapter's polling policy from configuration.
type policyAdapter struct {
	inner    Adapter
	caps     Capabilities
	throttle Throttle
}

// WithPolicy wraps an adapter with an operator-configured rate limit and
// minimum poll interval. Zero values keep the adapter's own defaults.
func WithPolicy(inner Adapter, qps float64, minPoll time.Duration) Adapter {
	caps := inner.Capabilities()
	if qps > 0 {
		caps.SustainableQPS = qps
	}
	if minPoll > 0 {
		caps.MinPollInterval = minPoll
	}
	return &policyAdapter{
		inner:    inner,
		caps:     caps,
		throttle: NewThrottle(caps.SustainableQPS),
	}
}

func (p *policyAdapter) Name() models.Provider { return p.inner.Name() }

func (p *policyAdapter) Capabilities() Capabilities { return p.caps }

func (p *policyAdapter) FetchPricing(ctx context.Context, filter Filter) ([]models.PricePoint, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.FetchPricing(ctx, filter)
}

package providers

import (
	"context"
	"strings"
	"time"

	"cloudarb/core/models"
)

// Filter restricts a pricing fetch to the GPU kinds and regions the caller
// actually needs. Empty slices match everything.
type Filter struct {
	GPUKinds []string
	Regions  []string
}

// MatchKind reports whether a canonical GPU kind passes the filter.
func (f Filter) MatchKind(kind string) bool {
	if len(f.GPUKinds) == 0 {
		return true
	}
	for _, k := range f.GPUKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// MatchRegion reports whether a region passes the filter.
func (f Filter) MatchRegion(region string) bool {
	if len(f.Regions) == 0 {
		return true
	}
	for _, r := range f.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// Capabilities describes an adapter's pricing surface and polling policy.
type Capabilities struct {
	SupportsSpot         bool
	HasRegionGranularity bool
	SustainableQPS       float64
	MinPollInterval      time.Duration
}

// Adapter translates one provider's price catalog into normalized
// PricePoints. Adapters own their credential handle and connection pool;
// they must honor ctx cancellation promptly.
type Adapter interface {
	Name() models.Provider
	FetchPricing(ctx context.Context, filter Filter) ([]models.PricePoint, error)
	Capabilities() Capabilities
}

package gcp

import (
	"context"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"
)

// priceBookEntry is one curated GCP GPU machine type with its list price.
type priceBookEntry struct {
	InstanceType string
	GPUKind      string
	GPUCount     int
	OnDemand     float64
}

// priceBook is the curated GCP price book. The Cloud Billing catalog needs
// OAuth service credentials; the book is refreshed out of band from the
// published list prices.
var priceBook = []priceBookEntry{
	{"a2-highgpu-1g", "A100", 1, 3.67},
	{"a2-highgpu-2g", "A100", 2, 7.34},
	{"a2-highgpu-4g", "A100", 4, 14.68},
	{"a2-highgpu-8g", "A100", 8, 29.36},
	{"a3-highgpu-8g", "H100", 8, 88.25},
	{"g2-standard-4", "L4", 1, 0.71},
	{"g2-standard-48", "L4", 4, 4.25},
	{"n1-standard-8-v100", "V100", 1, 2.48},
	{"n1-standard-8-t4", "T4", 1, 0.73},
}

// spotDiscount is the published spot (preemptible) multiplier for GPU
// machine families.
const spotDiscount = 0.35

// Client is the GCP pricing adapter.
type Client struct {
	projectID string
	regions   []string
	throttle  providers.Throttle
}

// NewClient creates the GCP adapter for the given regions.
func NewClient(ctx context.Context, projectID string, regions []string) (*Client, error) {
	return &Client{
		projectID: projectID,
		regions:   regions,
		throttle:  providers.NewThrottle(5),
	}, nil
}

// Name implements providers.Adapter.
func (c *Client) Name() models.Provider { return models.ProviderGCP }

// Capabilities implements providers.Adapter.
func (c *Client) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		SupportsSpot:         true,
		HasRegionGranularity: true,
		SustainableQPS:       5,
		MinPollInterval:      time.Minute,
	}
}

// FetchPricing expands the price book across the configured regions. Spot
// prices apply the published preemptible discount.
func (c *Client) FetchPricing(ctx context.Context, filter providers.Filter) ([]models.PricePoint, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.Transient(err, "gcp fetch canceled")
	}

	now := time.Now().UTC()
	var points []models.PricePoint
	for _, region := range c.regions {
		if !filter.MatchRegion(region) {
			continue
		}
		for _, entry := range priceBook {
			if !filter.MatchKind(entry.GPUKind) {
				continue
			}
			points = append(points, models.PricePoint{
				Provider:   models.ProviderGCP,
				Instance:   entry.InstanceType,
				Region:     region,
				GPUKind:    providers.CanonicalGPUKind(entry.GPUKind),
				GPUCount:   entry.GPUCount,
				OnDemand:   entry.OnDemand,
				Spot:       entry.OnDemand * spotDiscount,
				HasSpot:    true,
				ObservedAt: now,
			})
		}
	}
	return points, nil
}

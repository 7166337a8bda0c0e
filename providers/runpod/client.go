package runpod

import (
	"context"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"
)

// pricingURL lists RunPod pod types with pricing.
const pricingURL = "https://api.runpod.io/v2/pods/pricing"

// podType mirrors one entry of the RunPod pricing payload. RunPod has no
// spot tier on this endpoint.
type podType struct {
	Name         string  `json:"name"`
	Region       string  `json:"region"`
	PricePerHour float64 `json:"price_per_hour"`
	GPUCount     int     `json:"gpu_count"`
	GPUType      string  `json:"gpu_type"`
}

// Client is the RunPod pricing adapter.
type Client struct {
	apiKey   string
	throttle providers.Throttle
	timeout  time.Duration
}

// NewClient creates the RunPod adapter.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		throttle: providers.NewThrottle(1),
		timeout:  10 * time.Second,
	}
}

// Name implements providers.Adapter.
func (c *Client) Name() models.Provider { return models.ProviderRunPod }

// Capabilities implements providers.Adapter.
func (c *Client) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		SupportsSpot:         false,
		HasRegionGranularity: false,
		SustainableQPS:       1,
		MinPollInterval:      time.Minute,
	}
}

// FetchPricing lists the current pod type pricing.
func (c *Client) FetchPricing(ctx context.Context, filter providers.Filter) ([]models.PricePoint, error) {
	if c.apiKey == "" {
		return nil, providers.AuthFailedf("runpod api key not configured")
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	var pods []podType
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := providers.FetchJSON(ctx, pricingURL, headers, c.timeout, &pods); err != nil {
		return nil, err
	}

	return collect(pods, filter, time.Now().UTC()), nil
}

func collect(pods []podType, filter providers.Filter, now time.Time) []models.PricePoint {
	var points []models.PricePoint
	for _, pod := range pods {
		if pod.PricePerHour <= 0 {
			continue
		}
		raw := pod.GPUType
		if raw == "" {
			raw = pod.Name
		}
		kind := providers.CanonicalGPUKind(raw)
		if !filter.MatchKind(kind) {
			continue
		}
		region := pod.Region
		if region == "" {
			region = "US-East"
		}
		if !filter.MatchRegion(region) {
			continue
		}
		count := pod.GPUCount
		if count < 1 {
			count = 1
		}
		points = append(points, models.PricePoint{
			Provider:   models.ProviderRunPod,
			Instance:   pod.Name,
			Region:     region,
			GPUKind:    kind,
			GPUCount:   count,
			OnDemand:   pod.PricePerHour,
			ObservedAt: now,
		})
	}
	return points
}

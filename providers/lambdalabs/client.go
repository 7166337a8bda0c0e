package lambdalabs

import (
	"context"
	"strings"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"
)

// instancesURL lists Lambda Labs instance offerings with pricing.
const instancesURL = "https://cloud.lambdalabs.com/api/v1/instances"

// instancesResponse mirrors the Lambda Labs payload. Prices arrive in cents
// per hour and are scaled to $/hr on normalization.
type instancesResponse struct {
	Data []struct {
		Name              string `json:"name"`
		Region            string `json:"region"`
		PriceCentsPerHour int    `json:"price_cents_per_hour"`
		GPUCount          int    `json:"gpu_count"`
		GPUDescription    string `json:"gpu_description"`
	} `json:"data"`
}

// Client is the Lambda Labs pricing adapter. Lambda Labs has no spot tier.
type Client struct {
	apiKey   string
	throttle providers.Throttle
	timeout  time.Duration
}

// NewClient creates the Lambda Labs adapter.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		throttle: providers.NewThrottle(1),
		timeout:  10 * time.Second,
	}
}

// Name implements providers.Adapter.
func (c *Client) Name() models.Provider { return models.ProviderLambdaLabs }

// Capabilities implements providers.Adapter.
func (c *Client) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		SupportsSpot:         false,
		HasRegionGranularity: true,
		SustainableQPS:       1,
		MinPollInterval:      time.Minute,
	}
}

// FetchPricing lists the current instance offerings.
func (c *Client) FetchPricing(ctx context.Context, filter providers.Filter) ([]models.PricePoint, error) {
	if c.apiKey == "" {
		return nil, providers.AuthFailedf("lambda labs api key not configured")
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	var resp instancesResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := providers.FetchJSON(ctx, instancesURL, headers, c.timeout, &resp); err != nil {
		return nil, err
	}

	return collect(&resp, filter, time.Now().UTC()), nil
}

func collect(resp *instancesResponse, filter providers.Filter, now time.Time) []models.PricePoint {
	var points []models.PricePoint
	for _, inst := range resp.Data {
		if inst.PriceCentsPerHour <= 0 {
			continue
		}
		kind := providers.CanonicalGPUKind(gpuKindOf(inst.GPUDescription, inst.Name))
		if !filter.MatchKind(kind) {
			continue
		}
		region := inst.Region
		if region == "" {
			region = "us-east-1"
		}
		if !filter.MatchRegion(region) {
			continue
		}
		count := inst.GPUCount
		if count < 1 {
			count = 1
		}
		points = append(points, models.PricePoint{
			Provider:   models.ProviderLambdaLabs,
			Instance:   inst.Name,
			Region:     region,
			GPUKind:    kind,
			GPUCount:   count,
			OnDemand:   float64(inst.PriceCentsPerHour) / 100,
			ObservedAt: now,
		})
	}
	return points
}

// gpuKindOf prefers the explicit GPU description, falling back to the
// instance name convention "gpu_<count>x_<kind>".
func gpuKindOf(description, name string) string {
	if description != "" {
		return description
	}
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		return name[i+1:]
	}
	return name
}

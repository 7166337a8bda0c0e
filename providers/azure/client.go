package azure

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"
)

// retailPricesURL is the public Azure Retail Prices endpoint; it needs no
// credentials.
const retailPricesURL = "https://prices.azure.com/api/retail/prices"

// gpuSKUs maps the ARM SKU names the adapter prices to their GPU shape.
var gpuSKUs = map[string]struct {
	GPUKind  string
	GPUCount int
}{
	"Standard_NC6s_v3":         {"V100", 1},
	"Standard_NC24s_v3":        {"V100", 4},
	"Standard_ND96asr_v4":      {"A100", 8},
	"Standard_NC24ads_A100_v4": {"A100", 1},
	"Standard_ND96isr_H100_v5": {"H100", 8},
	"Standard_NC4as_T4_v3":     {"T4", 1},
	"Standard_NV36ads_A10_v5":  {"A10", 1},
}

// retailResponse mirrors the Retail Prices payload.
type retailResponse struct {
	Items []struct {
		RetailPrice   float64 `json:"retailPrice"`
		ArmSkuName    string  `json:"armSkuName"`
		SkuName       string  `json:"skuName"`
		ArmRegionName string  `json:"armRegionName"`
		Type          string  `json:"type"`
		UnitOfMeasure string  `json:"unitOfMeasure"`
	} `json:"Items"`
	NextPageLink string `json:"NextPageLink"`
}

// Client is the Azure pricing adapter backed by the Retail Prices API.
type Client struct {
	regions  []string
	throttle providers.Throttle
	timeout  time.Duration
}

// NewClient creates the Azure adapter for the given regions.
func NewClient(ctx context.Context, regions []string) (*Client, error) {
	return &Client{
		regions:  regions,
		throttle: providers.NewThrottle(4),
		timeout:  10 * time.Second,
	}, nil
}

// Name implements providers.Adapter.
func (c *Client) Name() models.Provider { return models.ProviderAzure }

// Capabilities implements providers.Adapter.
func (c *Client) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		SupportsSpot:         true,
		HasRegionGranularity: true,
		SustainableQPS:       4,
		MinPollInterval:      time.Minute,
	}
}

// FetchPricing queries consumption prices for the GPU SKU set per region and
// folds spot SKUs into the matching on-demand point.
func (c *Client) FetchPricing(ctx context.Context, filter providers.Filter) ([]models.PricePoint, error) {
	now := time.Now().UTC()
	var points []models.PricePoint

	for _, region := range c.regions {
		if !filter.MatchRegion(region) {
			continue
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.fetchRegion(ctx, region)
		if err != nil {
			return nil, err
		}
		points = append(points, collectRegion(page, region, filter, now)...)
	}

	return points, nil
}

func (c *Client) fetchRegion(ctx context.Context, region string) (*retailResponse, error) {
	odata := fmt.Sprintf(
		"serviceName eq 'Virtual Machines' and armRegionName eq '%s' and priceType eq 'Consumption'",
		region,
	)
	u := retailPricesURL + "?$filter=" + url.QueryEscape(odata)

	var page retailResponse
	if err := providers.FetchJSON(ctx, u, nil, c.timeout, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// collectRegion builds price points from one region's retail page. Spot and
// on-demand arrive as separate SKU rows; spot rows carry a "Spot" suffix in
// the SKU name.
func collectRegion(page *retailResponse, region string, filter providers.Filter, now time.Time) []models.PricePoint {
	type priced struct {
		onDemand float64
		spot     float64
	}
	bySKU := make(map[string]*priced)

	for _, item := range page.Items {
		shape, ok := gpuSKUs[item.ArmSkuName]
		if !ok || item.RetailPrice <= 0 {
			continue
		}
		if !filter.MatchKind(shape.GPUKind) {
			continue
		}
		if !strings.HasPrefix(item.UnitOfMeasure, "1 Hour") {
			continue
		}
		if strings.Contains(item.SkuName, "Low Priority") {
			continue
		}

		entry := bySKU[item.ArmSkuName]
		if entry == nil {
			entry = &priced{}
			bySKU[item.ArmSkuName] = entry
		}
		if strings.Contains(item.SkuName, "Spot") {
			if entry.spot == 0 || item.RetailPrice < entry.spot {
				entry.spot = item.RetailPrice
			}
		} else {
			if entry.onDemand == 0 || item.RetailPrice < entry.onDemand {
				entry.onDemand = item.RetailPrice
			}
		}
	}

	var points []models.PricePoint
	for sku, entry := range bySKU {
		if entry.onDemand <= 0 {
			continue
		}
		shape := gpuSKUs[sku]
		point := models.PricePoint{
			Provider:   models.ProviderAzure,
			Instance:   sku,
			Region:     region,
			GPUKind:    providers.CanonicalGPUKind(shape.GPUKind),
			GPUCount:   shape.GPUCount,
			OnDemand:   entry.onDemand,
			ObservedAt: now,
		}
		if entry.spot > 0 {
			point.Spot = entry.spot
			point.HasSpot = true
		}
		points = append(points, point)
	}
	return points
}

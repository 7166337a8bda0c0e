package azure

import (
	"math"
	"testing"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"

	"github.com/bytedance/sonic"
)

const samplePage = `{
	"Items": [
		{"retailPrice": 3.06, "armSkuName": "Standard_NC6s_v3", "skuName": "NC6s v3", "armRegionName": "eastus", "type": "Consumption", "unitOfMeasure": "1 Hour"},
		{"retailPrice": 0.92, "armSkuName": "Standard_NC6s_v3", "skuName": "NC6s v3 Spot", "armRegionName": "eastus", "type": "Consumption", "unitOfMeasure": "1 Hour"},
		{"retailPrice": 0.61, "armSkuName": "Standard_NC6s_v3", "skuName": "NC6s v3 Low Priority", "armRegionName": "eastus", "type": "Consumption", "unitOfMeasure": "1 Hour"},
		{"retailPrice": 27.20, "armSkuName": "Standard_ND96asr_v4", "skuName": "ND96asr v4", "armRegionName": "eastus", "type": "Consumption", "unitOfMeasure": "1 Hour"},
		{"retailPrice": 1.00, "armSkuName": "Standard_D2s_v3", "skuName": "D2s v3", "armRegionName": "eastus", "type": "Consumption", "unitOfMeasure": "1 Hour"}
	],
	"NextPageLink": ""
}`

func TestCollectRegionFoldsSpotIntoOnDemand(t *testing.T) {
	var page retailResponse
	if err := sonic.Unmarshal([]byte(samplePage), &page); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	points := collectRegion(&page, "eastus", providers.Filter{}, time.Now())
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2 GPU SKUs (non-GPU SKU ignored)", len(points))
	}

	byInstance := make(map[string]models.PricePoint)
	for _, p := range points {
		byInstance[p.Instance] = p
	}

	nc6 := byInstance["Standard_NC6s_v3"]
	if math.Abs(nc6.OnDemand-3.06) > 1e-9 {
		t.Errorf("on-demand = %v, want 3.06", nc6.OnDemand)
	}
	if !nc6.HasSpot || math.Abs(nc6.Spot-0.92) > 1e-9 {
		t.Errorf("spot = %v (has=%v), want 0.92 folded in", nc6.Spot, nc6.HasSpot)
	}
	if nc6.GPUKind != "V100" || nc6.GPUCount != 1 {
		t.Errorf("shape = %s x%d, want V100 x1", nc6.GPUKind, nc6.GPUCount)
	}

	nd96 := byInstance["Standard_ND96asr_v4"]
	if nd96.HasSpot {
		t.Error("ND96asr has no spot row in the sample")
	}
	if nd96.GPUKind != "A100" || nd96.GPUCount != 8 {
		t.Errorf("shape = %s x%d, want A100 x8", nd96.GPUKind, nd96.GPUCount)
	}
}

func TestCollectRegionAppliesKindFilter(t *testing.T) {
	var page retailResponse
	if err := sonic.Unmarshal([]byte(samplePage), &page); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	points := collectRegion(&page, "eastus", providers.Filter{GPUKinds: []string{"A100"}}, time.Now())
	if len(points) != 1 || points[0].Instance != "Standard_ND96asr_v4" {
		t.Fatalf("points = %+v, want only the A100 SKU", points)
	}
}

package lambdalabs

import (
	"context"
	"math"
	"testing"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"

	"github.com/bytedance/sonic"
)

const samplePayload = `{
	"data": [
		{"name": "gpu_1x_a100", "region": "us-east-1", "price_cents_per_hour": 110, "gpu_count": 1, "gpu_description": "A100 (40 GB SXM4)"},
		{"name": "gpu_8x_a100", "region": "us-east-1", "price_cents_per_hour": 879, "gpu_count": 8, "gpu_description": "NVIDIA A100"},
		{"name": "gpu_1x_h100_pcie", "region": "europe-central-1", "price_cents_per_hour": 249, "gpu_count": 1, "gpu_description": "H100 (80 GB PCIe)"},
		{"name": "cpu_only", "region": "us-east-1", "price_cents_per_hour": 0, "gpu_count": 0, "gpu_description": ""}
	]
}`

func decode(t *testing.T) *instancesResponse {
	t.Helper()
	var resp instancesResponse
	if err := sonic.Unmarshal([]byte(samplePayload), &resp); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	return &resp
}

func TestCollectScalesCentsToDollars(t *testing.T) {
	points := collect(decode(t), providers.Filter{}, time.Now())
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3 (zero-price entry dropped)", len(points))
	}

	byInstance := make(map[string]models.PricePoint)
	for _, p := range points {
		byInstance[p.Instance] = p
		if p.Provider != models.ProviderLambdaLabs {
			t.Errorf("provider = %s", p.Provider)
		}
		if p.HasSpot {
			t.Error("lambda labs has no spot tier")
		}
	}

	single := byInstance["gpu_1x_a100"]
	if math.Abs(single.OnDemand-1.10) > 1e-9 {
		t.Errorf("on-demand = %v, want 1.10 (cents scaled to $/hr)", single.OnDemand)
	}
	if single.GPUKind != "A100" || single.GPUCount != 1 {
		t.Errorf("shape = %s x%d, want A100 x1", single.GPUKind, single.GPUCount)
	}
	if byInstance["gpu_8x_a100"].GPUCount != 8 {
		t.Errorf("gpu_8x_a100 count = %d, want 8", byInstance["gpu_8x_a100"].GPUCount)
	}
}

func TestCollectAppliesFilter(t *testing.T) {
	points := collect(decode(t), providers.Filter{GPUKinds: []string{"H100"}}, time.Now())
	if len(points) != 1 || points[0].Instance != "gpu_1x_h100_pcie" {
		t.Fatalf("points = %+v, want only the H100 entry", points)
	}
}

func TestFetchPricingWithoutKey(t *testing.T) {
	client := NewClient("")
	_, err := client.FetchPricing(context.Background(), providers.Filter{})
	if err == nil {
		t.Fatal("expected error without an api key")
	}
	if providers.KindOf(err) != providers.FailureAuth {
		t.Errorf("kind = %v, want auth", providers.KindOf(err))
	}
}

package arbitrage

import (
	"context"
	"math"
	"testing"
	"time"

	"cloudarb/core/forecast"
	"cloudarb/core/models"
)

type staticUpdates struct {
	table *models.PricingTable
	bumps chan uint64
}

func (s *staticUpdates) Subscribe() (<-chan uint64, func()) { return s.bumps, func() {} }
func (s *staticUpdates) Snapshot() *models.PricingTable     { return s.table }

func tableOf(points ...models.PricePoint) *models.PricingTable {
	entries := make(map[models.LineKey]models.PricePoint)
	for _, p := range points {
		if p.ObservedAt.IsZero() {
			p.ObservedAt = time.Now()
		}
		entries[p.Key()] = p
	}
	return &models.PricingTable{Generation: 1, BuiltAt: time.Now(), Entries: entries}
}

func a100(provider models.Provider, instance, region string, price float64) models.PricePoint {
	return models.PricePoint{
		Provider: provider,
		Instance: instance,
		Region:   region,
		GPUKind:  "A100",
		GPUCount: 1,
		OnDemand: price,
	}
}

func TestScanEmitsAboveThreshold(t *testing.T) {
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(DefaultConfig(), &staticUpdates{table: table}, nil)

	opportunities := d.Scan(context.Background(), table)
	if len(opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1: %+v", len(opportunities), opportunities)
	}

	opp := opportunities[0]
	if opp.From.Provider != models.ProviderGCP || opp.To.Provider != models.ProviderLambdaLabs {
		t.Errorf("pair = %s -> %s, want gcp -> lambdalabs", opp.From.Provider, opp.To.Provider)
	}
	if math.Abs(opp.SavingsPct-0.20) > 1e-9 {
		t.Errorf("savings = %v, want 0.20", opp.SavingsPct)
	}
	if opp.GPUKind != "A100" {
		t.Errorf("gpu kind = %s, want A100", opp.GPUKind)
	}
	if opp.RiskScore < 0 || opp.RiskScore > 1 {
		t.Errorf("risk = %v, want within [0,1]", opp.RiskScore)
	}
}

func TestScanBelowThresholdSilent(t *testing.T) {
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 2.45),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(DefaultConfig(), &staticUpdates{table: table}, nil)

	if opportunities := d.Scan(context.Background(), table); len(opportunities) != 0 {
		t.Fatalf("opportunities = %+v, want none under a 5%% threshold", opportunities)
	}
}

func TestScanCooldownSuppressesRepeat(t *testing.T) {
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(DefaultConfig(), &staticUpdates{table: table}, nil)

	if got := len(d.Scan(context.Background(), table)); got != 1 {
		t.Fatalf("first scan = %d opportunities, want 1", got)
	}
	// Republishing the same prices within the cooldown stays silent.
	if got := len(d.Scan(context.Background(), table)); got != 0 {
		t.Fatalf("second scan = %d opportunities, want suppression", got)
	}
}

func TestScanCooldownExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 10 * time.Millisecond
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(cfg, &staticUpdates{table: table}, nil)

	d.Scan(context.Background(), table)
	time.Sleep(20 * time.Millisecond)
	if got := len(d.Scan(context.Background(), table)); got != 1 {
		t.Fatalf("post-cooldown scan = %d opportunities, want re-emission", got)
	}
}

func TestScanSeparatesRegionClasses(t *testing.T) {
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "europe-west4", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(DefaultConfig(), &staticUpdates{table: table}, nil)

	if opportunities := d.Scan(context.Background(), table); len(opportunities) != 0 {
		t.Fatalf("opportunities = %+v, want none across continents", opportunities)
	}
}

func TestScanSeparatesGPUKinds(t *testing.T) {
	h100 := a100(models.ProviderGCP, "a3-highgpu-8g", "us-central1", 10.00)
	h100.GPUKind = "H100"
	table := tableOf(
		h100,
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(DefaultConfig(), &staticUpdates{table: table}, nil)

	if opportunities := d.Scan(context.Background(), table); len(opportunities) != 0 {
		t.Fatalf("opportunities = %+v, want none across GPU kinds", opportunities)
	}
}

func TestRegionClassOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegionClasses = map[string]string{
		"us-east-1":    "global",
		"europe-west4": "global",
	}
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "europe-west4", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	d := New(cfg, &staticUpdates{table: table}, nil)

	if got := len(d.Scan(context.Background(), table)); got != 1 {
		t.Fatalf("opportunities = %d, want the override to join the regions", got)
	}
}

func TestRiskScoreRaisedBySpotAndDemand(t *testing.T) {
	spotTo := a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 2.00)
	spotTo.Spot = 0.80
	spotTo.HasSpot = true
	from := a100(models.ProviderAWS, "p4x.a100", "us-east-1", 3.00)
	table := tableOf(from, spotTo)

	base := New(DefaultConfig(), &staticUpdates{table: table}, nil)
	baseOpps := base.Scan(context.Background(), table)
	if len(baseOpps) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(baseOpps))
	}

	hot := forecast.NewStatic(map[string]forecast.Signal{
		"A100": {ExpectedRelativeDemand: 2.0, Confidence: 1.0},
	})
	withDemand := New(DefaultConfig(), &staticUpdates{table: table}, hot)
	demandOpps := withDemand.Scan(context.Background(), table)
	if len(demandOpps) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(demandOpps))
	}

	if demandOpps[0].RiskScore <= baseOpps[0].RiskScore {
		t.Errorf("demand pressure should raise risk: %v vs %v",
			demandOpps[0].RiskScore, baseOpps[0].RiskScore)
	}
}

func TestBroadcastDropsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 2
	d := New(cfg, &staticUpdates{table: tableOf()}, nil)

	events, cancel := d.Subscribe()
	defer cancel()

	for i := 0; i < 4; i++ {
		d.broadcast(models.Opportunity{GPUKind: "A100", SavingsPct: float64(i)})
	}

	// Buffer of two: the oldest events are gone, the two newest remain.
	first := <-events
	second := <-events
	if first.SavingsPct != 2 || second.SavingsPct != 3 {
		t.Errorf("buffered = %v, %v; want the newest two (2, 3)", first.SavingsPct, second.SavingsPct)
	}
	select {
	case extra := <-events:
		t.Errorf("unexpected extra event %v", extra)
	default:
	}
}

func TestStartScansOnGenerationBump(t *testing.T) {
	table := tableOf(
		a100(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 3.00),
		a100(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 2.40),
	)
	updates := &staticUpdates{table: table, bumps: make(chan uint64, 1)}
	d := New(DefaultConfig(), updates, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	updates.bumps <- 1

	select {
	case opp := <-events:
		if opp.SavingsPct < 0.05 {
			t.Errorf("savings = %v, want above threshold", opp.SavingsPct)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no opportunity emitted after a generation bump")
	}
}

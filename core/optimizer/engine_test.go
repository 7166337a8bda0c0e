package optimizer

import (
	"context"
	"math"
	"testing"
	"time"

	"cloudarb/core/models"
	"cloudarb/core/runstore"
)

type staticSource struct {
	table *models.PricingTable
	err   error
}

func (s *staticSource) WaitReady(ctx context.Context) error { return s.err }
func (s *staticSource) Snapshot() *models.PricingTable      { return s.table }

func makeTable(generation uint64, points ...models.PricePoint) *models.PricingTable {
	entries := make(map[models.LineKey]models.PricePoint, len(points))
	for _, p := range points {
		if p.ObservedAt.IsZero() {
			p.ObservedAt = time.Now()
		}
		entries[p.Key()] = p
	}
	return &models.PricingTable{Generation: generation, BuiltAt: time.Now(), Entries: entries}
}

func a100Point(provider models.Provider, instance, region string, gpus int, onDemand float64) models.PricePoint {
	return models.PricePoint{
		Provider: provider,
		Instance: instance,
		Region:   region,
		GPUKind:  "A100",
		GPUCount: gpus,
		OnDemand: onDemand,
	}
}

func newTestEngine(t *testing.T, table *models.PricingTable) *Engine {
	t.Helper()
	engine, err := New(Config{
		SolverDeadline: 2 * time.Second,
		GapTarget:      0.001,
		PoolSize:       2,
		BalancedLambda: 0.5,
		CacheSize:      16,
	}, &staticSource{table: table}, nil, runstore.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func baselineTable() *models.PricingTable {
	return makeTable(1,
		a100Point(models.ProviderAWS, "p4x.a100", "us-east-1", 1, 3.00),
		a100Point(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 1, 2.50),
		a100Point(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 1, 2.40),
	)
}

func TestQuickOptimizeBasicMinCost(t *testing.T) {
	engine := newTestEngine(t, baselineTable())

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 4, MaxCount: 4}},
		Objective:     models.ObjectiveMinCost,
		BudgetPerHour: 20,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}

	if alloc.Status != models.StatusOptimal {
		t.Fatalf("status = %s, want optimal", alloc.Status)
	}
	if len(alloc.Lines) != 1 {
		t.Fatalf("lines = %d, want 1: %+v", len(alloc.Lines), alloc.Lines)
	}
	line := alloc.Lines[0]
	if line.Provider != models.ProviderLambdaLabs || line.Count != 4 {
		t.Errorf("selected %s x%d, want lambdalabs x4", line.Provider, line.Count)
	}
	if math.Abs(alloc.TotalPerHour-9.60) > 1e-6 {
		t.Errorf("total = %v, want 9.60", alloc.TotalPerHour)
	}
}

func TestQuickOptimizeBudgetInfeasible(t *testing.T) {
	engine := newTestEngine(t, baselineTable())

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 8, MaxCount: 8}},
		Objective:     models.ObjectiveMinCost,
		BudgetPerHour: 5,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}
	if alloc.Status != models.StatusInfeasible {
		t.Fatalf("status = %s, want infeasible", alloc.Status)
	}
	if alloc.BindingConstraint != models.BindingBudget {
		t.Errorf("binding = %s, want budget", alloc.BindingConstraint)
	}
}

func TestQuickOptimizeRiskBlendsTowardOnDemand(t *testing.T) {
	awsSpot := a100Point(models.ProviderAWS, "p4x.a100", "us-east-1", 1, 3.00)
	awsSpot.Spot = 1.00
	awsSpot.HasSpot = true
	table := makeTable(1,
		awsSpot,
		a100Point(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 1, 2.50),
		a100Point(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 1, 2.40),
	)
	engine := newTestEngine(t, table)

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 2, MaxCount: 2}},
		Objective:     models.ObjectiveMinCost,
		BudgetPerHour: 10,
		RiskTolerance: 0.0,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}

	// With zero risk tolerance the AWS line prices at its on-demand rate, so
	// the cheap spot quote must not attract the allocation.
	if len(alloc.Lines) != 1 || alloc.Lines[0].Provider != models.ProviderLambdaLabs {
		t.Fatalf("lines = %+v, want 2x lambdalabs", alloc.Lines)
	}
	if math.Abs(alloc.TotalPerHour-4.80) > 1e-6 {
		t.Errorf("total = %v, want 4.80", alloc.TotalPerHour)
	}
}

func TestQuickOptimizeMixedInstanceSizes(t *testing.T) {
	table := makeTable(1,
		a100Point(models.ProviderAWS, "p4d.24xlarge", "us-east-1", 8, 16.00),
		a100Point(models.ProviderLambdaLabs, "gpu_1x_a100", "us-east-1", 1, 2.40),
	)
	engine := newTestEngine(t, table)

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 8, MaxCount: 8}},
		Objective:     models.ObjectiveMinCost,
		BudgetPerHour: 20,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}

	// 1x p4d at 16.00 beats 8x single-GPU at 19.20.
	if alloc.Status != models.StatusOptimal {
		t.Fatalf("status = %s, want optimal", alloc.Status)
	}
	if len(alloc.Lines) != 1 || alloc.Lines[0].Instance != "p4d.24xlarge" || alloc.Lines[0].Count != 1 {
		t.Fatalf("lines = %+v, want 1x p4d.24xlarge", alloc.Lines)
	}
	if math.Abs(alloc.TotalPerHour-16.00) > 1e-6 {
		t.Errorf("total = %v, want 16.00", alloc.TotalPerHour)
	}
}

func TestQuickOptimizeDeterministic(t *testing.T) {
	engine := newTestEngine(t, baselineTable())
	req := func() *models.Request {
		return &models.Request{
			Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 3, MaxCount: 4}},
			Objective:     models.ObjectiveMinCost,
			BudgetPerHour: 20,
		}
	}

	first, err := engine.QuickOptimize(context.Background(), req())
	if err != nil {
		t.Fatalf("first solve: %v", err)
	}
	// Bypass the cache with a fresh engine on the same snapshot.
	second, err := newTestEngine(t, baselineTable()).QuickOptimize(context.Background(), req())
	if err != nil {
		t.Fatalf("second solve: %v", err)
	}

	if first.ObjectiveValue != second.ObjectiveValue {
		t.Fatalf("objective differs: %v vs %v", first.ObjectiveValue, second.ObjectiveValue)
	}
	if len(first.Lines) != len(second.Lines) {
		t.Fatalf("lines differ: %+v vs %+v", first.Lines, second.Lines)
	}
	for i := range first.Lines {
		if first.Lines[i] != second.Lines[i] {
			t.Fatalf("line %d differs: %+v vs %+v", i, first.Lines[i], second.Lines[i])
		}
	}
}

func TestQuickOptimizeTieBreakPrefersProviderOrder(t *testing.T) {
	table := makeTable(1,
		a100Point(models.ProviderGCP, "a2-highgpu-1g", "us-central1", 1, 2.40),
		a100Point(models.ProviderAWS, "p4x.a100", "us-east-1", 1, 2.40),
	)
	engine := newTestEngine(t, table)

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 1, MaxCount: 1}},
		Objective:     models.ObjectiveMinCost,
		BudgetPerHour: 10,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}
	if len(alloc.Lines) != 1 || alloc.Lines[0].Provider != models.ProviderAWS {
		t.Fatalf("lines = %+v, want the ASCII-first provider (aws)", alloc.Lines)
	}
}

func TestQuickOptimizeValidation(t *testing.T) {
	engine := newTestEngine(t, baselineTable())

	cases := []struct {
		name string
		req  models.Request
	}{
		{"no workloads", models.Request{BudgetPerHour: 10}},
		{"min above max", models.Request{
			Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 4, MaxCount: 2}},
			BudgetPerHour: 10,
		}},
		{"zero budget", models.Request{
			Workloads: []models.WorkloadItem{{GPUKind: "A100", MinCount: 1, MaxCount: 1}},
		}},
		{"risk out of range", models.Request{
			Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 1, MaxCount: 1}},
			BudgetPerHour: 10,
			RiskTolerance: 1.5,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.QuickOptimize(context.Background(), &tc.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if models.CodeOf(err) != models.CodeInvalidRequest {
				t.Errorf("code = %s, want invalid_request", models.CodeOf(err))
			}
		})
	}
}

func TestQuickOptimizePricingUnavailable(t *testing.T) {
	source := &staticSource{
		table: makeTable(0),
		err:   models.NewError(models.CodePricingUnavailable, "no publish yet"),
	}
	engine, err := New(DefaultConfig(), source, nil, runstore.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	_, err = engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 1, MaxCount: 1}},
		BudgetPerHour: 10,
	})
	if models.CodeOf(err) != models.CodePricingUnavailable {
		t.Fatalf("code = %v, want pricing_unavailable", models.CodeOf(err))
	}
}

func TestQuickOptimizeCoverageInfeasible(t *testing.T) {
	engine := newTestEngine(t, baselineTable())

	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "H100", MinCount: 2, MaxCount: 2}},
		BudgetPerHour: 100,
	})
	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}
	if alloc.Status != models.StatusInfeasible || alloc.BindingConstraint != models.BindingCoverage {
		t.Fatalf("got status=%s binding=%s, want infeasible/coverage", alloc.Status, alloc.BindingConstraint)
	}
}

func TestQuickOptimizeDeadlineBounded(t *testing.T) {
	// A wide snapshot with a tight deadline must return promptly with a
	// feasible (or timed out) result, never an error.
	points := []models.PricePoint{}
	kinds := []string{"A100", "H100", "V100", "T4", "L4"}
	providerNames := []models.Provider{
		models.ProviderAWS, models.ProviderGCP, models.ProviderAzure,
		models.ProviderLambdaLabs, models.ProviderRunPod,
	}
	for ki, kind := range kinds {
		for pi, provider := range providerNames {
			for r := 0; r < 4; r++ {
				points = append(points, models.PricePoint{
					Provider: provider,
					Instance: kind + "-inst",
					Region:   []string{"us-east-1", "us-west-2", "eu-west-1", "ap-northeast-1"}[r],
					GPUKind:  kind,
					GPUCount: 1 + (pi % 3),
					OnDemand: 1.0 + float64(ki)*0.7 + float64(pi)*0.31 + float64(r)*0.013,
				})
			}
		}
	}
	engine := newTestEngine(t, makeTable(1, points...))

	var workloads []models.WorkloadItem
	for i := 0; i < 20; i++ {
		workloads = append(workloads, models.WorkloadItem{
			GPUKind:  kinds[i%len(kinds)],
			MinCount: 1 + i%3,
			MaxCount: 6 + i%3,
		})
	}

	start := time.Now()
	alloc, err := engine.QuickOptimize(context.Background(), &models.Request{
		Workloads:      workloads,
		Objective:      models.ObjectiveMinCost,
		BudgetPerHour:  10000,
		SolverDeadline: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("QuickOptimize: %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("solve took %v, want prompt return near the 100ms deadline", elapsed)
	}
	switch alloc.Status {
	case models.StatusOptimal, models.StatusFeasibleGap, models.StatusTimeout:
	default:
		t.Errorf("status = %s, want a bounded-deadline status", alloc.Status)
	}
}

func TestBudgetMonotonicity(t *testing.T) {
	// Shrinking the budget can never decrease the optimal objective.
	table := baselineTable()
	req := func(budget float64) *models.Request {
		return &models.Request{
			Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 2, MaxCount: 6}},
			Objective:     models.ObjectiveMinCost,
			BudgetPerHour: budget,
		}
	}

	prev := math.Inf(1)
	for _, budget := range []float64{20, 10, 6} {
		alloc, err := newTestEngine(t, table).QuickOptimize(context.Background(), req(budget))
		if err != nil {
			t.Fatalf("budget %v: %v", budget, err)
		}
		if alloc.Status != models.StatusOptimal {
			t.Fatalf("budget %v: status = %s", budget, alloc.Status)
		}
		if alloc.ObjectiveValue > prev+1e-9 {
			t.Errorf("objective rose from %v to %v as budget shrank", prev, alloc.ObjectiveValue)
		}
		if alloc.TotalPerHour > budget+1e-9 {
			t.Errorf("budget %v exceeded: total %v", budget, alloc.TotalPerHour)
		}
		prev = alloc.ObjectiveValue
	}
}

func TestSubmitAndGetOptimization(t *testing.T) {
	engine := newTestEngine(t, baselineTable())

	id, err := engine.SubmitOptimization(context.Background(), &models.Request{
		Workloads:     []models.WorkloadItem{{GPUKind: "A100", MinCount: 1, MaxCount: 1}},
		BudgetPerHour: 10,
	})
	if err != nil {
		t.Fatalf("SubmitOptimization: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		run, err := engine.GetOptimization(context.Background(), id)
		if err != nil {
			t.Fatalf("GetOptimization: %v", err)
		}
		if run.Status == models.RunCompleted {
			if run.Result == nil || run.Result.Status != models.StatusOptimal {
				t.Fatalf("run result = %+v, want optimal allocation", run.Result)
			}
			return
		}
		if run.Status == models.RunFailed {
			t.Fatalf("run failed: %s", run.Error)
		}
		select {
		case <-deadline:
			t.Fatalf("run %s never completed (status %s)", id, run.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGetOptimizationNotFound(t *testing.T) {
	engine := newTestEngine(t, baselineTable())
	_, err := engine.GetOptimization(context.Background(), "no-such-run")
	if models.CodeOf(err) != models.CodeRunNotFound {
		t.Fatalf("code = %v, want run_not_found", models.CodeOf(err))
	}
}

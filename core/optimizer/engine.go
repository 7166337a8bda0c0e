package optimizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"cloudarb/core/models"
	"cloudarb/core/runstore"
	"cloudarb/core/solver"
	"cloudarb/providers"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"
)

// SnapshotSource is the slice of the aggregator the engine reads.
type SnapshotSource interface {
	WaitReady(ctx context.Context) error
	Snapshot() *models.PricingTable
}

// Config carries the solve discipline.
type Config struct {
	SolverDeadline time.Duration // per-request cap
	GapTarget      float64       // target MILP gap
	PoolSize       int           // max concurrent solves
	BalancedLambda float64       // weight for the balanced objective
	CacheSize      int           // solution cache entries
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SolverDeadline: 30 * time.Second,
		GapTarget:      0.001,
		PoolSize:       4,
		BalancedLambda: 0.5,
		CacheSize:      256,
	}
}

// Engine builds and solves the allocation program over pricing snapshots.
// It is stateless between solves apart from the bounded solution cache;
// concurrent identical requests coalesce onto one in-flight solve.
type Engine struct {
	cfg     Config
	source  SnapshotSource
	catalog Catalog
	runs    runstore.Store

	pool  *ants.Pool
	cache *lru.Cache[string, *models.Allocation]
	group singleflight.Group

	newSolver func() solver.Solver
}

// New creates an engine with its solver pool.
func New(cfg Config, source SnapshotSource, cat Catalog, runs runstore.Store) (*Engine, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.SolverDeadline <= 0 {
		cfg.SolverDeadline = 30 * time.Second
	}
	if cfg.BalancedLambda <= 0 || cfg.BalancedLambda >= 1 {
		cfg.BalancedLambda = 0.5
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *models.Allocation](cfg.CacheSize)
	if err != nil {
		pool.Release()
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		source:    source,
		catalog:   cat,
		runs:      runs,
		pool:      pool,
		cache:     cache,
		newSolver: func() solver.Solver { return solver.NewBranchBound() },
	}, nil
}

// Close releases the solver pool.
func (e *Engine) Close() {
	e.pool.Release()
}

// QuickOptimize validates the request, snapshots the pricing table and
// solves synchronously within the solver deadline.
func (e *Engine) QuickOptimize(ctx context.Context, req *models.Request) (*models.Allocation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.source.WaitReady(ctx); err != nil {
		return nil, err
	}

	table := e.source.Snapshot()
	fp := fingerprint(req, table.Generation)

	if cached, ok := e.cache.Get(fp); ok {
		return cached, nil
	}

	v, err, _ := e.group.Do(fp, func() (interface{}, error) {
		alloc, serr := e.solveOnPool(ctx, req, table)
		if serr != nil {
			return nil, serr
		}
		e.cache.Add(fp, alloc)
		return alloc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Allocation), nil
}

// SubmitOptimization starts a named asynchronous run and returns its id.
func (e *Engine) SubmitOptimization(ctx context.Context, req *models.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	run := models.OptimizationRun{
		ID:        uuid.New().String(),
		Status:    models.RunPending,
		Request:   *req,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return "", err
	}

	go e.executeRun(run)
	return run.ID, nil
}

// GetOptimization returns the state of a named run.
func (e *Engine) GetOptimization(ctx context.Context, id string) (models.OptimizationRun, error) {
	return e.runs.Get(ctx, id)
}

// executeRun drives one asynchronous run to completion on a background
// context bounded by the solver deadline plus one minute.
func (e *Engine) executeRun(run models.OptimizationRun) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SolverDeadline+time.Minute)
	defer cancel()

	run.Status = models.RunRunning
	if err := e.runs.Update(ctx, run); err != nil {
		log.Printf("optimizer: run %s: update: %v", run.ID, err)
	}

	alloc, err := e.QuickOptimize(ctx, &run.Request)
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = models.RunCompleted
		run.Result = alloc
	}
	if err := e.runs.Update(ctx, run); err != nil {
		log.Printf("optimizer: run %s: update: %v", run.ID, err)
	}
}

// solveOnPool runs the solve on the bounded worker pool so at most
// PoolSize solves execute concurrently.
func (e *Engine) solveOnPool(ctx context.Context, req *models.Request, table *models.PricingTable) (*models.Allocation, error) {
	deadline := e.cfg.SolverDeadline
	if req.SolverDeadline > 0 && req.SolverDeadline < deadline {
		deadline = req.SolverDeadline
	}
	solveCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		alloc *models.Allocation
		err   error
	}
	done := make(chan outcome, 1)
	if err := e.pool.Submit(func() {
		alloc, serr := e.solve(solveCtx, req, table)
		done <- outcome{alloc: alloc, err: serr}
	}); err != nil {
		return nil, models.WrapError(models.CodeSolverFailure, err, "solver pool rejected solve")
	}

	select {
	case out := <-done:
		return out.alloc, out.err
	case <-ctx.Done():
		return nil, models.WrapError(models.CodeSolverFailure, ctx.Err(), "solve canceled")
	}
}

// solve formulates and solves one request against one snapshot.
func (e *Engine) solve(ctx context.Context, req *models.Request, table *models.PricingTable) (*models.Allocation, error) {
	start := time.Now()
	cands := buildCandidates(req, table, e.catalog)

	alloc := &models.Allocation{Generation: table.Generation}

	// Coverage short-circuit: a workload floor with no candidate lines can
	// never be met.
	if binding, infeasible := uncovered(req, cands); infeasible {
		alloc.Status = models.StatusInfeasible
		alloc.BindingConstraint = binding
		alloc.SolveMillis = time.Since(start).Milliseconds()
		return alloc, nil
	}

	prob := buildProblem(req, cands, e.cfg.BalancedLambda)
	s := e.newSolver()
	if err := s.Build(prob); err != nil {
		return nil, err
	}
	if err := s.Solve(ctx, e.cfg.GapTarget); err != nil {
		return nil, models.WrapError(models.CodeSolverFailure, err, "milp solve")
	}

	sol := s.Extract()
	alloc.SolveMillis = time.Since(start).Milliseconds()

	switch s.Status() {
	case solver.StatusOptimal:
		alloc.Status = models.StatusOptimal
	case solver.StatusFeasible:
		alloc.Status = models.StatusFeasibleGap
		alloc.Gap = sol.Gap
	case solver.StatusInfeasible:
		alloc.Status = models.StatusInfeasible
		alloc.BindingConstraint = diagnoseInfeasible(req, cands)
		return alloc, nil
	case solver.StatusTimeout:
		alloc.Status = models.StatusTimeout
		return alloc, nil
	default:
		return nil, models.NewError(models.CodeSolverFailure, "solver finished without a status")
	}

	alloc.ObjectiveValue = objectiveValue(req, cands, sol.X, e.cfg.BalancedLambda)
	for i, count := range sol.X {
		if count <= 0 {
			continue
		}
		c := cands[i]
		alloc.Lines = append(alloc.Lines, models.AllocationLine{
			Provider:     c.point.Provider,
			Instance:     c.point.Instance,
			Region:       c.point.Region,
			Count:        count,
			UnitPerHour:  c.eff,
			TotalPerHour: c.eff * float64(count),
			SpotBlend:    c.spotBlend,
		})
		alloc.TotalPerHour += c.eff * float64(count)
	}
	return alloc, nil
}

// uncovered reports whether some workload floor has zero candidate lines.
func uncovered(req *models.Request, cands []candidate) (models.BindingConstraint, bool) {
	covered := make(map[string]bool)
	for _, c := range cands {
		covered[c.kind] = true
	}
	for _, w := range req.Workloads {
		if w.MinCount == 0 {
			continue
		}
		if !covered[providers.CanonicalGPUKind(w.GPUKind)] {
			return models.BindingCoverage, true
		}
	}
	return "", false
}

// fingerprint derives the canonical cache key for (request, generation).
// Workload order does not change the key.
func fingerprint(req *models.Request, generation uint64) string {
	items := make([]string, 0, len(req.Workloads))
	for _, w := range req.Workloads {
		items = append(items, fmt.Sprintf("%s:%d:%d:%.4f",
			providers.CanonicalGPUKind(w.GPUKind), w.MinCount, w.MaxCount, w.DurationHours))
	}
	sort.Strings(items)

	provs := make([]string, 0, len(req.ProviderAllowlist))
	for _, p := range req.ProviderAllowlist {
		provs = append(provs, string(p))
	}
	sort.Strings(provs)
	regions := append([]string(nil), req.RegionAllowlist...)
	sort.Strings(regions)

	var b strings.Builder
	fmt.Fprintf(&b, "g=%d|o=%s|b=%.6f|r=%.4f|d=%s|", generation, req.Objective,
		req.BudgetPerHour, req.RiskTolerance, req.SolverDeadline)
	b.WriteString(strings.Join(items, ";"))
	b.WriteString("|")
	b.WriteString(strings.Join(provs, ";"))
	b.WriteString("|")
	b.WriteString(strings.Join(regions, ";"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

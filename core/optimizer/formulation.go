package optimizer

import (
	"math"
	"sort"
	"strings"

	"cloudarb/core/models"
	"cloudarb/core/solver"
	"cloudarb/providers"
)

// candidate is one line admitted into the formulation.
type candidate struct {
	point     models.PricePoint
	kind      string  // canonical GPU kind
	eff       float64 // effective $/hr per instance
	perf      float64 // benchmark score per instance
	spotBlend float64 // spot weight inside eff
	upper     int     // tightened variable upper bound
}

// Catalog resolves instance metadata for perf scores and capacity.
type Catalog interface {
	Instance(provider models.Provider, name string) (models.InstanceType, bool)
}

// buildCandidates selects and pre-processes the lines of a snapshot for a
// request: allowlists, referenced GPU kinds only, unit price within budget,
// and tightened upper bounds. Candidates inherit the snapshot's
// deterministic line order.
func buildCandidates(req *models.Request, table *models.PricingTable, cat Catalog) []candidate {
	kinds := make(map[string]int) // canonical kind -> max over matching workloads of MaxCount
	for _, w := range req.Workloads {
		kind := providers.CanonicalGPUKind(w.GPUKind)
		if w.MaxCount > kinds[kind] {
			kinds[kind] = w.MaxCount
		}
	}

	var out []candidate
	for _, point := range table.Lines() {
		if point.GPUCount <= 0 {
			continue
		}
		if !req.AllowsProvider(point.Provider) || !req.AllowsRegion(point.Region) {
			continue
		}
		maxCount, referenced := kinds[point.GPUKind]
		if !referenced {
			continue
		}

		eff := point.EffectivePrice(req.RiskTolerance)
		if eff > req.BudgetPerHour {
			// A single instance already blows the budget.
			continue
		}

		upper := (maxCount + point.GPUCount - 1) / point.GPUCount
		if point.Capacity > 0 && point.Capacity < upper {
			upper = point.Capacity
		}
		if upper <= 0 {
			continue
		}

		perf := float64(point.GPUCount) * benchmarkScore(point.GPUKind)
		if cat != nil {
			if it, ok := cat.Instance(point.Provider, point.Instance); ok && it.PerfScore > 0 {
				perf = it.PerfScore
			}
		}

		out = append(out, candidate{
			point:     point,
			kind:      point.GPUKind,
			eff:       eff,
			perf:      perf,
			spotBlend: point.SpotBlend(req.RiskTolerance),
			upper:     upper,
		})
	}
	return out
}

// buildProblem assembles the integer program for a request over the
// admitted candidates.
func buildProblem(req *models.Request, cands []candidate, balancedLambda float64) solver.Problem {
	n := len(cands)

	var rows []solver.Row
	for _, w := range req.Workloads {
		kind := providers.CanonicalGPUKind(w.GPUKind)
		coeffs := make([]float64, n)
		for i, c := range cands {
			if c.kind == kind {
				coeffs[i] = float64(c.point.GPUCount)
			}
		}
		rows = append(rows, solver.Row{
			Coeffs: coeffs,
			Lo:     float64(w.MinCount),
			Hi:     float64(w.MaxCount),
		})
	}

	budgetCoeffs := make([]float64, n)
	for i, c := range cands {
		budgetCoeffs[i] = c.eff
	}
	rows = append(rows, solver.Row{
		Coeffs: budgetCoeffs,
		Lo:     math.Inf(-1),
		Hi:     req.BudgetPerHour,
	})

	obj := make([]float64, n)
	switch req.Objective {
	case models.ObjectiveMaxPerformance:
		for i, c := range cands {
			obj[i] = -c.perf
		}
	case models.ObjectiveBalanced:
		perfMax := 0.0
		for _, c := range cands {
			if c.perf > perfMax {
				perfMax = c.perf
			}
		}
		if perfMax <= 0 {
			perfMax = 1
		}
		lambda := balancedLambda
		for i, c := range cands {
			obj[i] = lambda*c.eff/req.BudgetPerHour - (1-lambda)*c.perf/perfMax
		}
	default: // min-cost
		for i, c := range cands {
			obj[i] = c.eff
		}
	}

	// Deterministic lexicographic perturbation steers the relaxation among
	// alternate optima: lower spot weight wins first, then the candidate
	// order, which is already provider/instance/region ASCII. The
	// perturbation is far below price granularity and is stripped from the
	// reported objective.
	for i, c := range cands {
		obj[i] += 1e-7*c.spotBlend + 1e-9*float64(i+1)
	}

	upper := make([]int, n)
	for i, c := range cands {
		upper[i] = c.upper
	}

	return solver.Problem{
		Obj:   obj,
		Rows:  rows,
		Upper: upper,
		TieBreak: func(a, b []int) bool {
			return tieLess(cands, a, b)
		},
	}
}

// objectiveValue recomputes the unperturbed objective for a solution.
func objectiveValue(req *models.Request, cands []candidate, x []int, balancedLambda float64) float64 {
	perfMax := 0.0
	for _, c := range cands {
		if c.perf > perfMax {
			perfMax = c.perf
		}
	}
	if perfMax <= 0 {
		perfMax = 1
	}

	var sum float64
	for i, count := range x {
		if count <= 0 {
			continue
		}
		c := cands[i]
		switch req.Objective {
		case models.ObjectiveMaxPerformance:
			sum += -c.perf * float64(count)
		case models.ObjectiveBalanced:
			sum += (balancedLambda*c.eff/req.BudgetPerHour - (1-balancedLambda)*c.perf/perfMax) * float64(count)
		default:
			sum += c.eff * float64(count)
		}
	}
	return sum
}

// tieLess orders equal-objective solutions: lower spot weight first, then
// fewer distinct lines, then provider/instance/region ASCII order.
func tieLess(cands []candidate, a, b []int) bool {
	spotA, linesA := solutionShape(cands, a)
	spotB, linesB := solutionShape(cands, b)

	if spotA != spotB {
		return spotA < spotB
	}
	if linesA != linesB {
		return linesA < linesB
	}
	return solutionKey(cands, a) < solutionKey(cands, b)
}

func solutionShape(cands []candidate, x []int) (spotWeight float64, lines int) {
	for i, count := range x {
		if count <= 0 {
			continue
		}
		lines++
		spotWeight += float64(count) * cands[i].spotBlend
	}
	return spotWeight, lines
}

func solutionKey(cands []candidate, x []int) string {
	var parts []string
	for i, count := range x {
		if count <= 0 {
			continue
		}
		parts = append(parts, cands[i].point.Key().String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// diagnoseInfeasible names the binding constraint for an infeasible
// request: missing coverage, insufficient capacity, or budget.
func diagnoseInfeasible(req *models.Request, cands []candidate) models.BindingConstraint {
	required := make(map[string]int)
	for _, w := range req.Workloads {
		kind := providers.CanonicalGPUKind(w.GPUKind)
		if w.MinCount > required[kind] {
			required[kind] = w.MinCount
		}
	}

	byKind := make(map[string][]candidate)
	for _, c := range cands {
		byKind[c.kind] = append(byKind[c.kind], c)
	}

	minCost := 0.0
	for kind, need := range required {
		if need == 0 {
			continue
		}
		group := byKind[kind]
		if len(group) == 0 {
			return models.BindingCoverage
		}

		available := 0
		for _, c := range group {
			available += c.upper * c.point.GPUCount
		}
		if available < need {
			return models.BindingCapacity
		}

		// Greedy cheapest-per-GPU fill estimates the minimum cost of
		// meeting this kind's floor.
		sort.Slice(group, func(i, j int) bool {
			pi := group[i].eff / float64(group[i].point.GPUCount)
			pj := group[j].eff / float64(group[j].point.GPUCount)
			return pi < pj
		})
		remaining := need
		for _, c := range group {
			if remaining <= 0 {
				break
			}
			take := (remaining + c.point.GPUCount - 1) / c.point.GPUCount
			if take > c.upper {
				take = c.upper
			}
			minCost += float64(take) * c.eff
			remaining -= take * c.point.GPUCount
		}
	}

	if minCost > req.BudgetPerHour {
		return models.BindingBudget
	}
	return models.BindingCapacity
}

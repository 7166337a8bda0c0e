package solver

import (
	"context"
	"errors"
	"math"

	"cloudarb/core/models"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	intTol   = 1e-6
	objTol   = 1e-9
	maxNodes = 200000
)

// BranchBound solves the integer program by branch-and-bound over the LP
// relaxation. The relaxation is solved with gonum's simplex; branching is
// depth-first on the most fractional variable, floor branch first, which
// keeps the search deterministic for identical inputs.
type BranchBound struct {
	prob   Problem
	n      int
	status Status

	best    []int
	bestObj float64
	gap     float64
	nodes   int
}

// NewBranchBound returns an unbuilt solver. Instances are single-use per
// solve and must not be shared across concurrent solves.
func NewBranchBound() *BranchBound {
	return &BranchBound{status: StatusUnsolved}
}

// Build implements Solver.
func (b *BranchBound) Build(p Problem) error {
	n := len(p.Obj)
	if len(p.Upper) != n {
		return models.NewError(models.CodeSolverFailure, "objective and bound dimensions differ")
	}
	for _, row := range p.Rows {
		if len(row.Coeffs) != n {
			return models.NewError(models.CodeSolverFailure, "constraint dimension mismatch")
		}
	}
	b.prob = p
	b.n = n
	b.status = StatusUnsolved
	b.best = nil
	b.bestObj = math.Inf(1)
	b.gap = 0
	b.nodes = 0
	return nil
}

// Status implements Solver.
func (b *BranchBound) Status() Status { return b.status }

// Extract implements Solver.
func (b *BranchBound) Extract() Solution {
	return Solution{X: b.best, Objective: b.bestObj, Gap: b.gap, Nodes: b.nodes}
}

type node struct {
	lower []int
	upper []int
}

// Solve implements Solver. The search stops at the ctx deadline, at the
// node budget, or when the residual gap drops under gapTarget.
func (b *BranchBound) Solve(ctx context.Context, gapTarget float64) error {
	if b.n == 0 {
		// Degenerate program: only the empty solution exists.
		if b.zeroFeasible() {
			b.best = []int{}
			b.bestObj = 0
			b.status = StatusOptimal
		} else {
			b.status = StatusInfeasible
		}
		return nil
	}

	rootLower := make([]int, b.n)
	rootUpper := make([]int, b.n)
	copy(rootUpper, b.prob.Upper)

	rootObj, _, rootFeasible, err := b.solveRelax(rootLower, rootUpper)
	if err != nil {
		return err
	}
	if !rootFeasible {
		b.status = StatusInfeasible
		return nil
	}
	rootBound := rootObj

	stack := []node{{lower: rootLower, upper: rootUpper}}
	deadlineHit := false

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			deadlineHit = true
		default:
		}
		if deadlineHit || b.nodes >= maxNodes {
			deadlineHit = true
			break
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b.nodes++

		obj, x, feasible, err := b.solveRelax(nd.lower, nd.upper)
		if err != nil {
			return err
		}
		if !feasible {
			continue
		}
		if b.best != nil && obj > b.bestObj+objTol {
			continue
		}
		// Equal-bound nodes stay open only when a tie-break has to pick
		// among alternate optima.
		if b.best != nil && b.prob.TieBreak == nil && obj > b.bestObj-objTol {
			continue
		}

		frac := mostFractional(x)
		if frac < 0 {
			candidate := roundSolution(x)
			if !b.integerFeasible(candidate) {
				continue
			}
			candObj := b.objective(candidate)
			switch {
			case b.best == nil || candObj < b.bestObj-objTol:
				b.best = candidate
				b.bestObj = candObj
			case candObj <= b.bestObj+objTol && b.prob.TieBreak != nil &&
				b.prob.TieBreak(candidate, b.best):
				b.best = candidate
				b.bestObj = candObj
			}
			if b.best != nil {
				g := residualGap(b.bestObj, rootBound)
				if g <= objTol && b.prob.TieBreak == nil {
					// Incumbent meets the root relaxation bound: proven
					// optimal. With a tie-break the search continues so
					// alternate optima can be ranked.
					b.gap = 0
					b.status = StatusOptimal
					return nil
				}
				if gapTarget > 0 && g > objTol && g <= gapTarget {
					b.gap = g
					b.status = StatusFeasible
					return nil
				}
			}
			continue
		}

		floorBranch := node{lower: cloneInts(nd.lower), upper: cloneInts(nd.upper)}
		floorBranch.upper[frac] = int(math.Floor(x[frac]))
		ceilBranch := node{lower: cloneInts(nd.lower), upper: cloneInts(nd.upper)}
		ceilBranch.lower[frac] = int(math.Ceil(x[frac]))

		// LIFO: push ceil first so the floor branch is explored first.
		if ceilBranch.lower[frac] <= ceilBranch.upper[frac] {
			stack = append(stack, ceilBranch)
		}
		if floorBranch.upper[frac] >= floorBranch.lower[frac] {
			stack = append(stack, floorBranch)
		}
	}

	switch {
	case b.best != nil && !deadlineHit:
		b.gap = 0
		b.status = StatusOptimal
	case b.best != nil:
		b.gap = residualGap(b.bestObj, rootBound)
		b.status = StatusFeasible
	case deadlineHit:
		b.status = StatusTimeout
	default:
		b.status = StatusInfeasible
	}
	return nil
}

// solveRelax solves the LP relaxation under the node's variable bounds.
// The program is converted to the standard form gonum's simplex accepts:
// every constraint becomes coeffs·x <= h with one slack variable.
func (b *BranchBound) solveRelax(lower, upper []int) (obj float64, x []float64, feasible bool, err error) {
	type leRow struct {
		coeffs []float64
		bound  float64
	}
	var rows []leRow

	for _, r := range b.prob.Rows {
		if !math.IsInf(r.Hi, 1) {
			rows = append(rows, leRow{coeffs: r.Coeffs, bound: r.Hi})
		}
		if !math.IsInf(r.Lo, -1) {
			neg := make([]float64, b.n)
			for i, c := range r.Coeffs {
				neg[i] = -c
			}
			rows = append(rows, leRow{coeffs: neg, bound: -r.Lo})
		}
	}
	for i := 0; i < b.n; i++ {
		coeffs := make([]float64, b.n)
		coeffs[i] = 1
		rows = append(rows, leRow{coeffs: coeffs, bound: float64(upper[i])})
		if lower[i] > 0 {
			neg := make([]float64, b.n)
			neg[i] = -1
			rows = append(rows, leRow{coeffs: neg, bound: -float64(lower[i])})
		}
	}

	m := len(rows)
	cols := b.n + m
	data := make([]float64, m*cols)
	bvec := make([]float64, m)
	for i, row := range rows {
		copy(data[i*cols:i*cols+b.n], row.coeffs)
		data[i*cols+b.n+i] = 1 // slack
		bvec[i] = row.bound
	}
	c := make([]float64, cols)
	copy(c, b.prob.Obj)

	_, xStd, serr := lp.Simplex(c, mat.NewDense(m, cols, data), bvec, 1e-10, nil)
	if serr != nil {
		if errors.Is(serr, lp.ErrInfeasible) {
			return 0, nil, false, nil
		}
		if errors.Is(serr, lp.ErrUnbounded) {
			// All variables carry finite upper bounds; an unbounded
			// relaxation means the model was built wrong.
			return 0, nil, false, models.WrapError(models.CodeSolverFailure, serr, "unbounded relaxation")
		}
		return 0, nil, false, models.WrapError(models.CodeSolverFailure, serr, "lp relaxation")
	}

	x = xStd[:b.n]
	for i, v := range x {
		obj += b.prob.Obj[i] * v
	}
	return obj, x, true, nil
}

func (b *BranchBound) zeroFeasible() bool {
	for _, r := range b.prob.Rows {
		if r.Lo > intTol || r.Hi < -intTol {
			return false
		}
	}
	return true
}

func (b *BranchBound) objective(x []int) float64 {
	var sum float64
	for i, v := range x {
		sum += b.prob.Obj[i] * float64(v)
	}
	return sum
}

// integerFeasible re-checks the rounded solution against every row.
func (b *BranchBound) integerFeasible(x []int) bool {
	for i, v := range x {
		if v < 0 || v > b.prob.Upper[i] {
			return false
		}
	}
	for _, r := range b.prob.Rows {
		var sum float64
		for i, c := range r.Coeffs {
			sum += c * float64(x[i])
		}
		if sum < r.Lo-intTol || sum > r.Hi+intTol {
			return false
		}
	}
	return true
}

// mostFractional picks the variable whose fractional part is closest to
// one half, or -1 when the vector is integral.
func mostFractional(x []float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range x {
		f := v - math.Floor(v)
		if f < intTol || f > 1-intTol {
			continue
		}
		d := math.Abs(f - 0.5)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func roundSolution(x []float64) []int {
	out := make([]int, len(x))
	for i, v := range x {
		out[i] = int(math.Round(v))
	}
	return out
}

func cloneInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func residualGap(incumbent, bound float64) float64 {
	if incumbent <= bound {
		return 0
	}
	denom := math.Abs(incumbent)
	if denom < 1e-9 {
		denom = 1e-9
	}
	return (incumbent - bound) / denom
}

package solver

import "context"

// Status is the outcome class of a solve.
type Status int

const (
	StatusUnsolved Status = iota
	// StatusOptimal means the incumbent is a proven optimum: the search tree
	// was exhausted, or the incumbent meets the root relaxation bound.
	StatusOptimal
	// StatusFeasible means an integer solution exists with a residual
	// optimality gap (deadline or gap-target stop).
	StatusFeasible
	// StatusInfeasible means the problem is proven to have no integer
	// solution.
	StatusInfeasible
	// StatusTimeout means the deadline passed before any integer solution
	// was found.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeout:
		return "timeout"
	default:
		return "unsolved"
	}
}

// Row is one linear constraint Lo <= Coeffs·x <= Hi. Use math.Inf for
// one-sided rows.
type Row struct {
	Coeffs []float64
	Lo, Hi float64
}

// Problem is a minimization over non-negative integer variables:
//
//	minimize Obj·x  subject to the Rows, 0 <= x_i <= Upper[i], x integer.
type Problem struct {
	Obj   []float64
	Rows  []Row
	Upper []int

	// TieBreak, when set, orders equal-objective integer solutions; it
	// reports whether candidate should replace incumbent. Required for
	// deterministic selection among alternate optima.
	TieBreak func(candidate, incumbent []int) bool
}

// Solution is an extracted integer solution.
type Solution struct {
	X         []int
	Objective float64
	Gap       float64
	Nodes     int
}

// Solver is the capability interface concrete MILP implementations plug
// into. The deadline arrives via ctx; implementations check it between
// nodes and return the best incumbent found.
type Solver interface {
	Build(p Problem) error
	Solve(ctx context.Context, gapTarget float64) error
	Status() Status
	Extract() Solution
}

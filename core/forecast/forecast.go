package forecast

import "context"

// Signal is an expected relative demand for a GPU kind over a horizon.
// ExpectedRelativeDemand of 1.0 means demand in line with the trailing
// baseline; above 1.0 means demand pressure.
type Signal struct {
	ExpectedRelativeDemand float64
	Confidence             float64 // 0.0 .. 1.0
}

// Source supplies demand signals. Absence of a source is non-fatal; risk
// scoring simply drops the demand component.
type Source interface {
	GetDemandSignal(ctx context.Context, gpuKind string, horizonHours int) (Signal, error)
}

// Static is a fixed-signal source, used when no forecasting service is
// wired in and in tests.
type Static struct {
	byKind map[string]Signal
}

// NewStatic creates a static source from per-kind signals.
func NewStatic(byKind map[string]Signal) *Static {
	return &Static{byKind: byKind}
}

// GetDemandSignal implements Source. Unknown kinds report neutral demand
// with zero confidence.
func (s *Static) GetDemandSignal(_ context.Context, gpuKind string, _ int) (Signal, error) {
	if sig, ok := s.byKind[gpuKind]; ok {
		return sig, nil
	}
	return Signal{ExpectedRelativeDemand: 1, Confidence: 0}, nil
}

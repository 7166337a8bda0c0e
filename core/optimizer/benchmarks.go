package optimizer

// benchmarkScores holds static per-GPU benchmark scores used by the
// max-performance and balanced objectives. Scores are relative training
// throughput per GPU, normalized so V100 = 100.
var benchmarkScores = map[string]float64{
	"H100":   520,
	"GH200":  560,
	"A100":   312,
	"MI300X": 330,
	"A10G":   125,
	"A10":    125,
	"L40S":   180,
	"L4":     120,
	"V100":   100,
	"T4":     65,
	"K80":    30,
}

// defaultBenchmarkScore is assumed for GPU kinds without a benchmark entry.
const defaultBenchmarkScore = 50

// benchmarkScore returns the per-GPU score for a canonical kind.
func benchmarkScore(gpuKind string) float64 {
	if score, ok := benchmarkScores[gpuKind]; ok {
		return score
	}
	return defaultBenchmarkScore
}

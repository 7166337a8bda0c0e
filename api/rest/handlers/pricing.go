package handlers

import (
	"net/http"
	"time"

	"cloudarb/core/aggregator"
	"cloudarb/core/models"
)

// PricingHandler serves pricing snapshots and aggregator health.
type PricingHandler struct {
	agg *aggregator.Aggregator
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(agg *aggregator.Aggregator) *PricingHandler {
	return &PricingHandler{agg: agg}
}

// SnapshotResponse is the wire shape of a pricing snapshot.
type SnapshotResponse struct {
	Generation uint64              `json:"generation"`
	BuiltAt    time.Time           `json:"built_at"`
	Points     []models.PricePoint `json:"points"`
}

// GetSnapshot handles GET /v1/pricing/snapshot with optional gpu_kind,
// provider and region query filters.
func (h *PricingHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	table := h.agg.Snapshot()

	kind := r.URL.Query().Get("gpu_kind")
	provider := r.URL.Query().Get("provider")
	region := r.URL.Query().Get("region")

	points := make([]models.PricePoint, 0)
	for _, p := range table.Lines() {
		if kind != "" && p.GPUKind != kind {
			continue
		}
		if provider != "" && string(p.Provider) != provider {
			continue
		}
		if region != "" && p.Region != region {
			continue
		}
		points = append(points, p)
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{
		Generation: table.Generation,
		BuiltAt:    table.BuiltAt,
		Points:     points,
	})
}

// HealthResponse is the operator-facing health payload.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Generation uint64                     `json:"generation"`
	Adapters   []aggregator.AdapterHealth `json:"adapters"`
	Cycles     int64                      `json:"cycles"`
	Dropped    int64                      `json:"dropped_points"`
	Incidents  int64                      `json:"parse_incidents"`
	Evicted    int64                      `json:"evicted_entries"`
}

// Health handles GET /health
func (h *PricingHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.agg.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Generation: h.agg.Snapshot().Generation,
		Adapters:   h.agg.Health(),
		Cycles:     stats.Cycles.Load(),
		Dropped:    stats.DroppedPoints.Load(),
		Incidents:  stats.ParseIncidents.Load(),
		Evicted:    stats.EvictedEntries.Load(),
	})
}

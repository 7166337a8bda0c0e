package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"cloudarb/core/arbitrage"
)

// OpportunityHandler streams arbitrage opportunities.
type OpportunityHandler struct {
	detector *arbitrage.Detector
}

// NewOpportunityHandler creates a new opportunity handler.
func NewOpportunityHandler(detector *arbitrage.Detector) *OpportunityHandler {
	return &OpportunityHandler{detector: detector}
}

// Stream handles GET /v1/opportunities/stream as server-sent events. The
// subscription ends when the client disconnects.
func (h *OpportunityHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := h.detector.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case opp, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(opp)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: opportunity\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

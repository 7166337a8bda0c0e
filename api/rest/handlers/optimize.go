package handlers

import (
	"encoding/json"
	"net/http"

	"cloudarb/core/models"
	"cloudarb/core/optimizer"

	"github.com/gorilla/mux"
)

// OptimizeHandler handles optimization HTTP requests.
type OptimizeHandler struct {
	engine *optimizer.Engine
}

// NewOptimizeHandler creates a new optimization handler.
func NewOptimizeHandler(engine *optimizer.Engine) *OptimizeHandler {
	return &OptimizeHandler{engine: engine}
}

// QuickOptimize handles POST /v1/optimize
func (h *OptimizeHandler) QuickOptimize(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewError(models.CodeInvalidRequest, "invalid request body"))
		return
	}

	alloc, err := h.engine.QuickOptimize(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

// SubmitOptimizationResponse is the response for a submitted run.
type SubmitOptimizationResponse struct {
	RunID string `json:"run_id"`
}

// SubmitOptimization handles POST /v1/optimizations
func (h *OptimizeHandler) SubmitOptimization(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewError(models.CodeInvalidRequest, "invalid request body"))
		return
	}

	runID, err := h.engine.SubmitOptimization(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitOptimizationResponse{RunID: runID})
}

// GetOptimization handles GET /v1/optimizations/{id}
func (h *OptimizeHandler) GetOptimization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.engine.GetOptimization(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// errorResponse is the wire shape of a failed call.
type errorResponse struct {
	Code    models.Code `json:"code"`
	Message string      `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := models.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case models.CodeInvalidRequest:
		status = http.StatusBadRequest
	case models.CodeRunNotFound:
		status = http.StatusNotFound
	case models.CodePricingUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

package routes

import (
	"cloudarb/api/rest/handlers"
	"cloudarb/core/aggregator"
	"cloudarb/core/arbitrage"
	"cloudarb/core/optimizer"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, engine *optimizer.Engine, agg *aggregator.Aggregator, detector *arbitrage.Detector) {
	optimizeHandler := handlers.NewOptimizeHandler(engine)
	pricingHandler := handlers.NewPricingHandler(agg)
	opportunityHandler := handlers.NewOpportunityHandler(detector)

	api := r.PathPrefix("/v1").Subrouter()

	// Optimization endpoints
	api.HandleFunc("/optimize", optimizeHandler.QuickOptimize).Methods("POST")
	api.HandleFunc("/optimizations", optimizeHandler.SubmitOptimization).Methods("POST")
	api.HandleFunc("/optimizations/{id}", optimizeHandler.GetOptimization).Methods("GET")

	// Pricing endpoints
	api.HandleFunc("/pricing/snapshot", pricingHandler.GetSnapshot).Methods("GET")

	// Opportunity stream
	api.HandleFunc("/opportunities/stream", opportunityHandler.Stream).Methods("GET")

	// Health
	r.HandleFunc("/health", pricingHandler.Health).Methods("GET")
}

package routes

import (
	"net/http"

	"github.com/zatekoja/bpcare/internal/api/handlers"
	"github.com/zatekoja/bpcare/internal/api/middleware"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Readings        *handlers.BPReadingHandler
	Recommendations *handlers.RecommendationHandler
	DoctorLinks     *handlers.DoctorLinkHandler
	Chatbot         *handlers.ChatbotHandler
	AI              *handlers.AIHandler
	// Events is optional; the stream is only mounted when an event bus is available.
	Events *handlers.EventStreamHandler
}

// Router holds all route handlers
type Router struct {
	mux            *http.ServeMux
	api            *http.ServeMux
	handlers       Handlers
	metrics        *observability.Metrics
	allowedOrigins []string
}

// NewRouter creates a new router
func NewRouter(h Handlers, metrics *observability.Metrics, allowedOrigins []string) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		api:            http.NewServeMux(),
		handlers:       h,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
	}
}

// SetupRoutes registers every endpoint and returns the wrapped handler
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Everything under /api requires a principal
	r.mux.Handle("/api/", middleware.PrincipalMiddleware(r.api))

	readings := r.handlers.Readings
	r.api.HandleFunc("POST /api/bp-readings", readings.Submit)
	r.api.HandleFunc("GET /api/bp-readings/progress", readings.Progress)
	r.api.HandleFunc("GET /api/bp-readings/trend", readings.Trend)

	recs := r.handlers.Recommendations
	r.api.HandleFunc("POST /api/recommendations/generate", recs.Generate)
	r.api.HandleFunc("GET /api/recommendations", recs.List)
	r.api.HandleFunc("GET /api/recommendations/pending", recs.ListPending)
	r.api.HandleFunc("GET /api/recommendations/{id}", recs.Get)
	r.api.HandleFunc("PUT /api/recommendations/{id}/approve", recs.Approve)
	r.api.HandleFunc("PUT /api/recommendations/{id}/reject", recs.Reject)
	r.api.HandleFunc("PUT /api/recommendations/{id}/modify", recs.Modify)
	r.api.HandleFunc("POST /api/recommendations/{id}/assign", recs.Assign)
	r.api.HandleFunc("PUT /api/recommendations/{id}/select-medications", recs.SelectMedications)

	links := r.handlers.DoctorLinks
	r.api.HandleFunc("POST /api/doctor-links", links.Request)
	r.api.HandleFunc("GET /api/doctor-links/mine", links.Mine)
	r.api.HandleFunc("GET /api/doctor-links/requests", links.Requests)
	r.api.HandleFunc("GET /api/doctor-links/patients", links.Patients)
	r.api.HandleFunc("PUT /api/doctor-links/{id}/accept", links.Accept)
	r.api.HandleFunc("PUT /api/doctor-links/{id}/decline", links.Decline)

	r.api.HandleFunc("POST /api/chatbot/message", r.handlers.Chatbot.Message)
	r.api.HandleFunc("GET /api/chatbot/history", r.handlers.Chatbot.History)

	ai := r.handlers.AI
	r.api.HandleFunc("GET /api/ai/status", ai.Status)
	r.api.HandleFunc("POST /api/ai/test", ai.Test)
	r.api.HandleFunc("POST /api/ai/reinit", ai.Reinit)
	r.api.HandleFunc("PUT /api/ai/demo-mode", ai.SetDemoMode)

	if r.handlers.Events != nil {
		r.api.HandleFunc("GET /api/events/stream", r.handlers.Events.Stream)
	}

	// last wrapper runs first
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.Compression(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// /decisions/history and /decisions/pending routes are registered before
// /decisions/{id} so chi never treats them as decision ids.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.HealthCheck)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Workflow policies
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/toggle", h.ToggleWorkflow)
		r.Put("/workflows/{id}/confidence", h.SetWorkflowThreshold)
		r.Put("/workflows/{id}/autonomy", h.SetWorkflowAutonomy)

		// Decisions
		r.Post("/decisions", h.SubmitDecision)
		r.Get("/decisions/pending", h.ListPendingDecisions)
		r.Get("/decisions/history", h.ListHistory)
		r.Get("/decisions/{id}", h.GetDecision)
		r.Post("/decisions/{id}/approve", h.ApproveDecision)
		r.Post("/decisions/{id}/reject", h.RejectDecision)
	})
}

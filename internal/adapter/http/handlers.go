package http

import (
	"net/http"
	"strconv"

	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
	"github.com/decisiongate/decisiongate/internal/service"
)

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	Registry  *service.Registry
	Router    *service.Router
	Approvals *service.Approvals
	History   *service.History
	Hub       *ws.Hub
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(registry *service.Registry, router *service.Router, approvals *service.Approvals, hist *service.History, hub *ws.Hub) *Handlers {
	return &Handlers{
		Registry:  registry,
		Router:    router,
		Approvals: approvals,
		History:   hist,
		Hub:       hub,
	}
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.Registry.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "workflows unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfgs)
}

func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workflow.CreateRequest](w, r)
	if !ok {
		return
	}

	cfg, err := h.Registry.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Registry.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) ToggleWorkflow(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be true or false")
		return
	}

	cfg, err := h.Registry.Toggle(r.Context(), urlParam(r, "id"), enabled)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) SetWorkflowThreshold(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "threshold must be a number")
		return
	}

	cfg, err := h.Registry.SetThreshold(r.Context(), urlParam(r, "id"), threshold)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) SetWorkflowAutonomy(w http.ResponseWriter, r *http.Request) {
	level := workflow.AutonomyLevel(r.URL.Query().Get("level"))

	cfg, err := h.Registry.SetAutonomy(r.Context(), urlParam(r, "id"), level)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

func (h *Handlers) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decision.SubmitRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Router.Route(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}

	status := http.StatusCreated
	if d.Status == decision.StatusPendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, d)
}

func (h *Handlers) ListPendingDecisions(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Approvals.ListPending(r.Context())
	if err != nil {
		writeDomainError(w, err, "decisions unavailable")
		return
	}
	if pending == nil {
		pending = []decision.Decision{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type verdictRequest struct {
	Feedback string `json:"feedback,omitempty"`
}

func (h *Handlers) ApproveDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[verdictRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Approvals.Approve(r.Context(), urlParam(r, "id"), req.Feedback)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) RejectDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[verdictRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Approvals.Reject(r.Context(), urlParam(r, "id"), req.Feedback)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Outcome:    r.URL.Query().Get("outcome"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = limit
	}

	entries, err := h.History.Query(r.Context(), q)
	if err != nil {
		writeDomainError(w, err, "history unavailable")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

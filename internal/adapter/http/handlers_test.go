package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/decisiongate/decisiongate/internal/adapter/memory"
	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
	"github.com/decisiongate/decisiongate/internal/resilience"
	"github.com/decisiongate/decisiongate/internal/scoring"
	"github.com/decisiongate/decisiongate/internal/service"
)

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, _ string, d *decision.Decision) (*decision.ExecutionResult, error) {
	return &decision.ExecutionResult{
		DecisionID: d.ID,
		Output:     json.RawMessage(`{"status":"done"}`),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *service.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	breaker := resilience.NewBreaker(5, 30*time.Second)
	hub := ws.NewHub()

	registry := service.NewRegistry(store, nil, 0, time.Second, logger)
	router := service.NewRouter(registry, store, stubExecutor{}, breaker,
		scoring.JSONExtractor{}, scoring.Score, hub, nil, 5*time.Minute, time.Second, logger)
	approvals := service.NewApprovals(store, registry, stubExecutor{}, breaker, hub, nil, time.Second, logger)
	hist := service.NewHistory(store, time.Second, logger)

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(registry, router, approvals, hist, hub))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func seedWorkflow(t *testing.T, registry *service.Registry, id string, threshold float64) {
	t.Helper()
	_, err := registry.Create(context.Background(), workflow.CreateRequest{
		ID:                  id,
		HITLEnabled:         true,
		ConfidenceThreshold: threshold,
		TargetCollaborator:  "executor-main",
	})
	if err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestSubmitDecisionPending(t *testing.T) {
	srv, registry := newTestServer(t)
	seedWorkflow(t, registry, "lead_processing", 0.8)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "lead_processing",
		"payload":     map[string]any{"name": "Ada"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}

	var d decision.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Status != decision.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", d.Status)
	}
	if d.ExpiresAt.IsZero() {
		t.Fatal("expected expires_at on pending decision")
	}
}

func TestSubmitDecisionExecutesAutonomously(t *testing.T) {
	srv, registry := newTestServer(t)
	seedWorkflow(t, registry, "lead_processing", 0.8)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "lead_processing",
		"payload": map[string]any{
			"name":     "Ada Lovelace",
			"email":    "ada@example.com",
			"priority": "high",
			"budget":   "10k_50k",
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var d decision.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Status != decision.StatusExecutedAutonomously {
		t.Fatalf("expected executed_autonomously, got %s", d.Status)
	}
	if len(d.Result) == 0 {
		t.Fatal("expected execution result")
	}
}

func TestSubmitDecisionUnknownWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "ghost_flow",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestApproveFlow(t *testing.T) {
	srv, registry := newTestServer(t)
	seedWorkflow(t, registry, "lead_processing", 0.8)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "lead_processing",
		"payload":     map[string]any{"name": "Ada"},
	})
	var d decision.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions/"+d.ID+"/approve",
		map[string]string{"feedback": "verified manually"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", resp.StatusCode, body)
	}

	var approved decision.Decision
	if err := json.Unmarshal(body, &approved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if approved.Status != decision.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	// Second verdict loses the race.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions/"+d.ID+"/reject", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second verdict, got %d", resp.StatusCode)
	}
}

func TestRejectWithoutBody(t *testing.T) {
	srv, registry := newTestServer(t)
	seedWorkflow(t, registry, "lead_processing", 0.8)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "lead_processing",
		"payload":     map[string]any{"name": "Ada"},
	})
	var d decision.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions/"+d.ID+"/reject", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject without body: expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/decisions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPendingListIsArrayWhenEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/decisions/pending", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/workflows", map[string]any{
		"id":                   "invoice_review",
		"hitl_enabled":         true,
		"confidence_threshold": 0.7,
		"target_collaborator":  "billing-agent",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/workflows/invoice_review/toggle?enabled=false", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/v1/workflows/invoice_review/confidence?threshold=0.9", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("threshold: expected 200, got %d: %s", resp.StatusCode, body)
	}

	var cfg workflow.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.HITLEnabled || cfg.ConfidenceThreshold != 0.9 {
		t.Fatalf("unexpected config after updates: %+v", cfg)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/workflows/invoice_review/confidence?threshold=1.5", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range threshold: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/workflows/invoice_review/autonomy?level=warp", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown level: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/workflows/invoice_review/toggle?enabled=maybe", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad toggle param: expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, registry := newTestServer(t)
	seedWorkflow(t, registry, "lead_processing", 0.8)

	// Autonomous execution writes a history entry.
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"workflow_id": "lead_processing",
		"payload": map[string]any{
			"name":     "Ada Lovelace",
			"email":    "ada@example.com",
			"priority": "high",
			"budget":   "10k_50k",
		},
	})

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/decisions/history?workflow_id=lead_processing&outcome=executed_autonomously", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var entries []map[string]any
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/decisions/history?limit=abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("unexpected health body: %s", body)
	}
}

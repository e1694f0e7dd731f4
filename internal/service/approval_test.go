package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
)

func routePending(t *testing.T, f *fixture) *decision.Decision {
	t.Helper()
	d, err := f.router.Route(context.Background(), decision.SubmitRequest{
		WorkflowID: "lead_processing",
		Payload:    mediumLead,
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Status != decision.StatusPendingApproval {
		t.Fatalf("fixture decision not pending: %s", d.Status)
	}
	return d
}

func TestApproveExecutesAndRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)

	approved, err := f.approvals.Approve(ctx, d.ID, "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != decision.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.Feedback != "looks good" {
		t.Fatalf("expected feedback retained, got %q", approved.Feedback)
	}
	if f.exec.callCount() != 1 {
		t.Fatalf("expected 1 executor call, got %d", f.exec.callCount())
	}

	stored, err := f.store.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if stored.Status != decision.StatusApproved {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if len(stored.Result) == 0 {
		t.Fatal("expected execution result persisted")
	}

	entries, err := f.store.QueryHistory(ctx, history.Query{Outcome: string(decision.StatusApproved)})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(entries) != 1 || entries[0].DecisionID != d.ID {
		t.Fatalf("expected approved history entry, got %+v", entries)
	}
}

func TestRejectSkipsExecution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)

	rejected, err := f.approvals.Reject(ctx, d.ID, "bad data")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != decision.StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if f.exec.callCount() != 0 {
		t.Fatalf("rejected decision must not execute, got %d calls", f.exec.callCount())
	}

	entries, err := f.store.QueryHistory(ctx, history.Query{Outcome: string(decision.StatusRejected)})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(entries) != 1 || entries[0].Feedback != "bad data" {
		t.Fatalf("expected rejected history entry with feedback, got %+v", entries)
	}
}

func TestSecondVerdictConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)

	if _, err := f.approvals.Approve(ctx, d.ID, ""); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := f.approvals.Reject(ctx, d.ID, "too late"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second verdict, got %v", err)
	}
	if _, err := f.approvals.Approve(ctx, d.ID, "again"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on repeat approve, got %v", err)
	}
	if f.exec.callCount() != 1 {
		t.Fatalf("expected exactly 1 executor call, got %d", f.exec.callCount())
	}
}

func TestConcurrentVerdictsExactlyOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.approvals.Approve(ctx, d.ID, "")
			} else {
				_, errs[i] = f.approvals.Reject(ctx, d.ID, "")
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	entries, err := f.store.QueryHistory(ctx, history.Query{})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 history entry, got %d", len(entries))
	}
}

func TestApproveExpiredDecisionConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(time.Nanosecond)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)

	time.Sleep(time.Millisecond)

	_, err := f.approvals.Approve(ctx, d.ID, "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on expired decision, got %v", err)
	}
	if f.exec.callCount() != 0 {
		t.Fatalf("expired decision must not execute, got %d calls", f.exec.callCount())
	}

	stored, err := f.store.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if stored.Status != decision.StatusExpired {
		t.Fatalf("late verdict should expire the decision, got %s", stored.Status)
	}
}

func TestApproveUnknownDecision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)

	_, err := f.approvals.Approve(ctx, "nope", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApproveSurvivesExecutorFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(5 * time.Minute)
	f.seedWorkflow(ctx, "lead_processing", true, 0.8)
	d := routePending(t, f)
	f.exec.err = errExecutorDown

	approved, err := f.approvals.Approve(ctx, d.ID, "")
	if err != nil {
		t.Fatalf("approve should commit despite executor failure: %v", err)
	}
	if approved.Status != decision.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	stored, err := f.store.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if len(stored.Result) != 0 {
		t.Fatalf("failed execution must not record a result, got %s", stored.Result)
	}
}

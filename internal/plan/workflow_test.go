package plan

import (
	"context"
	"testing"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/testutil"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		action string
		from   string
		want   bool
	}{
		{ActionRequest, models.ConfirmDraft, true},
		{ActionRequest, models.ConfirmRejected, true},
		{ActionRequest, models.ConfirmCancelled, true},
		{ActionRequest, models.ConfirmRequested, false},
		{ActionRequest, models.ConfirmConfirmed, false},
		{ActionCancel, models.ConfirmRequested, true},
		{ActionCancel, models.ConfirmDraft, false},
		{ActionConfirm, models.ConfirmRequested, true},
		{ActionConfirm, models.ConfirmRejected, false},
		{ActionReject, models.ConfirmRequested, true},
		{ActionReject, models.ConfirmConfirmed, false},
		{"archive", models.ConfirmDraft, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.action, tt.from); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.action, tt.from, got, tt.want)
		}
	}
}

func TestWorkflow_RequestConfirm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.ensure()
	e.save(evaluatee, p.ID, tree(60, 40))

	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("RequestConfirm: %v", err)
	}
	got := e.plan(p.ID)
	if got.ConfirmStatus != models.ConfirmRequested {
		t.Errorf("ConfirmStatus = %s, want REQUESTED", got.ConfirmStatus)
	}
	if got.ConfirmTarget == nil || *got.ConfirmTarget != string(RoleEvaluator) {
		t.Errorf("ConfirmTarget = %v, want EVALUATOR", got.ConfirmTarget)
	}
	if got.RequestedBy != "emp" || got.RequestedAt == nil || !got.RequestedAt.Equal(fixedNow) {
		t.Errorf("requested = %s at %v", got.RequestedBy, got.RequestedAt)
	}

	if err := e.svc.Confirm(ctx, evaluator, p.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	got = e.plan(p.ID)
	if got.ConfirmStatus != models.ConfirmConfirmed || got.Status != models.PlanActive {
		t.Errorf("after confirm = %s/%s, want ACTIVE/CONFIRMED", got.Status, got.ConfirmStatus)
	}
	if got.ConfirmTarget != nil {
		t.Errorf("ConfirmTarget = %v, want cleared", *got.ConfirmTarget)
	}
	if got.ConfirmedBy != "mgr" {
		t.Errorf("ConfirmedBy = %q", got.ConfirmedBy)
	}

	events, err := Events(e.db, p.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	want := []string{models.EventCommented, models.EventRequested, models.EventConfirmed}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if events[1].FromStatus != models.ConfirmDraft || events[1].ToStatus != models.ConfirmRequested {
		t.Errorf("request event = %s -> %s", events[1].FromStatus, events[1].ToStatus)
	}

	sent := e.delivered()
	if len(sent) != 2 {
		t.Fatalf("notifications = %v", e.deliveredTypes())
	}
	if r := sent[0].Recipients; len(r) != 1 || r[0] != "mgr" {
		t.Errorf("request recipients = %v, want [mgr]", r)
	}
	if r := sent[1].Recipients; len(r) != 1 || r[0] != "emp" {
		t.Errorf("confirm recipients = %v, want [emp]", r)
	}
}

func TestWorkflow_ClosedFromRequested(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.ensure()
	e.save(evaluatee, p.ID, tree(100))
	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("RequestConfirm: %v", err)
	}

	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("second request err = %v, want InvalidState", err)
	}
	if _, err := e.svc.SaveDraft(ctx, evaluatee, p.ID, tree(100), ""); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("save err = %v, want InvalidState", err)
	}
	if _, err := e.svc.Reopen(ctx, admin, p.ID, ""); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("reopen err = %v, want InvalidState", err)
	}
	if err := e.svc.Confirm(ctx, evaluatee, p.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("requester confirm err = %v, want Forbidden", err)
	}
	if err := e.svc.CancelRequestConfirm(ctx, evaluator, p.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("target cancel err = %v, want Forbidden", err)
	}
	if got := e.plan(p.ID); got.ConfirmStatus != models.ConfirmRequested {
		t.Errorf("ConfirmStatus = %s, want still REQUESTED", got.ConfirmStatus)
	}
}

func TestWorkflow_CancelAndRerequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.ensure()
	e.save(evaluatee, p.ID, tree(100))
	e.svc.RequestConfirm(ctx, evaluatee, p.ID)

	if err := e.svc.CancelRequestConfirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got := e.plan(p.ID)
	if got.ConfirmStatus != models.ConfirmCancelled || got.ConfirmTarget != nil {
		t.Errorf("after cancel = %s target %v", got.ConfirmStatus, got.ConfirmTarget)
	}
	if err := e.svc.Confirm(ctx, evaluator, p.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("confirm after cancel err = %v, want InvalidState", err)
	}
	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("re-request: %v", err)
	}
	got = e.plan(p.ID)
	if got.ConfirmStatus != models.ConfirmRequested || got.CancelledAt != nil {
		t.Errorf("after re-request = %s cancelledAt %v", got.ConfirmStatus, got.CancelledAt)
	}
}

func TestWorkflow_Reject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.ensure()
	e.save(evaluatee, p.ID, tree(100))
	e.svc.RequestConfirm(ctx, evaluatee, p.ID)

	if err := e.svc.Reject(ctx, evaluator, p.ID, "   "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("blank reason err = %v, want ValidationError", err)
	}
	if err := e.svc.Reject(ctx, evaluator, p.ID, " targets too low "); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got := e.plan(p.ID)
	if got.ConfirmStatus != models.ConfirmRejected || got.RejectReason != "targets too low" {
		t.Errorf("after reject = %s %q", got.ConfirmStatus, got.RejectReason)
	}
	sent := e.delivered()
	last := sent[len(sent)-1]
	if last.Type != "PLAN_REJECTED" || len(last.Recipients) != 1 || last.Recipients[0] != "emp" {
		t.Errorf("reject notification = %+v", last)
	}

	// Another round starts from REJECTED.
	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("re-request after reject: %v", err)
	}
	if got := e.plan(p.ID); got.RejectReason != "" || got.RejectedAt != nil {
		t.Errorf("reject metadata not cleared: %q %v", got.RejectReason, got.RejectedAt)
	}
}

func TestWorkflow_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("request needs a saved tree", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("confirmer cannot request", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		e.save(evaluatee, p.ID, tree(100))
		if err := e.svc.RequestConfirm(ctx, evaluator, p.ID); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("err = %v, want Forbidden", err)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		e.save(evaluatee, p.ID, tree(100))
		if err := e.svc.RequestConfirm(ctx, stranger, p.ID); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("err = %v, want Forbidden", err)
		}
	})

	t.Run("define gate closed", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		e.save(evaluatee, p.ID, tree(100))
		e.db.Model(&models.Activity{}).
			Where("cycle_id = ? AND type = ?", e.cycle.ID, models.ActivityDefine).
			Update("enabled", false)
		if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); !apperr.Is(err, apperr.KindGateClosed) {
			t.Errorf("err = %v, want GateClosed", err)
		}
	})

	t.Run("superseded plan", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		e.save(evaluatee, p.ID, tree(100))
		e.svc.RequestConfirm(ctx, evaluatee, p.ID)
		e.svc.Reject(ctx, evaluator, p.ID, "no")
		res := e.save(evaluatee, p.ID, tree(50, 50))
		if !res.NewVersionCreated {
			t.Fatal("expected a new version")
		}
		if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); !apperr.Is(err, apperr.KindInvalidState) {
			t.Errorf("err = %v, want InvalidState", err)
		}
	})

	t.Run("submitted assignment", func(t *testing.T) {
		e := newEnv(t)
		p := e.ensure()
		e.save(evaluatee, p.ID, tree(100))
		e.svc.RequestConfirm(ctx, evaluatee, p.ID)
		e.db.Model(&models.Assignment{}).Where("id = ?", e.assignment.ID).Update("eval_status", models.EvalSubmitted)
		if err := e.svc.Confirm(ctx, evaluator, p.ID); !apperr.Is(err, apperr.KindInvalidState) {
			t.Errorf("err = %v, want InvalidState", err)
		}
	})
}

func TestWorkflow_EvaluatorDefines(t *testing.T) {
	e := newEnv(t, testutil.WithDefineMode(models.DefineModeEvaluator))
	ctx := context.Background()
	p := e.ensure()

	if _, err := e.svc.SaveDraft(ctx, evaluatee, p.ID, tree(100), ""); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("evaluatee save err = %v, want Forbidden", err)
	}
	e.save(evaluator, p.ID, tree(100))
	if err := e.svc.RequestConfirm(ctx, evaluator, p.ID); err != nil {
		t.Fatalf("RequestConfirm: %v", err)
	}
	if got := e.plan(p.ID); got.ConfirmTarget == nil || *got.ConfirmTarget != string(RoleEvaluatee) {
		t.Errorf("ConfirmTarget = %v, want EVALUATEE", got.ConfirmTarget)
	}
	if err := e.svc.Confirm(ctx, evaluator, p.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("evaluator confirm err = %v, want Forbidden", err)
	}
	if err := e.svc.Confirm(ctx, evaluatee, p.ID); err != nil {
		t.Fatalf("evaluatee Confirm: %v", err)
	}
}

package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/gate"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"gorm.io/gorm"
)

// Confirm workflow actions.
const (
	ActionRequest = "request"
	ActionCancel  = "cancel"
	ActionConfirm = "confirm"
	ActionReject  = "reject"
)

// Transitions maps each action to the confirm statuses it may start from and
// the status it leads to.
var Transitions = map[string]struct {
	From []string
	To   string
}{
	ActionRequest: {From: []string{models.ConfirmDraft, models.ConfirmRejected, models.ConfirmCancelled}, To: models.ConfirmRequested},
	ActionCancel:  {From: []string{models.ConfirmRequested}, To: models.ConfirmCancelled},
	ActionConfirm: {From: []string{models.ConfirmRequested}, To: models.ConfirmConfirmed},
	ActionReject:  {From: []string{models.ConfirmRequested}, To: models.ConfirmRejected},
}

// CanTransition reports whether action is legal from the given confirm status.
func CanTransition(action, from string) bool {
	t, ok := Transitions[action]
	if !ok {
		return false
	}
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// RequestConfirm submits the plan to the counterpart for review.
func (s *Service) RequestConfirm(ctx context.Context, actor identity.Actor, planID string) error {
	return s.transition(ctx, actor, planID, ActionRequest, func(tx *gorm.DB, pc *planContext, now time.Time, out *notify.Outbox) (map[string]interface{}, string, error) {
		if !pc.roles.IsDefineOwner {
			return nil, "", apperr.Forbidden("only the define owner may request confirmation of plan %s", planID)
		}
		if pc.plan.ContentHash == nil {
			return nil, "", apperr.Validation("plan %s has no saved tree", planID)
		}
		target := string(pc.roles.Side.Counterpart())
		out.Add(pc.event(notify.EventConfirmRequested, actor, pc.roles.Side.Counterpart(), nil))
		return map[string]interface{}{
			"confirm_target": target,
			"requested_at":   now,
			"requested_by":   actor.EmployeeID,
			"confirmed_at":   nil,
			"confirmed_by":   "",
			"rejected_at":    nil,
			"rejected_by":    "",
			"reject_reason":  "",
			"cancelled_at":   nil,
			"cancelled_by":   "",
		}, "", nil
	})
}

// CancelRequestConfirm withdraws an open request. Only the original requester may cancel.
func (s *Service) CancelRequestConfirm(ctx context.Context, actor identity.Actor, planID string) error {
	return s.transition(ctx, actor, planID, ActionCancel, func(tx *gorm.DB, pc *planContext, now time.Time, out *notify.Outbox) (map[string]interface{}, string, error) {
		if pc.plan.RequestedBy != actor.EmployeeID {
			return nil, "", apperr.Forbidden("only the requester may cancel the request on plan %s", planID)
		}
		out.Add(pc.event(notify.EventRequestCancelled, actor, targetRole(pc.plan), nil))
		return map[string]interface{}{
			"confirm_target": nil,
			"cancelled_at":   now,
			"cancelled_by":   actor.EmployeeID,
		}, "", nil
	})
}

// Confirm approves the plan, activating it for scoring.
func (s *Service) Confirm(ctx context.Context, actor identity.Actor, planID string) error {
	return s.transition(ctx, actor, planID, ActionConfirm, func(tx *gorm.DB, pc *planContext, now time.Time, out *notify.Outbox) (map[string]interface{}, string, error) {
		if err := requireTarget(pc, actor); err != nil {
			return nil, "", err
		}
		out.Add(pc.event(notify.EventPlanConfirmed, actor, pc.roles.Side.Counterpart(), nil))
		return map[string]interface{}{
			"status":         models.PlanActive,
			"confirm_target": nil,
			"confirmed_at":   now,
			"confirmed_by":   actor.EmployeeID,
		}, "", nil
	})
}

// Reject sends the plan back to its define owner. A reason is required.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, planID, reason string) error {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, planID, ActionReject, func(tx *gorm.DB, pc *planContext, now time.Time, out *notify.Outbox) (map[string]interface{}, string, error) {
		if err := requireTarget(pc, actor); err != nil {
			return nil, "", err
		}
		if reason == "" {
			return nil, "", apperr.Validation("a reason is required to reject plan %s", planID)
		}
		out.Add(notify.Event{
			Type:       notify.EventPlanRejected,
			ActorID:    actor.EmployeeID,
			CycleID:    pc.cycle.ID,
			Recipients: []string{pc.plan.RequestedBy},
			Meta:       map[string]any{"planId": pc.plan.ID, "version": pc.plan.Version, "assignmentId": pc.assignment.ID, "reason": reason},
		})
		return map[string]interface{}{
			"confirm_target": nil,
			"rejected_at":    now,
			"rejected_by":    actor.EmployeeID,
			"reject_reason":  reason,
		}, reason, nil
	})
}

type transitionFunc func(tx *gorm.DB, pc *planContext, now time.Time, out *notify.Outbox) (updates map[string]interface{}, note string, err error)

// transition runs the guards shared by every workflow action, then applies
// the action's updates and records the event, all in one transaction.
func (s *Service) transition(ctx context.Context, actor identity.Actor, planID, action string, fn transitionFunc) error {
	return s.run(ctx, func(tx *gorm.DB, out *notify.Outbox) error {
		now := s.now()
		pc, err := loadPlanContext(tx, planID, actor)
		if err != nil {
			return err
		}
		if err := gate.RequireWritable(pc.cycle, models.ActivityDefine, now); err != nil {
			return err
		}
		if err := pc.requirePartyOrAdmin(actor); err != nil {
			return err
		}
		if err := pc.requireCurrent(); err != nil {
			return err
		}
		from := pc.plan.ConfirmStatus
		if !CanTransition(action, from) {
			return apperr.InvalidState("cannot %s plan %s from %s", action, planID, from)
		}

		updates, note, err := fn(tx, pc, now, out)
		if err != nil {
			return err
		}
		to := Transitions[action].To
		updates["confirm_status"] = to
		result := tx.Model(pc.plan).Where("confirm_status = ?", from).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("plan: %s %s: %w", action, planID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &db.ConflictError{Err: fmt.Errorf("plan %s left %s concurrently", planID, from)}
		}
		return appendEvent(tx, planID, eventFor[action], actor, from, to, note, now)
	})
}

var eventFor = map[string]string{
	ActionRequest: models.EventRequested,
	ActionCancel:  models.EventCancelled,
	ActionConfirm: models.EventConfirmed,
	ActionReject:  models.EventRejected,
}

// requireTarget allows only the party the open request is addressed to.
func requireTarget(pc *planContext, actor identity.Actor) error {
	target := targetRole(pc.plan)
	if target == RoleNone || pc.roles.Side != target {
		return apperr.Forbidden("%s is not the confirm target of plan %s", actor.EmployeeID, pc.plan.ID)
	}
	return nil
}

func targetRole(p *models.Plan) Role {
	if p.ConfirmTarget == nil {
		return RoleNone
	}
	return Role(*p.ConfirmTarget)
}

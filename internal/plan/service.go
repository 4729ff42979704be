// Package plan owns the KPI plan lifecycle: draft saving with content-addressed
// versioning, the confirm workflow, reopening, and read visibility.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"gorm.io/gorm"
)

// Service runs plan operations. Every exported method is one transaction.
type Service struct {
	DB     *gorm.DB
	Notify *notify.Dispatcher
	Retry  db.RetryPolicy
	Now    func() time.Time
}

// NewService returns a Service with the default retry policy and wall clock.
func NewService(gdb *gorm.DB, d *notify.Dispatcher) *Service {
	return &Service{DB: gdb, Notify: d, Retry: db.DefaultRetry, Now: time.Now}
}

func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Second)
}

// run executes fn in a retrying transaction and hands the events it queued to
// the dispatcher once the transaction has committed.
func (s *Service) run(ctx context.Context, fn func(tx *gorm.DB, out *notify.Outbox) error) error {
	var out notify.Outbox
	err := db.RunInTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		out.Reset()
		return fn(tx, &out)
	})
	if err != nil {
		return err
	}
	out.Flush(ctx, s.Notify)
	return nil
}

// planContext is everything the guards of a plan operation look at.
type planContext struct {
	plan       *models.Plan
	assignment *models.Assignment
	cycle      *models.Cycle
	roles      Roles
}

func loadPlanContext(tx *gorm.DB, planID string, actor identity.Actor) (*planContext, error) {
	p, err := db.LoadPlan(tx, planID)
	if err != nil {
		return nil, err
	}
	a, c, err := db.LoadAssignment(tx, p.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &planContext{
		plan:       p,
		assignment: a,
		cycle:      c,
		roles:      ResolveRoles(c.DefineMode, a, actor),
	}, nil
}

// requirePartyOrAdmin rejects actors who are neither side of the assignment.
func (pc *planContext) requirePartyOrAdmin(actor identity.Actor) error {
	if actor.IsAdmin || pc.roles.IsParty() {
		return nil
	}
	return apperr.Forbidden("%s is not a party of assignment %s", actor.EmployeeID, pc.assignment.ID)
}

// requireCurrent rejects operations on superseded plans and frozen assignments.
func (pc *planContext) requireCurrent() error {
	if pc.assignment.Submitted() {
		return apperr.InvalidState("evaluation of assignment %s is already submitted", pc.assignment.ID)
	}
	if pc.assignment.CurrentPlanID == nil || *pc.assignment.CurrentPlanID != pc.plan.ID {
		return apperr.InvalidState("plan %s is not the current plan of assignment %s", pc.plan.ID, pc.assignment.ID)
	}
	return nil
}

func (pc *planContext) recipient(r Role) []string {
	if id := EmployeeFor(pc.assignment, r); id != "" {
		return []string{id}
	}
	return nil
}

func (pc *planContext) event(eventType string, actor identity.Actor, r Role, meta map[string]any) notify.Event {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["planId"] = pc.plan.ID
	meta["version"] = pc.plan.Version
	meta["assignmentId"] = pc.assignment.ID
	return notify.Event{
		Type:       eventType,
		ActorID:    actor.EmployeeID,
		CycleID:    pc.cycle.ID,
		Recipients: pc.recipient(r),
		Meta:       meta,
	}
}

func appendEvent(tx *gorm.DB, planID, eventType string, actor identity.Actor, from, to, note string, at time.Time) error {
	ev := models.ConfirmEvent{
		PlanID:     planID,
		Type:       eventType,
		ActorID:    actor.EmployeeID,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
		CreatedAt:  at,
	}
	if err := tx.Create(&ev).Error; err != nil {
		return fmt.Errorf("plan: record %s event on %s: %w", eventType, planID, err)
	}
	return nil
}

// Events returns a plan's confirm history, oldest first.
func Events(tx *gorm.DB, planID string) ([]models.ConfirmEvent, error) {
	var events []models.ConfirmEvent
	if err := tx.Where("plan_id = ?", planID).Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("plan: events of %s: %w", planID, err)
	}
	return events, nil
}

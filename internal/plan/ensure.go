package plan

import (
	"context"
	"fmt"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"gorm.io/gorm"
)

// EnsurePlan returns the assignment's current plan, creating version 1 as
// DRAFT/DRAFT on first access. Two callers racing to create it both succeed:
// the loser's transaction conflicts, is retried, and finds the winner's plan.
func (s *Service) EnsurePlan(ctx context.Context, actor identity.Actor, assignmentID string) (*models.Plan, bool, error) {
	var (
		plan    *models.Plan
		created bool
	)
	err := s.run(ctx, func(tx *gorm.DB, _ *notify.Outbox) error {
		created = false
		a, c, err := db.LoadAssignment(tx, assignmentID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin && !ResolveRoles(c.DefineMode, a, actor).IsParty() {
			return apperr.Forbidden("%s is not a party of assignment %s", actor.EmployeeID, a.ID)
		}
		if a.CurrentPlanID != nil {
			plan, err = db.LoadPlan(tx, *a.CurrentPlanID)
			return err
		}
		if c.ClosedAt != nil {
			return apperr.InvalidState("cycle %s is closed", c.ID)
		}

		var maxVersion int
		if err := tx.Model(&models.Plan{}).Where("assignment_id = ?", a.ID).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("plan: max version of %s: %w", a.ID, err)
		}
		now := s.now()
		p := &models.Plan{
			ID:            db.NewID(),
			AssignmentID:  a.ID,
			Version:       maxVersion + 1,
			Status:        models.PlanDraft,
			ConfirmStatus: models.ConfirmDraft,
			CreatedBy:     actor.EmployeeID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("plan: create first plan of %s: %w", a.ID, err)
		}
		result := tx.Model(&models.Assignment{}).
			Where("id = ? AND current_plan_id IS NULL", a.ID).
			Update("current_plan_id", p.ID)
		if result.Error != nil {
			return fmt.Errorf("plan: point %s at %s: %w", a.ID, p.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &db.ConflictError{Err: fmt.Errorf("assignment %s gained a plan concurrently", a.ID)}
		}
		plan, created = p, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return plan, created, nil
}

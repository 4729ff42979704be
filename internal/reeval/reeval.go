// Package reeval tracks whether an assignment's scores were given against a
// plan version that has since been superseded.
package reeval

import (
	"fmt"

	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
)

// MarkIfSuperseded flags the assignment when an evaluation is in progress and
// the plan being scored differs from newPlanID. It reports whether the flag
// was set.
func MarkIfSuperseded(tx *gorm.DB, a *models.Assignment, newPlanID string) (bool, error) {
	if a.EvalStatus != models.EvalInProgress || a.EvaluatedPlanID == nil || *a.EvaluatedPlanID == newPlanID {
		return false, nil
	}
	if a.NeedsReEval {
		return true, nil
	}
	if err := tx.Model(a).Update("needs_re_eval", true).Error; err != nil {
		return false, fmt.Errorf("reeval: flag assignment %s: %w", a.ID, err)
	}
	a.NeedsReEval = true
	return true, nil
}

// Reconcile moves the evaluated plan forward to the current plan once every
// ITEM of the current plan has a current submission, clearing the flag. It
// reports whether the assignment is now consistent.
func Reconcile(tx *gorm.DB, a *models.Assignment) (bool, error) {
	if a.CurrentPlanID == nil {
		return false, nil
	}
	current := *a.CurrentPlanID
	if a.EvaluatedPlanID != nil && *a.EvaluatedPlanID == current && !a.NeedsReEval {
		return true, nil
	}

	pending, err := PendingItems(tx, current)
	if err != nil {
		return false, err
	}
	if len(pending) > 0 {
		return false, nil
	}

	if err := tx.Model(a).Updates(map[string]interface{}{
		"evaluated_plan_id": current,
		"needs_re_eval":     false,
	}).Error; err != nil {
		return false, fmt.Errorf("reeval: reconcile assignment %s: %w", a.ID, err)
	}
	a.EvaluatedPlanID = &current
	a.NeedsReEval = false
	return true, nil
}

// PendingItems returns the ids of the plan's ITEM nodes that have no current
// submission, in tree order.
func PendingItems(tx *gorm.DB, planID string) ([]string, error) {
	var ids []string
	if err := tx.Model(&models.Node{}).
		Where("plan_id = ? AND node_type = ? AND current_submission_id IS NULL", planID, models.NodeItem).
		Order("sort_order ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("reeval: pending items of plan %s: %w", planID, err)
	}
	return ids, nil
}

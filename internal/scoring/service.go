// Package scoring is the append-only submission ledger: scoring ITEM nodes,
// aggregating the tree and freezing an evaluation on submit.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/gate"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"github.com/zulandar/kpiyard/internal/reeval"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service runs scoring operations, one transaction each.
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

// ScoreResult identifies the submission a score was recorded as.
type ScoreResult struct {
	SubmissionID string `json:"submissionId"`
	Version      int    `json:"version"`
}

func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Second)
}

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

// nodeCycle resolves the cycle a node belongs to with a plain read, so a
// closed gate is reported without opening a write transaction.
func (s *Service) nodeCycle(ctx context.Context, nodeID string) (*models.Cycle, error) {
	var cycleIDs []string
	err := s.DB.WithContext(ctx).Table("nodes").
		Joins("JOIN plans ON plans.id = nodes.plan_id").
		Joins("JOIN assignments ON assignments.id = plans.assignment_id").
		Where("nodes.id = ?", nodeID).
		Pluck("assignments.cycle_id", &cycleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("scoring: resolve cycle of node %s: %w", nodeID, err)
	}
	if len(cycleIDs) == 0 {
		return nil, apperr.NotFound("node", nodeID)
	}
	return db.LoadCycle(s.DB.WithContext(ctx), cycleIDs[0])
}

func requireEvaluator(actor identity.Actor, a *models.Assignment) error {
	if actor.IsAdmin || actor.EmployeeID == a.EvaluatorID {
		return nil
	}
	return apperr.Forbidden("%s is not the evaluator of assignment %s", actor.EmployeeID, a.ID)
}

// ScoreNode appends a new submission for an ITEM of the assignment's current,
// confirmed plan and makes it the node's current score.
func (s *Service) ScoreNode(ctx context.Context, actor identity.Actor, nodeID string, p Payload) (ScoreResult, error) {
	var res ScoreResult
	c, err := s.nodeCycle(ctx, nodeID)
	if err != nil {
		return res, err
	}
	if err := gate.RequireWritable(c, models.ActivityEvaluate, s.now()); err != nil {
		return res, err
	}

	err = s.run(ctx, func(tx *gorm.DB, _ *notify.Outbox) error {
		now := s.now()
		var node models.Node
		if err := db.ForUpdate(tx).First(&node, "id = ?", nodeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("node", nodeID)
			}
			return fmt.Errorf("scoring: load node %s: %w", nodeID, err)
		}
		pl, err := db.LoadPlan(tx, node.PlanID)
		if err != nil {
			return err
		}
		a, c, err := db.LoadAssignment(tx, pl.AssignmentID)
		if err != nil {
			return err
		}

		if err := gate.RequireWritable(c, models.ActivityEvaluate, now); err != nil {
			return err
		}
		if err := requireEvaluator(actor, a); err != nil {
			return err
		}
		if a.Submitted() {
			return apperr.InvalidState("evaluation of assignment %s is already submitted", a.ID)
		}
		if a.CurrentPlanID == nil || *a.CurrentPlanID != pl.ID || !pl.Scoreable() {
			return apperr.InvalidState("plan %s is not the confirmed current plan of assignment %s", pl.ID, a.ID)
		}
		if node.NodeType != models.NodeItem || node.TypeID == nil {
			return apperr.Validation("node %s is not a scoreable item", node.ID)
		}

		var kt models.KpiType
		if err := tx.Preload("ChecklistItems").First(&kt, "id = ?", *node.TypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("kpi type", *node.TypeID)
			}
			return fmt.Errorf("scoring: load kpi type %s: %w", *node.TypeID, err)
		}
		score, err := resolveScore(&kt, p)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("scoring: encode payload: %w", err)
		}

		var last int
		if err := tx.Model(&models.Submission{}).Where("node_id = ?", node.ID).
			Select("COALESCE(MAX(version), 0)").Scan(&last).Error; err != nil {
			return fmt.Errorf("scoring: last version of node %s: %w", node.ID, err)
		}
		sub := models.Submission{
			ID:           db.NewID(),
			NodeID:       node.ID,
			AssignmentID: a.ID,
			Version:      last + 1,
			Payload:      datatypes.JSON(raw),
			Score:        score,
			Comment:      strings.TrimSpace(p.Comment),
			CreatedBy:    actor.EmployeeID,
			CreatedAt:    now,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("scoring: append submission to node %s: %w", node.ID, err)
		}
		if err := tx.Model(&node).Update("current_submission_id", sub.ID).Error; err != nil {
			return fmt.Errorf("scoring: point node %s at %s: %w", node.ID, sub.ID, err)
		}

		updates := map[string]interface{}{}
		if a.EvaluatedPlanID == nil {
			updates["evaluated_plan_id"] = pl.ID
			a.EvaluatedPlanID = &pl.ID
		}
		if a.EvalStatus == models.EvalNotStarted {
			updates["eval_status"] = models.EvalInProgress
			a.EvalStatus = models.EvalInProgress
		}
		if len(updates) > 0 {
			if err := tx.Model(a).Updates(updates).Error; err != nil {
				return fmt.Errorf("scoring: start evaluation of %s: %w", a.ID, err)
			}
		}
		if _, err := reeval.Reconcile(tx, a); err != nil {
			return err
		}
		res = ScoreResult{SubmissionID: sub.ID, Version: sub.Version}
		return nil
	})
	return res, err
}

// currentScores returns the score of each node's current submission, keyed
// by node id. Submissions without a score are omitted.
func currentScores(tx *gorm.DB, nodes []models.Node) (map[string]float64, map[string]*models.Submission, error) {
	var ids []string
	for _, n := range nodes {
		if n.CurrentSubmissionID != nil {
			ids = append(ids, *n.CurrentSubmissionID)
		}
	}
	scores := make(map[string]float64, len(ids))
	subs := make(map[string]*models.Submission, len(ids))
	if len(ids) == 0 {
		return scores, subs, nil
	}
	var rows []models.Submission
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("scoring: load current submissions: %w", err)
	}
	for i := range rows {
		sub := &rows[i]
		subs[sub.NodeID] = sub
		if sub.Score != nil {
			scores[sub.NodeID] = *sub.Score
		}
	}
	return scores, subs, nil
}

// SubmitEvaluation freezes the assignment's scores. Every ITEM of the current
// plan needs a current submission carrying a score; otherwise the error lists
// the incomplete node ids.
func (s *Service) SubmitEvaluation(ctx context.Context, actor identity.Actor, assignmentID string) (Summary, error) {
	var sum Summary
	err := s.run(ctx, func(tx *gorm.DB, out *notify.Outbox) error {
		now := s.now()
		a, c, err := db.LoadAssignment(tx, assignmentID)
		if err != nil {
			return err
		}
		if err := gate.RequireWritable(c, models.ActivityEvaluate, now); err != nil {
			return err
		}
		if err := requireEvaluator(actor, a); err != nil {
			return err
		}
		if a.Submitted() {
			return apperr.InvalidState("evaluation of assignment %s is already submitted", a.ID)
		}
		if a.CurrentPlanID == nil {
			return apperr.InvalidState("assignment %s has no plan", a.ID)
		}
		pl, err := db.LoadPlan(tx, *a.CurrentPlanID)
		if err != nil {
			return err
		}
		if !pl.Scoreable() {
			return apperr.InvalidState("plan %s is not confirmed", pl.ID)
		}

		nodes, err := db.LoadNodes(tx, pl.ID)
		if err != nil {
			return err
		}
		scores, subs, err := currentScores(tx, nodes)
		if err != nil {
			return err
		}
		sum = Aggregate(nodes, scores)
		if len(sum.Incomplete) > 0 {
			return apperr.Incomplete(sum.Incomplete, "%d item(s) of plan %s are not scored", len(sum.Incomplete), pl.ID)
		}
		if _, err := reeval.Reconcile(tx, a); err != nil {
			return err
		}
		if a.NeedsReEval {
			return apperr.InvalidState("assignment %s must be re-evaluated against plan %s", a.ID, pl.ID)
		}

		for nodeID, sub := range subs {
			frozen := round2(scores[nodeID])
			if err := tx.Model(sub).Updates(map[string]interface{}{
				"calculated_score": frozen,
				"final_score":      frozen,
			}).Error; err != nil {
				return fmt.Errorf("scoring: freeze submission %s: %w", sub.ID, err)
			}
		}
		result := tx.Model(a).Where("eval_status <> ?", models.EvalSubmitted).Updates(map[string]interface{}{
			"eval_status":  models.EvalSubmitted,
			"submitted_at": now,
			"submitted_by": actor.EmployeeID,
		})
		if result.Error != nil {
			return fmt.Errorf("scoring: submit %s: %w", a.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &db.ConflictError{Err: fmt.Errorf("assignment %s submitted concurrently", a.ID)}
		}

		sum.AssignmentID, sum.PlanID = a.ID, pl.ID
		sum.EvalStatus, sum.NeedsReEval = models.EvalSubmitted, false
		out.Add(notify.Event{
			Type:       notify.EventEvaluationSubmitted,
			ActorID:    actor.EmployeeID,
			CycleID:    c.ID,
			Recipients: []string{a.EvaluateeID},
			Meta:       map[string]any{"assignmentId": a.ID, "planId": pl.ID, "overallPercent": sum.OverallPercent},
		})
		return nil
	})
	return sum, err
}

// Summary aggregates the assignment's current plan for viewing. The evaluatee
// sees it once the evaluation is submitted.
func (s *Service) Summary(ctx context.Context, actor identity.Actor, assignmentID string) (Summary, error) {
	var sum Summary
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Assignment
		if err := tx.First(&a, "id = ?", assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("assignment", assignmentID)
			}
			return fmt.Errorf("scoring: load assignment %s: %w", assignmentID, err)
		}
		if requireEvaluator(actor, &a) != nil && !(actor.EmployeeID == a.EvaluateeID && a.Submitted()) {
			return apperr.Forbidden("%s may not view the scores of assignment %s", actor.EmployeeID, a.ID)
		}
		if a.CurrentPlanID == nil {
			return apperr.InvalidState("assignment %s has no plan", a.ID)
		}
		nodes, err := db.LoadNodes(tx, *a.CurrentPlanID)
		if err != nil {
			return err
		}
		scores, _, err := currentScores(tx, nodes)
		if err != nil {
			return err
		}
		sum = Aggregate(nodes, scores)
		sum.AssignmentID, sum.PlanID = a.ID, *a.CurrentPlanID
		sum.EvalStatus, sum.NeedsReEval, sum.SummaryNote = a.EvalStatus, a.NeedsReEval, a.SummaryNote
		return nil
	})
	return sum, err
}

// WriteSummaryNote records the evaluator's closing remarks on a submitted
// evaluation while the SUMMARY activity is open.
func (s *Service) WriteSummaryNote(ctx context.Context, actor identity.Actor, assignmentID, note string) error {
	note = strings.TrimSpace(note)
	return s.run(ctx, func(tx *gorm.DB, _ *notify.Outbox) error {
		now := s.now()
		a, c, err := db.LoadAssignment(tx, assignmentID)
		if err != nil {
			return err
		}
		if err := gate.RequireWritable(c, models.ActivitySummary, now); err != nil {
			return err
		}
		if err := requireEvaluator(actor, a); err != nil {
			return err
		}
		if !a.Submitted() {
			return apperr.InvalidState("evaluation of assignment %s is not submitted yet", a.ID)
		}
		if note == "" {
			return apperr.Validation("summary note is empty")
		}
		if err := tx.Model(a).Updates(map[string]interface{}{
			"summary_note": note,
			"summary_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("scoring: write summary note of %s: %w", a.ID, err)
		}
		return nil
	})
}

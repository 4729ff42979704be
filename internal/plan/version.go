package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/contenthash"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/gate"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"github.com/zulandar/kpiyard/internal/reeval"
	"gorm.io/gorm"
)

// SaveResult is returned by SaveDraft.
type SaveResult struct {
	PlanID            string `json:"planId"`
	Version           int    `json:"version"`
	NewVersionCreated bool   `json:"newVersionCreated"`
}

// ReopenResult is returned by Reopen.
type ReopenResult struct {
	NewPlanID  string `json:"newPlanId"`
	NewVersion int    `json:"newVersion"`
}

// SaveDraft stores a new tree for a plan. Content that has not been through a
// review round is edited in place; changed content on a plan that has been
// requested or rejected becomes a new version and the old one is archived.
func (s *Service) SaveDraft(ctx context.Context, actor identity.Actor, planID string, nodes []contenthash.DraftNode, note string) (SaveResult, error) {
	var res SaveResult
	err := s.run(ctx, func(tx *gorm.DB, _ *notify.Outbox) error {
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
		p := pc.plan
		if p.Status == models.PlanArchived || (p.ConfirmStatus != models.ConfirmDraft && p.ConfirmStatus != models.ConfirmRejected) {
			return apperr.InvalidState("plan %s cannot be edited while %s/%s", p.ID, p.Status, p.ConfirmStatus)
		}
		if !actor.IsAdmin && !pc.roles.IsDefineOwner {
			return apperr.Forbidden("only the define owner may edit plan %s", p.ID)
		}

		known, err := knownTypes(tx, nodes)
		if err != nil {
			return err
		}
		if err := ValidateTree(nodes, known); err != nil {
			return err
		}
		records, err := contenthash.Canonicalize(nodes)
		if err != nil {
			return apperr.Validation("invalid plan tree: %v", err)
		}
		hash, err := contenthash.HashRecords(records)
		if err != nil {
			return err
		}

		reviewed, err := hasPastReviewRound(tx, p.ID)
		if err != nil {
			return err
		}
		changed := p.ContentHash == nil || *p.ContentHash != hash

		if !reviewed || !changed {
			if changed {
				if err := replaceNodes(tx, p.ID, materialise(p.ID, records, nodes)); err != nil {
					return err
				}
				if err := tx.Model(p).Update("content_hash", hash).Error; err != nil {
					return fmt.Errorf("plan: update hash of %s: %w", p.ID, err)
				}
			}
			if err := appendEvent(tx, p.ID, models.EventCommented, actor, p.ConfirmStatus, p.ConfirmStatus, draftNote(note, changed), now); err != nil {
				return err
			}
			res = SaveResult{PlanID: p.ID, Version: p.Version}
			return nil
		}

		next, err := createVersion(tx, pc, actor, materialiser(records, nodes), hash, now)
		if err != nil {
			return err
		}
		if _, err := reeval.MarkIfSuperseded(tx, pc.assignment, next.ID); err != nil {
			return err
		}
		msg := fmt.Sprintf("new version %d from plan %s v%d", next.Version, p.ID, p.Version)
		if note = strings.TrimSpace(note); note != "" {
			msg += ": " + note
		}
		if err := appendEvent(tx, next.ID, models.EventCommented, actor, "", models.ConfirmDraft, msg, now); err != nil {
			return err
		}
		res = SaveResult{PlanID: next.ID, Version: next.Version, NewVersionCreated: true}
		return nil
	})
	return res, err
}

// Reopen copies a confirmed, active plan into a new DRAFT version so it can
// be renegotiated. Admin only.
func (s *Service) Reopen(ctx context.Context, actor identity.Actor, planID, note string) (ReopenResult, error) {
	var res ReopenResult
	err := s.run(ctx, func(tx *gorm.DB, out *notify.Outbox) error {
		now := s.now()
		pc, err := loadPlanContext(tx, planID, actor)
		if err != nil {
			return err
		}
		if err := gate.RequireWritable(pc.cycle, models.ActivityDefine, now); err != nil {
			return err
		}
		if !actor.IsAdmin {
			return apperr.Forbidden("only an admin may reopen plan %s", planID)
		}
		if err := pc.requireCurrent(); err != nil {
			return err
		}
		p := pc.plan
		if p.ConfirmStatus != models.ConfirmConfirmed || p.Status != models.PlanActive {
			return apperr.InvalidState("plan %s cannot be reopened from %s/%s", p.ID, p.Status, p.ConfirmStatus)
		}

		stored, err := db.LoadNodes(tx, p.ID)
		if err != nil {
			return err
		}
		src := drafts(stored)
		records, err := contenthash.Canonicalize(src)
		if err != nil {
			return fmt.Errorf("plan: canonicalize stored tree of %s: %w", p.ID, err)
		}
		hash := ""
		if p.ContentHash != nil {
			hash = *p.ContentHash
		} else if hash, err = contenthash.HashRecords(records); err != nil {
			return err
		}

		next, err := createVersion(tx, pc, actor, materialiser(records, src), hash, now)
		if err != nil {
			return err
		}
		if _, err := reeval.MarkIfSuperseded(tx, pc.assignment, next.ID); err != nil {
			return err
		}
		msg := fmt.Sprintf("reopened from plan %s v%d", p.ID, p.Version)
		if note = strings.TrimSpace(note); note != "" {
			msg += ": " + note
		}
		if err := appendEvent(tx, next.ID, models.EventReopened, actor, models.ConfirmConfirmed, models.ConfirmDraft, msg, now); err != nil {
			return err
		}

		meta := map[string]any{"newPlanId": next.ID, "newVersion": next.Version}
		out.Add(pc.event(notify.EventPlanReopened, actor, RoleEvaluator, meta))
		out.Add(pc.event(notify.EventPlanReopened, actor, RoleEvaluatee, meta))
		res = ReopenResult{NewPlanID: next.ID, NewVersion: next.Version}
		return nil
	})
	return res, err
}

func materialiser(records []contenthash.Record, src []contenthash.DraftNode) func(planID string) []models.Node {
	return func(planID string) []models.Node { return materialise(planID, records, src) }
}

// createVersion inserts version max+1 as DRAFT/DRAFT with the given tree,
// archives the superseded plan and repoints the assignment. A concurrent
// writer taking the same version number fails the unique index and the whole
// transaction is retried.
func createVersion(tx *gorm.DB, pc *planContext, actor identity.Actor, build func(planID string) []models.Node, hash string, now time.Time) (*models.Plan, error) {
	var maxVersion int
	if err := tx.Model(&models.Plan{}).
		Where("assignment_id = ?", pc.assignment.ID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return nil, fmt.Errorf("plan: max version of %s: %w", pc.assignment.ID, err)
	}

	next := &models.Plan{
		ID:            db.NewID(),
		AssignmentID:  pc.assignment.ID,
		Version:       maxVersion + 1,
		Status:        models.PlanDraft,
		ConfirmStatus: models.ConfirmDraft,
		ContentHash:   &hash,
		CreatedBy:     actor.EmployeeID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Create(next).Error; err != nil {
		return nil, fmt.Errorf("plan: create version %d of %s: %w", next.Version, pc.assignment.ID, err)
	}
	if nodes := build(next.ID); len(nodes) > 0 {
		if err := tx.Create(&nodes).Error; err != nil {
			return nil, fmt.Errorf("plan: copy nodes into %s: %w", next.ID, err)
		}
	}

	if err := tx.Model(pc.plan).Update("status", models.PlanArchived).Error; err != nil {
		return nil, fmt.Errorf("plan: archive %s: %w", pc.plan.ID, err)
	}
	if err := tx.Model(pc.assignment).Update("current_plan_id", next.ID).Error; err != nil {
		return nil, fmt.Errorf("plan: repoint assignment %s: %w", pc.assignment.ID, err)
	}
	pc.assignment.CurrentPlanID = &next.ID
	return next, nil
}

// replaceNodes swaps a plan's tree wholesale.
func replaceNodes(tx *gorm.DB, planID string, nodes []models.Node) error {
	if err := tx.Where("plan_id = ?", planID).Delete(&models.Node{}).Error; err != nil {
		return fmt.Errorf("plan: clear nodes of %s: %w", planID, err)
	}
	if len(nodes) == 0 {
		return nil
	}
	if err := tx.Create(&nodes).Error; err != nil {
		return fmt.Errorf("plan: write nodes of %s: %w", planID, err)
	}
	return nil
}

func hasPastReviewRound(tx *gorm.DB, planID string) (bool, error) {
	var n int64
	if err := tx.Model(&models.ConfirmEvent{}).
		Where("plan_id = ? AND type IN ?", planID, []string{models.EventRequested, models.EventRejected}).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("plan: review history of %s: %w", planID, err)
	}
	return n > 0, nil
}

// knownTypes returns a lookup over the rubric ids referenced by nodes.
func knownTypes(tx *gorm.DB, nodes []contenthash.DraftNode) (func(string) bool, error) {
	var ids []string
	for _, n := range nodes {
		if n.TypeID != nil {
			ids = append(ids, *n.TypeID)
		}
	}
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return func(id string) bool { return found[id] }, nil
	}
	var existing []string
	if err := tx.Model(&models.KpiType{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, fmt.Errorf("plan: look up kpi types: %w", err)
	}
	for _, id := range existing {
		found[id] = true
	}
	return func(id string) bool { return found[id] }, nil
}

func draftNote(note string, changed bool) string {
	note = strings.TrimSpace(note)
	if note != "" {
		return note
	}
	if changed {
		return "draft saved"
	}
	return "draft saved, content unchanged"
}

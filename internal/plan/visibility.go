package plan

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
)

// CanView decides read access. Admins and the define owner always see the
// plan; the confirmer only once it has been formally sent for review.
func CanView(actor identity.Actor, c *models.Cycle, a *models.Assignment, p *models.Plan) error {
	if actor.IsAdmin {
		return nil
	}
	roles := ResolveRoles(c.DefineMode, a, actor)
	if roles.IsDefineOwner {
		return nil
	}
	if roles.IsConfirmer {
		switch p.ConfirmStatus {
		case models.ConfirmRequested, models.ConfirmConfirmed, models.ConfirmRejected:
			return nil
		}
		return apperr.Forbidden("plan %s has not been sent for review", p.ID)
	}
	return apperr.Forbidden("%s may not view plan %s", actor.EmployeeID, p.ID)
}

// NodeView is a node with its display number and children.
type NodeView struct {
	ID                  string      `json:"id"`
	DisplayNo           string      `json:"displayNo"`
	NodeType            string      `json:"nodeType"`
	Title               string      `json:"title"`
	Description         *string     `json:"description,omitempty"`
	WeightPercent       float64     `json:"weightPercent"`
	TypeID              *string     `json:"typeId,omitempty"`
	Unit                *string     `json:"unit,omitempty"`
	StartDate           *time.Time  `json:"startDate,omitempty"`
	EndDate             *time.Time  `json:"endDate,omitempty"`
	SortOrder           int         `json:"sortOrder"`
	CurrentSubmissionID *string     `json:"currentSubmissionId,omitempty"`
	Children            []*NodeView `json:"children,omitempty"`
}

// EventView is one confirm history entry.
type EventView struct {
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PlanView is a plan as returned to a permitted reader.
type PlanView struct {
	ID            string      `json:"id"`
	AssignmentID  string      `json:"assignmentId"`
	Version       int         `json:"version"`
	Status        string      `json:"status"`
	ConfirmStatus string      `json:"confirmStatus"`
	ConfirmTarget *string     `json:"confirmTarget,omitempty"`
	ContentHash   *string     `json:"contentHash,omitempty"`
	RequestedBy   string      `json:"requestedBy,omitempty"`
	RequestedAt   *time.Time  `json:"requestedAt,omitempty"`
	ConfirmedBy   string      `json:"confirmedBy,omitempty"`
	ConfirmedAt   *time.Time  `json:"confirmedAt,omitempty"`
	RejectedBy    string      `json:"rejectedBy,omitempty"`
	RejectedAt    *time.Time  `json:"rejectedAt,omitempty"`
	RejectReason  string      `json:"rejectReason,omitempty"`
	IsCurrent     bool        `json:"isCurrent"`
	Role          Role        `json:"role,omitempty"`
	Nodes         []*NodeView `json:"nodes"`
	Events        []EventView `json:"events"`
}

// GetPlan loads a plan for reading. An invisible plan is Forbidden, never empty.
func (s *Service) GetPlan(ctx context.Context, actor identity.Actor, planID string) (*PlanView, error) {
	var view *PlanView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Plan
		if err := tx.First(&p, "id = ?", planID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("plan", planID)
			}
			return err
		}
		var a models.Assignment
		if err := tx.First(&a, "id = ?", p.AssignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("assignment", p.AssignmentID)
			}
			return err
		}
		c, err := db.LoadCycle(tx, a.CycleID)
		if err != nil {
			return err
		}
		if err := CanView(actor, c, &a, &p); err != nil {
			return err
		}

		nodes, err := db.LoadNodes(tx, p.ID)
		if err != nil {
			return err
		}
		events, err := Events(tx, p.ID)
		if err != nil {
			return err
		}
		view = newPlanView(&p, &a, nodes, events)
		view.Role = ResolveRoles(c.DefineMode, &a, actor).Side
		return nil
	})
	return view, err
}

func newPlanView(p *models.Plan, a *models.Assignment, nodes []models.Node, events []models.ConfirmEvent) *PlanView {
	v := &PlanView{
		ID:            p.ID,
		AssignmentID:  p.AssignmentID,
		Version:       p.Version,
		Status:        p.Status,
		ConfirmStatus: p.ConfirmStatus,
		ConfirmTarget: p.ConfirmTarget,
		ContentHash:   p.ContentHash,
		RequestedBy:   p.RequestedBy,
		RequestedAt:   p.RequestedAt,
		ConfirmedBy:   p.ConfirmedBy,
		ConfirmedAt:   p.ConfirmedAt,
		RejectedBy:    p.RejectedBy,
		RejectedAt:    p.RejectedAt,
		RejectReason:  p.RejectReason,
		IsCurrent:     a.CurrentPlanID != nil && *a.CurrentPlanID == p.ID,
		Nodes:         BuildTree(nodes),
		Events:        make([]EventView, 0, len(events)),
	}
	for _, e := range events {
		v.Events = append(v.Events, EventView{
			Type:       e.Type,
			ActorID:    e.ActorID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		})
	}
	return v
}

// BuildTree nests stored nodes under their parents in display order.
func BuildTree(nodes []models.Node) []*NodeView {
	numbers := DisplayNumbers(nodes)
	sorted := make([]models.Node, len(nodes))
	copy(sorted, nodes)
	sortSiblings(sorted)

	views := make(map[string]*NodeView, len(sorted))
	for _, n := range sorted {
		views[n.ID] = &NodeView{
			ID:                  n.ID,
			DisplayNo:           numbers[n.ID],
			NodeType:            n.NodeType,
			Title:               n.Title,
			Description:         n.Description,
			WeightPercent:       n.WeightPercent,
			TypeID:              n.TypeID,
			Unit:                n.Unit,
			StartDate:           n.StartDate,
			EndDate:             n.EndDate,
			SortOrder:           n.SortOrder,
			CurrentSubmissionID: n.CurrentSubmissionID,
		}
	}
	roots := []*NodeView{}
	for _, n := range sorted {
		v := views[n.ID]
		if n.ParentID == nil {
			roots = append(roots, v)
			continue
		}
		if parent, ok := views[*n.ParentID]; ok {
			parent.Children = append(parent.Children, v)
		}
	}
	return roots
}

package models

import "time"

// Plan lifecycle statuses.
const (
	PlanDraft    = "DRAFT"
	PlanActive   = "ACTIVE"
	PlanArchived = "ARCHIVED"
)

// Confirm statuses of a plan's review round.
const (
	ConfirmDraft     = "DRAFT"
	ConfirmRequested = "REQUESTED"
	ConfirmConfirmed = "CONFIRMED"
	ConfirmRejected  = "REJECTED"
	ConfirmCancelled = "CANCELLED"
)

// Node types.
const (
	NodeGroup = "GROUP"
	NodeItem  = "ITEM"
)

// Plan is one immutable-once-reviewed version of an assignment's KPI tree.
type Plan struct {
	ID            string  `gorm:"primaryKey;size:36"`
	AssignmentID  string  `gorm:"size:36;not null;uniqueIndex:idx_plan_version"`
	Version       int     `gorm:"not null;uniqueIndex:idx_plan_version"`
	Status        string  `gorm:"size:16;not null;default:DRAFT"`
	ConfirmStatus string  `gorm:"size:16;not null;default:DRAFT;index"`
	ConfirmTarget *string `gorm:"size:16"` // EVALUATOR or EVALUATEE while a request is open
	ContentHash   *string `gorm:"size:64"`
	RequestedAt   *time.Time
	RequestedBy   string `gorm:"size:64"`
	ConfirmedAt   *time.Time
	ConfirmedBy   string `gorm:"size:64"`
	RejectedAt    *time.Time
	RejectedBy    string `gorm:"size:64"`
	RejectReason  string `gorm:"type:text"`
	CancelledAt   *time.Time
	CancelledBy   string `gorm:"size:64"`
	CreatedBy     string `gorm:"size:64"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Nodes []Node `gorm:"foreignKey:PlanID"`
}

// Scoreable reports whether evaluators may record scores against the plan.
func (p *Plan) Scoreable() bool {
	return p.Status == PlanActive && p.ConfirmStatus == ConfirmConfirmed
}

// Node is a GROUP or ITEM in a plan's KPI tree.
type Node struct {
	ID                  string  `gorm:"primaryKey;size:36"`
	PlanID              string  `gorm:"size:36;not null;index"`
	ParentID            *string `gorm:"size:36;index"`
	NodeType            string  `gorm:"size:8;not null"`
	Title               string  `gorm:"size:255;not null"`
	Description         *string `gorm:"type:text"`
	WeightPercent       float64 `gorm:"type:numeric(5,2);not null"`
	TypeID              *string `gorm:"size:36"`
	Unit                *string `gorm:"size:32"`
	StartDate           *time.Time
	EndDate             *time.Time
	SortOrder           int
	CurrentSubmissionID *string `gorm:"size:36"`
}

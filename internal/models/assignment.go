package models

import "time"

// Evaluation statuses of an assignment.
const (
	EvalNotStarted = "NOT_STARTED"
	EvalInProgress = "IN_PROGRESS"
	EvalSubmitted  = "SUBMITTED"
)

// Assignment pairs an evaluator with an evaluatee inside a cycle.
type Assignment struct {
	ID              string  `gorm:"primaryKey;size:36"`
	CycleID         string  `gorm:"size:36;not null;uniqueIndex:idx_assignment_pair"`
	EvaluatorID     string  `gorm:"size:64;not null;uniqueIndex:idx_assignment_pair;index"`
	EvaluateeID     string  `gorm:"size:64;not null;uniqueIndex:idx_assignment_pair;index"`
	CurrentPlanID   *string `gorm:"size:36"`
	EvaluatedPlanID *string `gorm:"size:36"`
	EvalStatus      string  `gorm:"size:16;not null;default:NOT_STARTED;index"`
	NeedsReEval     bool    `gorm:"default:false"`
	SubmittedAt     *time.Time
	SubmittedBy     string `gorm:"size:64"`
	SummaryNote     string `gorm:"type:text"`
	SummaryAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Cycle *Cycle `gorm:"foreignKey:CycleID"`
}

// Submitted reports whether the evaluation has been frozen.
func (a *Assignment) Submitted() bool {
	return a.EvalStatus == EvalSubmitted
}

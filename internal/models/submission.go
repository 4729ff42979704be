package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one immutable scoring entry for an ITEM node. The node's
// CurrentSubmissionID points at the live row.
type Submission struct {
	ID              string         `gorm:"primaryKey;size:36"`
	NodeID          string         `gorm:"size:36;not null;uniqueIndex:idx_node_version"`
	AssignmentID    string         `gorm:"size:36;not null;index"`
	Version         int            `gorm:"not null;uniqueIndex:idx_node_version"`
	Payload         datatypes.JSON `gorm:"type:json"`
	Score           *float64       // 0..5, rubric-derived for checklists
	CalculatedScore *float64       // frozen on submit
	FinalScore      *float64       // frozen on submit
	Comment         string         `gorm:"type:text"`
	CreatedBy       string         `gorm:"size:64;not null"`
	CreatedAt       time.Time
}

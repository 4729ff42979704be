package models

import "time"

// Confirm event types.
const (
	EventRequested = "REQUESTED"
	EventRejected  = "REJECTED"
	EventConfirmed = "CONFIRMED"
	EventCancelled = "CANCELLED"
	EventReopened  = "REOPENED"
	EventCommented = "COMMENTED"
)

// ConfirmEvent is an append-only audit row for a plan's review history.
type ConfirmEvent struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PlanID     string `gorm:"size:36;not null;index"`
	Type       string `gorm:"size:16;not null;index"`
	ActorID    string `gorm:"size:64;not null"`
	FromStatus string `gorm:"size:16"`
	ToStatus   string `gorm:"size:16"`
	Note       string `gorm:"type:text"`
	CreatedAt  time.Time
}

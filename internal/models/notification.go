package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an inbox row written for a single recipient.
type Notification struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	Type         string         `gorm:"size:32;not null"`
	ActorID      string         `gorm:"size:64"`
	CycleID      string         `gorm:"size:36"`
	Recipient    string         `gorm:"size:64;not null;index"`
	Meta         datatypes.JSON `gorm:"type:json"`
	Acknowledged bool           `gorm:"default:false;index"`
	CreatedAt    time.Time
}

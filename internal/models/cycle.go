package models

import "time"

// Activity types. A cycle carries at most one activity of each type.
const (
	ActivityDefine   = "DEFINE"
	ActivityEvaluate = "EVALUATE"
	ActivitySummary  = "SUMMARY"
)

// Define modes decide which party of an assignment drafts the KPI plan.
const (
	DefineModeEvaluatee = "EVALUATEE_DEFINES"
	DefineModeEvaluator = "EVALUATOR_DEFINES"
)

// Cycle is one time-boxed evaluation period.
type Cycle struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string `gorm:"size:128;not null"`
	DefineMode string `gorm:"size:24;not null;default:EVALUATEE_DEFINES"`
	Recurrence string `gorm:"size:64"` // 5-field cron expression, empty for one-off cycles
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Activities []Activity `gorm:"foreignKey:CycleID"`
}

// Activity is a named, optionally time-windowed gate within a cycle.
type Activity struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	CycleID string `gorm:"size:36;not null;uniqueIndex:idx_cycle_activity"`
	Type    string `gorm:"size:16;not null;uniqueIndex:idx_cycle_activity"`
	Enabled bool   `gorm:"default:false"`
	StartAt *time.Time
	EndAt   *time.Time
}

// Activity returns the cycle's activity of the given type, or nil.
func (c *Cycle) Activity(activityType string) *Activity {
	for i := range c.Activities {
		if c.Activities[i].Type == activityType {
			return &c.Activities[i]
		}
	}
	return nil
}

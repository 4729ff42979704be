// Package gate decides whether a cycle activity (DEFINE, EVALUATE, SUMMARY)
// is open. Checks are pure and re-evaluated on every call.
package gate

import (
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/models"
)

// Gates reports which activities of a cycle are open.
type Gates struct {
	Define   bool `json:"DEFINE"`
	Evaluate bool `json:"EVALUATE"`
	Summary  bool `json:"SUMMARY"`
}

// IsOpen reports whether the activity is enabled and now falls inside its
// optional window. Both bounds are inclusive.
func IsOpen(a models.Activity, now time.Time) bool {
	if !a.Enabled {
		return false
	}
	if a.StartAt != nil && now.Before(*a.StartAt) {
		return false
	}
	if a.EndAt != nil && now.After(*a.EndAt) {
		return false
	}
	return true
}

// Require returns GateClosed unless the cycle's activity of the given type
// exists and is open.
func Require(c *models.Cycle, activityType string, now time.Time) error {
	a := c.Activity(activityType)
	if a == nil || !IsOpen(*a, now) {
		return apperr.GateClosed(activityType)
	}
	return nil
}

// RequireWritable is Require plus the hard freeze: a closed cycle accepts no
// writes regardless of its activity windows.
func RequireWritable(c *models.Cycle, activityType string, now time.Time) error {
	if err := Require(c, activityType, now); err != nil {
		return err
	}
	if c.ClosedAt != nil {
		return apperr.InvalidState("cycle %s is closed", c.ID)
	}
	return nil
}

// Status evaluates all three gates at once.
func Status(c *models.Cycle, now time.Time) Gates {
	open := func(activityType string) bool {
		a := c.Activity(activityType)
		return a != nil && IsOpen(*a, now)
	}
	return Gates{
		Define:   open(models.ActivityDefine),
		Evaluate: open(models.ActivityEvaluate),
		Summary:  open(models.ActivitySummary),
	}
}

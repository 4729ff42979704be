// Package cycle manages evaluation cycles: lookup, closing, and rolling a
// recurring cycle over into its next period.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextStart returns the first fire time of expr strictly after after.
func NextStart(expr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid recurrence %q: %v", expr, err)
	}
	return sched.Next(after).UTC(), nil
}

// Get returns a cycle with its activities.
func Get(ctx context.Context, gdb *gorm.DB, id string) (*models.Cycle, error) {
	return db.LoadCycle(gdb.WithContext(ctx), id)
}

// List returns all cycles with their activities, newest first.
func List(ctx context.Context, gdb *gorm.DB) ([]models.Cycle, error) {
	var cycles []models.Cycle
	if err := gdb.WithContext(ctx).Preload("Activities").Order("created_at DESC, id").Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("cycle: list: %w", err)
	}
	return cycles, nil
}

// Close freezes a cycle. Every write guarded by an activity gate fails
// afterwards regardless of the activity windows.
func Close(ctx context.Context, gdb *gorm.DB, id string, now time.Time) error {
	return db.RunInTx(ctx, gdb, db.DefaultRetry, func(tx *gorm.DB) error {
		c, err := db.LoadCycle(db.ForUpdate(tx), id)
		if err != nil {
			return err
		}
		if c.ClosedAt != nil {
			return apperr.InvalidState("cycle %s is already closed", id)
		}
		if err := tx.Model(c).Update("closed_at", now.UTC()).Error; err != nil {
			return fmt.Errorf("cycle: close %s: %w", id, err)
		}
		return nil
	})
}

// anchor is the instant a cycle's period is measured from: the DEFINE start,
// else the earliest activity start, else the cycle's creation time.
func anchor(c *models.Cycle) time.Time {
	if a := c.Activity(models.ActivityDefine); a != nil && a.StartAt != nil {
		return *a.StartAt
	}
	var earliest time.Time
	for _, a := range c.Activities {
		if a.StartAt != nil && (earliest.IsZero() || a.StartAt.Before(earliest)) {
			earliest = *a.StartAt
		}
	}
	if !earliest.IsZero() {
		return earliest
	}
	return c.CreatedAt
}

func shift(t *time.Time, d time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	s := t.Add(d).UTC()
	return &s
}

// Roll creates the next period of a recurring cycle. Activity windows move
// by the distance from the current anchor to the recurrence's next fire
// time; every evaluator/evaluatee pair gets a fresh NOT_STARTED assignment.
func Roll(ctx context.Context, gdb *gorm.DB, cycleID string, now time.Time) (*models.Cycle, error) {
	var next *models.Cycle
	err := db.RunInTx(ctx, gdb, db.DefaultRetry, func(tx *gorm.DB) error {
		src, err := db.LoadCycle(tx, cycleID)
		if err != nil {
			return err
		}
		if src.Recurrence == "" {
			return apperr.Validation("cycle %s has no recurrence", cycleID)
		}
		from := anchor(src)
		if from.IsZero() {
			from = now
		}
		start, err := NextStart(src.Recurrence, from)
		if err != nil {
			return err
		}
		delta := start.Sub(from)

		name := fmt.Sprintf("%s (%s)", src.Name, start.Format("2006-01-02"))
		var exists int64
		if err := tx.Model(&models.Cycle{}).Where("name = ?", name).Count(&exists).Error; err != nil {
			return fmt.Errorf("cycle: check %q: %w", name, err)
		}
		if exists > 0 {
			return apperr.InvalidState("cycle %s was already rolled to %s", cycleID, start.Format("2006-01-02"))
		}

		c := &models.Cycle{
			ID:         db.NewID(),
			Name:       name,
			DefineMode: src.DefineMode,
			Recurrence: src.Recurrence,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		for _, a := range src.Activities {
			c.Activities = append(c.Activities, models.Activity{
				Type:    a.Type,
				Enabled: a.Enabled,
				StartAt: shift(a.StartAt, delta),
				EndAt:   shift(a.EndAt, delta),
			})
		}
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("cycle: create next of %s: %w", cycleID, err)
		}

		var pairs []models.Assignment
		if err := tx.Where("cycle_id = ?", src.ID).Order("evaluator_id, evaluatee_id").Find(&pairs).Error; err != nil {
			return fmt.Errorf("cycle: assignments of %s: %w", cycleID, err)
		}
		for _, p := range pairs {
			a := models.Assignment{
				ID:          db.NewID(),
				CycleID:     c.ID,
				EvaluatorID: p.EvaluatorID,
				EvaluateeID: p.EvaluateeID,
				EvalStatus:  models.EvalNotStarted,
			}
			if err := tx.Create(&a).Error; err != nil {
				return fmt.Errorf("cycle: copy assignment %s: %w", p.ID, err)
			}
		}
		next = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

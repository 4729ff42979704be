package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
)

var fixtureCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, fixtureCounter.Add(1))
}

// Well-known rubric ids created by SeedKpiTypes.
const (
	ChecklistTypeID    = "type-checklist"
	QuantitativeTypeID = "type-quantitative"
	CustomTypeID       = "type-custom"
)

// CycleOption customises a cycle fixture.
type CycleOption func(*models.Cycle)

// WithDefineMode sets who drafts the plan.
func WithDefineMode(mode string) CycleOption {
	return func(c *models.Cycle) { c.DefineMode = mode }
}

// WithActivity replaces the activity of the given type.
func WithActivity(activityType string, enabled bool, start, end *time.Time) CycleOption {
	return func(c *models.Cycle) {
		for i := range c.Activities {
			if c.Activities[i].Type == activityType {
				c.Activities[i].Enabled = enabled
				c.Activities[i].StartAt = start
				c.Activities[i].EndAt = end
				return
			}
		}
		c.Activities = append(c.Activities, models.Activity{Type: activityType, Enabled: enabled, StartAt: start, EndAt: end})
	}
}

// WithClosedGate disables the activity of the given type.
func WithClosedGate(activityType string) CycleOption {
	return WithActivity(activityType, false, nil, nil)
}

// WithRecurrence sets the cycle's cron expression.
func WithRecurrence(expr string) CycleOption {
	return func(c *models.Cycle) { c.Recurrence = expr }
}

// NewCycle inserts an EVALUATEE_DEFINES cycle whose three activities are
// enabled without windows.
func NewCycle(t *testing.T, gdb *gorm.DB, opts ...CycleOption) *models.Cycle {
	t.Helper()
	c := &models.Cycle{
		ID:         nextID("cycle"),
		Name:       "Test cycle",
		DefineMode: models.DefineModeEvaluatee,
		Activities: []models.Activity{
			{Type: models.ActivityDefine, Enabled: true},
			{Type: models.ActivityEvaluate, Enabled: true},
			{Type: models.ActivitySummary, Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := gdb.Create(c).Error; err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	return c
}

// NewAssignment inserts a NOT_STARTED assignment in the cycle.
func NewAssignment(t *testing.T, gdb *gorm.DB, cycleID, evaluator, evaluatee string) *models.Assignment {
	t.Helper()
	a := &models.Assignment{
		ID:          nextID("asg"),
		CycleID:     cycleID,
		EvaluatorID: evaluator,
		EvaluateeID: evaluatee,
		EvalStatus:  models.EvalNotStarted,
	}
	if err := gdb.Create(a).Error; err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

// SeedKpiTypes inserts one rubric of each kind. The checklist rubric has
// items c1..c4 weighted 10, 20, 30 and 40.
func SeedKpiTypes(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	types := []models.KpiType{
		{ID: ChecklistTypeID, Name: "Checklist", Kind: models.KindChecklist, ChecklistItems: []models.ChecklistItem{
			{ID: "c1", Title: "First", WeightPercent: 10, SortOrder: 0},
			{ID: "c2", Title: "Second", WeightPercent: 20, SortOrder: 1},
			{ID: "c3", Title: "Third", WeightPercent: 30, SortOrder: 2},
			{ID: "c4", Title: "Fourth", WeightPercent: 40, SortOrder: 3},
		}},
		{ID: QuantitativeTypeID, Name: "Quantitative", Kind: models.KindQuantitative},
		{ID: CustomTypeID, Name: "Custom", Kind: models.KindCustom},
	}
	for i := range types {
		if err := gdb.Create(&types[i]).Error; err != nil {
			t.Fatalf("create kpi type: %v", err)
		}
	}
}

// Reload re-reads a row by primary key into dest.
func Reload(t *testing.T, gdb *gorm.DB, dest interface{}, id interface{}) {
	t.Helper()
	if err := gdb.First(dest, "id = ?", id).Error; err != nil {
		t.Fatalf("reload %T %v: %v", dest, id, err)
	}
}

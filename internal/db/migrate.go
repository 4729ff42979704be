package db

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zulandar/kpiyard/internal/config"
	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Cycle{},
		&models.Activity{},
		&models.Assignment{},
		&models.Plan{},
		&models.Node{},
		&models.ConfirmEvent{},
		&models.Submission{},
		&models.KpiType{},
		&models.ChecklistItem{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DropAll drops every table created by AutoMigrate.
func DropAll(db *gorm.DB) error {
	all := AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return nil
}

// SeedKpiTypes upserts rubric rows and their checklist items from configuration.
func SeedKpiTypes(db *gorm.DB, types []config.KpiTypeConfig) error {
	for _, tc := range types {
		kt := models.KpiType{ID: tc.ID, Name: tc.Name, Kind: tc.Kind}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "kind"}),
		}).Create(&kt)
		if result.Error != nil {
			return fmt.Errorf("db: seed kpi type %q: %w", tc.ID, result.Error)
		}

		for i, ic := range tc.Checklist {
			item := models.ChecklistItem{
				ID:            ic.ID,
				TypeID:        tc.ID,
				Title:         ic.Title,
				WeightPercent: ic.Weight,
				SortOrder:     i,
			}
			result := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"type_id", "title", "weight_percent", "sort_order"}),
			}).Create(&item)
			if result.Error != nil {
				return fmt.Errorf("db: seed checklist item %q of %q: %w", ic.ID, tc.ID, result.Error)
			}
		}
	}
	return nil
}

// activityTypes maps config keys to activity type names.
var activityTypes = map[string]string{
	"define":   models.ActivityDefine,
	"evaluate": models.ActivityEvaluate,
	"summary":  models.ActivitySummary,
}

// SeedCycles upserts cycles, their activities and assignments from configuration.
// Existing assignments keep their evaluation state.
func SeedCycles(db *gorm.DB, cycles []config.CycleConfig) error {
	for _, cc := range cycles {
		cy := models.Cycle{
			ID:         cc.ID,
			Name:       cc.Name,
			DefineMode: cc.DefineMode,
			Recurrence: cc.Recurrence,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "define_mode", "recurrence"}),
		}).Create(&cy)
		if result.Error != nil {
			return fmt.Errorf("db: seed cycle %q: %w", cc.ID, result.Error)
		}

		names := make([]string, 0, len(cc.Activities))
		for name := range cc.Activities {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ac := cc.Activities[name]
			act := models.Activity{
				CycleID: cc.ID,
				Type:    activityTypes[strings.ToLower(name)],
				Enabled: ac.Enabled,
				StartAt: ac.Start,
				EndAt:   ac.End,
			}
			result := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cycle_id"}, {Name: "type"}},
				DoUpdates: clause.AssignmentColumns([]string{"enabled", "start_at", "end_at"}),
			}).Create(&act)
			if result.Error != nil {
				return fmt.Errorf("db: seed activity %s of %q: %w", name, cc.ID, result.Error)
			}
		}

		for _, ac := range cc.Assignments {
			id := ac.ID
			if id == "" {
				id = NewID()
			}
			asg := models.Assignment{
				ID:          id,
				CycleID:     cc.ID,
				EvaluatorID: ac.Evaluator,
				EvaluateeID: ac.Evaluatee,
				EvalStatus:  models.EvalNotStarted,
			}
			result := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cycle_id"}, {Name: "evaluator_id"}, {Name: "evaluatee_id"}},
				DoNothing: true,
			}).Create(&asg)
			if result.Error != nil {
				return fmt.Errorf("db: seed assignment %s/%s in %q: %w", ac.Evaluator, ac.Evaluatee, cc.ID, result.Error)
			}
		}
	}
	return nil
}

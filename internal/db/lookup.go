package db

import (
	"errors"
	"fmt"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/gorm"
)

// LoadCycle reads a cycle with its activities.
func LoadCycle(tx *gorm.DB, id string) (*models.Cycle, error) {
	var c models.Cycle
	if err := tx.Preload("Activities").First(&c, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "cycle", id)
	}
	return &c, nil
}

// LoadAssignment reads and row-locks an assignment and loads its cycle.
func LoadAssignment(tx *gorm.DB, id string) (*models.Assignment, *models.Cycle, error) {
	var a models.Assignment
	if err := ForUpdate(tx).First(&a, "id = ?", id).Error; err != nil {
		return nil, nil, lookupErr(err, "assignment", id)
	}
	c, err := LoadCycle(tx, a.CycleID)
	if err != nil {
		return nil, nil, err
	}
	return &a, c, nil
}

// LoadPlan reads and row-locks a plan.
func LoadPlan(tx *gorm.DB, id string) (*models.Plan, error) {
	var p models.Plan
	if err := ForUpdate(tx).First(&p, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "plan", id)
	}
	return &p, nil
}

// LoadNodes reads a plan's nodes ordered by sort order.
func LoadNodes(tx *gorm.DB, planID string) ([]models.Node, error) {
	var nodes []models.Node
	if err := tx.Where("plan_id = ?", planID).Order("sort_order ASC, id ASC").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("db: load nodes of plan %s: %w", planID, err)
	}
	return nodes, nil
}

func lookupErr(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return fmt.Errorf("db: load %s %s: %w", entity, id, err)
}

package scoring

import (
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/models"
)

// MaxScore is the top of the 0..5 scale every rubric maps onto.
const MaxScore = 5.0

// Payload is what an evaluator sends when scoring an ITEM. Checklist rubrics
// read CheckedIDs; the other kinds read Score.
type Payload struct {
	Score      *float64 `json:"score,omitempty" validate:"omitempty,gte=0,lte=5"`
	CheckedIDs []string `json:"checkedIds,omitempty" validate:"omitempty,unique,dive,required"`
	Comment    string   `json:"comment,omitempty" validate:"max=4000"`
}

var validate = validator.New()

// ChecklistScore maps the checked items of a checklist rubric onto 0..5:
// round(sum of checked weights / 100 * 5), clamped.
func ChecklistScore(items []models.ChecklistItem, checked []string) float64 {
	weights := make(map[string]float64, len(items))
	for _, it := range items {
		weights[it.ID] = it.WeightPercent
	}
	var sum float64
	for _, id := range checked {
		sum += weights[id]
	}
	return clamp(math.Round(sum / 100 * MaxScore))
}

// resolveScore validates p against the rubric and returns the 0..5 score it
// yields. A numeric rubric without a score yields nil; the item then counts as
// incomplete at submit time.
func resolveScore(kt *models.KpiType, p Payload) (*float64, error) {
	if err := validate.Struct(p); err != nil {
		return nil, apperr.Validation("invalid score payload: %v", err)
	}
	switch kt.Kind {
	case models.KindChecklist:
		if p.Score != nil {
			return nil, apperr.Validation("rubric %s is a checklist; send checked ids, not a score", kt.ID)
		}
		known := make(map[string]bool, len(kt.ChecklistItems))
		for _, it := range kt.ChecklistItems {
			known[it.ID] = true
		}
		for _, id := range p.CheckedIDs {
			if !known[id] {
				return nil, apperr.Validation("checklist item %q is not part of rubric %s", id, kt.ID)
			}
		}
		s := ChecklistScore(kt.ChecklistItems, p.CheckedIDs)
		return &s, nil
	case models.KindQuantitative, models.KindCustom:
		if len(p.CheckedIDs) > 0 {
			return nil, apperr.Validation("rubric %s takes a numeric score, not checked items", kt.ID)
		}
		return p.Score, nil
	default:
		return nil, apperr.Validation("rubric %s has unknown kind %q", kt.ID, kt.Kind)
	}
}

func clamp(s float64) float64 {
	return math.Max(0, math.Min(MaxScore, s))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

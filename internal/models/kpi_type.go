package models

// Rubric kinds.
const (
	KindChecklist    = "QUALITATIVE_CHECKLIST"
	KindQuantitative = "QUANTITATIVE"
	KindCustom       = "CUSTOM"
)

// KpiType is a rubric referenced by ITEM nodes.
type KpiType struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:128;not null"`
	Kind string `gorm:"size:32;not null"`

	ChecklistItems []ChecklistItem `gorm:"foreignKey:TypeID"`
}

// ChecklistItem is one weighted criterion of a QUALITATIVE_CHECKLIST rubric.
type ChecklistItem struct {
	ID            string  `gorm:"primaryKey;size:36"`
	TypeID        string  `gorm:"size:36;not null;index"`
	Title         string  `gorm:"size:255;not null"`
	WeightPercent float64 `gorm:"type:numeric(5,2);not null"`
	SortOrder     int
}

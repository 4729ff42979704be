package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store persists one inbox row per recipient.
type Store struct {
	DB *gorm.DB
}

func (s Store) Notify(ctx context.Context, ev Event) error {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return fmt.Errorf("notify: encode meta: %w", err)
	}
	now := time.Now()
	rows := make([]models.Notification, 0, len(ev.Recipients))
	for _, r := range ev.Recipients {
		rows = append(rows, models.Notification{
			Type:      ev.Type,
			ActorID:   ev.ActorID,
			CycleID:   ev.CycleID,
			Recipient: r,
			Meta:      datatypes.JSON(meta),
			CreatedAt: now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("notify: store %s: %w", ev.Type, err)
	}
	return nil
}

// Inbox returns unacknowledged notifications for a recipient, oldest first.
func Inbox(db *gorm.DB, recipient string) ([]models.Notification, error) {
	if recipient == "" {
		return nil, fmt.Errorf("notify: recipient is required")
	}
	var rows []models.Notification
	if err := db.Where("recipient = ? AND acknowledged = ?", recipient, false).
		Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notify: inbox %s: %w", recipient, err)
	}
	return rows, nil
}

// Acknowledge marks a recipient's notification as read. Another recipient's
// notification is reported as not found.
func Acknowledge(db *gorm.DB, recipient string, id uint) error {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND recipient = ?", id, recipient).
		Update("acknowledged", true)
	if result.Error != nil {
		return fmt.Errorf("notify: acknowledge %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("notification", fmt.Sprint(id))
	}
	return nil
}

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avolkov/market-api/internal/models"
)

// FinalizePayment marks the cart paid and records the provider event ID
// in one transaction. Returns false when the event was seen before or
// the cart already left "ready to pay", so redelivered webhooks never
// repeat side effects.
func (r *GormRepo) FinalizePayment(ctx context.Context, eventID, eventType string, cartID uint) (bool, error) {
	first := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&models.WebhookEvent{}).
			Where("event_id = ?", eventID).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return nil
		}

		res := tx.Model(&models.Cart{}).
			Where("id = ? AND status = ?", cartID, models.StatusReadyToPay).
			Update("status", models.StatusPaid)
		if res.Error != nil {
			return res.Error
		}
		first = res.RowsAffected > 0

		return tx.Create(&models.WebhookEvent{
			EventID:     eventID,
			EventType:   eventType,
			ProcessedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

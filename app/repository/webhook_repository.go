package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/obafemi/settlecore/app/models"
)

type gormWebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a webhook idempotency store backed by GORM.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &gormWebhookRepository{db: db}
}

// CreateIfNotExists relies on the composite unique index as the concurrency
// control: a duplicate delivery loses the insert race at the storage layer,
// which also holds across process instances.
func (r *gormWebhookRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_type"},
			{Name: "gateway_reference"},
			{Name: "gateway_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	err := r.db.Where("event_type = ? AND gateway_reference = ? AND gateway_event_id = ?",
		event.EventType, event.GatewayReference, event.GatewayEventID).
		First(&stored).Error
	if err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormWebhookRepository) MarkProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       models.WebhookStatusProcessed,
		"processed_at": &now,
	}).Error
}

func (r *gormWebhookRepository) MarkFailed(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           models.WebhookStatusFailed,
		"processing_error": processingError,
		"retry_count":      gorm.Expr("retry_count + 1"),
	}).Error
}

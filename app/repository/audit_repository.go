package repository

import (
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
)

type gormAuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an audit log repository backed by GORM.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &gormAuditRepository{db: db}
}

func (r *gormAuditRepository) Append(entry *models.AuditLogEntry) error {
	return r.db.Create(entry).Error
}

func (r *gormAuditRepository) ListByEntity(entityType, entityID string) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").Find(&entries).Error
	return entries, err
}

package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/obafemi/settlecore/app/models"
)

type gormReservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a reservation repository backed by GORM.
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &gormReservationRepository{db: db}
}

func (r *gormReservationRepository) Create(res *models.InventoryReservation) error {
	return r.db.Create(res).Error
}

func (r *gormReservationRepository) ActiveByOrder(orderID uint, now time.Time) ([]models.InventoryReservation, error) {
	var out []models.InventoryReservation
	err := r.db.
		Where("order_id = ? AND released_at IS NULL AND reserved_until > ?", orderID, now).
		Find(&out).Error
	return out, err
}

func (r *gormReservationRepository) ReleaseByOrder(orderID uint, now time.Time) (int64, error) {
	tx := r.db.Model(&models.InventoryReservation{}).
		Where("order_id = ? AND released_at IS NULL", orderID).
		Update("released_at", &now)
	return tx.RowsAffected, tx.Error
}

func (r *gormReservationRepository) ListExpired(now time.Time, limit int) ([]models.InventoryReservation, error) {
	var out []models.InventoryReservation
	q := r.db.Where("released_at IS NULL AND reserved_until <= ?", now).Order("reserved_until ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *gormReservationRepository) ReleaseByIDs(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// released_at IS NULL keeps a second sweep pass a no-op.
	tx := r.db.Model(&models.InventoryReservation{}).
		Where("id IN ? AND released_at IS NULL", ids).
		Update("released_at", &now)
	return tx.RowsAffected, tx.Error
}

func (r *gormReservationRepository) ActiveQuantityByVariant(variantID uint, now time.Time) (int, error) {
	var total int64
	err := r.db.Model(&models.InventoryReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("variant_id = ? AND released_at IS NULL AND reserved_until > ?", variantID, now).
		Scan(&total).Error
	return int(total), err
}

func (r *gormReservationRepository) GetVariant(variantID uint) (*models.ProductVariant, error) {
	var v models.ProductVariant
	if err := r.db.First(&v, variantID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormReservationRepository) GetVariantForUpdate(variantID uint) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&v, variantID).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormReservationRepository) AdjustVariantStock(variantID uint, delta int) error {
	return r.db.Model(&models.ProductVariant{}).Where("id = ?", variantID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta)).Error
}

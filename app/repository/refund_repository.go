package repository

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
)

type gormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a refund repository backed by GORM.
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &gormRefundRepository{db: db}
}

func (r *gormRefundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

func (r *gormRefundRepository) SumByPayment(paymentID uint) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.Model(&models.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ?", paymentID).
		Scan(&sum).Error
	if err != nil || !sum.Valid {
		return decimal.Zero, err
	}
	return sum.Decimal, nil
}

func (r *gormRefundRepository) UpdateStatusByGatewayRef(gatewayRefundRef, status string) error {
	result := r.db.Model(&models.Refund{}).
		Where("gateway_refund_ref = ?", gatewayRefundRef).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRefundRepository) ListByPayment(paymentID uint) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at ASC").Find(&refunds).Error
	return refunds, err
}

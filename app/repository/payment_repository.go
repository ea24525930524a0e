package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/obafemi/settlecore/app/models"
)

type gormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository backed by GORM.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepository{db: db}
}

func (r *gormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormPaymentRepository) GetByReference(gateway, reference string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("gateway = ? AND reference = ?", gateway, reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormPaymentRepository) GetByReferenceForUpdate(gateway, reference string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway = ? AND reference = ?", gateway, reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormPaymentRepository) MarkPaid(id uint, settledAt time.Time, gatewayResponseJSON string) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":                models.PaymentStatusPaid,
		"settled_at":            &settledAt,
		"gateway_response_json": gatewayResponseJSON,
	}).Error
}

func (r *gormPaymentRepository) MarkFailed(id uint, gatewayResponseJSON string) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":                models.PaymentStatusFailed,
		"gateway_response_json": gatewayResponseJSON,
	}).Error
}

func (r *gormPaymentRepository) ListByOrder(orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *gormPaymentRepository) ListCreatedBetween(from, to time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *gormPaymentRepository) HasPaidPayment(orderID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusPaid).
		Count(&count).Error
	return count > 0, err
}

func (r *gormPaymentRepository) AveragePaidAmountSince(userID uint, since time.Time) (decimal.Decimal, error) {
	var avg decimal.NullDecimal
	err := r.db.Model(&models.Payment{}).
		Select("AVG(payments.amount)").
		Joins("JOIN orders ON orders.id = payments.order_id").
		Where("orders.user_id = ? AND payments.status = ? AND payments.created_at >= ?",
			userID, models.PaymentStatusPaid, since).
		Scan(&avg).Error
	if err != nil || !avg.Valid {
		return decimal.Zero, err
	}
	return avg.Decimal, nil
}

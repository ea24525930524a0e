package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
)

// OrderRepository defines order persistence. Status writes go through the
// orderstate package, which calls these methods inside a unit of work.
type OrderRepository interface {
	Create(order *models.Order, items []models.OrderItem) error
	GetByID(id uint) (*models.Order, error)
	// GetByIDForUpdate takes a row lock so a read-then-write of the status
	// happens against a value that cannot change under the transaction.
	GetByIDForUpdate(id uint) (*models.Order, error)
	GetByOrderNumber(orderNumber string) (*models.Order, error)
	UpdateStatus(id uint, status string) error
	Save(order *models.Order) error
}

// PaymentRepository defines payment ledger persistence.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByReference(gateway, reference string) (*models.Payment, error)
	// GetByReferenceForUpdate locks the payment row; the settle operation's
	// idempotence under a client-poll/webhook race depends on it.
	GetByReferenceForUpdate(gateway, reference string) (*models.Payment, error)
	MarkPaid(id uint, settledAt time.Time, gatewayResponseJSON string) error
	MarkFailed(id uint, gatewayResponseJSON string) error
	ListByOrder(orderID uint) ([]models.Payment, error)
	ListCreatedBetween(from, to time.Time) ([]models.Payment, error)
	HasPaidPayment(orderID uint) (bool, error)
	// AveragePaidAmountSince feeds the fraud scorer's trailing-average check.
	AveragePaidAmountSince(userID uint, since time.Time) (decimal.Decimal, error)
}

// RefundRepository defines append-only refund persistence.
type RefundRepository interface {
	Create(refund *models.Refund) error
	SumByPayment(paymentID uint) (decimal.Decimal, error)
	ListByPayment(paymentID uint) ([]models.Refund, error)
	// UpdateStatusByGatewayRef settles the refund lifecycle from gateway
	// webhook notifications.
	UpdateStatusByGatewayRef(gatewayRefundRef, status string) error
}

// ReservationRepository defines inventory reservation persistence. Availability
// is always the aggregation over active unexpired reservations, never a
// separately maintained counter.
type ReservationRepository interface {
	Create(res *models.InventoryReservation) error
	ActiveByOrder(orderID uint, now time.Time) ([]models.InventoryReservation, error)
	ReleaseByOrder(orderID uint, now time.Time) (int64, error)
	ListExpired(now time.Time, limit int) ([]models.InventoryReservation, error)
	ReleaseByIDs(ids []uint, now time.Time) (int64, error)
	ActiveQuantityByVariant(variantID uint, now time.Time) (int, error)
	GetVariant(variantID uint) (*models.ProductVariant, error)
	GetVariantForUpdate(variantID uint) (*models.ProductVariant, error)
	// AdjustVariantStock applies a physical stock delta, used when a paid
	// order converts its reservation into a sale.
	AdjustVariantStock(variantID uint, delta int) error
}

// WebhookRepository defines the idempotency store for inbound gateway events.
type WebhookRepository interface {
	// CreateIfNotExists inserts the dedup row, reporting created=false when an
	// event with the same composite key already exists.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint) error
	MarkFailed(id uint, processingError string) error
}

// AuditRepository appends to the audit log. There is deliberately no update
// or delete.
type AuditRepository interface {
	Append(entry *models.AuditLogEntry) error
	ListByEntity(entityType, entityID string) ([]models.AuditLogEntry, error)
}

// UserRepository exposes the slim account lookup this core needs.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

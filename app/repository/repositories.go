package repository

import "gorm.io/gorm"

// Repositories bundles all repository implementations over one DB handle.
// Construct it over a transaction handle (database.UnitOfWork.DB()) to scope
// every operation to that transaction.
type Repositories struct {
	Order       OrderRepository
	Payment     PaymentRepository
	Refund      RefundRepository
	Reservation ReservationRepository
	Webhook     WebhookRepository
	Audit       AuditRepository
	User        UserRepository
}

// NewRepositories creates all repositories backed by the given handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:       NewOrderRepository(db),
		Payment:     NewPaymentRepository(db),
		Refund:      NewRefundRepository(db),
		Reservation: NewReservationRepository(db),
		Webhook:     NewWebhookRepository(db),
		Audit:       NewAuditRepository(db),
		User:        NewUserRepository(db),
	}
}

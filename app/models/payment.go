package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gateway names. Only Paystack is wired; the column exists so the unique
// reference constraint stays correct if another gateway is ever added.
const (
	GatewayPaystack = "paystack"
)

// Payment status values. A payment that reached paid is terminal; a retry
// after failure creates a new row instead of mutating this one.
const (
	PaymentStatusInitialized = "initialized"
	PaymentStatusPaid        = "paid"
	PaymentStatusFailed      = "failed"
)

// Payment records one charge attempt against an order. The settlement
// operation is the only writer after creation.
type Payment struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	OrderID             uint            `gorm:"not null;index" json:"order_id"`
	Gateway             string          `gorm:"type:varchar(20);not null;default:'paystack';index:ux_payments_gateway_reference,unique,priority:1" json:"gateway"`
	Reference           string          `gorm:"type:varchar(100);not null;index:ux_payments_gateway_reference,unique,priority:2" json:"reference"`
	Amount              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency            string          `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency"`
	Status              string          `gorm:"type:varchar(20);not null;default:'initialized';index" json:"status"`
	SettledAt           *time.Time      `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`
	GatewayResponseJSON string          `gorm:"type:longtext" json:"gateway_response_json"`
	CreatedAt           time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Refund status values mirror the gateway's refund lifecycle.
const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

// Refund is an append-only row against a paid payment. Cumulative refund
// amounts may never exceed the payment amount.
type Refund struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	PaymentID        uint            `gorm:"not null;index" json:"payment_id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	GatewayRefundRef string          `gorm:"type:varchar(100)" json:"gateway_refund_ref"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Reason           string          `gorm:"type:text" json:"reason"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Order status values. pending and pending_payment are the only states a
// customer-initiated cancel may leave from; everything else needs admin action.
const (
	OrderStatusPending           = "pending"
	OrderStatusPendingPayment    = "pending_payment"
	OrderStatusPaid              = "paid"
	OrderStatusProcessing        = "processing"
	OrderStatusShipped           = "shipped"
	OrderStatusDelivered         = "delivered"
	OrderStatusCancelled         = "cancelled"
	OrderStatusPaymentFailed     = "payment_failed"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
)

// Order is the authoritative order record. Status is mutated only through the
// orderstate package; orders are never physically deleted.
type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderNumber     string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	Status          string          `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Tax             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax"`
	Shipping        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"shipping"`
	Discount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency"`
	ShippingAddress string          `gorm:"type:text" json:"shipping_address"`
	BillingAddress  string          `gorm:"type:text" json:"billing_address"`
	MetadataJSON    string          `gorm:"type:longtext" json:"metadata_json"`
	RequiresReview  bool            `gorm:"default:false;index" json:"requires_review"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem snapshots the unit price at order time. Items are created
// atomically with their order and never updated afterwards.
type OrderItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OrderID      uint            `gorm:"not null;index" json:"order_id"`
	VariantID    uint            `gorm:"not null;index" json:"variant_id"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	MetadataJSON string          `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ComputeOrderTotal derives the order total from its components. It is called
// once at order creation; the stored total is never silently recomputed.
func ComputeOrderTotal(subtotal, tax, shipping, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax).Add(shipping).Sub(discount)
}

// TotalConsistent reports whether the stored total matches its components.
func (o *Order) TotalConsistent() bool {
	return o.Total.Equal(ComputeOrderTotal(o.Subtotal, o.Tax, o.Shipping, o.Discount))
}

// Metadata decodes the free-form metadata map. A missing or empty payload
// yields an empty map.
func (o *Order) Metadata() map[string]interface{} {
	meta := map[string]interface{}{}
	if o.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(o.MetadataJSON), &meta)
	}
	return meta
}

// SetMetadataValue merges a single key into the metadata map.
func (o *Order) SetMetadataValue(key string, value interface{}) error {
	meta := o.Metadata()
	meta[key] = value
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	o.MetadataJSON = string(raw)
	return nil
}

// CustomerCancellable reports whether a customer may cancel from the current
// status without administrative action.
func (o *Order) CustomerCancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPendingPayment
}

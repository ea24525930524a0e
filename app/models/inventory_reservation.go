package models

import "time"

// InventoryReservation holds stock against an unpaid order until its deadline.
// A reservation past reserved_until with released_at still null counts as
// inactive for availability even before the sweeper marks it released.
type InventoryReservation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OrderID       uint       `gorm:"not null;index" json:"order_id"`
	VariantID     uint       `gorm:"not null;index" json:"variant_id"`
	Quantity      int        `gorm:"not null" json:"quantity"`
	ReservedUntil time.Time  `gorm:"not null;index" json:"reserved_until"`
	ReleasedAt    *time.Time `gorm:"type:timestamp;default:null;index" json:"released_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveAt reports whether the reservation still holds stock at the given time.
func (r *InventoryReservation) ActiveAt(now time.Time) bool {
	return r.ReleasedAt == nil && r.ReservedUntil.After(now)
}

// ProductVariant is the slim stock-keeping record the reservation manager
// counts against. Catalog data lives outside this core.
type ProductVariant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SKU            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku"`
	StockQuantity  int       `gorm:"not null;default:0" json:"stock_quantity"`
	TrackInventory bool      `gorm:"not null;default:true" json:"track_inventory"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import "time"

// Audit actions recorded by the settlement core.
const (
	AuditActionOrderCreated       = "order_created"
	AuditActionOrderStatusChanged = "order_status_changed"
	AuditActionPaymentSettled     = "payment_settled"
	AuditActionPaymentFailed      = "payment_failed"
	AuditActionRefundCreated      = "refund_created"
	AuditActionReconciliationRun  = "reconciliation_run"
)

// AuditLogEntry is an append-only record of every state-changing operation in
// the settlement core. Entries are never updated or deleted.
type AuditLogEntry struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Actor             string    `gorm:"type:varchar(100);not null" json:"actor"`
	Action            string    `gorm:"type:varchar(100);not null;index" json:"action"`
	EntityType        string    `gorm:"type:varchar(50);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID          string    `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	ChangePayloadJSON string    `gorm:"type:longtext" json:"change_payload_json"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

package models

import "time"

// Webhook event processing states.
const (
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
)

// WebhookEvent deduplicates inbound gateway events. The composite unique index
// over (event_type, gateway_reference, gateway_event_id) is the concurrency
// control: duplicate deliveries lose the insert race at the storage layer.
type WebhookEvent struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	EventType        string     `gorm:"type:varchar(100);not null;index:ux_webhook_events_dedup,unique,priority:1" json:"event_type"`
	GatewayReference string     `gorm:"type:varchar(100);not null;index:ux_webhook_events_dedup,unique,priority:2" json:"gateway_reference"`
	GatewayEventID   string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_dedup,unique,priority:3" json:"gateway_event_id"`
	Status           string     `gorm:"type:varchar(20);not null;default:'processing';index" json:"status"`
	RetryCount       int        `gorm:"not null;default:0" json:"retry_count"`
	PayloadJSON      string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt      *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError  string     `gorm:"type:text" json:"processing_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

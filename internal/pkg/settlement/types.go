package settlement

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/internal/pkg/fraud"
)

// RiskScorer is the advisory risk signal consulted before a charge is opened.
// A nil scorer disables scoring entirely.
type RiskScorer interface {
	Score(ctx context.Context, in fraud.Input) (*fraud.Result, error)
	RecordAttempt(ctx context.Context, userID uint, sourceIP string)
	RecordFailure(ctx context.Context, userID uint, sourceIP string)
}

// InitializeInput opens a payment attempt for an order.
type InitializeInput struct {
	OrderID    uint
	PayerEmail string
	SourceIP   string
}

// InitializeResult carries the handle the client completes payment at.
type InitializeResult struct {
	PaymentID        uint   `json:"payment_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// SettleResult reports the outcome of a settlement attempt.
type SettleResult struct {
	Payment        *models.Payment `json:"payment"`
	OrderStatus    string          `json:"order_status"`
	AlreadySettled bool            `json:"already_settled"`
}

// RefundInput requests a refund against a settled payment. A nil Amount
// refunds the remaining refundable balance.
type RefundInput struct {
	PaymentID uint
	Amount    *decimal.Decimal
	Reason    string
	Actor     string
}

// WebhookResult reports how an inbound gateway event was handled.
type WebhookResult struct {
	EventID   uint   `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Handled   string `json:"handled"`
}

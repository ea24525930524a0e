// Package gateway talks to the payment gateway's HTTP API. All monetary
// amounts cross this boundary in the gateway's minor currency unit; the
// conversion to and from major-unit decimals happens here and nowhere else.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the adapter contract the settlement core consumes.
type Gateway interface {
	InitializeTransaction(ctx context.Context, in InitializeInput) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal, note string) (*RefundResult, error)
	ExportTransactions(ctx context.Context, from, to time.Time, status string) ([]Transaction, error)
	VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool
}

// InitializeInput opens a remote transaction for a local payment attempt.
type InitializeInput struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

// InitializeResult carries the redirect handle the client completes payment at.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Transaction statuses as reported by the gateway.
const (
	TxnStatusSuccess   = "success"
	TxnStatusFailed    = "failed"
	TxnStatusAbandoned = "abandoned"
)

// Transaction is the gateway's authoritative record of a charge.
type Transaction struct {
	Reference       string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	Channel         string
	PaidAt          *time.Time
	GatewayResponse string
}

// RefundResult reports the gateway's acknowledgement of a refund request.
type RefundResult struct {
	RefundID string
	Status   string
}

// Package reconcile compares the local payment ledger against the gateway's
// transaction export and reports every discrepancy. Classification is pure;
// fetching and report writing live in the engine.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
)

// Row classification types.
const (
	RowMatch            = "MATCH"
	RowAmountMismatch   = "AMOUNT_MISMATCH"
	RowMissingInGateway = "MISSING_IN_PAYSTACK"
	RowMissingInLocal   = "MISSING_IN_LOCAL"
)

// amountEpsilon absorbs minor-unit rounding between the two sides.
var amountEpsilon = decimal.NewFromFloat(0.01)

// Row is one classified comparison between a local payment and the gateway's
// record of the same reference. A missing side leaves its amount nil.
type Row struct {
	Type          string
	Reference     string
	OrderNumber   string
	Issue         string
	LocalAmount   *decimal.Decimal
	GatewayAmount *decimal.Decimal
	Difference    decimal.Decimal
	Status        string
}

// Summary counts rows per classification.
type Summary struct {
	Matched          int
	Mismatched       int
	MissingInGateway int
	MissingInLocal   int
}

// Discrepancies returns the number of rows needing attention.
func (s Summary) Discrepancies() int {
	return s.Mismatched + s.MissingInGateway + s.MissingInLocal
}

// Classify compares local payments against the gateway export. An abandoned
// checkout still has a gateway record (status abandoned or failed) and
// produces no row; a local attempt the gateway has never heard of is an
// orphaned charge that initialization's rollback should have prevented, and
// is flagged.
func Classify(locals []models.Payment, remote []gateway.Transaction, orderNumbers map[uint]string) ([]Row, Summary) {
	remoteByRef := make(map[string]gateway.Transaction, len(remote))
	for _, txn := range remote {
		remoteByRef[txn.Reference] = txn
	}

	var rows []Row
	var summary Summary
	seen := map[string]bool{}

	for _, p := range locals {
		seen[p.Reference] = true
		txn, ok := remoteByRef[p.Reference]

		switch {
		case p.Status == models.PaymentStatusPaid && (!ok || txn.Status != gateway.TxnStatusSuccess):
			issue := "settled locally but the gateway has no record"
			var gwAmount *decimal.Decimal
			if ok {
				issue = fmt.Sprintf("settled locally but the gateway reports %s", txn.Status)
				amount := txn.Amount
				gwAmount = &amount
			}
			local := p.Amount
			rows = append(rows, Row{
				Type:          RowMissingInGateway,
				Reference:     p.Reference,
				OrderNumber:   orderNumbers[p.OrderID],
				Issue:         issue,
				LocalAmount:   &local,
				GatewayAmount: gwAmount,
				Status:        p.Status,
			})
			summary.MissingInGateway++

		case p.Status == models.PaymentStatusPaid:
			local, gw := p.Amount, txn.Amount
			// Signed so the report shows which side is short.
			diff := local.Sub(gw)
			if diff.Abs().GreaterThan(amountEpsilon) {
				rows = append(rows, Row{
					Type:          RowAmountMismatch,
					Reference:     p.Reference,
					OrderNumber:   orderNumbers[p.OrderID],
					Issue:         fmt.Sprintf("local amount %s differs from gateway amount %s", local.StringFixed(2), gw.StringFixed(2)),
					LocalAmount:   &local,
					GatewayAmount: &gw,
					Difference:    diff,
					Status:        p.Status,
				})
				summary.Mismatched++
				continue
			}
			rows = append(rows, Row{
				Type:          RowMatch,
				Reference:     p.Reference,
				OrderNumber:   orderNumbers[p.OrderID],
				LocalAmount:   &local,
				GatewayAmount: &gw,
				Difference:    diff,
				Status:        p.Status,
			})
			summary.Matched++

		case ok && txn.Status == gateway.TxnStatusSuccess:
			// Gateway took the money but the local attempt never settled.
			local, gw := p.Amount, txn.Amount
			rows = append(rows, Row{
				Type:          RowMissingInLocal,
				Reference:     p.Reference,
				OrderNumber:   orderNumbers[p.OrderID],
				Issue:         fmt.Sprintf("gateway settled but local payment is %s", p.Status),
				LocalAmount:   &local,
				GatewayAmount: &gw,
				Status:        p.Status,
			})
			summary.MissingInLocal++

		case !ok:
			// An attempt the gateway has never heard of means a local row was
			// committed after a failed remote call.
			local := p.Amount
			rows = append(rows, Row{
				Type:        RowMissingInGateway,
				Reference:   p.Reference,
				OrderNumber: orderNumbers[p.OrderID],
				Issue:       fmt.Sprintf("local %s attempt with no gateway record", p.Status),
				LocalAmount: &local,
				Status:      p.Status,
			})
			summary.MissingInGateway++
		}
	}

	for _, txn := range remote {
		if seen[txn.Reference] || txn.Status != gateway.TxnStatusSuccess {
			continue
		}
		amount := txn.Amount
		rows = append(rows, Row{
			Type:          RowMissingInLocal,
			Reference:     txn.Reference,
			Issue:         "gateway settled a reference with no local payment row",
			GatewayAmount: &amount,
			Status:        txn.Status,
		})
		summary.MissingInLocal++
	}

	return rows, summary
}

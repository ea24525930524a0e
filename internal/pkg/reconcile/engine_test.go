package reconcile

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository/mocks"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
	"github.com/obafemi/settlecore/internal/pkg/reportstore"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func paid(orderID uint, ref, amount string) models.Payment {
	return models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: ref,
		Amount:    dec(amount),
		Status:    models.PaymentStatusPaid,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func success(ref, amount string) gateway.Transaction {
	return gateway.Transaction{Reference: ref, Status: gateway.TxnStatusSuccess, Amount: dec(amount)}
}

func TestClassifyFixture(t *testing.T) {
	locals := []models.Payment{
		paid(1, "SC-1-a", "100.00"),
		paid(2, "SC-2-b", "250.00"),
		paid(3, "SC-3-c", "80.00"),  // gateway reports a different amount
		paid(4, "SC-4-d", "500.00"), // gateway has no record
	}
	remote := []gateway.Transaction{
		success("SC-1-a", "100.00"),
		success("SC-2-b", "250.00"),
		success("SC-3-c", "90.00"),
		success("SC-5-e", "42.00"), // no local row at all
	}
	orderNumbers := map[uint]string{1: "ORD-0001", 2: "ORD-0002", 3: "ORD-0003", 4: "ORD-0004"}

	rows, summary := Classify(locals, remote, orderNumbers)

	if summary.Matched != 2 || summary.Mismatched != 1 || summary.MissingInGateway != 1 || summary.MissingInLocal != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Discrepancies() != 3 {
		t.Fatalf("expected 3 discrepancies, got %d", summary.Discrepancies())
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}

	byRef := map[string]Row{}
	for _, r := range rows {
		byRef[r.Reference] = r
	}
	// Local 80.00 against gateway 90.00: the signed difference shows the
	// local side is short.
	if byRef["SC-3-c"].Type != RowAmountMismatch || !byRef["SC-3-c"].Difference.Equal(dec("-10.00")) {
		t.Fatalf("unexpected mismatch row %+v", byRef["SC-3-c"])
	}
	if byRef["SC-4-d"].Type != RowMissingInGateway {
		t.Fatalf("unexpected row %+v", byRef["SC-4-d"])
	}
	if byRef["SC-5-e"].Type != RowMissingInLocal {
		t.Fatalf("unexpected row %+v", byRef["SC-5-e"])
	}
}

func TestClassifyEpsilonTolerance(t *testing.T) {
	locals := []models.Payment{paid(1, "SC-1-a", "100.00")}
	remote := []gateway.Transaction{success("SC-1-a", "100.01")}

	_, summary := Classify(locals, remote, nil)
	if summary.Matched != 1 || summary.Mismatched != 0 {
		t.Fatalf("a one-cent difference must match, got %+v", summary)
	}

	remote[0].Amount = dec("100.02")
	_, summary = Classify(locals, remote, nil)
	if summary.Mismatched != 1 {
		t.Fatalf("a two-cent difference must mismatch, got %+v", summary)
	}
}

func TestClassifyIgnoresAbandonedAttempts(t *testing.T) {
	// An abandoned checkout still has a gateway record of the attempt.
	locals := []models.Payment{{
		OrderID:   1,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-1-a",
		Amount:    dec("100.00"),
		Status:    models.PaymentStatusInitialized,
	}}
	remote := []gateway.Transaction{{
		Reference: "SC-1-a",
		Status:    gateway.TxnStatusAbandoned,
		Amount:    dec("100.00"),
	}}

	rows, summary := Classify(locals, remote, nil)
	if len(rows) != 0 || summary.Discrepancies() != 0 {
		t.Fatalf("abandoned attempts are not discrepancies, got %+v", rows)
	}
}

func TestClassifyFlagsOrphanedLocalAttempts(t *testing.T) {
	// No gateway record at all means the local row outlived a failed remote
	// call, which initialization is supposed to roll back.
	locals := []models.Payment{{
		OrderID:   1,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-1-a",
		Amount:    dec("100.00"),
		Status:    models.PaymentStatusInitialized,
	}}

	rows, summary := Classify(locals, nil, map[uint]string{1: "ORD-0001"})
	if summary.MissingInGateway != 1 || len(rows) != 1 {
		t.Fatalf("expected one missing-in-gateway row, got %+v", rows)
	}
	if rows[0].Type != RowMissingInGateway || rows[0].OrderNumber != "ORD-0001" {
		t.Fatalf("unexpected row %+v", rows[0])
	}
}

type exportGateway struct {
	txns      []gateway.Transaction
	exportErr error
}

func (g *exportGateway) InitializeTransaction(context.Context, gateway.InitializeInput) (*gateway.InitializeResult, error) {
	return nil, errors.New("not implemented")
}

func (g *exportGateway) VerifyTransaction(context.Context, string) (*gateway.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (g *exportGateway) Refund(context.Context, string, decimal.Decimal, string) (*gateway.RefundResult, error) {
	return nil, errors.New("not implemented")
}

func (g *exportGateway) ExportTransactions(context.Context, time.Time, time.Time, string) ([]gateway.Transaction, error) {
	return g.txns, g.exportErr
}

func (g *exportGateway) VerifyWebhookSignature([]byte, string) bool { return true }

func TestEngineRunWritesReportAndAudit(t *testing.T) {
	store := mocks.NewStore()
	orderID := store.AddOrder(models.Order{Status: models.OrderStatusPaid})
	store.AddPayment(paid(orderID, "SC-1-a", "100.00"))
	gw := &exportGateway{txns: []gateway.Transaction{success("SC-1-a", "90.00")}}

	engine := NewEngine(store.Repositories(), gw, reportstore.NewLocalStore(t.TempDir()))

	res, err := engine.Run(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Mismatched != 1 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}

	data, err := os.ReadFile(res.ReportLocation)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Type,Reference,Order Number,Issue") {
		t.Fatalf("missing CSV header in report:\n%s", content)
	}
	if !strings.Contains(content, RowAmountMismatch) {
		t.Fatalf("mismatch row missing from report:\n%s", content)
	}

	if len(store.AuditEntries) != 1 || store.AuditEntries[0].Action != models.AuditActionReconciliationRun {
		t.Fatalf("expected one reconciliation audit entry, got %+v", store.AuditEntries)
	}
}

func TestEngineRunAbortsOnExportFailure(t *testing.T) {
	store := mocks.NewStore()
	orderID := store.AddOrder(models.Order{Status: models.OrderStatusPaid})
	store.AddPayment(paid(orderID, "SC-1-a", "100.00"))
	gw := &exportGateway{exportErr: errors.New("export unavailable")}

	engine := NewEngine(store.Repositories(), gw, reportstore.NewLocalStore(t.TempDir()))
	if _, err := engine.Run(context.Background(), time.Now().Add(-24*time.Hour), time.Now()); err == nil {
		t.Fatalf("expected run to abort on export failure")
	}
	if len(store.AuditEntries) != 0 {
		t.Fatalf("aborted run must not be recorded as completed")
	}
}

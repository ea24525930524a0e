package settlement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository/mocks"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeGateway struct {
	initErr     error
	initCalls   int
	txn         *gateway.Transaction
	verifyErr   error
	verifyCalls int
	refundErr   error
	refunds     []decimal.Decimal
	validSig    string
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, in gateway.InitializeInput) (*gateway.InitializeResult, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.InitializeResult{
		AuthorizationURL: "https://checkout.example.com/" + in.Reference,
		AccessCode:       "AC_test",
		Reference:        in.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*gateway.Transaction, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	txn := *g.txn
	txn.Reference = reference
	return &txn, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount decimal.Decimal, _ string) (*gateway.RefundResult, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return &gateway.RefundResult{RefundID: "RF_test", Status: "pending"}, nil
}

func (g *fakeGateway) ExportTransactions(_ context.Context, _, _ time.Time, _ string) ([]gateway.Transaction, error) {
	return nil, nil
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, signatureHeader string) bool {
	return signatureHeader == g.validSig
}

func newTestService(store *mocks.Store, gw *fakeGateway) *Service {
	return NewService(store.Opener(), store.Repositories(), gw, nil, "https://shop.example.com/payment/callback", 0)
}

// seedPayableOrder creates a user, a consistent order and one tracked item.
func seedPayableOrder(store *mocks.Store, status, total string, quantity, stock int) (orderID, variantID uint) {
	userID := store.AddUser(models.User{Email: "ada@example.com", CreatedAt: time.Now().Add(-72 * time.Hour)})
	variantID = store.AddVariant(models.ProductVariant{SKU: "SKU-1", StockQuantity: stock, TrackInventory: true})
	orderID = store.AddOrder(models.Order{
		UserID:   userID,
		Status:   status,
		Subtotal: dec(total),
		Total:    dec(total),
		Currency: "NGN",
	})
	store.Items = append(store.Items, models.OrderItem{
		OrderID:   orderID,
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: dec(total),
	})
	return orderID, variantID
}

func TestInitializePaymentCreatesLedgerRow(t *testing.T) {
	store := mocks.NewStore()
	gw := &fakeGateway{}
	orderID, _ := seedPayableOrder(store, models.OrderStatusPending, "1000.00", 1, 5)

	res, err := newTestService(store, gw).InitializePayment(context.Background(), InitializeInput{OrderID: orderID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Reference, "SC-") {
		t.Fatalf("unexpected reference format %q", res.Reference)
	}
	if res.AuthorizationURL == "" {
		t.Fatalf("expected an authorization URL")
	}

	p, ok := store.Payments[res.PaymentID]
	if !ok {
		t.Fatalf("payment row missing")
	}
	if p.Status != models.PaymentStatusInitialized || !p.Amount.Equal(dec("1000.00")) {
		t.Fatalf("unexpected payment row %+v", p)
	}
	if store.Orders[orderID].Status != models.OrderStatusPendingPayment {
		t.Fatalf("expected order in pending_payment, got %s", store.Orders[orderID].Status)
	}
}

func TestInitializePaymentGatewayFailureLeavesNoOrphan(t *testing.T) {
	store := mocks.NewStore()
	gw := &fakeGateway{initErr: apperrors.ExternalService("gateway unreachable")}
	orderID, _ := seedPayableOrder(store, models.OrderStatusPending, "1000.00", 1, 5)

	_, err := newTestService(store, gw).InitializePayment(context.Background(), InitializeInput{OrderID: orderID})
	if !errors.Is(err, apperrors.ErrExternalService) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if len(store.Payments) != 0 {
		t.Fatalf("expected no payment row after rollback, got %d", len(store.Payments))
	}
	if store.Orders[orderID].Status != models.OrderStatusPending {
		t.Fatalf("order status must roll back too, got %s", store.Orders[orderID].Status)
	}
}

func TestInitializePaymentRejectsSettledOrder(t *testing.T) {
	store := mocks.NewStore()
	orderID, _ := seedPayableOrder(store, models.OrderStatusPaid, "1000.00", 1, 5)
	store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-old",
		Amount:    dec("1000.00"),
		Status:    models.PaymentStatusPaid,
	})

	_, err := newTestService(store, &fakeGateway{}).InitializePayment(context.Background(), InitializeInput{OrderID: orderID})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSettlePaymentIdempotent(t *testing.T) {
	store := mocks.NewStore()
	orderID, variantID := seedPayableOrder(store, models.OrderStatusPendingPayment, "1000.00", 2, 10)
	store.AddReservation(models.InventoryReservation{
		OrderID:       orderID,
		VariantID:     variantID,
		Quantity:      2,
		ReservedUntil: time.Now().Add(15 * time.Minute),
	})
	store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("1000.00"),
		Currency:  "NGN",
		Status:    models.PaymentStatusInitialized,
	})
	gw := &fakeGateway{txn: &gateway.Transaction{
		Status: gateway.TxnStatusSuccess,
		Amount: dec("1000.00"),
	}}
	svc := newTestService(store, gw)

	res, err := svc.SettlePayment(context.Background(), "SC-ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlreadySettled || res.OrderStatus != models.OrderStatusPaid {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := store.Variants[variantID].StockQuantity; got != 8 {
		t.Fatalf("expected stock 8 after conversion, got %d", got)
	}
	if len(store.AuditEntries) != 1 || store.AuditEntries[0].Action != models.AuditActionPaymentSettled {
		t.Fatalf("expected exactly one settlement audit entry, got %+v", store.AuditEntries)
	}

	// Second settle of the same reference is a pure no-op.
	res, err = svc.SettlePayment(context.Background(), "SC-ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AlreadySettled {
		t.Fatalf("expected AlreadySettled on repeat settle")
	}
	if gw.verifyCalls != 1 {
		t.Fatalf("repeat settle must not hit the gateway, got %d calls", gw.verifyCalls)
	}
	if got := store.Variants[variantID].StockQuantity; got != 8 {
		t.Fatalf("stock must not move twice, got %d", got)
	}
	if len(store.AuditEntries) != 1 {
		t.Fatalf("expected still one audit entry, got %d", len(store.AuditEntries))
	}
}

func TestSettlePaymentAmountMismatch(t *testing.T) {
	store := mocks.NewStore()
	orderID, _ := seedPayableOrder(store, models.OrderStatusPendingPayment, "1000.00", 1, 5)
	store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("1000.00"),
		Status:    models.PaymentStatusInitialized,
	})
	gw := &fakeGateway{txn: &gateway.Transaction{
		Status: gateway.TxnStatusSuccess,
		Amount: dec("999.50"),
	}}

	_, err := newTestService(store, gw).SettlePayment(context.Background(), "SC-ref-1")
	if !errors.Is(err, apperrors.ErrPayment) {
		t.Fatalf("expected PaymentError, got %v", err)
	}

	order := store.Orders[orderID]
	if order.Status != models.OrderStatusPendingPayment {
		t.Fatalf("order must stay in pending_payment, got %s", order.Status)
	}
	if !order.RequiresReview {
		t.Fatalf("expected order flagged for review")
	}
	for _, p := range store.Payments {
		if p.Status != models.PaymentStatusInitialized {
			t.Fatalf("payment must not settle on mismatch, got %s", p.Status)
		}
	}
	if len(store.AuditEntries) != 0 {
		t.Fatalf("no settlement audit entry may be written on mismatch, got %+v", store.AuditEntries)
	}
}

func TestSettlePaymentGatewayFailure(t *testing.T) {
	store := mocks.NewStore()
	orderID, variantID := seedPayableOrder(store, models.OrderStatusPendingPayment, "1000.00", 1, 5)
	reservationID := store.AddReservation(models.InventoryReservation{
		OrderID:       orderID,
		VariantID:     variantID,
		Quantity:      1,
		ReservedUntil: time.Now().Add(15 * time.Minute),
	})
	paymentID := store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("1000.00"),
		Status:    models.PaymentStatusInitialized,
	})
	gw := &fakeGateway{txn: &gateway.Transaction{Status: gateway.TxnStatusFailed, Amount: dec("1000.00")}}

	_, err := newTestService(store, gw).SettlePayment(context.Background(), "SC-ref-1")
	if !errors.Is(err, apperrors.ErrPayment) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	if store.Payments[paymentID].Status != models.PaymentStatusFailed {
		t.Fatalf("expected payment failed, got %s", store.Payments[paymentID].Status)
	}
	if store.Orders[orderID].Status != models.OrderStatusPaymentFailed {
		t.Fatalf("expected order payment_failed, got %s", store.Orders[orderID].Status)
	}
	if len(store.AuditEntries) != 1 || store.AuditEntries[0].Action != models.AuditActionPaymentFailed {
		t.Fatalf("expected one failure audit entry, got %+v", store.AuditEntries)
	}
	// The failed order's stock goes back on sale immediately, not at TTL expiry.
	if store.Reservations[reservationID].ReleasedAt == nil {
		t.Fatalf("expected reservation released on payment failure")
	}
}

func TestSettlePaymentRefundsWhenStockExhausted(t *testing.T) {
	store := mocks.NewStore()
	// Two units needed, only one left, and the original reservation expired.
	// A second, in-stock item sits ahead of it so a partial re-reservation is
	// taken before the shortage surfaces.
	orderID, variantID := seedPayableOrder(store, models.OrderStatusPendingPayment, "1000.00", 2, 1)
	extraVariantID := store.AddVariant(models.ProductVariant{SKU: "SKU-2", StockQuantity: 5, TrackInventory: true})
	store.Items = append([]models.OrderItem{{
		OrderID:   orderID,
		VariantID: extraVariantID,
		Quantity:  1,
		UnitPrice: dec("1.00"),
	}}, store.Items...)
	paymentID := store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("1000.00"),
		Status:    models.PaymentStatusInitialized,
	})
	gw := &fakeGateway{txn: &gateway.Transaction{Status: gateway.TxnStatusSuccess, Amount: dec("1000.00")}}

	_, err := newTestService(store, gw).SettlePayment(context.Background(), "SC-ref-1")
	if !errors.Is(err, apperrors.ErrInventoryExhausted) {
		t.Fatalf("expected InventoryExhaustedError, got %v", err)
	}
	if len(gw.refunds) != 1 || !gw.refunds[0].Equal(dec("1000.00")) {
		t.Fatalf("expected full automatic refund, got %v", gw.refunds)
	}
	if len(store.Refunds) != 1 {
		t.Fatalf("expected one refund row, got %d", len(store.Refunds))
	}
	if store.Payments[paymentID].Status != models.PaymentStatusFailed {
		t.Fatalf("expected payment failed, got %s", store.Payments[paymentID].Status)
	}
	if store.Orders[orderID].Status != models.OrderStatusPaymentFailed {
		t.Fatalf("expected order payment_failed, got %s", store.Orders[orderID].Status)
	}
	if got := store.Variants[variantID].StockQuantity; got != 1 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
	// No hold may survive on the dead order, including partial re-reservations
	// taken before the exhausted item was hit.
	for id, res := range store.Reservations {
		if res.OrderID == orderID && res.ReleasedAt == nil {
			t.Fatalf("expected reservation %d released after exhausted-stock refund", id)
		}
	}
}

func TestInitiateRefundCumulativeCap(t *testing.T) {
	store := mocks.NewStore()
	orderID, _ := seedPayableOrder(store, models.OrderStatusPaid, "100.00", 1, 5)
	paymentID := store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("100.00"),
		Status:    models.PaymentStatusPaid,
	})
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	partial := dec("40.00")
	refund, err := svc.InitiateRefund(context.Background(), RefundInput{PaymentID: paymentID, Amount: &partial, Reason: "damaged item", Actor: "admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refund.Amount.Equal(partial) {
		t.Fatalf("unexpected refund amount %s", refund.Amount)
	}
	if store.Orders[orderID].Status != models.OrderStatusPartiallyRefunded {
		t.Fatalf("expected partially_refunded, got %s", store.Orders[orderID].Status)
	}

	// 40 + 70 would exceed the settled amount. Rejected before any gateway call.
	over := dec("70.00")
	_, err = svc.InitiateRefund(context.Background(), RefundInput{PaymentID: paymentID, Amount: &over, Actor: "admin"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(gw.refunds) != 1 {
		t.Fatalf("over-refund must not reach the gateway, got %d calls", len(gw.refunds))
	}

	// Refunding the exact remainder completes the refund.
	rest := dec("60.00")
	if _, err := svc.InitiateRefund(context.Background(), RefundInput{PaymentID: paymentID, Amount: &rest, Actor: "admin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Orders[orderID].Status != models.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", store.Orders[orderID].Status)
	}
}

func TestInitiateRefundRejectsUnsettledPayment(t *testing.T) {
	store := mocks.NewStore()
	orderID, _ := seedPayableOrder(store, models.OrderStatusPendingPayment, "100.00", 1, 5)
	paymentID := store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-ref-1",
		Amount:    dec("100.00"),
		Status:    models.PaymentStatusInitialized,
	})

	_, err := newTestService(store, &fakeGateway{}).InitiateRefund(context.Background(), RefundInput{PaymentID: paymentID, Actor: "admin"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

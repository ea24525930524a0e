// Package settlement owns the payment ledger: opening charge attempts,
// settling them against the gateway's authoritative record, and refunds.
// Every money-moving operation runs inside a single unit of work so a crash
// at any point leaves either the old state or the new one, never a partial.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
	"github.com/obafemi/settlecore/internal/pkg/fraud"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
	"github.com/obafemi/settlecore/internal/pkg/inventory"
	"github.com/obafemi/settlecore/internal/pkg/orderstate"
)

const settlementActor = "settlement"

// Service coordinates the payment lifecycle across the ledger, the order
// state machine, inventory and the gateway.
type Service struct {
	opener      repository.Opener
	reader      *repository.Repositories
	gw          gateway.Gateway
	scorer      RiskScorer
	callbackURL string
	ttl         time.Duration
}

// NewService wires a settlement service. scorer may be nil to disable risk
// scoring; ttl <= 0 selects the default reservation window.
func NewService(opener repository.Opener, reader *repository.Repositories, gw gateway.Gateway, scorer RiskScorer, callbackURL string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = inventory.DefaultTTL
	}
	return &Service{
		opener:      opener,
		reader:      reader,
		gw:          gw,
		scorer:      scorer,
		callbackURL: callbackURL,
		ttl:         ttl,
	}
}

// newReference builds a gateway-unique payment reference.
func newReference(orderID uint) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("SC-%d-%s", orderID, suffix)
}

// InitializePayment creates the local payment row and opens the remote
// transaction inside one unit of work. If the gateway call fails the row is
// rolled back, so an initialized payment without a remote counterpart can
// never exist.
func (s *Service) InitializePayment(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	uow, err := s.opener.Begin()
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	repos := uow.Repos()

	order, err := repos.Order.GetByIDForUpdate(in.OrderID)
	if err != nil {
		return nil, mapNotFound(err, "order not found")
	}
	if !order.TotalConsistent() {
		return nil, apperrors.Validation("order total does not match its components")
	}

	paid, err := repos.Payment.HasPaidPayment(order.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, apperrors.Conflict("order already has a settled payment")
	}

	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusPaymentFailed:
		if _, err := orderstate.Transition(repos, order.ID, models.OrderStatusPendingPayment, settlementActor); err != nil {
			return nil, err
		}
	case models.OrderStatusPendingPayment:
		// Re-initialization of an abandoned attempt creates a fresh reference.
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("order in status %q is not awaiting payment", order.Status))
	}

	email := in.PayerEmail
	var accountCreatedAt time.Time
	if user, err := repos.User.GetByID(order.UserID); err == nil {
		accountCreatedAt = user.CreatedAt
		if email == "" {
			email = user.Email
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if email == "" {
		return nil, apperrors.Validation("payer email is required")
	}

	if s.scorer != nil {
		s.scorer.RecordAttempt(ctx, order.UserID, in.SourceIP)
		score, err := s.scorer.Score(ctx, fraud.Input{
			OrderID:          order.ID,
			UserID:           order.UserID,
			SourceIP:         in.SourceIP,
			Amount:           order.Total,
			AccountCreatedAt: accountCreatedAt,
		})
		if err != nil {
			return nil, err
		}
		if len(score.Factors) > 0 {
			if err := order.SetMetadataValue("risk_factors", score.Factors); err != nil {
				return nil, err
			}
			if score.RequiresReview {
				order.RequiresReview = true
			}
			if err := repos.Order.Save(order); err != nil {
				return nil, err
			}
		}
	}

	payment := &models.Payment{
		OrderID:   order.ID,
		Gateway:   models.GatewayPaystack,
		Reference: newReference(order.ID),
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    models.PaymentStatusInitialized,
	}
	if err := repos.Payment.Create(payment); err != nil {
		return nil, err
	}

	init, err := s.gw.InitializeTransaction(ctx, gateway.InitializeInput{
		Email:       email,
		Amount:      order.Total,
		Reference:   payment.Reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return &InitializeResult{
		PaymentID:        payment.ID,
		Reference:        payment.Reference,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

// SettlePayment verifies a payment against the gateway and applies the
// outcome. Idempotent: settling an already-paid reference is a no-op, so the
// client-poll/webhook race resolves to a single settlement under the row lock.
func (s *Service) SettlePayment(ctx context.Context, reference string) (*SettleResult, error) {
	uow, err := s.opener.Begin()
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	repos := uow.Repos()

	payment, err := repos.Payment.GetByReferenceForUpdate(models.GatewayPaystack, reference)
	if err != nil {
		return nil, mapNotFound(err, "payment not found")
	}
	if payment.Status == models.PaymentStatusPaid {
		order, err := repos.Order.GetByID(payment.OrderID)
		if err != nil {
			return nil, err
		}
		return &SettleResult{Payment: payment, OrderStatus: order.Status, AlreadySettled: true}, nil
	}

	txn, err := s.gw.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(txn)

	order, err := repos.Order.GetByIDForUpdate(payment.OrderID)
	if err != nil {
		return nil, err
	}

	if txn.Status != gateway.TxnStatusSuccess {
		if err := s.recordFailure(ctx, repos, payment, order, string(raw), txn.Status); err != nil {
			return nil, err
		}
		if err := uow.Commit(); err != nil {
			return nil, err
		}
		return nil, apperrors.Payment(fmt.Sprintf("gateway reported transaction %s", txn.Status))
	}

	// The gateway's settled amount is authoritative but must match what was
	// asked for. On mismatch nothing settles; the order is parked for review.
	if !txn.Amount.Equal(payment.Amount) {
		order.RequiresReview = true
		if err := order.SetMetadataValue("review_reason", fmt.Sprintf(
			"gateway settled %s but %s was expected for reference %s",
			txn.Amount.StringFixed(2), payment.Amount.StringFixed(2), reference)); err != nil {
			return nil, err
		}
		if err := repos.Order.Save(order); err != nil {
			return nil, err
		}
		if err := uow.Commit(); err != nil {
			return nil, err
		}
		return nil, apperrors.Payment("settled amount does not match the expected amount")
	}

	// Late success after a recorded failure: bring the order back into the
	// payable path before settling.
	if order.Status == models.OrderStatusPaymentFailed {
		if _, err := orderstate.Transition(repos, order.ID, models.OrderStatusPendingPayment, settlementActor); err != nil {
			return nil, err
		}
		order.Status = models.OrderStatusPendingPayment
	}

	// Reservations may have expired while the customer sat on the payment
	// page. Re-claim what the order needs; if stock ran out the charge is
	// returned rather than overselling.
	if err := s.reclaimStock(repos, order); err != nil {
		if !errors.Is(err, apperrors.ErrInventoryExhausted) {
			return nil, err
		}
		if rerr := s.refundExhausted(ctx, repos, payment, order, string(raw)); rerr != nil {
			return nil, rerr
		}
		if cerr := uow.Commit(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	settledAt := time.Now()
	if txn.PaidAt != nil {
		settledAt = *txn.PaidAt
	}
	if err := repos.Payment.MarkPaid(payment.ID, settledAt, string(raw)); err != nil {
		return nil, err
	}
	if _, err := orderstate.SettlementTransition(repos, order.ID, models.OrderStatusPaid, settlementActor); err != nil {
		return nil, err
	}
	if err := inventory.Convert(repos, order.ID); err != nil {
		return nil, err
	}

	change, _ := json.Marshal(map[string]interface{}{
		"reference": reference,
		"order_id":  order.ID,
		"amount":    payment.Amount,
		"channel":   txn.Channel,
	})
	if err := repos.Audit.Append(&models.AuditLogEntry{
		Actor:             settlementActor,
		Action:            models.AuditActionPaymentSettled,
		EntityType:        "payment",
		EntityID:          fmt.Sprintf("%d", payment.ID),
		ChangePayloadJSON: string(change),
	}); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	payment.Status = models.PaymentStatusPaid
	payment.SettledAt = &settledAt
	payment.GatewayResponseJSON = string(raw)
	return &SettleResult{Payment: payment, OrderStatus: models.OrderStatusPaid}, nil
}

// SettleByID resolves a payment ID to its reference and settles it. Used by
// the client-poll verify endpoint.
func (s *Service) SettleByID(ctx context.Context, paymentID uint) (*SettleResult, error) {
	payment, err := s.reader.Payment.GetByID(paymentID)
	if err != nil {
		return nil, mapNotFound(err, "payment not found")
	}
	return s.SettlePayment(ctx, payment.Reference)
}

// recordFailure marks the payment failed, moves the order accordingly and
// hands the order's reserved stock back. Runs inside the caller's unit of work.
func (s *Service) recordFailure(ctx context.Context, repos *repository.Repositories, payment *models.Payment, order *models.Order, raw, gatewayStatus string) error {
	if payment.Status == models.PaymentStatusFailed {
		return nil
	}
	if err := repos.Payment.MarkFailed(payment.ID, raw); err != nil {
		return err
	}
	if orderstate.CanTransition(order.Status, models.OrderStatusPaymentFailed) {
		if _, err := orderstate.SettlementTransition(repos, order.ID, models.OrderStatusPaymentFailed, settlementActor); err != nil {
			return err
		}
	}
	if _, err := repos.Reservation.ReleaseByOrder(order.ID, time.Now()); err != nil {
		return err
	}
	change, _ := json.Marshal(map[string]string{"reference": payment.Reference, "gateway_status": gatewayStatus})
	if err := repos.Audit.Append(&models.AuditLogEntry{
		Actor:             settlementActor,
		Action:            models.AuditActionPaymentFailed,
		EntityType:        "payment",
		EntityID:          fmt.Sprintf("%d", payment.ID),
		ChangePayloadJSON: string(change),
	}); err != nil {
		return err
	}
	if s.scorer != nil {
		s.scorer.RecordFailure(ctx, order.UserID, "")
	}
	return nil
}

// reclaimStock ensures every tracked order item is covered by an active
// reservation, re-reserving whatever expired.
func (s *Service) reclaimStock(repos *repository.Repositories, order *models.Order) error {
	full, err := repos.Order.GetByID(order.ID)
	if err != nil {
		return err
	}
	active, err := repos.Reservation.ActiveByOrder(order.ID, time.Now())
	if err != nil {
		return err
	}
	held := map[uint]int{}
	for _, res := range active {
		held[res.VariantID] += res.Quantity
	}
	for _, item := range full.Items {
		need := item.Quantity - held[item.VariantID]
		if need <= 0 {
			continue
		}
		if err := inventory.Reserve(repos, order.ID, item.VariantID, need, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

// refundExhausted returns a successful charge whose stock disappeared before
// settlement. The refund, failed payment, order transition and reservation
// release commit together; releasing also clears any partial re-reservations
// taken before the exhausted item was hit.
func (s *Service) refundExhausted(ctx context.Context, repos *repository.Repositories, payment *models.Payment, order *models.Order, raw string) error {
	const reason = "automatic refund: stock no longer available"
	res, err := s.gw.Refund(ctx, payment.Reference, payment.Amount, reason)
	if err != nil {
		return err
	}
	refund := &models.Refund{
		PaymentID:        payment.ID,
		OrderID:          order.ID,
		Amount:           payment.Amount,
		GatewayRefundRef: res.RefundID,
		Status:           models.RefundStatusPending,
		Reason:           reason,
	}
	if err := repos.Refund.Create(refund); err != nil {
		return err
	}
	if err := repos.Payment.MarkFailed(payment.ID, raw); err != nil {
		return err
	}
	if orderstate.CanTransition(order.Status, models.OrderStatusPaymentFailed) {
		if _, err := orderstate.SettlementTransition(repos, order.ID, models.OrderStatusPaymentFailed, settlementActor); err != nil {
			return err
		}
	}
	if _, err := repos.Reservation.ReleaseByOrder(order.ID, time.Now()); err != nil {
		return err
	}
	change, _ := json.Marshal(map[string]interface{}{
		"payment_id":  payment.ID,
		"amount":      payment.Amount,
		"gateway_ref": res.RefundID,
		"reason":      reason,
	})
	return repos.Audit.Append(&models.AuditLogEntry{
		Actor:             settlementActor,
		Action:            models.AuditActionRefundCreated,
		EntityType:        "payment",
		EntityID:          fmt.Sprintf("%d", payment.ID),
		ChangePayloadJSON: string(change),
	})
}

// InitiateRefund refunds part or all of a settled payment. The cumulative
// over-refund check runs before any gateway call; refund row and order
// transition commit atomically.
func (s *Service) InitiateRefund(ctx context.Context, in RefundInput) (*models.Refund, error) {
	uow, err := s.opener.Begin()
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	repos := uow.Repos()

	payment, err := repos.Payment.GetByID(in.PaymentID)
	if err != nil {
		return nil, mapNotFound(err, "payment not found")
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, apperrors.Conflict("only settled payments can be refunded")
	}

	// The order row lock serializes concurrent refunds against one payment.
	order, err := repos.Order.GetByIDForUpdate(payment.OrderID)
	if err != nil {
		return nil, err
	}

	refunded, err := repos.Refund.SumByPayment(payment.ID)
	if err != nil {
		return nil, err
	}
	remaining := payment.Amount.Sub(refunded)
	if !remaining.IsPositive() {
		return nil, apperrors.Validation("payment is already fully refunded")
	}

	amount := remaining
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		return nil, apperrors.Validation("refund amount must be positive")
	}
	if amount.GreaterThan(remaining) {
		return nil, apperrors.Validation(fmt.Sprintf("refund amount exceeds refundable balance of %s", remaining.StringFixed(2)))
	}

	res, err := s.gw.Refund(ctx, payment.Reference, amount, in.Reason)
	if err != nil {
		return nil, err
	}

	refund := &models.Refund{
		PaymentID:        payment.ID,
		OrderID:          order.ID,
		Amount:           amount,
		GatewayRefundRef: res.RefundID,
		Status:           models.RefundStatusPending,
		Reason:           in.Reason,
	}
	if err := repos.Refund.Create(refund); err != nil {
		return nil, err
	}

	target := models.OrderStatusPartiallyRefunded
	if refunded.Add(amount).Equal(payment.Amount) {
		target = models.OrderStatusRefunded
	}
	if order.Status != target && orderstate.CanTransition(order.Status, target) {
		if _, err := orderstate.SettlementTransition(repos, order.ID, target, in.Actor); err != nil {
			return nil, err
		}
	}

	change, _ := json.Marshal(map[string]interface{}{
		"payment_id":  payment.ID,
		"amount":      amount,
		"gateway_ref": res.RefundID,
		"reason":      in.Reason,
	})
	if err := repos.Audit.Append(&models.AuditLogEntry{
		Actor:             in.Actor,
		Action:            models.AuditActionRefundCreated,
		EntityType:        "payment",
		EntityID:          fmt.Sprintf("%d", payment.ID),
		ChangePayloadJSON: string(change),
	}); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return refund, nil
}

// ListPayments returns every charge attempt recorded against an order.
func (s *Service) ListPayments(orderID uint) ([]models.Payment, error) {
	if _, err := s.reader.Order.GetByID(orderID); err != nil {
		return nil, mapNotFound(err, "order not found")
	}
	return s.reader.Payment.ListByOrder(orderID)
}

// RefundableBalance returns the remaining refundable amount on a payment.
func (s *Service) RefundableBalance(paymentID uint) (decimal.Decimal, error) {
	payment, err := s.reader.Payment.GetByID(paymentID)
	if err != nil {
		return decimal.Zero, mapNotFound(err, "payment not found")
	}
	refunded, err := s.reader.Refund.SumByPayment(payment.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return payment.Amount.Sub(refunded), nil
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(message)
	}
	return err
}

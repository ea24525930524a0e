// Package orderstate owns the authoritative order status and its legal
// transitions. Every transition reads the current status under a row lock in
// the caller's transaction, so a stale status can never decide a write.
package orderstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

var transitions = map[string][]string{
	models.OrderStatusPending:           {models.OrderStatusPendingPayment, models.OrderStatusCancelled},
	models.OrderStatusPendingPayment:    {models.OrderStatusPaid, models.OrderStatusPaymentFailed, models.OrderStatusCancelled},
	models.OrderStatusPaymentFailed:     {models.OrderStatusPendingPayment, models.OrderStatusCancelled},
	models.OrderStatusPaid:              {models.OrderStatusProcessing, models.OrderStatusRefunded, models.OrderStatusPartiallyRefunded, models.OrderStatusCancelled},
	models.OrderStatusProcessing:        {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:           {models.OrderStatusDelivered},
	models.OrderStatusPartiallyRefunded: {models.OrderStatusRefunded},
	models.OrderStatusDelivered:         {},
	models.OrderStatusCancelled:         {},
	models.OrderStatusRefunded:          {},
}

// Statuses only the settlement and refund flows may write. Direct transition
// calls to these targets are rejected.
var settlementOnly = map[string]bool{
	models.OrderStatusPaid:              true,
	models.OrderStatusPaymentFailed:     true,
	models.OrderStatusRefunded:          true,
	models.OrderStatusPartiallyRefunded: true,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves an order to a new status for administrative and customer
// flows. Settlement-guarded targets are rejected here; the settlement service
// uses SettlementTransition. Must run inside the caller's unit of work.
func Transition(repos *repository.Repositories, orderID uint, to, actor string) (*models.Order, error) {
	if settlementOnly[to] {
		return nil, apperrors.Conflict(fmt.Sprintf("status %q can only be reached through settlement", to))
	}
	return apply(repos, orderID, to, actor, true)
}

// SettlementTransition moves an order to a settlement-owned status. Only the
// settlement service calls this, inside its own transaction. No generic
// status-change entry is written here; the settlement flow records its own
// settle, fail or refund entry for the same transaction.
func SettlementTransition(repos *repository.Repositories, orderID uint, to, actor string) (*models.Order, error) {
	if !settlementOnly[to] {
		return nil, apperrors.Conflict(fmt.Sprintf("status %q is not settlement-owned", to))
	}
	return apply(repos, orderID, to, actor, false)
}

func apply(repos *repository.Repositories, orderID uint, to, actor string, recordAudit bool) (*models.Order, error) {
	order, err := repos.Order.GetByIDForUpdate(orderID)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if !CanTransition(from, to) {
		return nil, apperrors.Conflict(fmt.Sprintf("illegal order transition %s -> %s", from, to))
	}

	if err := repos.Order.UpdateStatus(orderID, to); err != nil {
		return nil, err
	}

	// Cancellation frees held stock atomically with the status write.
	if to == models.OrderStatusCancelled {
		if _, err := repos.Reservation.ReleaseByOrder(orderID, time.Now()); err != nil {
			return nil, err
		}
	}

	if recordAudit {
		change, _ := json.Marshal(map[string]string{"from": from, "to": to})
		if err := repos.Audit.Append(&models.AuditLogEntry{
			Actor:             actor,
			Action:            models.AuditActionOrderStatusChanged,
			EntityType:        "order",
			EntityID:          fmt.Sprintf("%d", orderID),
			ChangePayloadJSON: string(change),
		}); err != nil {
			return nil, err
		}
	}

	order.Status = to
	return order, nil
}

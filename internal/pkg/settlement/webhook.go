package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

// ErrBadSignature rejects deliveries whose HMAC does not match the shared
// webhook secret. Controllers map it to 401 instead of the usual 422.
var ErrBadSignature = apperrors.Validation("invalid webhook signature")

// Gateway event names this core reacts to.
const (
	eventChargeSuccess   = "charge.success"
	eventChargeFailed    = "charge.failed"
	eventRefundProcessed = "refund.processed"
	eventRefundFailed    = "refund.failed"
)

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID                   int64  `json:"id"`
		Reference            string `json:"reference"`
		Status               string `json:"status"`
		TransactionReference string `json:"transaction_reference"`
	} `json:"data"`
}

// ProcessWebhook handles one inbound gateway notification. The dedup row is
// written before any business effect, so redelivered events short-circuit
// regardless of what happened to the first attempt. A nil error means the
// caller can acknowledge the delivery; a non-nil error means the gateway
// should retry.
func (s *Service) ProcessWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*WebhookResult, error) {
	if !s.gw.VerifyWebhookSignature(rawBody, signatureHeader) {
		return nil, ErrBadSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}
	if payload.Event == "" {
		return nil, apperrors.Validation("webhook payload missing event type")
	}
	reference := payload.Data.Reference
	if reference == "" {
		reference = payload.Data.TransactionReference
	}

	eventID := fmt.Sprintf("%d", payload.Data.ID)
	if payload.Data.ID == 0 {
		sum := sha256.Sum256(rawBody)
		eventID = "h:" + hex.EncodeToString(sum[:16])
	}

	created, stored, err := s.reader.Webhook.CreateIfNotExists(&models.WebhookEvent{
		EventType:        payload.Event,
		GatewayReference: reference,
		GatewayEventID:   eventID,
		PayloadJSON:      string(rawBody),
		Status:           models.WebhookStatusProcessing,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		log.Infof("[Webhook] duplicate delivery of %s event %s, ignored", payload.Event, eventID)
		return &WebhookResult{EventID: stored.ID, Duplicate: true, Handled: "duplicate"}, nil
	}

	handled, err := s.dispatch(ctx, payload, reference)
	if err != nil {
		if merr := s.reader.Webhook.MarkFailed(stored.ID, err.Error()); merr != nil {
			log.Errorf("[Webhook] could not record failure for event %d: %v", stored.ID, merr)
		}
		// Business rejections will not change on redelivery; only transient
		// failures are surfaced so the gateway retries.
		if terminalWebhookError(err) {
			log.Warnf("[Webhook] event %s rejected: %v", eventID, err)
			return &WebhookResult{EventID: stored.ID, Handled: "rejected"}, nil
		}
		return nil, err
	}

	if err := s.reader.Webhook.MarkProcessed(stored.ID); err != nil {
		return nil, err
	}
	return &WebhookResult{EventID: stored.ID, Handled: handled}, nil
}

func (s *Service) dispatch(ctx context.Context, payload webhookPayload, reference string) (string, error) {
	switch payload.Event {
	case eventChargeSuccess:
		if _, err := s.SettlePayment(ctx, reference); err != nil {
			return "", err
		}
		return "settled", nil
	case eventChargeFailed:
		if err := s.failFromWebhook(ctx, reference, payload); err != nil {
			return "", err
		}
		return "failed", nil
	case eventRefundProcessed:
		return s.updateRefund(payload, models.RefundStatusProcessed)
	case eventRefundFailed:
		return s.updateRefund(payload, models.RefundStatusFailed)
	default:
		log.Infof("[Webhook] no handler for event %s, acknowledged", payload.Event)
		return "ignored", nil
	}
}

// failFromWebhook records a gateway-reported charge failure. A payment that
// already settled wins over an out-of-order failure notification.
func (s *Service) failFromWebhook(ctx context.Context, reference string, payload webhookPayload) error {
	uow, err := s.opener.Begin()
	if err != nil {
		return err
	}
	defer uow.Rollback()
	repos := uow.Repos()

	payment, err := repos.Payment.GetByReferenceForUpdate(models.GatewayPaystack, reference)
	if err != nil {
		return mapNotFound(err, "payment not found")
	}
	if payment.Status != models.PaymentStatusInitialized {
		return uow.Commit()
	}

	order, err := repos.Order.GetByIDForUpdate(payment.OrderID)
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(payload.Data)
	if err := s.recordFailure(ctx, repos, payment, order, string(raw), payload.Data.Status); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *Service) updateRefund(payload webhookPayload, status string) (string, error) {
	gatewayRef := fmt.Sprintf("%d", payload.Data.ID)
	err := s.reader.Refund.UpdateStatusByGatewayRef(gatewayRef, status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Refund was raised on the gateway dashboard, not through this core.
		log.Warnf("[Webhook] refund %s has no local row, acknowledged", gatewayRef)
		return "ignored", nil
	}
	if err != nil {
		return "", err
	}
	return "refund_updated", nil
}

// terminalWebhookError reports whether redelivering the event could possibly
// succeed. Unknown references, conflicts and rejected charges are final.
func terminalWebhookError(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrPayment),
		errors.Is(err, apperrors.ErrInventoryExhausted):
		return true
	}
	return false
}

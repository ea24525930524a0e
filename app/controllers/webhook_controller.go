package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/obafemi/settlecore/internal/pkg/settlement"
)

// GatewaySignatureHeader carries the gateway's HMAC over the raw body.
const GatewaySignatureHeader = "X-Gateway-Signature"

// WebhookController receives gateway notifications.
type WebhookController struct {
	settlement *settlement.Service
}

// NewWebhookController creates the webhook controller.
func NewWebhookController(svc *settlement.Service) *WebhookController {
	return &WebhookController{settlement: svc}
}

// HandlePaystackWebhook processes one delivery. 200 is returned only after
// the dedup row is durably recorded; any 5xx tells the gateway to redeliver.
// POST /webhooks/paystack
func (wc *WebhookController) HandlePaystackWebhook(c *fiber.Ctx) error {
	res, err := wc.settlement.ProcessWebhook(c.UserContext(), c.Body(), c.Get(GatewaySignatureHeader))
	if err != nil {
		if errors.Is(err, settlement.ErrBadSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid signature",
			})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"duplicate": res.Duplicate,
		"handled":   res.Handled,
	})
}

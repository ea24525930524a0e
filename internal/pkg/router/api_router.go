package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/obafemi/settlecore/app/controllers"
	"github.com/obafemi/settlecore/internal/pkg/middleware"
)

// ApiRouter installs the payment API and the webhook endpoint. The webhook
// lives outside the rate-limited group: gateway redeliveries must never be
// throttled away.
type ApiRouter struct {
	payments *controllers.PaymentController
	webhooks *controllers.WebhookController
}

// NewApiRouter creates the API router over the given controllers.
func NewApiRouter(payments *controllers.PaymentController, webhooks *controllers.WebhookController) *ApiRouter {
	return &ApiRouter{payments: payments, webhooks: webhooks}
}

func (r *ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	v1 := api.Group("/v1")

	v1.Post("/payments/initialize", r.payments.HandleInitialize)
	v1.Post("/payments/:id/verify", r.payments.HandleVerify)
	v1.Post("/payments/:id/refund", middleware.AdminAPIKeyMiddleware(), r.payments.HandleRefund)
	v1.Get("/orders/:id/payments", r.payments.HandleListPayments)

	app.Post("/webhooks/paystack", r.webhooks.HandlePaystackWebhook)
}

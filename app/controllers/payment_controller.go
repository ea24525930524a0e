package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/internal/pkg/apperrors"
	"github.com/obafemi/settlecore/internal/pkg/settlement"
)

// PaymentController exposes the payment lifecycle over HTTP.
type PaymentController struct {
	settlement *settlement.Service
	validate   *validator.Validate
}

// NewPaymentController creates a payment controller over the settlement service.
func NewPaymentController(svc *settlement.Service) *PaymentController {
	return &PaymentController{settlement: svc, validate: validator.New()}
}

type initializePaymentRequest struct {
	OrderID uint   `json:"order_id" validate:"required,min=1"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// HandleInitialize opens a payment attempt for an order.
// POST /api/v1/payments/initialize
func (pc *PaymentController) HandleInitialize(c *fiber.Ctx) error {
	var req initializePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperrors.Validation("invalid request body", err))
	}
	if err := pc.validate.Struct(&req); err != nil {
		return respondError(c, apperrors.Validation("order_id is required; email must be valid when given", err))
	}

	res, err := pc.settlement.InitializePayment(c.UserContext(), settlement.InitializeInput{
		OrderID:    req.OrderID,
		PayerEmail: req.Email,
		SourceIP:   c.IP(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleVerify settles a payment after the client returns from checkout.
// POST /api/v1/payments/:id/verify
func (pc *PaymentController) HandleVerify(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return respondError(c, apperrors.Validation("invalid payment id"))
	}

	res, err := pc.settlement.SettleByID(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

type refundRequest struct {
	Amount string `json:"amount" validate:"omitempty"`
	Reason string `json:"reason" validate:"required,min=3"`
}

// HandleRefund refunds part or all of a settled payment. Admin only.
// POST /api/v1/payments/:id/refund
func (pc *PaymentController) HandleRefund(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return respondError(c, apperrors.Validation("invalid payment id"))
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperrors.Validation("invalid request body", err))
	}
	if err := pc.validate.Struct(&req); err != nil {
		return respondError(c, apperrors.Validation("reason is required", err))
	}

	in := settlement.RefundInput{PaymentID: uint(id), Reason: req.Reason, Actor: "admin"}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return respondError(c, apperrors.Validation("amount must be a decimal string"))
		}
		in.Amount = &amount
	}

	refund, err := pc.settlement.InitiateRefund(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(refund)
}

// HandleListPayments returns every charge attempt against an order.
// GET /api/v1/orders/:id/payments
func (pc *PaymentController) HandleListPayments(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return respondError(c, apperrors.Validation("invalid order id"))
	}

	payments, err := pc.settlement.ListPayments(uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

package in

import (
	"context"

	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	libHTTP "github.com/LerianStudio/beneficiary-pay/pkg/net/http"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/gofiber/fiber/v2"
)

// Payer runs the payment workflow.
type Payer interface {
	Pay(ctx context.Context, customerID string, req beneficiarypay.PaymentRequest) (beneficiarypay.WorkflowResult, error)
}

type PaymentHandler struct {
	Payer Payer
}

// PayBeneficiary handles POST /v1/customers/:customerId/beneficiaries/pay.
func (h *PaymentHandler) PayBeneficiary(c *fiber.Ctx) error {
	ctx := c.UserContext()
	_, tracer, _ := commons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "handler.pay_beneficiary")
	defer span.End()

	var req beneficiarypay.PaymentRequest
	if err := libHTTP.ParseBodyAndValidate(c, &req); err != nil {
		opentelemetry.HandleSpanBusinessErrorEvent(span, "request.invalid", err)

		return toErrorResponse(err)
	}

	result, err := h.Payer.Pay(ctx, c.Params("customerId"), req)
	if err != nil {
		return toErrorResponse(err)
	}

	if result.Replayed {
		c.Set(cn.IdempotencyReplayed, "true")
	}

	return libHTTP.OK(c, result)
}

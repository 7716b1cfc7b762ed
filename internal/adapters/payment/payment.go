// Package payment submits payments to the payment system.
package payment

import (
	"context"
	"net/http"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
	"github.com/shopspring/decimal"
)

const ServiceName = "payment"

type Client struct {
	caller  downstream.Caller
	baseURL string
}

var _ beneficiarypay.PaymentExecutor = (*Client)(nil)

func NewClient(caller downstream.Caller, baseURL string) *Client {
	return &Client{caller: caller, baseURL: baseURL}
}

// amount is written as a JSON number with exactly two decimals.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

type executePaymentPayload struct {
	CustomerID    string `json:"customerId"`
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        amount `json:"amount"`
	Currency      string `json:"currency"`
	Note          string `json:"note"`
	RequestID     string `json:"requestId"`
}

// Execute forwards the request id so the payment system can deduplicate on
// its own.
func (c *Client) Execute(ctx context.Context, p beneficiarypay.PaymentInstruction) (beneficiarypay.PaymentOutcome, error) {
	var outcome beneficiarypay.PaymentOutcome

	err := c.caller.Call(ctx, downstream.Request{
		Service: ServiceName,
		Method:  http.MethodPost,
		BaseURL: c.baseURL,
		Path:    "/v1/payments",
		Body: executePaymentPayload{
			CustomerID:    p.CustomerID,
			BeneficiaryID: p.BeneficiaryID,
			Amount:        amount(p.Amount),
			Currency:      p.Currency,
			Note:          p.Note,
			RequestID:     p.RequestID,
		},
	}, &outcome)
	if err != nil {
		return beneficiarypay.PaymentOutcome{}, err
	}

	return outcome, nil
}

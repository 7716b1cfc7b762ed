// Package beneficiary talks to the beneficiary directory.
package beneficiary

import (
	"context"
	"net/http"
	"net/url"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
)

const ServiceName = "beneficiary"

type Client struct {
	caller  downstream.Caller
	baseURL string
}

var _ beneficiarypay.BeneficiaryDirectory = (*Client)(nil)

func NewClient(caller downstream.Caller, baseURL string) *Client {
	return &Client{caller: caller, baseURL: baseURL}
}

type createBeneficiaryPayload struct {
	BeneficiaryName string `json:"beneficiaryName"`
	AccountNumber   string `json:"accountNumber"`
	BankCode        string `json:"bankCode"`
}

func beneficiariesPath(customerID string) string {
	return "/v1/customers/" + url.PathEscape(customerID) + "/beneficiaries"
}

// Search returns nil, nil when the directory answers 404.
func (c *Client) Search(ctx context.Context, customerID, accountNumber, bankCode string) (*beneficiarypay.BeneficiaryRecord, error) {
	var record beneficiarypay.BeneficiaryRecord

	err := c.caller.Call(ctx, downstream.Request{
		Service: ServiceName,
		Method:  http.MethodGet,
		BaseURL: c.baseURL,
		Path:    beneficiariesPath(customerID) + "/search",
		Query:   url.Values{"accountNumber": {accountNumber}, "bankCode": {bankCode}},
	}, &record)
	if downstream.IsNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (c *Client) Create(ctx context.Context, customerID string, b beneficiarypay.NewBeneficiary) (beneficiarypay.BeneficiaryRecord, error) {
	var record beneficiarypay.BeneficiaryRecord

	err := c.caller.Call(ctx, downstream.Request{
		Service: ServiceName,
		Method:  http.MethodPost,
		BaseURL: c.baseURL,
		Path:    beneficiariesPath(customerID),
		Body: createBeneficiaryPayload{
			BeneficiaryName: b.Name,
			AccountNumber:   b.AccountNumber,
			BankCode:        b.BankCode,
		},
	}, &record)
	if err != nil {
		return beneficiarypay.BeneficiaryRecord{}, err
	}

	return record, nil
}

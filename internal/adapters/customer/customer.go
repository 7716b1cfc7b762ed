// Package customer reads customer profiles from the customer system.
package customer

import (
	"context"
	"net/http"
	"net/url"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
)

const ServiceName = "customer"

type Client struct {
	caller  downstream.Caller
	baseURL string
}

var _ beneficiarypay.CustomerDirectory = (*Client)(nil)

func NewClient(caller downstream.Caller, baseURL string) *Client {
	return &Client{caller: caller, baseURL: baseURL}
}

// Fetch returns the profile of customerID. Failures are returned unchanged.
func (c *Client) Fetch(ctx context.Context, customerID string) (beneficiarypay.CustomerProfile, error) {
	var profile beneficiarypay.CustomerProfile

	err := c.caller.Call(ctx, downstream.Request{
		Service: ServiceName,
		Method:  http.MethodGet,
		BaseURL: c.baseURL,
		Path:    "/v1/customers/" + url.PathEscape(customerID),
	}, &profile)
	if err != nil {
		return beneficiarypay.CustomerProfile{}, err
	}

	return profile, nil
}

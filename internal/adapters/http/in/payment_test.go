//go:build unit

package in

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/beneficiary"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/customer"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/payment"
	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
	"github.com/LerianStudio/beneficiary-pay/internal/ledger"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"beneficiaryName":"Bob","accountNumber":"12345678","bankCode":"hdfc0001234","amount":100.00,"currency":"INR","note":"rent","requestId":"uuid-123"}`

type fakePayer struct {
	result beneficiarypay.WorkflowResult
	err    error

	customerID    string
	req           beneficiarypay.PaymentRequest
	correlationID string
	calls         int
}

func (f *fakePayer) Pay(ctx context.Context, customerID string, req beneficiarypay.PaymentRequest) (beneficiarypay.WorkflowResult, error) {
	f.calls++
	f.customerID = customerID
	f.req = req
	f.correlationID = commons.CorrelationIDFromContext(ctx)

	return f.result, f.err
}

func doPay(t *testing.T, payer Payer, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	app := NewRouter(log.NewNop(), &PaymentHandler{Payer: payer})

	req := httptest.NewRequest(http.MethodPost, "/v1/customers/C1/beneficiaries/pay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}

	return resp, out
}

func TestPayBeneficiary_Success(t *testing.T) {
	t.Parallel()

	payer := &fakePayer{result: beneficiarypay.WorkflowResult{BeneficiaryID: "BEN123", PaymentID: "PAY987", Status: "SUCCESS", CorrelationID: "corr-1"}}

	resp, body := doPay(t, payer, validBody, map[string]string{cn.HeaderCorrelationID: "corr-1"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "corr-1", resp.Header.Get(cn.HeaderCorrelationID))
	assert.Empty(t, resp.Header.Get(cn.IdempotencyReplayed))
	assert.Equal(t, map[string]any{"beneficiaryId": "BEN123", "paymentId": "PAY987", "status": "SUCCESS", "correlationId": "corr-1"}, body)

	assert.Equal(t, "C1", payer.customerID)
	assert.Equal(t, "corr-1", payer.correlationID)
	assert.Equal(t, "uuid-123", payer.req.RequestID)
	assert.Equal(t, "100", payer.req.Amount.String())
}

func TestPayBeneficiary_AmountAsString(t *testing.T) {
	t.Parallel()

	payer := &fakePayer{}
	body := strings.Replace(validBody, `100.00`, `"250.75"`, 1)

	resp, _ := doPay(t, payer, body, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "250.75", payer.req.Amount.String())
}

func TestPayBeneficiary_ReplayHeader(t *testing.T) {
	t.Parallel()

	payer := &fakePayer{result: beneficiarypay.WorkflowResult{PaymentID: "PAY987", Replayed: true}}

	resp, body := doPay(t, payer, validBody, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(cn.IdempotencyReplayed))
	assert.NotContains(t, body, "replayed")
}

func TestPayBeneficiary_GeneratesCorrelationID(t *testing.T) {
	t.Parallel()

	payer := &fakePayer{}

	resp, _ := doPay(t, payer, validBody, nil)

	assert.NotEmpty(t, resp.Header.Get(cn.HeaderCorrelationID))
	assert.Equal(t, resp.Header.Get(cn.HeaderCorrelationID), payer.correlationID)
}

func TestPayBeneficiary_BindingErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantDetails []string
	}{
		{name: "malformed json", body: `{"amount":`},
		{name: "missing fields", body: `{"note":"x"}`, wantDetails: []string{"beneficiaryName", "accountNumber", "bankCode", "amount", "currency", "requestId"}},
		{name: "null amount", body: strings.Replace(validBody, `100.00`, `null`, 1), wantDetails: []string{"amount"}},
		{name: "blank request id", body: strings.Replace(validBody, `"uuid-123"`, `"  "`, 1), wantDetails: []string{"requestId"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payer := &fakePayer{}

			resp, body := doPay(t, payer, tt.body, map[string]string{cn.HeaderCorrelationID: "corr-9"})

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, cn.CodeValidationError, body["code"])
			assert.Equal(t, "corr-9", body["correlationId"])
			assert.Equal(t, "corr-9", resp.Header.Get(cn.HeaderCorrelationID))
			assert.Zero(t, payer.calls)

			details, _ := body["details"].(map[string]any)
			for _, field := range tt.wantDetails {
				assert.Contains(t, details, field)
			}
		})
	}
}

func TestPayBeneficiary_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindValidation, Code: cn.CodeValidationError, Message: "Request validation failed", Details: map[string]any{"amount": "amount must be greater than 0"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   cn.CodeValidationError,
		},
		{
			name:       "business",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindBusiness, Code: "KYC_INCOMPLETE", Message: "kyc"},
			wantStatus: http.StatusForbidden,
			wantCode:   "KYC_INCOMPLETE",
		},
		{
			name:       "downstream keeps status",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindDownstream, Code: cn.CodeDownstreamError, Message: "m", Status: http.StatusGatewayTimeout, Details: map[string]any{"target": "http://x"}},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   cn.CodeDownstreamError,
		},
		{
			name:       "downstream without status",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindDownstream, Code: cn.CodeDownstreamError, Message: "m"},
			wantStatus: http.StatusBadGateway,
			wantCode:   cn.CodeDownstreamError,
		},
		{
			name:       "conflict",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindConflict, Code: cn.CodeRequestInProgress, Message: "busy"},
			wantStatus: http.StatusConflict,
			wantCode:   cn.CodeRequestInProgress,
		},
		{
			name:       "internal hides cause",
			err:        &beneficiarypay.Error{Kind: beneficiarypay.KindInternal, Code: cn.CodeInternalError, Message: "secret detail", Err: errors.New("db password wrong")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   cn.CodeInternalError,
			wantMsg:    "Unexpected error",
		},
		{
			name:       "untyped error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   cn.CodeInternalError,
			wantMsg:    "Unexpected error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := doPay(t, &fakePayer{err: tt.err}, validBody, nil)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["correlationId"])
			assert.NotEmpty(t, body["timestamp"])

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
				assert.NotContains(t, body, "details")
			}
		})
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	t.Parallel()

	app := NewRouter(nil, &PaymentHandler{Payer: &fakePayer{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, cn.DefaultErrorTitle, body["code"])
	assert.NotEmpty(t, resp.Header.Get(cn.HeaderCorrelationID))
}

type panickingPayer struct{}

func (panickingPayer) Pay(context.Context, string, beneficiarypay.PaymentRequest) (beneficiarypay.WorkflowResult, error) {
	panic("nil beneficiary directory")
}

func TestRouter_RecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	resp, body := doPay(t, panickingPayer{}, validBody, map[string]string{cn.HeaderCorrelationID: "corr-panic"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, cn.CodeInternalError, body["code"])
	assert.Equal(t, cn.DefaultInternalErrorMessage, body["message"])
	assert.Equal(t, "corr-panic", body["correlationId"])
}

func TestRouter_PingAndHealth(t *testing.T) {
	t.Parallel()

	app := NewRouter(log.NewNop(), &PaymentHandler{Payer: &fakePayer{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestPayBeneficiary_EndToEnd drives the real gateway, proxies, orchestrator
// and ledger against fake downstream systems.
func TestPayBeneficiary_EndToEnd(t *testing.T) {
	t.Parallel()

	var (
		paymentCalls atomic.Int32
		seenCorr     atomic.Value
	)

	customers := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCorr.Store(r.Header.Get(cn.HeaderCorrelationID))
		_, _ = w.Write([]byte(`{"customerId":"C1","name":"Ada","kycStatus":"FULL"}`))
	}))
	t.Cleanup(customers.Close)

	beneficiaries := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"beneficiaryId":"BEN-NEW"}`))
	}))
	t.Cleanup(beneficiaries.Close)

	payments := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		paymentCalls.Add(1)
		_, _ = w.Write([]byte(`{"paymentId":"PAY987","status":"SUCCESS"}`))
	}))
	t.Cleanup(payments.Close)

	gw := downstream.NewGateway(downstream.Config{Timeout: 2 * time.Second})
	orchestrator := beneficiarypay.NewOrchestrator(
		ledger.NewMemoryLedger(ledger.Options{}),
		customer.NewClient(gw, customers.URL),
		beneficiary.NewClient(gw, beneficiaries.URL),
		payment.NewClient(gw, payments.URL),
	)

	resp, body := doPay(t, orchestrator, validBody, map[string]string{cn.HeaderCorrelationID: "corr-e2e"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "BEN-NEW", body["beneficiaryId"])
	assert.Equal(t, "corr-e2e", body["correlationId"])
	assert.Equal(t, "corr-e2e", seenCorr.Load())

	resp, replay := doPay(t, orchestrator, validBody, map[string]string{cn.HeaderCorrelationID: "corr-retry"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(cn.IdempotencyReplayed))
	assert.Equal(t, "corr-retry", resp.Header.Get(cn.HeaderCorrelationID))
	assert.Equal(t, body, replay)
	assert.Equal(t, int32(1), paymentCalls.Load())
}

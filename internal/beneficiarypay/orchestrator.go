// Package beneficiarypay runs the pay-a-beneficiary workflow: it checks the
// idempotency ledger, validates the request, verifies the customer, resolves
// or creates the beneficiary, executes the payment and records the result.
package beneficiarypay

import (
	"context"
	"errors"
	"strings"

	"github.com/LerianStudio/beneficiary-pay/internal/ledger"
	"github.com/LerianStudio/beneficiary-pay/internal/validation"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/LerianStudio/beneficiary-pay/pkg/security"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CustomerDirectory reads customer profiles.
type CustomerDirectory interface {
	Fetch(ctx context.Context, customerID string) (CustomerProfile, error)
}

// BeneficiaryDirectory finds and creates beneficiaries. Search returns nil
// when no beneficiary matches.
type BeneficiaryDirectory interface {
	Search(ctx context.Context, customerID, accountNumber, bankCode string) (*BeneficiaryRecord, error)
	Create(ctx context.Context, customerID string, b NewBeneficiary) (BeneficiaryRecord, error)
}

type PaymentExecutor interface {
	Execute(ctx context.Context, p PaymentInstruction) (PaymentOutcome, error)
}

type Orchestrator struct {
	ledger        ledger.Ledger
	customers     CustomerDirectory
	beneficiaries BeneficiaryDirectory
	payments      PaymentExecutor
}

func NewOrchestrator(l ledger.Ledger, customers CustomerDirectory, beneficiaries BeneficiaryDirectory, payments PaymentExecutor) *Orchestrator {
	return &Orchestrator{ledger: l, customers: customers, beneficiaries: beneficiaries, payments: payments}
}

// Pay runs the workflow for customerID. A request id already in the ledger
// is answered from it without any downstream call. Every returned error is
// an *Error.
func (o *Orchestrator) Pay(ctx context.Context, customerID string, req PaymentRequest) (WorkflowResult, error) {
	ctx, correlationID := commons.EnsureCorrelationID(ctx)
	logger, tracer, _ := commons.NewTrackingFromContext(ctx)

	logger = logger.With(
		log.String("customer_id", customerID),
		log.String("request_id", req.RequestID),
		log.String("correlation_id", correlationID),
	)
	ctx = commons.ContextWithLogger(ctx, logger)

	ctx, span := tracer.Start(ctx, "beneficiarypay.pay")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.customer_id", customerID),
		attribute.String("app.request_id", req.RequestID),
		attribute.String("app.correlation_id", correlationID),
	)

	logger.Log(ctx, log.LevelInfo, "payment workflow started",
		log.String("account_number", security.MaskAccountNumber(req.AccountNumber)))

	result, err := o.pay(ctx, span, logger, customerID, correlationID, req)
	if err != nil {
		var wfErr *Error
		if !errors.As(err, &wfErr) {
			wfErr = internalError(err)
		}

		o.logFailure(ctx, span, logger, wfErr)

		return WorkflowResult{}, wfErr
	}

	return result, nil
}

func (o *Orchestrator) pay(ctx context.Context, span trace.Span, logger log.Logger, customerID, correlationID string, req PaymentRequest) (WorkflowResult, error) {
	if result, ok, err := o.replay(ctx, req.RequestID); err != nil || ok {
		if ok {
			logger.Log(ctx, log.LevelInfo, "payment replayed from idempotency ledger")
			opentelemetry.HandleSpanEvent(span, "idempotency.replay")
		}

		return result, err
	}

	if fields := validateRequest(customerID, req); len(fields) > 0 {
		return WorkflowResult{}, validationError(fields)
	}

	bankCode := validation.NormalizeBankCode(req.BankCode)

	release, err := o.ledger.Claim(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, ledger.ErrClaimTimeout) {
			return WorkflowResult{}, conflictError(req.RequestID, err)
		}

		return WorkflowResult{}, internalError(err)
	}
	defer release(ctx)

	if result, ok, err := o.replay(ctx, req.RequestID); err != nil || ok {
		if ok {
			logger.Log(ctx, log.LevelInfo, "payment completed by a concurrent request, replaying")
			opentelemetry.HandleSpanEvent(span, "idempotency.replay_after_claim")
		}

		return result, err
	}

	customer, err := o.customers.Fetch(ctx, customerID)
	if err != nil {
		return WorkflowResult{}, fromDownstream(err)
	}

	logger.Log(ctx, log.LevelDebug, "customer fetched", log.String("kyc_status", customer.KYCStatus))

	if !strings.EqualFold(strings.TrimSpace(customer.KYCStatus), KYCFull) {
		return WorkflowResult{}, businessError(
			commons.ValidateBusinessError(cn.ErrKYCIncomplete, "Customer", customer.KYCStatus),
			map[string]any{"kycStatus": customer.KYCStatus},
		)
	}

	beneficiary, err := o.resolveBeneficiary(ctx, logger, customerID, req, bankCode)
	if err != nil {
		return WorkflowResult{}, err
	}

	outcome, err := o.payments.Execute(ctx, PaymentInstruction{
		CustomerID:    customerID,
		BeneficiaryID: beneficiary.BeneficiaryID,
		Amount:        *req.Amount,
		Currency:      req.Currency,
		Note:          req.Note,
		RequestID:     req.RequestID,
	})
	if err != nil {
		return WorkflowResult{}, fromDownstream(err)
	}

	logger.Log(ctx, log.LevelInfo, "payment executed",
		log.String("payment_id", outcome.PaymentID), log.String("status", outcome.Status))

	result := WorkflowResult{
		BeneficiaryID: beneficiary.BeneficiaryID,
		PaymentID:     outcome.PaymentID,
		Status:        outcome.Status,
		CorrelationID: correlationID,
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return WorkflowResult{}, internalError(errors.Join(ledger.ErrSerialization, err))
	}

	if err := o.ledger.Store(ctx, req.RequestID, payload); err != nil {
		logger.Log(ctx, log.LevelError, "payment executed but result could not be recorded",
			log.String("payment_id", outcome.PaymentID), log.Err(err))

		return WorkflowResult{}, internalError(err)
	}

	span.SetAttributes(attribute.String("app.payment_id", outcome.PaymentID), attribute.String("app.payment_status", outcome.Status))
	logger.Log(ctx, log.LevelInfo, "payment workflow completed", log.String("payment_id", outcome.PaymentID))

	return result, nil
}

func (o *Orchestrator) resolveBeneficiary(ctx context.Context, logger log.Logger, customerID string, req PaymentRequest, bankCode string) (BeneficiaryRecord, error) {
	masked := log.String("account_number", security.MaskAccountNumber(req.AccountNumber))

	found, err := o.beneficiaries.Search(ctx, customerID, req.AccountNumber, bankCode)
	if err != nil {
		return BeneficiaryRecord{}, fromDownstream(err)
	}

	if found != nil {
		logger.Log(ctx, log.LevelInfo, "beneficiary found", log.String("beneficiary_id", found.BeneficiaryID), masked)

		return *found, nil
	}

	created, err := o.beneficiaries.Create(ctx, customerID, NewBeneficiary{
		Name:          req.BeneficiaryName,
		AccountNumber: req.AccountNumber,
		BankCode:      bankCode,
	})
	if err != nil {
		return BeneficiaryRecord{}, fromDownstream(err)
	}

	logger.Log(ctx, log.LevelInfo, "beneficiary created", log.String("beneficiary_id", created.BeneficiaryID), masked)

	return created, nil
}

// replay reads the ledger. A decode failure is internal, never a miss.
func (o *Orchestrator) replay(ctx context.Context, requestID string) (WorkflowResult, bool, error) {
	payload, ok, err := o.ledger.Lookup(ctx, requestID)
	if err != nil {
		return WorkflowResult{}, false, internalError(err)
	}

	if !ok {
		return WorkflowResult{}, false, nil
	}

	var result WorkflowResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return WorkflowResult{}, false, internalError(errors.Join(ledger.ErrSerialization, err))
	}

	result.Replayed = true

	return result, true, nil
}

func (o *Orchestrator) logFailure(ctx context.Context, span trace.Span, logger log.Logger, err *Error) {
	fields := []log.Field{log.String("kind", string(err.Kind)), log.String("code", err.Code)}

	switch err.Kind {
	case KindValidation, KindBusiness, KindConflict:
		opentelemetry.HandleSpanBusinessErrorEvent(span, "beneficiarypay.rejected", err)
		logger.Log(ctx, log.LevelInfo, "payment workflow rejected", append(fields, log.Any("details", err.Details))...)
	case KindDownstream:
		opentelemetry.HandleSpanError(span, "Downstream failure", err)
		logger.Log(ctx, log.LevelWarn, "payment workflow aborted by downstream failure",
			append(fields, log.Int("status", err.Status), log.Any("target", err.Details["target"]))...)
	default:
		opentelemetry.HandleSpanError(span, "Internal failure", err)
		logger.Log(ctx, log.LevelError, "payment workflow failed", append(fields, log.Err(err.Err))...)
	}
}

// validateRequest reports every invalid field by its JSON name.
func validateRequest(customerID string, req PaymentRequest) map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(customerID) == "" {
		fields["customerId"] = "customerId is required"
	}

	if strings.TrimSpace(req.RequestID) == "" {
		fields["requestId"] = "requestId is required"
	}

	if strings.TrimSpace(req.BeneficiaryName) == "" {
		fields["beneficiaryName"] = "beneficiaryName is required"
	}

	if strings.TrimSpace(req.AccountNumber) == "" {
		fields["accountNumber"] = "accountNumber is required"
	}

	if strings.TrimSpace(req.Currency) == "" {
		fields["currency"] = "currency is required"
	}

	if err := validation.ValidateBankCode(req.BankCode); err != nil {
		fields["bankCode"] = err.Error()
	}

	if err := validation.ValidateAmount(req.Amount); err != nil {
		fields["amount"] = err.Error()
	}

	return fields
}

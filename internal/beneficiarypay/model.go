package beneficiarypay

import (
	"github.com/shopspring/decimal"
)

// PaymentRequest is the inbound instruction to pay a beneficiary.
type PaymentRequest struct {
	BeneficiaryName string           `json:"beneficiaryName" validate:"required,notblank"`
	AccountNumber   string           `json:"accountNumber" validate:"required,notblank"`
	BankCode        string           `json:"bankCode" validate:"required,notblank"`
	Amount          *decimal.Decimal `json:"amount" validate:"required"`
	Currency        string           `json:"currency" validate:"required,notblank"`
	Note            string           `json:"note,omitempty"`
	RequestID       string           `json:"requestId" validate:"required,notblank"`
}

// CustomerProfile is the snapshot fetched from the customer system on every run.
type CustomerProfile struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	KYCStatus  string `json:"kycStatus"`
}

// BeneficiaryRecord is identified by customer, account number and bank code.
type BeneficiaryRecord struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Name          string `json:"beneficiaryName"`
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
}

type NewBeneficiary struct {
	Name          string
	AccountNumber string
	BankCode      string
}

// PaymentInstruction is sent to the payment system.
type PaymentInstruction struct {
	CustomerID    string
	BeneficiaryID string
	Amount        decimal.Decimal
	Currency      string
	Note          string
	RequestID     string
}

type PaymentOutcome struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// WorkflowResult is returned to the caller and stored in the ledger.
type WorkflowResult struct {
	BeneficiaryID string `json:"beneficiaryId"`
	PaymentID     string `json:"paymentId"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
	// Replayed is set when the result came from the ledger.
	Replayed bool `json:"-"`
}

// KYC statuses reported by the customer system. Only KYCFull allows payments.
const (
	KYCFull    = "FULL"
	KYCPartial = "PARTIAL"
	KYCNone    = "NONE"
)

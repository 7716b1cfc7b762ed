package constant

import "errors"

// Machine readable codes carried in the `code` field of error responses.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeDownstreamError   = "DOWNSTREAM_ERROR"
	CodeRequestInProgress = "REQUEST_IN_PROGRESS"
	CodeInternalError     = "INTERNAL_ERROR"
)

var (
	// ErrKYCIncomplete rejects payments for customers whose KYC is not FULL.
	ErrKYCIncomplete = errors.New("KYC_INCOMPLETE")
)

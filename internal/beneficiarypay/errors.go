package beneficiarypay

import (
	"errors"
	"net/http"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
)

// Kind tags every error returned by the workflow.
type Kind string

const (
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business"
	KindDownstream Kind = "downstream"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Error is the only error type returned by Orchestrator.Pay.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	// Status is the downstream status for KindDownstream and zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}

	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the tag of err. Errors that did not come from the workflow
// are internal; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

func validationError(fields map[string]string) *Error {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}

	return &Error{
		Kind:    KindValidation,
		Code:    cn.CodeValidationError,
		Message: "Request validation failed",
		Details: details,
	}
}

func businessError(err error, details map[string]any) *Error {
	e := &Error{Kind: KindBusiness, Code: err.Error(), Message: err.Error(), Details: details, Err: err}

	var resp commons.Response
	if errors.As(err, &resp) {
		e.Code = resp.Code
		e.Message = resp.Message
	}

	return e
}

func conflictError(requestID string, err error) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    cn.CodeRequestInProgress,
		Message: "A request with the same requestId is still being processed",
		Details: map[string]any{"requestId": requestID},
		Err:     err,
	}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: cn.CodeInternalError, Message: cn.DefaultInternalErrorMessage, Err: err}
}

// fromDownstream tags a proxy error. Anything that is not a *downstream.Failure
// is internal.
func fromDownstream(err error) *Error {
	var f *downstream.Failure
	if !errors.As(err, &f) {
		return internalError(err)
	}

	status := f.Status
	if status <= 0 {
		status = http.StatusBadGateway
	}

	details := map[string]any{
		"target":  f.Target,
		"service": f.Service,
		"kind":    string(f.Kind),
	}

	if f.Body != "" {
		details["downstreamBody"] = f.Body
	}

	return &Error{
		Kind:    KindDownstream,
		Code:    cn.CodeDownstreamError,
		Message: "Call to " + f.Service + " service failed",
		Details: details,
		Status:  status,
		Err:     err,
	}
}

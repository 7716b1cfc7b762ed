package in

import (
	"errors"
	"net/http"

	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	libHTTP "github.com/LerianStudio/beneficiary-pay/pkg/net/http"
)

// toErrorResponse maps a workflow or binding error to the response contract.
func toErrorResponse(err error) *libHTTP.ErrorResponse {
	var fields libHTTP.FieldErrors
	if errors.As(err, &fields) {
		return libHTTP.NewErrorResponse(http.StatusBadRequest, cn.CodeValidationError, "Request validation failed", fields.Details())
	}

	if errors.Is(err, libHTTP.ErrBodyParseFailed) || errors.Is(err, libHTTP.ErrUnsupportedContentType) {
		return libHTTP.NewErrorResponse(http.StatusBadRequest, cn.CodeValidationError, "Malformed request body", nil)
	}

	var wfErr *beneficiarypay.Error
	if !errors.As(err, &wfErr) {
		return libHTTP.NewErrorResponse(http.StatusInternalServerError, cn.CodeInternalError, cn.DefaultInternalErrorMessage, nil)
	}

	switch wfErr.Kind {
	case beneficiarypay.KindValidation:
		return libHTTP.NewErrorResponse(http.StatusBadRequest, wfErr.Code, wfErr.Message, wfErr.Details)
	case beneficiarypay.KindBusiness:
		return libHTTP.NewErrorResponse(http.StatusForbidden, wfErr.Code, wfErr.Message, wfErr.Details)
	case beneficiarypay.KindDownstream:
		status := wfErr.Status
		if status <= 0 {
			status = http.StatusBadGateway
		}

		return libHTTP.NewErrorResponse(status, wfErr.Code, wfErr.Message, wfErr.Details)
	case beneficiarypay.KindConflict:
		return libHTTP.NewErrorResponse(http.StatusConflict, wfErr.Code, wfErr.Message, wfErr.Details)
	default:
		return libHTTP.NewErrorResponse(http.StatusInternalServerError, cn.CodeInternalError, cn.DefaultInternalErrorMessage, nil)
	}
}

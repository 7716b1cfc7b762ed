package commons

import (
	"errors"
	"fmt"

	constant "github.com/LerianStudio/beneficiary-pay/pkg/constants"
)

// Response is a business rejection with a machine readable code.
type Response struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"-"`
}

func (e Response) Error() string {
	return e.Message
}

func (e Response) Unwrap() error {
	return e.Err
}

// ValidateBusinessError maps a business sentinel from the constants package to
// its Response. Unknown errors are returned unchanged.
func ValidateBusinessError(err error, entityType string, args ...any) error {
	switch {
	case errors.Is(err, constant.ErrKYCIncomplete):
		return Response{
			EntityType: entityType,
			Code:       constant.ErrKYCIncomplete.Error(),
			Title:      "KYC Incomplete",
			Message:    fmt.Sprintf("Customer KYC status is %v; only FULL KYC customers can make payments.", argOrUnknown(args)),
			Err:        err,
		}
	}

	return err
}

func argOrUnknown(args []any) any {
	if len(args) == 0 || args[0] == nil || args[0] == "" {
		return "UNKNOWN"
	}

	return args[0]
}

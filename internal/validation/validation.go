// Package validation holds the stateless checks applied to a payment request
// before any downstream call is made.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const maxAmountScale = 2

var (
	ErrBankCodeRequired  = errors.New("bank code is required")
	ErrBankCodeInvalid   = errors.New("invalid bank code format")
	ErrAmountRequired    = errors.New("amount is required")
	ErrAmountScale       = errors.New("amount can have at most 2 decimal places")
	ErrAmountNotPositive = errors.New("amount must be greater than 0")
	ErrAmountBelowMin    = errors.New("amount is below the minimum allowed")
	ErrAmountAboveMax    = errors.New("amount is above the maximum allowed")
)

// IFSC layout: four letters, a literal zero, six alphanumerics.
var bankCodePattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// NormalizeBankCode trims and upper-cases a bank code. It is idempotent.
func NormalizeBankCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateBankCode checks the normalized form of code.
func ValidateBankCode(code string) error {
	normalized := NormalizeBankCode(code)
	if normalized == "" {
		return ErrBankCodeRequired
	}

	if !bankCodePattern.MatchString(normalized) {
		return ErrBankCodeInvalid
	}

	return nil
}

// ValidateAmount requires a strictly positive amount with at most two decimal
// places as written. Scale is checked first so "-0.001" reports precision.
func ValidateAmount(amount *decimal.Decimal) error {
	if amount == nil {
		return ErrAmountRequired
	}

	if -amount.Exponent() > maxAmountScale {
		return ErrAmountScale
	}

	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	return nil
}

// ValidateRange applies ValidateAmount and then optional inclusive bounds.
// A nil bound is not enforced.
func ValidateRange(amount *decimal.Decimal, minAmount, maxAmount *decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	if minAmount != nil && amount.LessThan(*minAmount) {
		return ErrAmountBelowMin
	}

	if maxAmount != nil && amount.GreaterThan(*maxAmount) {
		return ErrAmountAboveMax
	}

	return nil
}

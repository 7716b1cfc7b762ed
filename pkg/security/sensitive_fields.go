package security

import (
	"strings"
	"unicode"

	constant "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/goccy/go-json"
)

// UnparseableBody stands in for a body that is not valid JSON.
const UnparseableBody = "<unparseable body>"

// defaultSensitiveFields are matched against normalized snake_case field names.
var defaultSensitiveFields = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"credential",
	"credentials",
	"api_key",
	"access_token",
	"refresh_token",
	"private_key",
	"client_id",
	"client_secret",
	"account_number",
}

// DefaultSensitiveFields returns a copy of the default list.
func DefaultSensitiveFields() []string {
	out := make([]string, len(defaultSensitiveFields))
	copy(out, defaultSensitiveFields)

	return out
}

// normalizeFieldName turns camelCase and PascalCase into snake_case, so
// "accountNumber" and "APIKey" become "account_number" and "api_key".
func normalizeFieldName(fieldName string) string {
	var b strings.Builder

	runes := []rune(fieldName)

	for i, r := range runes {
		if r == '-' || r == ' ' || r == '.' {
			b.WriteByte('_')
			continue
		}

		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]

			var next rune
			if i+1 < len(runes) {
				next = runes[i+1]
			}

			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
				b.WriteByte('_')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// IsSensitiveField reports whether fieldName names a credential or an
// account identifier. Matching is case-insensitive and respects underscore
// word boundaries, so "beneficiaryName" is not sensitive while
// "clientSecret" and "X-Account-Number" are.
func IsSensitiveField(fieldName string) bool {
	normalized := normalizeFieldName(fieldName)
	if normalized == "" {
		return false
	}

	padded := "_" + normalized + "_"

	for _, sensitive := range defaultSensitiveFields {
		if strings.Contains(padded, "_"+sensitive+"_") {
			return true
		}
	}

	return false
}

// MaskAccountNumber keeps only the last four characters of an account number.
func MaskAccountNumber(accountNumber string) string {
	trimmed := strings.TrimSpace(accountNumber)

	const visible = 4
	if len(trimmed) <= visible {
		return strings.Repeat("*", len(trimmed))
	}

	return strings.Repeat("*", len(trimmed)-visible) + trimmed[len(trimmed)-visible:]
}

// ObfuscateJSON replaces the values of sensitive fields anywhere in a JSON
// document. JSON scalars are returned unchanged. Input that does not parse is
// replaced by UnparseableBody, since it may still carry sensitive values.
func ObfuscateJSON(body []byte) []byte {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return []byte(UnparseableBody)
	}

	switch doc.(type) {
	case map[string]any, []any:
	default:
		return body
	}

	out, err := json.Marshal(obfuscateValue(doc))
	if err != nil {
		return []byte(UnparseableBody)
	}

	return out
}

func obfuscateValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, inner := range typed {
			if IsSensitiveField(k) {
				typed[k] = constant.ObfuscatedValue
				continue
			}

			typed[k] = obfuscateValue(inner)
		}

		return typed
	case []any:
		for i, inner := range typed {
			typed[i] = obfuscateValue(inner)
		}

		return typed
	default:
		return v
	}
}

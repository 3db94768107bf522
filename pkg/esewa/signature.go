package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"slices"
	"strings"
)

// RequestSignedFields is the field order eSewa expects on the outgoing form.
var RequestSignedFields = []string{"total_amount", "transaction_uuid", "product_code"}

// CallbackSignedFields must all be covered by a callback signature before any
// of its values are acted on.
var CallbackSignedFields = []string{"transaction_code", "status", "total_amount", "transaction_uuid", "product_code", FieldSignedFields}

// Sign returns the base64 encoded HMAC-SHA256 of message keyed by secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignedString joins field=value pairs with commas in the given order. It
// reports false when a named field is missing from fields.
func SignedString(fields map[string]string, order []string) (string, bool) {
	if len(order) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		value, ok := fields[name]
		if !ok {
			return "", false
		}
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, ","), true
}

// Verify recomputes the signature over the payload's declared field order and
// compares it in constant time against the declared signature. Any malformed
// input yields false.
func Verify(secret string, payload map[string]string, declaredOrder []string, declaredSignature string) bool {
	if secret == "" || declaredSignature == "" {
		return false
	}
	message, ok := SignedString(payload, declaredOrder)
	if !ok {
		return false
	}
	expected := Sign(secret, message)
	return hmac.Equal([]byte(expected), []byte(declaredSignature))
}

// CoversFields reports whether declared names every field in required.
func CoversFields(declared, required []string) bool {
	for _, name := range required {
		if !slices.Contains(declared, name) {
			return false
		}
	}
	return true
}

// ParseSignedFieldNames splits a signed_field_names value.
func ParseSignedFieldNames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

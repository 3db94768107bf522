package esewa

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Gateway transaction statuses.
const (
	StatusComplete    = "COMPLETE"
	StatusPending     = "PENDING"
	StatusFullRefund  = "FULL_REFUND"
	StatusPartRefund  = "PARTIAL_REFUND"
	StatusAmbiguous   = "AMBIGUOUS"
	StatusNotFound    = "NOT_FOUND"
	StatusCanceled    = "CANCELED"
	FieldSignature    = "signature"
	FieldSignedFields = "signed_field_names"
)

// DecodeData decodes the base64 "data" value eSewa appends to the success
// redirect into a flat field map.
func DecodeData(encoded string) (map[string]string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("esewa data is empty")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// some clients strip padding or use the url alphabet
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("decode esewa data: %w", err)
		}
	}
	return FlattenJSON(raw)
}

// FlattenJSON turns a JSON object into string fields, keeping numbers in their
// original textual form so signatures can be recomputed.
func FlattenJSON(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode esewa payload: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("esewa payload is not an object")
	}
	fields := make(map[string]string, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = fmt.Sprintf("%t", v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode field %s: %w", key, err)
			}
			fields[key] = string(encoded)
		}
	}
	return fields, nil
}

// EncodeData is the inverse of DecodeData.
func EncodeData(fields map[string]string) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// NormalizeAmount strips thousands separators eSewa uses in total_amount.
func NormalizeAmount(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
}

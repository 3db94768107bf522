package payments

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// CallbackPayload is a decoded gateway callback. Raw keeps every field the
// gateway sent so the signature can be recomputed over the declared order.
type CallbackPayload struct {
	TransactionCode  string
	Status           string
	TotalAmount      string
	TransactionUUID  string
	ProductCode      string
	SignedFieldNames string
	Signature        string
	Raw              map[string]string
}

// CallbackFromFields maps flat gateway fields onto a CallbackPayload.
func CallbackFromFields(fields map[string]string) CallbackPayload {
	return CallbackPayload{
		TransactionCode:  strings.TrimSpace(fields["transaction_code"]),
		Status:           strings.ToUpper(strings.TrimSpace(fields["status"])),
		TotalAmount:      strings.TrimSpace(fields["total_amount"]),
		TransactionUUID:  strings.TrimSpace(fields["transaction_uuid"]),
		ProductCode:      strings.TrimSpace(fields["product_code"]),
		SignedFieldNames: fields[esewa.FieldSignedFields],
		Signature:        strings.TrimSpace(fields[esewa.FieldSignature]),
		Raw:              fields,
	}
}

// DecodeCallbackData decodes the base64 data parameter of a success redirect.
func DecodeCallbackData(encoded string) (CallbackPayload, error) {
	fields, err := esewa.DecodeData(encoded)
	if err != nil {
		return CallbackPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment callback data")
	}
	return CallbackFromFields(fields), nil
}

// DecodeCallbackObject decodes a JSON object carrying the callback fields.
func DecodeCallbackObject(raw []byte) (CallbackPayload, error) {
	fields, err := esewa.FlattenJSON(raw)
	if err != nil {
		return CallbackPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment callback data")
	}
	return CallbackFromFields(fields), nil
}

// DecodeCallbackBody accepts the POST body shapes the gateway and the
// storefront client send: {"data":"<base64>"}, {"data":{...}} or the flat
// field object itself.
func DecodeCallbackBody(raw []byte) (CallbackPayload, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return CallbackPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment callback data")
	}
	data := bytes.TrimSpace(envelope.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return DecodeCallbackObject(raw)
	case data[0] == '"':
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return CallbackPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment callback data")
		}
		return DecodeCallbackData(encoded)
	default:
		return DecodeCallbackObject(data)
	}
}

package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Momo", SanitizeString("  Mo\x00mo\x1b ", 0))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	// "ना" is six bytes; a four byte cap must not split the second rune
	assert.Equal(t, "न", SanitizeString("ना", 4))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=20&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	require.Error(t, err)
}

func TestParseQueryEnum(t *testing.T) {
	req := httptest.NewRequest("GET", "/?status=PAID&other=nope", nil)
	parse := func(raw string) (string, error) {
		if raw != "paid" {
			return "", assert.AnError
		}
		return raw, nil
	}

	got, err := ParseQueryEnum(req, "status", parse)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "paid", *got)

	got, err = ParseQueryEnum(req, "absent", parse)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseQueryEnum(req, "other", parse)
	require.Error(t, err)
}

type lineItem struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type orderBody struct {
	AddressID string     `json:"address_id" validate:"required,uuid"`
	Items     []lineItem `json:"items" validate:"dive"`
}

func decode(body string) (orderBody, error) {
	var out orderBody
	err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(body)), &out)
	return out, err
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	got, err := decode(`{"address_id":"7f1b3c1e-8a35-4f39-9a6e-2f7d3f5c0b11","items":[{"sku":"tea","quantity":2}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"":                      "request body is required",
		`{"address_id":`:        "request body is truncated",
		`{"address_id":1}`:      "address_id must be string",
		`{"coupon":"x"}`:        `unknown field "coupon"`,
		`{"address_id":"a"} {}`: "body must contain a single JSON object",
	}
	for body, want := range cases {
		_, err := decode(body)
		require.Error(t, err, body)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, body)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code(), body)
		assert.Equal(t, map[string]any{"error": want}, typed.Details(), body)
	}
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	_, err := decode(`{"address_id":"nope","items":[{"sku":"","quantity":0}]}`)
	require.Error(t, err)

	assert.Equal(t, map[string]string{
		"address_id":        "must be a valid uuid",
		"items[0].sku":      "is required",
		"items[0].quantity": "must be at least 1",
	}, pkgerrors.As(err).Details())
}

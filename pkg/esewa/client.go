package esewa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultStatusURL            = "https://rc.esewa.com.np/api/epay/transaction/status/"
	responseBodyReadLimit int64 = 1024
)

var (
	errProductCodeRequired = errors.New("esewa product code is required")
	tracer                 = otel.Tracer("github.com/angelmondragon/storefront-backend/pkg/esewa")
)

// Client queries the eSewa transaction status API.
type Client struct {
	httpClient  *http.Client
	statusURL   string
	productCode string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithStatusURL overrides the status endpoint.
func WithStatusURL(statusURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(statusURL)
		if trimmed != "" {
			c.statusURL = trimmed
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a status client for the merchant product code.
func NewClient(productCode string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(productCode)
	if trimmed == "" {
		return nil, errProductCodeRequired
	}

	client := &Client{
		productCode: trimmed,
		statusURL:   defaultStatusURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// TransactionStatus is the gateway's view of a transaction.
type TransactionStatus struct {
	ProductCode     string          `json:"product_code"`
	TransactionUUID string          `json:"transaction_uuid"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	RefID           *string         `json:"ref_id"`
}

// IsComplete reports whether the gateway settled the transaction.
func (s TransactionStatus) IsComplete() bool {
	return s.Status == StatusComplete
}

// Fields renders the status as a flat map for persistence.
func (s TransactionStatus) Fields() map[string]string {
	fields := map[string]string{
		"product_code":     s.ProductCode,
		"transaction_uuid": s.TransactionUUID,
		"total_amount":     s.TotalAmount.String(),
		"status":           s.Status,
	}
	if s.RefID != nil {
		fields["ref_id"] = *s.RefID
	}
	return fields
}

// CheckStatus asks eSewa for the state of transactionUUID. totalAmount must be
// the exact amount the transaction was initiated with.
func (c *Client) CheckStatus(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*TransactionStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "esewa client not configured")
	}
	transactionUUID = strings.TrimSpace(transactionUUID)
	if transactionUUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction_uuid is required")
	}

	ctx, span := tracer.Start(ctx, "esewa.check_status")
	defer span.End()
	span.SetAttributes(attribute.String("esewa.transaction_uuid", transactionUUID))

	query := url.Values{}
	query.Set("product_code", c.productCode)
	query.Set("total_amount", totalAmount.String())
	query.Set("transaction_uuid", transactionUUID)
	endpoint := c.statusURL + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build esewa status request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute esewa status request")
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		span.SetStatus(codes.Error, "unexpected status")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "esewa status request failed")
	}

	var status TransactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		span.RecordError(err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode esewa status response")
	}
	if status.TransactionUUID == "" {
		status.TransactionUUID = transactionUUID
	}
	span.SetAttributes(attribute.String("esewa.status", status.Status))
	return &status, nil
}

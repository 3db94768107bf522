package orders

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	orderNumberPrefix   = "ORD-"
	correlationIDPrefix = "esewa-"
)

// NewOrderNumber returns a sortable, human readable order number.
func NewOrderNumber() string {
	return orderNumberPrefix + ulid.Make().String()
}

// NewCorrelationID returns a fresh gateway transaction id for one checkout attempt.
func NewCorrelationID() string {
	return correlationIDPrefix + strings.ToLower(ulid.Make().String())
}

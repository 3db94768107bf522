package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentDetails snapshots what the gateway reported when an order group was
// reconciled. Stored as JSONB on every order in the group.
type PaymentDetails struct {
	Gateway         string            `json:"gateway"`
	Source          string            `json:"source"`
	TransactionCode string            `json:"transaction_code,omitempty"`
	GatewayStatus   string            `json:"gateway_status"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	ReconciledAt    time.Time         `json:"reconciled_at"`
	Raw             map[string]string `json:"raw,omitempty"`
}

// Value lets the details travel as a column value in map based updates.
func (p PaymentDetails) Value() (driver.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// RefundDetails records refund intent for a cancelled paid order. The gateway
// refund itself is a manual follow-up.
type RefundDetails struct {
	RefundID    string          `json:"refund_id"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requested_at"`
	Reason      string          `json:"reason"`
	Status      string          `json:"status"`
}

func (r RefundDetails) Value() (driver.Value, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

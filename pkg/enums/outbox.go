package enums

// OutboxAggregateType mirrors the aggregate_type column enum.
type OutboxAggregateType string

const (
	AggregateCheckout OutboxAggregateType = "checkout"
	AggregateOrder    OutboxAggregateType = "order"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateCheckout, AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType mirrors the event_type column enum.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderCanceled      OutboxEventType = "order_canceled"
	EventRefundRequested    OutboxEventType = "refund_requested"
)

var eventTypes = set[OutboxEventType]{
	EventOrderCreated,
	EventOrderPaid,
	EventPaymentFailed,
	EventOrderStatusChanged,
	EventOrderCanceled,
	EventRefundRequested,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxEventTypes lists every event type the database accepts.
func OutboxEventTypes() []OutboxEventType { return eventTypes.values() }

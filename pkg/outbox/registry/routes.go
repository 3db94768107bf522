// Package registry maps outbox event types to their Pub/Sub topic and typed
// payload, and rejects rows that can never be delivered.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Route is where an event type is published and which aggregate owns it.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// NonRetryableError marks rows that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type entry struct {
	route  Route
	decode func(json.RawMessage) (any, error)
}

// EventRegistry resolves outbox rows against the known event types.
type EventRegistry struct {
	entries map[enums.OutboxEventType]entry
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewEventRegistry routes refund requests to the payments topic and every
// other event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.PaymentsTopic == "":
		return nil, errors.New("payments topic is required")
	}

	checkout, order := enums.AggregateCheckout, enums.AggregateOrder
	reg := &EventRegistry{entries: map[enums.OutboxEventType]entry{}}
	add := func(event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, decode func(json.RawMessage) (any, error)) {
		reg.entries[event] = entry{route: Route{EventType: event, AggregateType: aggregate, Topic: topic}, decode: decode}
	}
	add(enums.EventOrderCreated, checkout, cfg.OrdersTopic, decodeAs[payloads.OrderCreatedEvent])
	add(enums.EventOrderPaid, checkout, cfg.OrdersTopic, decodeAs[payloads.OrderPaidEvent])
	add(enums.EventPaymentFailed, checkout, cfg.OrdersTopic, decodeAs[payloads.PaymentFailedEvent])
	add(enums.EventOrderStatusChanged, order, cfg.OrdersTopic, decodeAs[payloads.OrderStatusChangedEvent])
	add(enums.EventOrderCanceled, order, cfg.OrdersTopic, decodeAs[payloads.OrderCanceledEvent])
	add(enums.EventRefundRequested, order, cfg.PaymentsTopic, decodeAs[payloads.RefundRequestedEvent])
	return reg, nil
}

// Topics returns the distinct destination topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, e := range r.entries {
		set[e.route.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	e, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case e.route.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", e.route.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event.EventType, err)
	}
	payload, err := e.decode(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Route: e.route, Envelope: envelope, Payload: payload}, nil
}

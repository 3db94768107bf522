package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:    false,
		OrderStatusProcessing: false,
		OrderStatusApproved:   false,
		OrderStatusDelivered:  true,
		OrderStatusCancelled:  true,
	}
	for status, terminal := range cases {
		if status.IsTerminal() != terminal {
			t.Fatalf("status %s terminal=%v", status, status.IsTerminal())
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("approved")
	if err != nil || got != OrderStatusApproved {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	got, err := ParsePaymentStatus("cash_on_delivery")
	if err != nil || got != PaymentStatusCashOnDelivery {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected error for unknown payment status")
	}
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	if PaymentMethodEsewa.InitialPaymentStatus() != PaymentStatusPending {
		t.Fatal("esewa orders start pending")
	}
	if PaymentMethodCashOnDelivery.InitialPaymentStatus() != PaymentStatusCashOnDelivery {
		t.Fatal("cod orders start as cash_on_delivery")
	}
}

func TestParsePaymentMethod(t *testing.T) {
	if !PaymentMethodEsewa.IsValid() {
		t.Fatal("esewa should be valid")
	}
	if _, err := ParsePaymentMethod("ach"); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("refund_requested"); err != nil {
		t.Fatalf("refund_requested should parse: %v", err)
	}
	if OutboxEventType("license_expired").IsValid() {
		t.Fatal("unexpected event type accepted")
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatal("unexpected aggregate accepted")
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() {
		t.Fatal("max attempts reason should be valid")
	}
	if _, err := ParseOutboxDLQErrorReason("unroutable"); err != nil {
		t.Fatalf("unroutable should parse: %v", err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("unexpected dlq reason accepted")
	}
}

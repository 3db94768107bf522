package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_orders_order_number",
		TableName:      "orders",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeInternal, fmt.Errorf("insert orders: %w", pgErr), "materialize orders")

	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "ux_orders_order_number" || dump.PGTable != "orders" {
		t.Fatalf("unexpected pg fields %+v", dump)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(dump.Chain))
	}
}

func TestDumpExtractsPqFields(t *testing.T) {
	err := fmt.Errorf("update: %w", &pq.Error{Code: "40001", Table: "payment_sessions", Message: "serialization failure"})
	dump := Dump(err)
	if dump.PGCode != "40001" || dump.PGTable != "payment_sessions" {
		t.Fatalf("unexpected pq fields %+v", dump)
	}
	if dump.Code != "" {
		t.Fatalf("untyped errors should not carry a code, got %s", dump.Code)
	}
}

func TestDumpNil(t *testing.T) {
	if dump := Dump(nil); dump.TopMessage != "" || len(dump.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", dump)
	}
}

func TestDumpFieldsOmitsEmptyPostgresKeys(t *testing.T) {
	fields := Dump(New(CodeNotFound, "order not found")).Fields()
	if fields["error_code"] != CodeNotFound {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg_code should be omitted, got %v", fields)
	}
	if _, ok := fields["error_chain"]; ok {
		t.Fatalf("single-link chain should be omitted")
	}
}

package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpPgxError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_delivery_logs_order_item", TableName: "delivery_logs"}
	err := Wrap(CodeConflict, fmt.Errorf("insert delivery log: %w", pgErr), "already delivered")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "ux_delivery_logs_order_item" {
		t.Fatalf("unexpected pg detail %+v", d.PG)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}

	fields := d.Fields()
	if fields["pg_table"] != "delivery_logs" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestDumpPqError(t *testing.T) {
	d := Dump(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	if d.PG == nil || d.PG.Code != "40P01" || d.PG.Message != "deadlock detected" {
		t.Fatalf("unexpected pg detail %+v", d.PG)
	}
	if d.Code != "" {
		t.Fatalf("untyped error should have no code, got %s", d.Code)
	}
}

func TestDumpPlainAndNil(t *testing.T) {
	if d := Dump(nil); d.Message != "" || d.Chain != nil {
		t.Fatalf("nil error should dump empty, got %+v", d)
	}
	d := Dump(stdErrors.New("boom"))
	if d.PG != nil {
		t.Fatal("plain error must not carry pg detail")
	}
	if len(d.Fields()) != 0 {
		t.Fatalf("plain error should have no fields, got %v", d.Fields())
	}
}

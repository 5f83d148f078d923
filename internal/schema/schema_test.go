package schema

import (
	"reflect"
	"testing"
)

func TestValidateExactMatch(t *testing.T) {
	res := Validate([]string{"Date", "Amount"}, []string{"Date", "Amount"})
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Issue() != "" {
		t.Fatalf("expected empty issue, got %q", res.Issue())
	}
}

func TestValidateOrderIndependent(t *testing.T) {
	res := Validate([]string{"Amount", "Date"}, []string{"Date", "Amount"})
	if !res.OK() {
		t.Fatalf("order must not matter: %+v", res)
	}
}

func TestValidateExtraColumns(t *testing.T) {
	res := Validate([]string{"Date", "Amount", "Extra"}, []string{"Date", "Amount"})
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !reflect.DeepEqual(res.Extra, []string{"Extra"}) || len(res.Missing) != 0 {
		t.Fatalf("unexpected diff: %+v", res)
	}
	if res.Issue() != "ExtraColumns" {
		t.Fatalf("unexpected issue: %q", res.Issue())
	}
}

func TestValidateMissingColumns(t *testing.T) {
	res := Validate([]string{"Date"}, []string{"Date", "Amount"})
	if !reflect.DeepEqual(res.Missing, []string{"Amount"}) {
		t.Fatalf("unexpected diff: %+v", res)
	}
	if res.Issue() != "MissingColumns" {
		t.Fatalf("unexpected issue: %q", res.Issue())
	}
}

func TestValidateBothViolations(t *testing.T) {
	res := Validate([]string{"Date", "Wrong"}, []string{"Date", "Amount"})
	if res.Issue() != "ExtraColumns.MissingColumns" {
		t.Fatalf("unexpected issue: %q", res.Issue())
	}
	msgs := res.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two messages, got %v", msgs)
	}
	if msgs[0] != "Extra column(s) found: [Wrong]" {
		t.Fatalf("unexpected extra message: %q", msgs[0])
	}
	if msgs[1] != "Column(s) missing: [Amount]" {
		t.Fatalf("unexpected missing message: %q", msgs[1])
	}
}

func TestValidateDuplicateActualColumns(t *testing.T) {
	// Duplicate header entries collapse to set membership, reported once.
	res := Validate([]string{"Date", "Date", "Bogus", "Bogus"}, []string{"Date"})
	if !reflect.DeepEqual(res.Extra, []string{"Bogus"}) {
		t.Fatalf("unexpected extras: %v", res.Extra)
	}
}

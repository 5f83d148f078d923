package expr

import (
	"strings"
	"testing"
	"time"
)

func eval(t *testing.T, src string, fields map[string]string) string {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	out, err := e.Eval(Env{Fields: fields, Now: now})
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return out
}

func TestArithmetic(t *testing.T) {
	cases := map[string]string{
		"1 + 2 * 3":       "7",
		"(1 + 2) * 3":     "9",
		"10 / 4":          "2.5",
		"-[Amount] * 2":   "-84",
		"round(1.2345, 2)": "1.23",
		"abs(0 - 5)":      "5",
	}
	fields := map[string]string{"Amount": "42"}
	for src, want := range cases {
		if got := eval(t, src, fields); got != want {
			t.Fatalf("%q = %q, want %q", src, got, want)
		}
	}
}

func TestStringOps(t *testing.T) {
	fields := map[string]string{"Payee": "  Acme Corp  ", "Category": ""}
	cases := map[string]string{
		"upper(trim([Payee]))":          "ACME CORP",
		"lower('ABC')":                  "abc",
		"trim([Payee]) & '/' & 'misc'":  "Acme Corp/misc",
		"replace('a-b-c', '-', '.')":    "a.b.c",
		"substr('20240101', 0, 4)":      "2024",
		"concat('x', 'y', 'z')":         "xyz",
		"len('abcd') * 2":               "8",
	}
	for src, want := range cases {
		if got := eval(t, src, fields); got != want {
			t.Fatalf("%q = %q, want %q", src, got, want)
		}
	}
}

func TestNowBinding(t *testing.T) {
	got := eval(t, "now()", nil)
	if got != "2024-03-01 12:30:00.000000" {
		t.Fatalf("now() = %q", got)
	}
}

func TestFieldNumericCoercion(t *testing.T) {
	got := eval(t, "[Amount] + 0.5", map[string]string{"Amount": "42.00"})
	if got != "42.5" {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownField(t *testing.T) {
	e, err := Compile("[Missing]")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(Env{Fields: map[string]string{}}); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestCompileErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"upper(",
		"[Unterminated",
		"'unterminated",
		"nosuchfunc(1)",
		"1 2",
	} {
		e, err := Compile(src)
		if err != nil {
			continue
		}
		// nosuchfunc compiles but must fail at eval time.
		if _, err := e.Eval(Env{Fields: map[string]string{}}); err == nil {
			t.Fatalf("%q: expected an error", src)
		}
	}
}

func TestNonNumericArithmetic(t *testing.T) {
	e, err := Compile("[Payee] + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(Env{Fields: map[string]string{"Payee": "Acme"}}); err == nil {
		t.Fatal("expected numeric type error")
	}
}

func TestDivisionByZero(t *testing.T) {
	e, err := Compile("1 / 0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(Env{}); err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("expected division error, got %v", err)
	}
}

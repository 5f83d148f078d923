package disposition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ingot/internal/configstore"
	"ingot/internal/ingest"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func bankFileConfig() configstore.FileConfig {
	return configstore.FileConfig{ConfigurationFileID: 1, Source: "BankABC", Delimiter: ","}
}

func bankColumns() []configstore.ColumnConfig {
	return []configstore.ColumnConfig{
		{ColumnNameBronze: "TransactionDate", ColumnNameFile: "Date", Order: 1, ConfigurationFileID: 1},
		{ColumnNameBronze: "Amount", ColumnNameFile: "Amount", Order: 2, ConfigurationFileID: 1},
	}
}

func writeInbound(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(errorDir string) Options {
	return Options{
		Source:           "BankABC",
		ExecutionGUID:    "guid-1",
		DefaultDelimiter: '|',
		ErrorDir:         errorDir,
		Now:              testNow,
	}
}

func TestEvaluatePromotesValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeInbound(t, dir, "jan.csv", "Date,Amount\n2026-01-05,12.50\n")

	out := Evaluate(path, bankFileConfig(), bankColumns(), testOptions(filepath.Join(dir, "err")))
	if out.Kind != KindPromoted {
		t.Fatalf("kind = %q, err = %v", out.Kind, out.Err)
	}
	if out.Path != path {
		t.Fatalf("promoted file must stay in place, path = %q", out.Path)
	}
	if out.Result == nil || out.RowCount != 1 {
		t.Fatalf("staged rows missing: %+v", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("inbound file moved prematurely: %v", err)
	}
}

func TestEvaluateQuarantinesBadHeader(t *testing.T) {
	dir := t.TempDir()
	errorDir := filepath.Join(dir, "err")
	path := writeInbound(t, dir, "jan.csv", "Date,Amount,Memo\n2026-01-05,12.50,x\n")

	out := Evaluate(path, bankFileConfig(), bankColumns(), testOptions(errorDir))
	if out.Kind != KindQuarantined {
		t.Fatalf("kind = %q, err = %v", out.Kind, out.Err)
	}
	want := filepath.Join(errorDir, "jan.InvalidColumnHeader.ExtraColumns.csv")
	if out.Path != want {
		t.Fatalf("quarantine path = %q, want %q", out.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("quarantined file not at target: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("original file still in inbound folder")
	}
	if out.Issue != "ExtraColumns" {
		t.Fatalf("issue = %q", out.Issue)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("messages = %v", out.Messages)
	}
}

func TestEvaluateQuarantineCombinedIssue(t *testing.T) {
	dir := t.TempDir()
	errorDir := filepath.Join(dir, "err")
	path := writeInbound(t, dir, "jan.csv", "Posted,Memo\nx,y\n")

	out := Evaluate(path, bankFileConfig(), bankColumns(), testOptions(errorDir))
	if out.Kind != KindQuarantined {
		t.Fatalf("kind = %q", out.Kind)
	}
	want := filepath.Join(errorDir, "jan.InvalidColumnHeader.ExtraColumns.MissingColumns.csv")
	if out.Path != want {
		t.Fatalf("quarantine path = %q, want %q", out.Path, want)
	}
}

func TestEvaluateRenamesEmptyFileInPlace(t *testing.T) {
	dir := t.TempDir()
	path := writeInbound(t, dir, "jan.csv", "Date,Amount\n")

	out := Evaluate(path, bankFileConfig(), bankColumns(), testOptions(filepath.Join(dir, "err")))
	if out.Kind != KindEmpty {
		t.Fatalf("kind = %q, err = %v", out.Kind, out.Err)
	}
	want := filepath.Join(dir, "jan.Empty.csv")
	if out.Path != want {
		t.Fatalf("path = %q, want %q", out.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
}

func TestEvaluateIgnoresNonDataFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeInbound(t, dir, "readme.pdf", "not data")

	out := Evaluate(path, bankFileConfig(), bankColumns(), testOptions(filepath.Join(dir, "err")))
	if out.Kind != KindIgnored {
		t.Fatalf("kind = %q", out.Kind)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("ignored file must be untouched: %v", err)
	}
}

func TestEvaluateTransformationFailureIsFolderFatal(t *testing.T) {
	dir := t.TempDir()
	columns := bankColumns()
	columns[1].TransformationBronze = "[Amount] / 'zero'"
	path := writeInbound(t, dir, "jan.csv", "Date,Amount\n2026-01-05,12.50\n")

	out := Evaluate(path, bankFileConfig(), columns, testOptions(filepath.Join(dir, "err")))
	if out.Kind != KindFailed {
		t.Fatalf("kind = %q", out.Kind)
	}
	if !errors.Is(out.Err, ingest.ErrTransformation) {
		t.Fatalf("err = %v", out.Err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file must stay staged on transformation failure: %v", err)
	}
}

func TestIsDataFile(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"jan.csv", true},
		{"jan.TXT", true},
		{"jan.Empty.csv", false},
		{"jan.InvalidColumnHeader.ExtraColumns.csv", false},
		{"jan.InvalidColumnHeader.ExtraColumns.MissingColumns.txt", false},
		{"notes.pdf", false},
		{".hidden", false},
	}
	for _, tc := range cases {
		if got := IsDataFile(tc.name); got != tc.want {
			t.Errorf("IsDataFile(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

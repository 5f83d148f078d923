package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"ingot/internal/ingest"
	"ingot/internal/logging"
	"ingot/internal/runlog"
	"ingot/internal/tabular"
	"ingot/internal/testsupport"
	"ingot/internal/walker"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	log, err := logging.New(logging.Options{Level: "error", Format: "console", Writer: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func TestRunProcessesAllSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg,
		append(testsupport.BankFileRows(), "Savings|2|Misc|;|BankDEF|"),
		append(testsupport.BankColumnRows(),
			"Amount|Amount|Amount||1|2|string|",
		),
	)
	testsupport.WriteInbound(t, cfg, "BankABC", "jan.csv", "Date,Amount\n2026-01-05,12.50\n")
	testsupport.WriteInbound(t, cfg, "BankDEF", "feb.txt", "Amount\n9.00\n")

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Success {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Folders) != 2 {
		t.Fatalf("folders = %d", len(summary.Folders))
	}
	if summary.Promoted != 2 || summary.RowsWritten != 2 {
		t.Fatalf("promoted = %d, rows = %d", summary.Promoted, summary.RowsWritten)
	}

	// Both sources land in their own Bronze data file.
	for _, source := range []string{"BankABC", "BankDEF"} {
		path := filepath.Join(cfg.BronzeDir(), "Bronze."+source+".txt")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("bronze file for %s missing: %v", source, err)
		}
	}

	// The audit log carries the per-file and run entries.
	tbl, err := tabular.ReadFile(cfg.LogFilePath(), runlog.Delimiter, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) < 3 {
		t.Fatalf("audit log rows = %d, want promote entries plus run entry", len(tbl.Rows))
	}
}

func TestRunSingleSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, cfg, "BankABC", "jan.csv", "Date,Amount\n2026-01-05,12.50\n")
	other := testsupport.WriteInbound(t, cfg, "Other", "x.csv", "A\n1\n")

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{Source: "BankABC"})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Success || len(summary.Folders) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("out-of-scope source touched: %v", err)
	}
}

func TestRunCreatesMissingSourceFolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{Source: "BankABC"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Success {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Folders) != 1 || summary.Folders[0].Status != walker.StatusNoFiles {
		t.Fatalf("folders = %+v", summary.Folders)
	}
	if len(summary.Warnings) != 1 {
		t.Fatalf("warnings = %v, want the created-folder notice", summary.Warnings)
	}
	inbound := filepath.Join(cfg.BronzeInboundDir(), "BankABC")
	if info, err := os.Stat(inbound); err != nil || !info.IsDir() {
		t.Fatalf("inbound folder not created: %v", err)
	}
}

func TestRunMixedFolderSucceedsWithQuarantine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, cfg, "BankABC", "jan.csv", "Date,Amount\n2026-01-05,12.50\n")
	testsupport.WriteInbound(t, cfg, "BankABC", "bad.csv", "Date,Amount,Extra\n2026-01-06,1.00,x\n")

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Promoted != 1 || summary.Quarantined != 1 {
		t.Fatalf("promoted = %d, quarantined = %d", summary.Promoted, summary.Quarantined)
	}
	if len(summary.Folders) != 1 || summary.Folders[0].Status != walker.StatusPartial {
		t.Fatalf("folders = %+v", summary.Folders)
	}
	if !summary.Success {
		t.Fatal("a folder that promoted a file must not fail the run over a quarantined sibling")
	}
}

func TestRunFailsWhenLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())

	held := flock.New(cfg.LockFilePath())
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("acquire test lock: %v", err)
	}
	defer held.Unlock()

	_, err = Run(context.Background(), cfg, testLogger(t), Options{})
	if !errors.Is(err, ingest.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunFatalOnInvalidConfigHeader(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	if err := os.WriteFile(cfg.FileConfigPath(), []byte("Wrong|Header\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), cfg, testLogger(t), Options{})
	if !errors.Is(err, ingest.ErrConfigInvalidHeader) {
		t.Fatalf("expected ErrConfigInvalidHeader, got %v", err)
	}
	if !ingest.RunFatal(err) {
		t.Fatal("invalid header must be run fatal")
	}

	// The failure itself must be on the audit trail.
	tbl, err := tabular.ReadFile(cfg.LogFilePath(), runlog.Delimiter, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("audit rows = %d, want the failure entry", len(tbl.Rows))
	}
}

func TestRunBootstrapsMissingTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Warnings) < 2 {
		t.Fatalf("warnings = %v, want bootstrap notices for both tables", summary.Warnings)
	}
	for _, path := range []string{cfg.FileConfigPath(), cfg.ColumnConfigPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("table not bootstrapped: %v", err)
		}
	}
}

func TestRunSkippedSourceFailsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, cfg, "Mystery", "x.csv", "A\n1\n")

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Success {
		t.Fatal("unconfigured source must fail the run")
	}
	if len(summary.Folders) != 1 || summary.Folders[0].Status != walker.StatusSkipped {
		t.Fatalf("folders = %+v", summary.Folders)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(cfg.AdminDir(), "history.db")
	testsupport.WriteConfigTables(t, cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, cfg, "BankABC", "jan.csv", "Date,Amount\n2026-01-05,12.50\n")

	summary, err := Run(context.Background(), cfg, testLogger(t), Options{ParentGUID: "parent"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.HistoryID == 0 {
		t.Fatalf("history not recorded: %+v", summary.Warnings)
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		t.Fatalf("history db missing: %v", err)
	}
}

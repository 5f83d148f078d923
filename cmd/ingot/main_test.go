package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ingot/internal/config"
	"ingot/internal/testsupport"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := executeCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := executeCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
	if _, err := executeCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init with --overwrite: %v", err)
	}
}

func writeRunConfig(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf("[paths]\nroot = %q\n\n[logging]\nlevel = \"error\"\n", root)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommandEndToEnd(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteConfigTables(t, &cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, &cfg, "BankABC", "jan.csv", "Date,Amount\n2026-01-05,12.50\n")

	out, err := executeCommand(t, "--config", writeRunConfig(t, root), "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "BankABC") {
		t.Fatalf("output missing source summary:\n%s", out)
	}
	archived := filepath.Join(cfg.BronzeArchiveDir(), "BankABC", "jan.csv")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("file not archived: %v", err)
	}
}

func TestRunCommandFailsOnUnconfiguredSource(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteConfigTables(t, &cfg, testsupport.BankFileRows(), testsupport.BankColumnRows())
	testsupport.WriteInbound(t, &cfg, "Mystery", "x.csv", "A\n1\n")

	out, err := executeCommand(t, "--config", writeRunConfig(t, root), "run")
	if err == nil {
		t.Fatalf("run must fail for unconfigured source:\n%s", out)
	}
}

func TestConfigShowCommand(t *testing.T) {
	root := t.TempDir()
	out, err := executeCommand(t, "--config", writeRunConfig(t, root), "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, root) {
		t.Fatalf("output missing root path:\n%s", out)
	}
	if !strings.Contains(out, "Bronze") {
		t.Fatalf("output missing layer paths:\n%s", out)
	}
}

// Package testsupport provides shared fixtures for pipeline tests: a
// throwaway data root and helpers that lay out configuration tables and
// inbound files the way a provisioned installation would.
package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ingot/internal/config"
	"ingot/internal/configstore"
)

// NewConfig returns a Config rooted in a fresh temp directory with the full
// layer directory tree already created.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Root = t.TempDir()
	cfg.History.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WriteConfigTables writes both configuration tables. Rows are passed as
// pipe-delimited lines without the header.
func WriteConfigTables(t *testing.T, cfg *config.Config, fileRows, columnRows []string) {
	t.Helper()
	writeTable(t, cfg.FileConfigPath(), configstore.FileHeader, fileRows)
	writeTable(t, cfg.ColumnConfigPath(), configstore.ColumnHeader, columnRows)
}

func writeTable(t *testing.T, path string, header []string, rows []string) {
	t.Helper()
	lines := append([]string{strings.Join(header, "|")}, rows...)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// LoadStore writes the given tables and loads them into a Store.
func LoadStore(t *testing.T, cfg *config.Config, fileRows, columnRows []string) *configstore.Store {
	t.Helper()
	WriteConfigTables(t, cfg, fileRows, columnRows)
	store, _, err := configstore.Load(cfg.FileConfigPath(), cfg.ColumnConfigPath())
	if err != nil {
		t.Fatalf("load configuration: %v", err)
	}
	return store
}

// WriteInbound drops a file into the source's inbound folder and returns its
// path.
func WriteInbound(t *testing.T, cfg *config.Config, source, name, content string) string {
	t.Helper()
	dir := filepath.Join(cfg.BronzeInboundDir(), source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// BankFileRows is a ready-made FileConfiguration body for one comma
// delimited source named BankABC with ConfigurationFileID 1.
func BankFileRows() []string {
	return []string{"Checking|1|Misc|,|BankABC|"}
}

// BankColumnRows maps Date and Amount into TransactionDate and Amount.
func BankColumnRows() []string {
	return []string{
		"TransactionDate|Date|TransactionDate||1|1|string|",
		"Amount|Amount|Amount||2|1|string|",
	}
}

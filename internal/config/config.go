package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data root and the admin file names rooted under it.
type Paths struct {
	// Root is the folder holding the Admin, Bronze and Silver trees.
	Root string `toml:"root"`
	// FileConfiguration is the file-level configuration table name in Admin/.
	FileConfiguration string `toml:"file_configuration"`
	// ColumnConfiguration is the column-level configuration table name in Admin/.
	ColumnConfiguration string `toml:"column_configuration"`
}

// Pipeline contains ingestion behavior knobs.
type Pipeline struct {
	// Destination selects where a promoted file lands: "archive" moves it to
	// Bronze/Archive/<Source>/, "promote" hands it to Silver/Inbound/<Source>/.
	Destination string `toml:"destination"`
	// DefaultDelimiter is used when a FileConfiguration row leaves Delimiter blank.
	DefaultDelimiter string `toml:"default_delimiter"`
}

// History contains configuration for the optional run-history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // defaults to <root>/Admin/history.db
}

// Logging contains configuration for console log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all runtime configuration for ingot.
//
// Sections:
//   - Paths: data root and admin table file names
//   - Pipeline: promoted-file destination and delimiter default
//   - History: run-history SQLite store
//   - Logging: console log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ingot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether a file was actually read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ingot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	root, err := expandPath(c.Paths.Root)
	if err != nil {
		return err
	}
	c.Paths.Root = root

	if strings.TrimSpace(c.Paths.FileConfiguration) == "" {
		c.Paths.FileConfiguration = defaultFileConfiguration
	}
	if strings.TrimSpace(c.Paths.ColumnConfiguration) == "" {
		c.Paths.ColumnConfiguration = defaultColumnConfiguration
	}
	c.Pipeline.Destination = strings.ToLower(strings.TrimSpace(c.Pipeline.Destination))
	if c.Pipeline.Destination == "" {
		c.Pipeline.Destination = defaultDestination
	}
	if c.Pipeline.DefaultDelimiter == "" {
		c.Pipeline.DefaultDelimiter = defaultDelimiter
	}
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.AdminDir(), "history.db")
	} else {
		expanded, err := expandPath(c.History.Path)
		if err != nil {
			return err
		}
		c.History.Path = expanded
	}
	return nil
}

// AdminDir returns <root>/Admin.
func (c *Config) AdminDir() string { return filepath.Join(c.Paths.Root, "Admin") }

// LogFilePath returns the audit log location, <root>/Admin/Log.txt.
func (c *Config) LogFilePath() string { return filepath.Join(c.AdminDir(), "Log.txt") }

// LockFilePath returns the run-lock location in the Admin folder.
func (c *Config) LockFilePath() string { return filepath.Join(c.AdminDir(), "ingot.lock") }

// FileConfigPath returns the FileConfiguration table location.
func (c *Config) FileConfigPath() string {
	return filepath.Join(c.AdminDir(), c.Paths.FileConfiguration)
}

// ColumnConfigPath returns the ColumnConfiguration table location.
func (c *Config) ColumnConfigPath() string {
	return filepath.Join(c.AdminDir(), c.Paths.ColumnConfiguration)
}

// BronzeDir returns <root>/Bronze, home of the per-source append files.
func (c *Config) BronzeDir() string { return filepath.Join(c.Paths.Root, "Bronze") }

// BronzeInboundDir returns the folder whose sub-folders are watched sources.
func (c *Config) BronzeInboundDir() string { return filepath.Join(c.BronzeDir(), "Inbound") }

// BronzeErrorDir returns the quarantine root; files land in <dir>/<Source>/.
func (c *Config) BronzeErrorDir() string { return filepath.Join(c.BronzeDir(), "Error") }

// BronzeArchiveDir returns the archive root for promoted files.
func (c *Config) BronzeArchiveDir() string { return filepath.Join(c.BronzeDir(), "Archive") }

// SilverInboundDir returns the next layer's inbound root.
func (c *Config) SilverInboundDir() string { return filepath.Join(c.Paths.Root, "Silver", "Inbound") }

// EnsureDirectories creates the directory tree the pipeline relies on.
// Missing directories are a recoverable bootstrap condition, not a failure.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.AdminDir(),
		c.BronzeInboundDir(),
		c.BronzeErrorDir(),
		c.BronzeArchiveDir(),
		c.SilverInboundDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

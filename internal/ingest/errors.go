package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigMissing marks a configuration table that was absent and
	// bootstrapped with an empty body. Recoverable.
	ErrConfigMissing = errors.New("configuration missing")
	// ErrConfigInvalidHeader marks a configuration table whose header does
	// not match the canonical definition. Fatal for the run.
	ErrConfigInvalidHeader = errors.New("configuration header invalid")
	// ErrNoConfigForSource marks a source folder with no FileConfiguration
	// row. The folder is skipped, siblings continue.
	ErrNoConfigForSource = errors.New("no configuration for source")
	// ErrAmbiguousConfig marks a source with more than one FileConfiguration
	// row. The folder is skipped; picking a row silently is never allowed.
	ErrAmbiguousConfig = errors.New("ambiguous configuration for source")
	// ErrNoColumnConfig marks a ConfigurationFileID with zero column rows.
	ErrNoColumnConfig = errors.New("no column configuration")
	// ErrSchemaMismatch marks an inbound file whose header failed validation.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrTransformation marks a transformation expression failure. Aborts the
	// promote step for the whole folder.
	ErrTransformation = errors.New("transformation error")
	// ErrIO marks a file read/write/move failure attributed to one file or
	// folder. Siblings continue.
	ErrIO = errors.New("io error")
	// ErrLogFileInvalid marks an audit log file that cannot record entries.
	// The run still does its work; failures are echoed to stderr only.
	ErrLogFileInvalid = errors.New("log file invalid")
	// ErrLocked marks a root already owned by another running invocation.
	ErrLocked = errors.New("run already in progress")
)

// Wrap tags an error with one of the sentinel markers above while adding
// unit and operation context. Callers branch on errors.Is, not on text.
func Wrap(marker error, unit, operation, message string, err error) error {
	detail := buildDetail(unit, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FolderFatal reports whether err should stop processing of the folder it
// occurred in. Per-file failures are not folder fatal; configuration
// resolution failures and expression failures are.
func FolderFatal(err error) bool {
	return errors.Is(err, ErrNoConfigForSource) ||
		errors.Is(err, ErrAmbiguousConfig) ||
		errors.Is(err, ErrNoColumnConfig) ||
		errors.Is(err, ErrTransformation)
}

// RunFatal reports whether err should abort the entire run.
func RunFatal(err error) bool {
	return errors.Is(err, ErrConfigInvalidHeader) || errors.Is(err, ErrLocked)
}

func buildDetail(unit, operation, message string) string {
	parts := make([]string, 0, 3)
	if unit = strings.TrimSpace(unit); unit != "" {
		parts = append(parts, unit)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "ingestion failure"
	}
	return strings.Join(parts, ": ")
}

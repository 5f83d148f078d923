package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.Root) == "" {
		return fmt.Errorf("paths.root is required")
	}
	for name, value := range map[string]string{
		"paths.file_configuration":   c.Paths.FileConfiguration,
		"paths.column_configuration": c.Paths.ColumnConfiguration,
	} {
		if strings.ContainsAny(value, `/\`) {
			return fmt.Errorf("%s must be a bare file name, got %q", name, value)
		}
	}
	switch c.Pipeline.Destination {
	case DestinationArchive, DestinationPromote:
	default:
		return fmt.Errorf("pipeline.destination must be %q or %q, got %q",
			DestinationArchive, DestinationPromote, c.Pipeline.Destination)
	}
	if utf8.RuneCountInString(c.Pipeline.DefaultDelimiter) != 1 {
		return fmt.Errorf("pipeline.default_delimiter must be a single character, got %q", c.Pipeline.DefaultDelimiter)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

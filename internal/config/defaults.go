package config

const (
	defaultRoot                = "~/.local/share/ingot"
	defaultFileConfiguration   = "ConfigurationFile.txt"
	defaultColumnConfiguration = "ConfigurationColumn.txt"
	defaultDestination         = DestinationArchive
	defaultDelimiter           = "|"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Destination values accepted by pipeline.destination.
const (
	DestinationArchive = "archive"
	DestinationPromote = "promote"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Root:                defaultRoot,
			FileConfiguration:   defaultFileConfiguration,
			ColumnConfiguration: defaultColumnConfiguration,
		},
		Pipeline: Pipeline{
			Destination:      defaultDestination,
			DefaultDelimiter: defaultDelimiter,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

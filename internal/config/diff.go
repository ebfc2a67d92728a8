package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; substrate
// connection settings require a restart and are not diffed here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	IngestChanged bool
	NewIngest     IngestConfig

	QueryChanged bool
	NewQuery     QueryConfig

	WalkChanged bool
	NewWalk     WalkConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Ingest != new.Ingest {
		d.IngestChanged = true
		d.NewIngest = new.Ingest
	}

	if old.Query != new.Query {
		d.QueryChanged = true
		d.NewQuery = new.Query
	}

	if old.Walk != new.Walk {
		d.WalkChanged = true
		d.NewWalk = new.Walk
	}

	return d
}

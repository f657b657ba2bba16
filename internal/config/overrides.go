package config

// Overrides conveys CLI-flag values that take precedence over file and
// environment sources. A nil field means "not specified" — only non-nil
// fields are applied.
type Overrides struct {
	DatabasePath        *string
	DatabaseMaxConns     *int
	BackupDir           *string
	BackupIntervalHours *int
	ScheduledBackups    *bool
	FileLogging         *bool
	LogDir              *string
	LogMaxFiles         *int
	LogLevel            *string
	ServerAddr          *string
	HiveURL             *string
	TracingExporter     *string
}

func applyOverrides(cfg *Config, meta *Metadata, overrides Overrides) {
	if overrides.DatabasePath != nil {
		cfg.Database.Path = *overrides.DatabasePath
		meta.note("database.path", SourceOverride)
	}
	if overrides.DatabaseMaxConns != nil {
		cfg.Database.MaxConnections = *overrides.DatabaseMaxConns
		meta.note("database.max_connections", SourceOverride)
	}
	if overrides.BackupDir != nil {
		cfg.Backup.Dir = *overrides.BackupDir
		meta.note("backup.dir", SourceOverride)
	}
	if overrides.BackupIntervalHours != nil {
		cfg.Backup.IntervalHours = *overrides.BackupIntervalHours
		meta.note("backup.interval_hours", SourceOverride)
	}
	if overrides.ScheduledBackups != nil {
		cfg.Backup.ScheduledEnabled = *overrides.ScheduledBackups
		meta.note("backup.scheduled_enabled", SourceOverride)
	}
	if overrides.FileLogging != nil {
		cfg.Logging.FileEnabled = *overrides.FileLogging
		meta.note("logging.file_enabled", SourceOverride)
	}
	if overrides.LogDir != nil {
		cfg.Logging.Dir = *overrides.LogDir
		meta.note("logging.dir", SourceOverride)
	}
	if overrides.LogMaxFiles != nil {
		cfg.Logging.MaxFiles = *overrides.LogMaxFiles
		meta.note("logging.max_files", SourceOverride)
	}
	if overrides.LogLevel != nil {
		cfg.Logging.Level = *overrides.LogLevel
		meta.note("logging.level", SourceOverride)
	}
	if overrides.ServerAddr != nil {
		cfg.Server.Addr = *overrides.ServerAddr
		meta.note("server.addr", SourceOverride)
	}
	if overrides.HiveURL != nil {
		cfg.Sync.HiveURL = *overrides.HiveURL
		meta.note("sync.hive_url", SourceOverride)
	}
	if overrides.TracingExporter != nil {
		cfg.Tracing.Exporter = *overrides.TracingExporter
		meta.note("tracing.exporter", SourceOverride)
	}
}

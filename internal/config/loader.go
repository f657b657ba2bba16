package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func defaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Load builds the final Config by layering, in increasing precedence:
// Base() defaults, a YAML file (if present), the VK_* environment
// variables from spec §6, then caller-supplied Overrides. It mirrors the
// teacher's "base + apply_overrides" builder idiom rather than mutating a
// package-global config object.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: defaultEnvLookup}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Base()
	meta := newMetadata()
	meta.loadedAt = time.Now()

	path := options.configPath
	if path == "" {
		if p, ok := options.envLookup(EnvConfigPath); ok && p != "" {
			path = p
		}
	}
	if path != "" {
		if err := applyFile(&cfg, &meta, path); err != nil {
			return Config{}, Metadata{}, err
		}
	}

	applyEnv(&cfg, &meta, options.envLookup)
	applyOverrides(&cfg, &meta, options.overrides)

	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Backup.Dir = expandHome(cfg.Backup.Dir)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)

	return cfg, meta, nil
}

func applyFile(cfg *Config, meta *Metadata, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config file %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		meta.note(key, SourceFile)
	}
	return nil
}

func applyEnv(cfg *Config, meta *Metadata, lookup EnvLookup) {
	if lookup == nil {
		lookup = defaultEnvLookup
	}

	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		cfg.Database.Path = v
		meta.note("database.path", SourceEnv)
	}
	if v, ok := lookup(EnvPGMaxConnections); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxConnections = n
			meta.note("database.max_connections", SourceEnv)
		}
	}
	if v, ok := lookup(EnvBackupDir); ok && v != "" {
		cfg.Backup.Dir = v
		meta.note("backup.dir", SourceEnv)
	}
	if v, ok := lookup(EnvBackupIntervalHours); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backup.IntervalHours = n
			meta.note("backup.interval_hours", SourceEnv)
		}
	}
	if v, ok := lookup(EnvScheduledBackups); ok && v != "" {
		cfg.Backup.ScheduledEnabled = !isFalsy(v)
		meta.note("backup.scheduled_enabled", SourceEnv)
	}
	if v, ok := lookup(EnvFileLogging); ok && v != "" {
		cfg.Logging.FileEnabled = !isFalsy(v)
		meta.note("logging.file_enabled", SourceEnv)
	}
	if v, ok := lookup(EnvLogDir); ok && v != "" {
		cfg.Logging.Dir = v
		meta.note("logging.dir", SourceEnv)
	}
	if v, ok := lookup(EnvLogMaxFiles); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Logging.MaxFiles = n
			meta.note("logging.max_files", SourceEnv)
		}
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
		meta.note("logging.level", SourceEnv)
	}
	if v, ok := lookup(EnvServerAddr); ok && v != "" {
		cfg.Server.Addr = v
		meta.note("server.addr", SourceEnv)
	}
	if v, ok := lookup(EnvHiveURL); ok && v != "" {
		cfg.Sync.HiveURL = v
		meta.note("sync.hive_url", SourceEnv)
	}
	if v, ok := lookup(EnvTracingExporter); ok && v != "" {
		cfg.Tracing.Exporter = v
		meta.note("tracing.exporter", SourceEnv)
	}
	if v, ok := lookup(EnvTracingEndpoint); ok && v != "" {
		cfg.Tracing.Endpoint = v
		meta.note("tracing.endpoint", SourceEnv)
	}
}

func isFalsy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off", "":
		return true
	default:
		return false
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}

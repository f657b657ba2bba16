package config

import "time"

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Config is the full node configuration surface: compiled-in defaults,
// layered with a YAML file, then environment variables, then CLI-flag
// overrides — in that order of increasing precedence.
type Config struct {
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Backup     BackupConfig     `json:"backup" yaml:"backup"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Git        GitConfig        `json:"git" yaml:"git"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Approval   ApprovalConfig   `json:"approval" yaml:"approval"`
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor"`
	Sync       SyncConfig       `json:"sync" yaml:"sync"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
	Cleanup    CleanupConfig    `json:"cleanup" yaml:"cleanup"`
}

type DatabaseConfig struct {
	Path           string        `json:"path" yaml:"path"` // VK_DATABASE_PATH
	MaxConnections int           `json:"max_connections" yaml:"max_connections"` // VK_PG_MAX_CONNECTIONS
	BusyTimeout    time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
}

type BackupConfig struct {
	Dir                string `json:"dir" yaml:"dir"` // VK_BACKUP_DIR
	IntervalHours      int    `json:"interval_hours" yaml:"interval_hours"`
	ScheduledEnabled   bool   `json:"scheduled_enabled" yaml:"scheduled_enabled"` // VK_SCHEDULED_BACKUPS
	RetainScheduled    int    `json:"retain_scheduled" yaml:"retain_scheduled"`
	RetainPreMigration int    `json:"retain_pre_migration" yaml:"retain_pre_migration"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	FileEnabled bool   `json:"file_enabled" yaml:"file_enabled"` // VK_FILE_LOGGING
	Dir         string `json:"dir" yaml:"dir"`                   // VK_LOG_DIR
	MaxFiles    int    `json:"max_files" yaml:"max_files"`       // VK_LOG_MAX_FILES
}

type ServerConfig struct {
	Addr               string        `json:"addr" yaml:"addr"`
	WSPingIntervalList time.Duration `json:"ws_ping_interval_list" yaml:"ws_ping_interval_list"`
	WSPingIntervalExec time.Duration `json:"ws_ping_interval_exec" yaml:"ws_ping_interval_exec"`
	WSPongTimeoutList  time.Duration `json:"ws_pong_timeout_list" yaml:"ws_pong_timeout_list"`
	WSPongTimeoutExec  time.Duration `json:"ws_pong_timeout_exec" yaml:"ws_pong_timeout_exec"`
}

type GitConfig struct {
	BranchPrefix string `json:"branch_prefix" yaml:"branch_prefix"` // default "vk"
	WorktreeRoot string `json:"worktree_root" yaml:"worktree_root"`
}

type RetryConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay    time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	JitterFactor float64       `json:"jitter_factor" yaml:"jitter_factor"`
}

type ApprovalConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type SupervisorConfig struct {
	KillBudget time.Duration `json:"kill_budget" yaml:"kill_budget"`
}

type SyncConfig struct {
	HiveURL           string        `json:"hive_url" yaml:"hive_url"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	DrainInterval     time.Duration `json:"drain_interval" yaml:"drain_interval"`
	BatchSize         int           `json:"batch_size" yaml:"batch_size"`
}

// CleanupConfig tunes the scheduled cleanup workers (spec §4.M).
type CleanupConfig struct {
	LogRetention          time.Duration `json:"log_retention" yaml:"log_retention"`
	LogPurgeInterval      time.Duration `json:"log_purge_interval" yaml:"log_purge_interval"`
	StaleProjectThreshold time.Duration `json:"stale_project_threshold" yaml:"stale_project_threshold"`
	StaleProjectInterval  time.Duration `json:"stale_project_interval" yaml:"stale_project_interval"`
}

type TracingConfig struct {
	Exporter    string `json:"exporter" yaml:"exporter"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// Base returns the compiled-in defaults named throughout spec §4.
func Base() Config {
	return Config{
		Database: DatabaseConfig{
			Path:           "~/.vk-swarm/db.sqlite3",
			MaxConnections: 20,
			BusyTimeout:    30 * time.Second,
		},
		Backup: BackupConfig{
			Dir:                "~/.vk-swarm/backups",
			IntervalHours:      4,
			ScheduledEnabled:   true,
			RetainScheduled:    10,
			RetainPreMigration: 5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			MaxFiles: 14,
		},
		Server: ServerConfig{
			Addr:               ":8080",
			WSPingIntervalList: 30 * time.Second,
			WSPingIntervalExec: 15 * time.Second,
			WSPongTimeoutList:  90 * time.Second,
			WSPongTimeoutExec:  60 * time.Second,
		},
		Git: GitConfig{
			BranchPrefix: "vk",
		},
		Retry: RetryConfig{
			MaxRetries:   5,
			BaseDelay:    50 * time.Millisecond,
			MaxDelay:     2000 * time.Millisecond,
			JitterFactor: 0.2,
		},
		Approval: ApprovalConfig{
			Timeout: 3600 * time.Second,
		},
		Supervisor: SupervisorConfig{
			KillBudget: 10 * time.Second,
		},
		Sync: SyncConfig{
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  60 * time.Second,
			DrainInterval:     5 * time.Second,
			BatchSize:         200,
		},
		Cleanup: CleanupConfig{
			LogRetention:          30 * 24 * time.Hour,
			LogPurgeInterval:      1 * time.Hour,
			StaleProjectThreshold: 24 * time.Hour,
			StaleProjectInterval:  5 * time.Minute,
		},
	}
}

// Metadata records provenance per configuration field: whether a value came
// from the file, the environment, or an override.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

func newMetadata() Metadata {
	return Metadata{sources: map[string]ValueSource{}}
}

func (m *Metadata) note(field string, src ValueSource) {
	if m.sources == nil {
		m.sources = map[string]ValueSource{}
	}
	m.sources[field] = src
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// Source returns the origin for the given configuration field, defaulting
// to SourceDefault if the field was never recorded.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

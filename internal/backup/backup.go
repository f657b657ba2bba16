// Package backup implements the database backup service (spec §4.C):
// a best-effort pre-migration snapshot on startup plus a scheduled
// snapshot job, each with its own retention window.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind discriminates a snapshot's retention bucket (spec §4.C: "backup
// retention is separately configured for scheduled vs pre-migration
// snapshots").
type Kind string

const (
	KindScheduled    Kind = "scheduled"
	KindPreMigration Kind = "premigration"
)

// DefaultRetainScheduled and DefaultRetainPreMigration are the spec §4.C
// default retention counts ("keep last 10 scheduled / last 5
// pre-migration").
const (
	DefaultRetainScheduled    = 10
	DefaultRetainPreMigration = 5
)

// Manager snapshots the SQLite database file to a backup directory,
// grounded on the teacher's internal/infra/backup.Manager (file-copy
// snapshot + timestamp-based id + directory-walk retention trim),
// adapted from per-file edit-undo backups to whole-database-file
// migration/schedule snapshots.
type Manager struct {
	dbPath             string
	backupDir          string
	retainScheduled    int
	retainPreMigration int
	logger             *slog.Logger
}

// NewManager builds a Manager. retainScheduled/retainPreMigration <= 0
// fall back to the spec §4.C defaults.
func NewManager(dbPath, backupDir string, retainScheduled, retainPreMigration int, logger *slog.Logger) (*Manager, error) {
	if retainScheduled <= 0 {
		retainScheduled = DefaultRetainScheduled
	}
	if retainPreMigration <= 0 {
		retainPreMigration = DefaultRetainPreMigration
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{
		dbPath:             dbPath,
		backupDir:          backupDir,
		retainScheduled:    retainScheduled,
		retainPreMigration: retainPreMigration,
		logger:             logger,
	}, nil
}

// snapshotName embeds the kind and a sortable timestamp so ListSnapshots
// can order and retention-trim per kind without separate metadata files.
func snapshotName(kind Kind, at time.Time) string {
	return fmt.Sprintf("%s-%s.sqlite3", at.UTC().Format("20060102-150405.000000000"), kind)
}

// Snapshot copies the current database file to the backup directory. A
// missing database file (first-ever start) is a no-op, not an error.
func (m *Manager) Snapshot(kind Kind) (string, error) {
	src, err := os.Open(m.dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open database for snapshot: %w", err)
	}
	defer src.Close()

	dest := filepath.Join(m.backupDir, snapshotName(kind, time.Now()))
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("copy snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("finalize snapshot: %w", err)
	}
	return dest, nil
}

// PreMigrationSnapshot takes a best-effort pre-migration snapshot: a
// failure is logged, never returned, so it can never block startup
// (spec §4.C: "best-effort; log on failure, do not fail start").
func (m *Manager) PreMigrationSnapshot() {
	path, err := m.Snapshot(KindPreMigration)
	if err != nil {
		m.logger.Error("pre-migration backup failed", "error", err)
		return
	}
	if path != "" {
		m.logger.Info("pre-migration backup taken", "path", path)
	}
}

// TrimRetention removes snapshots of kind beyond the configured
// retention count, oldest first.
func (m *Manager) TrimRetention(kind Kind) error {
	snapshots, err := m.listSnapshots(kind)
	if err != nil {
		return err
	}
	limit := m.retainScheduled
	if kind == KindPreMigration {
		limit = m.retainPreMigration
	}
	if len(snapshots) <= limit {
		return nil
	}
	for _, path := range snapshots[:len(snapshots)-limit] {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("trim snapshot %s: %w", path, err)
		}
	}
	return nil
}

// listSnapshots returns kind's snapshot paths, oldest first (the
// timestamp-prefixed filename sorts chronologically).
func (m *Manager) listSnapshots(kind Kind) ([]string, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	suffix := "-" + string(kind) + ".sqlite3"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(m.backupDir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// RunScheduled starts a cron job that takes a scheduled snapshot every
// intervalHours and trims that bucket's retention window afterward. A
// non-positive intervalHours returns at once without scheduling anything.
// The first snapshot is taken one full interval after start, not at start.
// It blocks until ctx is cancelled, so callers run it via internal/async.Go
// like every other background worker.
func (m *Manager) RunScheduled(ctx context.Context, intervalHours int, logger *slog.Logger) {
	if intervalHours <= 0 {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %dh", intervalHours), func() {
		path, err := m.Snapshot(KindScheduled)
		if err != nil {
			m.logger.Error("scheduled backup failed", "error", err)
			return
		}
		if path != "" {
			m.logger.Info("scheduled backup taken", "path", path)
		}
		if err := m.TrimRetention(KindScheduled); err != nil {
			m.logger.Error("scheduled backup retention trim failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("schedule backup job failed", "error", err)
		return
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

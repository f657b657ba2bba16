// Command migrate-logs backfills normalized ("clean", ANSI-stripped)
// log entries from each execution's raw stdout rows (spec §6:
// CLI tools; original_source's
// crates/server/src/bin/migrate_logs.rs migrated a legacy JSONL table
// into row-level log_entries — this module already stores log entries
// at row granularity, so the migration this tool performs is this
// domain's equivalent one-time backfill: deriving the OutputNormalized
// rows the live normalizer produces going forward for executions that
// predate it).
//
// The migration is idempotent: an execution that already has
// normalized entries is skipped unless --full is given, which deletes
// its existing normalized rows and re-derives them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/davidrudduck/vk-swarm-sub003/internal/config"
	"github.com/davidrudduck/vk-swarm-sub003/internal/store"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

type migrationResult struct {
	migrated int
	skipped  int
	errors   int
}

func main() {
	var execute, full, verbose bool
	var executionID string

	cmd := &cobra.Command{
		Use:   "migrate-logs",
		Short: "Backfill normalized log entries for executions that predate the live normalizer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), execute, full, verbose, executionID)
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "actually migrate logs (default is dry-run)")
	cmd.Flags().BoolVar(&full, "full", false, "delete existing normalized entries and re-derive everything")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show per-execution progress")
	cmd.Flags().StringVar(&executionID, "execution-id", "", "migrate a single execution")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, execute, full, verbose bool, executionID string) error {
	cfg, _, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("=== Log Normalization Migration Tool ===")
	fmt.Println()
	switch {
	case !execute:
		fmt.Println(yellow("Running in DRY-RUN mode. No changes will be made."))
	case full:
		fmt.Println(yellow("Running in FULL MIGRATION mode. Existing normalized entries will be deleted and re-derived."))
	default:
		fmt.Println("Running in INCREMENTAL mode. Already-migrated executions will be skipped.")
	}
	fmt.Println()

	pool, err := store.Open(ctx, store.PoolConfig{
		Path:        cfg.Database.Path,
		MaxConns:    cfg.Database.MaxConnections,
		BusyTimeout: int(cfg.Database.BusyTimeout.Milliseconds()),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.DB.Close()
	db := pool.DB.DB

	var executionIDs []string
	if executionID != "" {
		executionIDs = []string{executionID}
	} else {
		executionIDs, err = executionsWithRawLogs(ctx, db)
		if err != nil {
			return fmt.Errorf("search executions: %w", err)
		}
	}

	fmt.Printf("Found %d execution(s) to consider.\n", len(executionIDs))
	fmt.Println()
	if len(executionIDs) == 0 {
		fmt.Println(green("Nothing to migrate. Database is up to date!"))
		return nil
	}

	if !execute {
		var total migrationResult
		for _, id := range executionIDs {
			r, err := migrateExecution(ctx, db, id, full, true)
			if err != nil {
				return err
			}
			total.migrated += r.migrated
			total.skipped += r.skipped
			total.errors += r.errors
			if verbose {
				fmt.Printf("  %s: would_migrate=%d would_skip=%d errors=%d\n", id, r.migrated, r.skipped, r.errors)
			}
		}
		fmt.Println()
		fmt.Println("Dry-run summary:")
		fmt.Printf("  Executions:     %d\n", len(executionIDs))
		fmt.Printf("  Would migrate:  %d\n", total.migrated)
		fmt.Printf("  Would skip:     %d\n", total.skipped)
		fmt.Printf("  Errors:         %d\n", total.errors)
		fmt.Println()
		fmt.Println("Run with --execute to apply these changes.")
		return nil
	}

	if !confirm(fmt.Sprintf("Migrate logs for %d execution(s)? [y/N] ", len(executionIDs))) {
		fmt.Println("Aborted.")
		return nil
	}

	fmt.Println()
	fmt.Println("Migrating logs...")
	var total migrationResult
	for _, id := range executionIDs {
		r, err := migrateExecution(ctx, db, id, full, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s failed for %s: %v\n", red("error:"), id, err)
			total.errors++
			continue
		}
		total.migrated += r.migrated
		total.skipped += r.skipped
		total.errors += r.errors
		if verbose {
			fmt.Printf("  %s: migrated=%d skipped=%d\n", id, r.migrated, r.skipped)
		}
	}

	fmt.Println()
	fmt.Println("=== Migration Complete ===")
	fmt.Printf("Executions processed: %d\n", len(executionIDs))
	fmt.Printf("Entries migrated:     %d\n", total.migrated)
	fmt.Printf("Executions skipped:   %d\n", total.skipped)
	fmt.Printf("Errors:               %d\n", total.errors)
	if total.errors > 0 {
		fmt.Println(yellow("Some log entries could not be migrated. Check output above."))
	}
	return nil
}

// executionsWithRawLogs returns executions that have at least one
// stdout/stderr entry — the candidate set a normalization pass could
// apply to.
func executionsWithRawLogs(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT execution_id FROM log_entries
		WHERE output_type IN ('stdout', 'stderr')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// migrateExecution derives one OutputNormalized row per raw stdout
// entry for execution id, ANSI-stripped. dryRun reports what it would
// do without writing. An execution already holding normalized rows is
// skipped unless full is set, in which case those rows are deleted
// first so the backfill re-derives them from scratch.
func migrateExecution(ctx context.Context, db *sql.DB, executionID string, full, dryRun bool) (migrationResult, error) {
	var alreadyMigrated int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM log_entries WHERE execution_id = ? AND output_type = 'normalized'`,
		executionID).Scan(&alreadyMigrated); err != nil {
		return migrationResult{}, err
	}

	if alreadyMigrated > 0 && !full {
		return migrationResult{skipped: 1}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT content, timestamp FROM log_entries
		WHERE execution_id = ? AND output_type = 'stdout'
		ORDER BY id ASC`, executionID)
	if err != nil {
		return migrationResult{}, err
	}
	type entry struct {
		content   string
		timestamp any
	}
	var toInsert []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.content, &e.timestamp); err != nil {
			rows.Close()
			return migrationResult{}, err
		}
		toInsert = append(toInsert, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return migrationResult{}, err
	}

	if dryRun {
		return migrationResult{migrated: len(toInsert)}, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return migrationResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if full && alreadyMigrated > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM log_entries WHERE execution_id = ? AND output_type = 'normalized'`, executionID); err != nil {
			return migrationResult{}, err
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO log_entries (execution_id, output_type, content, timestamp) VALUES (?, 'normalized', ?, ?)`)
	if err != nil {
		return migrationResult{}, err
	}
	defer stmt.Close()

	for _, e := range toInsert {
		if _, err := stmt.ExecContext(ctx, executionID, stripANSI(e.content), e.timestamp); err != nil {
			return migrationResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return migrationResult{}, err
	}
	return migrationResult{migrated: len(toInsert)}, nil
}

func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println(prompt)
		fmt.Println(yellow("non-interactive session, skipping confirmation prompt — aborting"))
		return false
	}
	fmt.Print(prompt)
	var input string
	_, _ = fmt.Scanln(&input)
	return input == "y" || input == "Y"
}

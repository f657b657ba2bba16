// Command cleanup-duplicate-tasks finds and removes duplicate tasks
// left behind by an interrupted hive sync: a task with no attempts is
// a duplicate of another task sharing its title that DOES have
// attempts (spec §6: CLI tools; original_source's
// crates/server/src/bin/cleanup_duplicate_tasks.rs).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

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

type duplicateTask struct {
	ID           string
	Title        string
	SharedTaskID sql.NullString
}

func main() {
	var execute, verbose bool

	cmd := &cobra.Command{
		Use:   "cleanup-duplicate-tasks",
		Short: "Remove duplicate tasks left behind by an interrupted swarm sync",
		Long: `Duplicates are tasks that:
  1. Have the same title as another task
  2. Have no task attempts
  3. Another task with the same title DOES have attempts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), execute, verbose)
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "actually delete duplicates (default is dry-run)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show full task details")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, execute, verbose bool) error {
	cfg, _, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("=== Duplicate Tasks Cleanup Tool ===")
	fmt.Println()
	if !execute {
		fmt.Println(yellow("Running in DRY-RUN mode. No changes will be made."))
		fmt.Println("Use --execute to actually delete duplicates.")
		fmt.Println()
	}

	pool, err := store.Open(ctx, store.PoolConfig{
		Path:        cfg.Database.Path,
		MaxConns:    cfg.Database.MaxConnections,
		BusyTimeout: int(cfg.Database.BusyTimeout.Milliseconds()),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.DB.Close()

	duplicates, err := findDuplicatesByTitle(ctx, pool.DB.DB)
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}

	fmt.Printf("Found %d duplicate(s) to remove:\n", len(duplicates))
	for _, t := range duplicates {
		printTask(t, verbose)
	}
	fmt.Println()

	if len(duplicates) == 0 {
		fmt.Println(green("No duplicates found. Database is clean!"))
		return nil
	}

	if !execute {
		fmt.Println("Dry-run complete. Run with --execute to delete these tasks.")
		return nil
	}

	if !confirm(fmt.Sprintf("Are you sure you want to delete %d task(s)? [y/N] ", len(duplicates))) {
		fmt.Println("Aborted.")
		return nil
	}

	fmt.Println()
	fmt.Println("Deleting duplicate tasks...")
	deleted, errs := deleteTasks(ctx, pool.DB.DB, duplicates)

	fmt.Println()
	fmt.Println("=== Cleanup Complete ===")
	fmt.Printf("Duplicates found: %d\n", len(duplicates))
	fmt.Printf("Deleted: %d\n", deleted)
	fmt.Printf("Errors: %d\n", errs)
	return nil
}

func findDuplicatesByTitle(ctx context.Context, db *sql.DB) ([]duplicateTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.id, t.title, t.shared_task_id
		FROM tasks t
		WHERE NOT EXISTS (SELECT 1 FROM task_attempts ta WHERE ta.task_id = t.id)
		  AND EXISTS (
		      SELECT 1 FROM tasks t2
		      WHERE t2.title = t.title
		        AND t2.id != t.id
		        AND EXISTS (SELECT 1 FROM task_attempts ta2 WHERE ta2.task_id = t2.id)
		  )
		ORDER BY t.title, t.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duplicateTask
	for rows.Next() {
		var t duplicateTask
		if err := rows.Scan(&t.ID, &t.Title, &t.SharedTaskID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func deleteTasks(ctx context.Context, db *sql.DB, tasks []duplicateTask) (deleted, errs int) {
	for _, t := range tasks {
		if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "  %s failed to delete %s: %v\n", red("error:"), t.ID, err)
			errs++
			continue
		}
		deleted++
	}
	return deleted, errs
}

func printTask(t duplicateTask, verbose bool) {
	if verbose {
		fmt.Printf("  - ID: %s\n    Title: %s\n    SharedTaskID: %s\n", t.ID, t.Title, t.SharedTaskID.String)
		return
	}
	fmt.Printf("  - %s (%s)\n", t.Title, t.ID)
}

// confirm gates a destructive --execute run behind an interactive
// terminal: a non-interactive invocation (CI, a pipe) cannot answer a
// y/N prompt, so it is treated as a decline rather than blocking
// forever on stdin.
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

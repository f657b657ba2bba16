// Package worktree manages git worktrees for task attempts (spec §4.G):
// one worktree per attempt, at a deterministic path, reclaimed best-effort
// once the owning attempt reaches a terminal state.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// BranchPrefix namespaces every branch this manager creates.
const BranchPrefix = "vk"

// buildArtifactDirs are recursively purged by PurgeBuildArtifacts. Matches
// the well-known build-output directory names across the ecosystems this
// system's executors commonly target.
var buildArtifactDirs = map[string]struct{}{
	"node_modules": {},
	"target":       {},
	"dist":         {},
	"build":        {},
	".next":        {},
	"__pycache__":  {},
	".pytest_cache": {},
	"vendor":       {},
}

// Manager creates and reclaims worktrees rooted under a per-project
// directory, one worktree per live attempt.
type Manager struct {
	reposDir    string
	worktreeDir string
	logger      *slog.Logger
	mu          sync.Mutex
}

// New builds a Manager. reposDir is the parent checkout each project's
// bare/primary clone lives under; worktreeDir is where attempt worktrees
// are created.
func New(reposDir, worktreeDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{reposDir: reposDir, worktreeDir: worktreeDir, logger: logger}
}

// Slug returns the deterministic worktree path and branch name for
// (projectID, attemptID), per spec §4.G.
func Slug(projectID, attemptID string) (path string, branch string) {
	safeProject := sanitize(projectID)
	safeAttempt := sanitize(attemptID)
	return filepath.Join(safeProject, safeAttempt), fmt.Sprintf("%s/%s-%s", BranchPrefix, safeProject, safeAttempt)
}

// Create adds a worktree for attemptID under project's repo, on a new
// branch based at baseBranch. Returns the absolute worktree path.
func (m *Manager) Create(ctx context.Context, projectRepoDir, projectID, attemptID, baseBranch string) (string, string, error) {
	rel, branch := Slug(projectID, attemptID)
	worktreePath := filepath.Join(m.worktreeDir, rel)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return "", "", fmt.Errorf("create worktree parent dir: %w", err)
	}
	if err := m.git(ctx, projectRepoDir, "worktree", "add", worktreePath, "-b", branch, baseBranch); err != nil {
		return "", "", err
	}
	return worktreePath, branch, nil
}

// EnsureMainBranch makes repoDir's HEAD a real branch if the repository
// has no commits yet (an empty repo has a detached/unborn HEAD that
// `worktree add -b` cannot branch from), per spec §4.G.
func (m *Manager) EnsureMainBranch(ctx context.Context, repoDir, mainBranch string) error {
	if mainBranch == "" {
		mainBranch = "main"
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git(ctx, repoDir, "rev-parse", "--verify", "HEAD"); err == nil {
		return nil
	}
	if err := m.git(ctx, repoDir, "symbolic-ref", "HEAD", "refs/heads/"+mainBranch); err != nil {
		return err
	}
	if err := m.git(ctx, repoDir, "commit", "--allow-empty", "-m", "init"); err != nil {
		return err
	}
	return nil
}

// Cleanup best-effort reclaims a worktree: a missing directory is
// treated as already-clean success; a locked worktree is logged and
// skipped rather than failing the caller (spec §4.G: "cleanup is
// best-effort").
func (m *Manager) Cleanup(ctx context.Context, projectRepoDir, worktreePath string, deleteBranch bool, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}

	if err := m.git(ctx, projectRepoDir, "worktree", "remove", "--force", worktreePath); err != nil {
		if isLockedErr(err) {
			m.logger.Warn("worktree locked, skipping removal", "path", worktreePath, "error", err)
			return nil
		}
		return err
	}
	if deleteBranch && branch != "" {
		if err := m.git(ctx, projectRepoDir, "branch", "-D", branch); err != nil {
			m.logger.Warn("branch delete failed during cleanup", "branch", branch, "error", err)
		}
	}
	return nil
}

// PurgeBuildArtifacts recursively removes well-known build-output
// directories (node_modules, target, dist, ...) beneath root, to keep
// worktrees from accumulating disk usage across many attempts.
func PurgeBuildArtifacts(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := buildArtifactDirs[d.Name()]; ok {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return rmErr
			}
			return filepath.SkipDir
		}
		return nil
	})
}

func (m *Manager) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func isLockedErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "lock")
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, " ", "-")
	if s == "" {
		return "unknown"
	}
	return s
}

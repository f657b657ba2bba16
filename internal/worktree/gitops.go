package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FileEntry is one entry returned by ListFiles.
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// ChangedFile is one row of a name-status diff summary.
type ChangedFile struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Branches lists local branch names in repoDir, most-recently-committed
// first.
func (m *Manager) Branches(ctx context.Context, repoDir string) ([]string, error) {
	out, err := m.gitOutput(ctx, repoDir, "for-each-ref", "--sort=-committerdate", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// ListFiles lists the working-tree entries directly under subPath (relative
// to repoDir). subPath == "" lists the repo root.
func (m *Manager) ListFiles(repoDir, subPath string) ([]FileEntry, error) {
	dir := filepath.Join(repoDir, filepath.Clean("/"+subPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, FileEntry{
			Name:  e.Name(),
			Path:  filepath.ToSlash(filepath.Join(subPath, e.Name())),
			IsDir: e.IsDir(),
			Size:  size,
		})
	}
	return out, nil
}

// ReadFile returns the working-tree contents of path (relative to repoDir).
func (m *Manager) ReadFile(repoDir, path string) ([]byte, error) {
	full := filepath.Join(repoDir, filepath.Clean("/"+path))
	return os.ReadFile(full)
}

// ChangedFiles summarizes the files changed by the commits on worktreePath's
// HEAD since its merge base with baseBranch, for the attempt-diff stream
// (spec §6); uncommitted working-tree changes are not included.
func (m *Manager) ChangedFiles(ctx context.Context, worktreePath, baseBranch string) ([]ChangedFile, error) {
	out, err := m.gitOutput(ctx, worktreePath, "diff", "--name-status", baseBranch+"...HEAD")
	if err != nil {
		return nil, err
	}
	var changes []ChangedFile
	for _, line := range splitNonEmptyLines(out) {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		changes = append(changes, ChangedFile{Status: fields[0], Path: fields[1]})
	}
	return changes, nil
}

// FileAt returns path's content at ref (e.g. a base branch), or ("", false)
// if the file does not exist at that ref (a newly added file).
func (m *Manager) FileAt(ctx context.Context, worktreePath, ref, path string) (string, bool, error) {
	out, err := m.gitOutput(ctx, worktreePath, "show", ref+":"+path)
	if err != nil {
		return "", false, nil
	}
	return out, true, nil
}

// Merge fast-forwards or merges branch into worktreePath's current branch.
func (m *Manager) Merge(ctx context.Context, worktreePath, branch string) error {
	return m.git(ctx, worktreePath, "merge", "--no-edit", branch)
}

// Rebase rebases worktreePath's current branch onto ontoBranch.
func (m *Manager) Rebase(ctx context.Context, worktreePath, ontoBranch string) error {
	return m.git(ctx, worktreePath, "rebase", ontoBranch)
}

// Push pushes worktreePath's current branch to its configured remote.
func (m *Manager) Push(ctx context.Context, worktreePath, branch string) error {
	return m.git(ctx, worktreePath, "push", "-u", "origin", branch)
}

// Stash stashes worktreePath's uncommitted changes, including untracked
// files, so a follow-up prompt can run against a clean tree.
func (m *Manager) Stash(ctx context.Context, worktreePath string) error {
	return m.git(ctx, worktreePath, "stash", "push", "--include-untracked")
}

// PopStash restores the most recent stash entry.
func (m *Manager) PopStash(ctx context.Context, worktreePath string) error {
	return m.git(ctx, worktreePath, "stash", "pop")
}

func (m *Manager) gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

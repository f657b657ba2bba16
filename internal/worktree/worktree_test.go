package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "init")
}

func TestSlugIsDeterministic(t *testing.T) {
	p1, b1 := Slug("proj-1", "attempt-1")
	p2, b2 := Slug("proj-1", "attempt-1")
	require.Equal(t, p1, p2)
	require.Equal(t, b1, b2)
	require.Contains(t, b1, BranchPrefix+"/")
}

func TestCreateAndCleanup(t *testing.T) {
	repoDir := t.TempDir()
	initRepo(t, repoDir)
	worktreeRoot := t.TempDir()

	m := New(repoDir, worktreeRoot, nil)
	ctx := context.Background()

	path, branch, err := m.Create(ctx, repoDir, "p1", "a1", "master")
	require.NoError(t, err)
	require.DirExists(t, path)

	require.NoError(t, m.Cleanup(ctx, repoDir, path, true, branch))
	require.NoDirExists(t, path)
}

func TestCleanupMissingDirSucceeds(t *testing.T) {
	repoDir := t.TempDir()
	initRepo(t, repoDir)
	m := New(repoDir, t.TempDir(), nil)

	err := m.Cleanup(context.Background(), repoDir, filepath.Join(repoDir, "does-not-exist"), false, "")
	require.NoError(t, err)
}

func TestPurgeBuildArtifactsRemovesKnownDirs(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "node_modules", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	keep := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(keep, 0o755))

	require.NoError(t, PurgeBuildArtifacts(root))

	require.NoDirExists(t, filepath.Join(root, "node_modules"))
	require.DirExists(t, keep)
}

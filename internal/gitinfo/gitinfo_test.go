package gitinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, repo *git.Repository, root, rel, content string, when time.Time) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o600))

	w, err := repo.Worktree()
	require.NoError(t, err)
	_, err = w.Add(rel)
	require.NoError(t, err)
	_, err = w.Commit("update "+rel, &git.CommitOptions{
		Author:    &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
		Committer: &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
	})
	require.NoError(t, err)
}

func TestLastModified(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 4, 2, 11, 0, 0, 0, time.UTC)
	commitFile(t, repo, root, "docs/intro.md", "# Intro", t1)
	commitFile(t, repo, root, "docs/setup.md", "# Setup", t2)

	r, err := Open(filepath.Join(root, "docs"))
	require.NoError(t, err)

	got, ok := r.LastModified(filepath.Join(root, "docs", "intro.md"))
	require.True(t, ok)
	require.True(t, got.Equal(t1), "got %s", got)

	got, ok = r.LastModified(filepath.Join(root, "docs", "setup.md"))
	require.True(t, ok)
	require.True(t, got.Equal(t2))

	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "draft.md"), []byte("x"), 0o600))
	_, ok = r.LastModified(filepath.Join(root, "docs", "draft.md"))
	require.False(t, ok)
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.ErrorIs(t, err, ErrNotRepository)
}

// Package gitinfo looks up per-file history from the git repository that
// contains the content root.
package gitinfo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned by Open when root is not inside a work tree.
var ErrNotRepository = errors.New("not inside a git repository")

var errStop = errors.New("stop iteration")

// Repo answers last-modified queries for files in one work tree. Results are
// cached per HEAD commit.
type Repo struct {
	repo    *git.Repository
	workdir string

	mu    sync.Mutex
	head  plumbing.Hash
	cache map[string]time.Time
}

// Open finds the repository containing root.
func Open(root string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	workdir := wt.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(workdir); err == nil {
		workdir = resolved
	}
	return &Repo{repo: repo, workdir: workdir, cache: map[string]time.Time{}}, nil
}

// Workdir is the root of the work tree.
func (r *Repo) Workdir() string { return r.workdir }

// LastModified returns the committer time of the newest commit reachable from
// HEAD that touched absPath. ok is false for untracked files and repositories
// without commits.
func (r *Repo) LastModified(absPath string) (time.Time, bool) {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}
	rel, err := filepath.Rel(r.workdir, absPath)
	if err != nil {
		return time.Time{}, false
	}
	rel = filepath.ToSlash(rel)

	ref, err := r.repo.Head()
	if err != nil {
		return time.Time{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ref.Hash() != r.head {
		r.head = ref.Hash()
		r.cache = map[string]time.Time{}
	}
	if t, ok := r.cache[rel]; ok {
		return t, !t.IsZero()
	}

	t := r.lookup(ref.Hash(), rel)
	r.cache[rel] = t
	return t, !t.IsZero()
}

func (r *Repo) lookup(from plumbing.Hash, rel string) time.Time {
	iter, err := r.repo.Log(&git.LogOptions{From: from, FileName: &rel})
	if err != nil {
		return time.Time{}
	}
	defer iter.Close()

	var found time.Time
	err = iter.ForEach(func(c *object.Commit) error {
		found = c.Committer.When.UTC()
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return time.Time{}
	}
	return found
}

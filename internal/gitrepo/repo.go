// Package gitrepo is the shared Git access layer every other workspace
// engine package sits on top of. It generalizes the donor's GitVCS
// (internal/vcs/git.go) from "shell out to the git binary" to "read and
// write the object database directly", because the Commit Graph Builder
// and Merge Kernel need to walk parent chains and build trees in memory —
// something a CLI wrapper cannot do without a process spawn per commit.
package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// Repo wraps a go-git repository and the worktree root it was opened
// from. Unlike the donor's GitVCS, which only ever held a root path and
// shelled out for every operation, Repo keeps the object store and
// worktree filesystem so callers can walk commits/trees without a
// subprocess per lookup.
type Repo struct {
	git  *git.Repository
	root string
}

// Open discovers the repository root by walking up from path looking for
// a .git entry (file or directory, to tolerate worktrees and submodules,
// mirroring the donor's isDirectoryOrFile check in detect.go), then opens
// it against the real filesystem.
func Open(path string) (*Repo, error) {
	root, err := findRoot(path)
	if err != nil {
		return nil, err
	}

	fs := osfs.New(root)
	dotGit, err := fs.Chroot(".git")
	if err != nil {
		return nil, &ObjectError{Op: "open", Err: err}
	}
	storer := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())

	r, err := git.Open(storer, fs)
	if err != nil {
		return nil, &ObjectError{Op: "open", Err: err}
	}
	return &Repo{git: r, root: root}, nil
}

// OpenInMemory wraps an existing in-memory repository (storage/memory +
// go-billy memfs). The Merge Kernel's dry-run path (OnWorkspaceMergeConflict:
// Abort) and the package's tests use this so no commit reaches the real
// .git until the caller chooses to flush it — grounded on the
// Session{Filesystem: memfs.New(), Repo: *git.Repository} pattern in the
// retrieval pack's go-git sample (other_examples: backend-git_engine.go).
func OpenInMemory(g *git.Repository, worktreeRoot string) *Repo {
	return &Repo{git: g, root: worktreeRoot}
}

// NewInMemory creates a fresh, empty in-memory repository — the backing
// store used for the Merge Kernel's dry-run simulations and for unit
// tests that don't need a real .git directory on disk.
func NewInMemory() (*Repo, error) {
	fs := memfs.New()
	storer := memory.NewStorage()
	r, err := git.Init(storer, fs)
	if err != nil {
		return nil, &ObjectError{Op: "init", Err: err}
	}
	return &Repo{git: r, root: ""}, nil
}

// Root returns the worktree root directory ("" for an in-memory repo).
func (r *Repo) Root() string { return r.root }

// Raw exposes the underlying go-git repository for call sites that need
// an operation this package doesn't wrap yet. This is the direct
// counterpart of the donor's Command(ctx, args...) escape hatch.
func (r *Repo) Raw() *git.Repository { return r.git }

// CommitObject loads a commit by hash.
func (r *Repo) CommitObject(h plumbing.Hash) (*object.Commit, error) {
	c, err := r.git.CommitObject(h)
	if err != nil {
		return nil, &ObjectError{Op: "commit-object", OID: h, Err: err}
	}
	return c, nil
}

// TreeObject loads a tree by hash.
func (r *Repo) TreeObject(h plumbing.Hash) (*object.Tree, error) {
	t, err := r.git.TreeObject(h)
	if err != nil {
		return nil, &ObjectError{Op: "tree-object", OID: h, Err: err}
	}
	return t, nil
}

// BlobObject loads a blob by hash.
func (r *Repo) BlobObject(h plumbing.Hash) (*object.Blob, error) {
	b, err := r.git.BlobObject(h)
	if err != nil {
		return nil, &ObjectError{Op: "blob-object", OID: h, Err: err}
	}
	return b, nil
}

// findRoot walks up from path looking for a .git entry, mirroring
// GetGitRoot in the donor's detect.go (a .git path can be a file for
// worktrees, so os.Stat success is sufficient — no IsDir check).
func findRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	current := abs
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("gitrepo: no .git found above %s", abs)
		}
		current = parent
	}
}

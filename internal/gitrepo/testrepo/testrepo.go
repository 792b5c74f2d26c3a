// Package testrepo builds hermetic go-git repositories for tests, so
// package tests never depend on an external git binary being on PATH —
// unlike the donor's TestHelper (internal/vcs/conflict_resolver_test.go),
// which skips whole suites when "git"/"jj" is missing, every repo here is
// backed by an in-memory go-git storer and always runs.
package testrepo

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// Sig is a fixed, deterministic signature so golden commit hashes stay
// stable across test runs.
func Sig(when time.Time) object.Signature {
	return object.Signature{Name: "Test User", Email: "test@example.com", When: when}
}

// NewMemoryRepo creates an empty in-memory repository for the test.
func NewMemoryRepo(t *testing.T) *gitrepo.Repo {
	t.Helper()
	r, err := gitrepo.NewInMemory()
	if err != nil {
		t.Fatalf("testrepo: new in-memory repo: %v", err)
	}
	return r
}

// File is one entry to materialize into a tree via Commit.
type File struct {
	Path    string
	Content string
}

// Commit writes files as a single flat-path tree (no subdirectories) and a
// commit on top of parents, returning the new commit hash. It exists so
// test setup reads as a short list of files instead of a handwritten
// tree/commit object graph at every call site.
func Commit(t *testing.T, r *gitrepo.Repo, msg string, when time.Time, parents []plumbing.Hash, files []File) plumbing.Hash {
	t.Helper()

	entries := make([]gitrepo.TreeEntry, 0, len(files))
	for _, f := range files {
		h, err := gitrepo.HashBlob([]byte(f.Content))
		if err != nil {
			t.Fatalf("testrepo: hash blob %s: %v", f.Path, err)
		}
		if _, err := r.WriteBlob([]byte(f.Content)); err != nil {
			t.Fatalf("testrepo: write blob %s: %v", f.Path, err)
		}
		entries = append(entries, gitrepo.TreeEntry{Name: f.Path, Mode: filemode.Regular, Hash: h})
	}

	tree, err := r.WriteTree(entries)
	if err != nil {
		t.Fatalf("testrepo: write tree: %v", err)
	}

	sig := Sig(when)
	h, err := r.WriteCommit(gitrepo.CommitSpec{
		Tree:      tree,
		Parents:   parents,
		Message:   msg,
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		t.Fatalf("testrepo: write commit %q: %v", msg, err)
	}
	return h
}

// SetBranch points a local branch ref at a commit, creating it if absent
// and moving it if it already exists.
func SetBranch(t *testing.T, r *gitrepo.Repo, name string, h plumbing.Hash) {
	t.Helper()
	ref := gitrepo.RefName("refs/heads/" + name)
	expected, _ := r.Resolve(ref)
	if err := r.RefTxn([]gitrepo.RefEdit{{Name: ref, Expected: expected, New: h}}); err != nil {
		t.Fatalf("testrepo: set branch %s: %v", name, err)
	}
}

// CommitObject is a small re-export so tests that only import testrepo
// can still assert on parent counts, messages, etc. without also
// importing go-git directly.
type CommitObject = object.Commit

package gitrepo

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitSpec describes a commit to be written by WriteCommit. It mirrors
// the donor's CommitOptions (internal/vcs/interface.go), trimmed to the
// fields the engine itself controls (no amend/sign flags — those belong
// to a front-end, not the engine).
type CommitSpec struct {
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Message   string
	Author    object.Signature
	Committer object.Signature
}

// WriteCommit stores a commit object built from spec and returns its OID.
// Used by the Merge Kernel to create the synthetic workspace commit.
func (r *Repo) WriteCommit(spec CommitSpec) (plumbing.Hash, error) {
	c := &object.Commit{
		Author:       spec.Author,
		Committer:    spec.Committer,
		Message:      spec.Message,
		TreeHash:     spec.Tree,
		ParentHashes: spec.Parents,
	}
	obj := r.git.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-commit", Err: err}
	}
	h, err := r.git.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-commit", Err: err}
	}
	return h, nil
}

// Parents loads a commit's parent commits in order.
func (r *Repo) Parents(c *object.Commit) ([]*object.Commit, error) {
	out := make([]*object.Commit, 0, len(c.ParentHashes))
	for _, h := range c.ParentHashes {
		p, err := r.CommitObject(h)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IsAncestor reports whether candidate is an ancestor of (or equal to)
// of_, walking first-parent-and-merge history breadth-first. Generalizes
// the donor's IsAncestor (internal/vcs/git.go, "git merge-base --is-ancestor")
// to operate over the in-memory object graph instead of a subprocess.
func (r *Repo) IsAncestor(candidate, of plumbing.Hash) (bool, error) {
	if candidate == of {
		return true, nil
	}
	seen := map[plumbing.Hash]bool{}
	queue := []plumbing.Hash{of}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if seen[h] {
			continue
		}
		seen[h] = true
		if h == candidate {
			return true, nil
		}
		c, err := r.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, c.ParentHashes...)
	}
	return false, nil
}

// MergeBase returns the best common ancestor of a and b, or plumbing.ZeroHash
// if none exists. Used by the Merge Kernel to three-way merge a stack and
// by the Workspace Projector for stack bases and the workspace LowerBound.
func (r *Repo) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := r.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	cb, err := r.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "merge-base", Err: err}
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, nil
	}
	return bases[0].Hash, nil
}

// Now returns the timestamp used for newly written commit signatures when
// the caller doesn't supply one. Factored out so tests can pin a fixed
// time instead of relying on wall-clock capture at commit-build time.
var Now = func() time.Time { return time.Now() }

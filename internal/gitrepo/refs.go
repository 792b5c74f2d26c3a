package gitrepo

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// RefName is a fully-qualified reference name, e.g. "refs/heads/main" or
// "refs/remotes/origin/main" (spec §3.1).
type RefName string

// IsWorkspace reports whether the ref is (or is under) the workspace
// namespace "refs/heads/gitbutler/workspace[/<name>]" (spec §6).
func (r RefName) IsWorkspace() bool {
	s := string(r)
	return s == "refs/heads/gitbutler/workspace" || strings.HasPrefix(s, "refs/heads/gitbutler/workspace/")
}

// IsRemoteTracking reports whether the ref lives under refs/remotes/.
func (r RefName) IsRemoteTracking() bool {
	return strings.HasPrefix(string(r), "refs/remotes/")
}

// IsLocalBranch reports whether the ref lives under refs/heads/.
func (r RefName) IsLocalBranch() bool {
	return strings.HasPrefix(string(r), "refs/heads/")
}

// ShortName strips the refs/heads/ or refs/remotes/ prefix.
func (r RefName) ShortName() string {
	s := string(r)
	for _, prefix := range []string{"refs/heads/", "refs/remotes/", "refs/"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

func (r RefName) plumbing() plumbing.ReferenceName { return plumbing.ReferenceName(r) }

// Resolve returns the commit hash a ref currently points to. Symbolic
// refs (HEAD) are followed.
func (r *Repo) Resolve(ref RefName) (plumbing.Hash, error) {
	resolved, err := r.git.Reference(ref.plumbing(), true)
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "resolve", Err: err}
	}
	return resolved.Hash(), nil
}

// Head returns the ref HEAD currently points to, and whether it is
// detached (pointing directly at a commit rather than a branch).
func (r *Repo) Head() (ref RefName, detached bool, hash plumbing.Hash, err error) {
	h, err := r.git.Head()
	if err != nil {
		return "", false, plumbing.ZeroHash, &ObjectError{Op: "head", Err: err}
	}
	if h.Type() == plumbing.HashReference {
		return "", true, h.Hash(), nil
	}
	return RefName(h.Name()), false, h.Hash(), nil
}

// ListBranches returns every local branch ref (refs/heads/*), excluding
// the workspace namespace, matching the donor's ListBranches filtering
// "remotes/" entries into a separate RemoteName field (internal/vcs/git.go)
// generalized to return raw RefNames.
func (r *Repo) ListBranches() ([]RefName, error) {
	iter, err := r.git.Branches()
	if err != nil {
		return nil, &ObjectError{Op: "list-branches", Err: err}
	}
	defer iter.Close()

	var out []RefName
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if RefName(ref.Name()).IsWorkspace() {
			return nil
		}
		out = append(out, RefName(ref.Name()))
		return nil
	})
	if err != nil {
		return nil, &ObjectError{Op: "list-branches", Err: err}
	}
	return out, nil
}

// RefEdit is one entry in a RefTxn: set `Name` to `New`, but only if its
// current value equals `Expected` (the zero hash means "must not exist").
type RefEdit struct {
	Name     RefName
	Expected plumbing.Hash
	New      plumbing.Hash
	// Delete, when true, removes Name instead of setting it to New.
	Delete bool
}

// RefTxn applies a batch of reference edits with "expected previous
// value" preconditions (spec §4.6/§5: "Refs are mutated only via a
// single transactional batch edit, which enforces 'expected previous
// value' preconditions"). go-git's CheckAndSetReference only checks a
// precondition when given a non-nil old reference, and has no way to
// express "must not currently exist", so the precondition is checked
// explicitly here and SetReference/RemoveReference are used to apply the
// edit — already-applied edits are rolled back on the first failure, the
// same best-effort rollback shape as the donor's lock-protected Sync,
// just at ref granularity instead of file granularity.
func (r *Repo) RefTxn(edits []RefEdit) error {
	applied := make([]RefEdit, 0, len(edits))

	rollback := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			e := applied[i]
			if e.Expected.IsZero() {
				_ = r.git.Storer.RemoveReference(e.Name.plumbing())
				continue
			}
			_ = r.git.Storer.SetReference(plumbing.NewHashReference(e.Name.plumbing(), e.Expected))
		}
	}

	for _, e := range edits {
		current, err := r.currentHash(e.Name)
		if err != nil {
			rollback()
			return &RefTxnError{Ref: string(e.Name), Err: err}
		}
		if current != e.Expected {
			rollback()
			return &RefTxnError{Ref: string(e.Name), Err: fmt.Errorf("expected %s, found %s", e.Expected, current)}
		}

		if e.Delete {
			if err := r.git.Storer.RemoveReference(e.Name.plumbing()); err != nil {
				rollback()
				return &RefTxnError{Ref: string(e.Name), Err: err}
			}
			applied = append(applied, RefEdit{Name: e.Name, Expected: current, Delete: true})
			continue
		}

		next := plumbing.NewHashReference(e.Name.plumbing(), e.New)
		if err := r.git.Storer.SetReference(next); err != nil {
			rollback()
			return &RefTxnError{Ref: string(e.Name), Err: err}
		}
		applied = append(applied, e)
	}
	return nil
}

// currentHash returns a ref's current hash, or the zero hash if it
// doesn't exist.
func (r *Repo) currentHash(name RefName) (plumbing.Hash, error) {
	ref, err := r.git.Storer.Reference(name.plumbing())
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

// SetHead points HEAD at ref (branch mode). Unlike RefTxn edits, HEAD's
// previous value is not checked.
func (r *Repo) SetHead(ref RefName) error {
	h := plumbing.NewSymbolicReference(plumbing.HEAD, ref.plumbing())
	if err := r.git.Storer.SetReference(h); err != nil {
		return &ObjectError{Op: "set-head", Err: err}
	}
	return nil
}

// SetHeadDetached points HEAD directly at a commit.
func (r *Repo) SetHeadDetached(h plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.HEAD, h)
	if err := r.git.Storer.SetReference(ref); err != nil {
		return &ObjectError{Op: "set-head-detached", Err: err}
	}
	return nil
}

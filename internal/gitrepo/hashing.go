package gitrepo

import (
	"bytes"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// HashBlob computes the git-compatible blob object ID for content, without
// writing it to the object store. The Worktree Diff Engine (internal/worktree)
// uses this to compare an on-disk file's would-be blob hash against the
// index/tree entry instead of diffing byte content directly, the same
// comparison git itself does to decide whether a file is dirty.
func HashBlob(content []byte) (plumbing.Hash, error) {
	return plumbing.NewHash(computeHash(plumbing.BlobObject, content)), nil
}

func computeHash(t plumbing.ObjectType, content []byte) string {
	h := plumbing.ComputeHash(t, content)
	return h.String()
}

// WriteBlob hashes and stores content as a blob in the repository's object
// database, returning its OID. Used when the Merge Kernel or Branch-Apply
// Engine materializes conflict markers into a tree (spec §7
// MaterializeInTree).
func (r *Repo) WriteBlob(content []byte) (plumbing.Hash, error) {
	obj := r.git.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-blob", Err: err}
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, &ObjectError{Op: "write-blob", Err: err}
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-blob", Err: err}
	}
	h, err := r.git.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-blob", Err: err}
	}
	return h, nil
}

// TreeEntry is one path's worth of a tree being built or walked, reused by
// both the Worktree Diff Engine (tree-vs-index comparisons) and the Merge
// Kernel (synthetic workspace tree construction).
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// WriteTree stores a flat list of entries as a single git tree object.
// Callers are responsible for pre-sorting entries the way git requires
// (byte order over the name, directories treated as if suffixed with '/').
func (r *Repo) WriteTree(entries []TreeEntry) (plumbing.Hash, error) {
	t := &object.Tree{}
	for _, e := range entries {
		t.Entries = append(t.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: e.Mode,
			Hash: e.Hash,
		})
	}
	obj := r.git.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-tree", Err: err}
	}
	if err := t.Encode(obj); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, &ObjectError{Op: "write-tree", Err: err}
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-tree", Err: err}
	}
	h, err := r.git.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, &ObjectError{Op: "write-tree", Err: err}
	}
	return h, nil
}

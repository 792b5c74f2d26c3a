package merge

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// threeWayMergeTrees merges "ours" (the workspace tree so far) and
// "theirs" (a stack's tip tree) against their common base, returning the
// merged tree hash and whether any path needed a conflict marker. No
// merge library exists anywhere in the retrieval pack (go-git v5 itself
// only implements the plumbing-level tree diff, not a content merge), so
// this walks both trees' flattened entries and applies a standard
// three-way rule per path, falling back to a line-based diff3 merge for
// text blobs that changed on both sides.
func threeWayMergeTrees(repo *gitrepo.Repo, base, ours, theirs plumbing.Hash, stackLabel string) (plumbing.Hash, bool, error) {
	baseEntries, err := flatten(repo, base)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	oursEntries, err := flatten(repo, ours)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	theirsEntries, err := flatten(repo, theirs)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	paths := map[string]bool{}
	for p := range baseEntries {
		paths[p] = true
	}
	for p := range oursEntries {
		paths[p] = true
	}
	for p := range theirsEntries {
		paths[p] = true
	}

	var merged []gitrepo.TreeEntry
	conflicted := false

	for path := range paths {
		b, bOK := baseEntries[path]
		o, oOK := oursEntries[path]
		t, tOK := theirsEntries[path]

		switch {
		case oOK && tOK && o.Hash == t.Hash:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: o.Hash})
		case bOK && oOK && !tOK && b.Hash == o.Hash:
			// deleted on their side, unchanged on ours: drop it.
		case bOK && tOK && !oOK && b.Hash == t.Hash:
			// deleted on our side, unchanged on theirs: stays deleted.
		case !bOK && oOK && !tOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: o.Hash})
		case !bOK && !oOK && tOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: t.Mode, Hash: t.Hash})
		case bOK && oOK && b.Hash == o.Hash && tOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: t.Mode, Hash: t.Hash})
		case bOK && tOK && b.Hash == t.Hash && oOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: o.Hash})
		case oOK && tOK:
			// both sides changed the same path differently: try a
			// line-based merge before giving up and marking a conflict.
			mergedHash, ok, err := textMerge(repo, b, o, t)
			if err != nil {
				return plumbing.ZeroHash, false, err
			}
			if ok {
				merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: mergedHash})
			} else {
				conflicted = true
				markerHash, err := writeConflictMarkers(repo, path, stackLabel, b, o, t)
				if err != nil {
					return plumbing.ZeroHash, false, err
				}
				merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: markerHash})
				engineerr.Warnf("merge: conflict at %s merging stack %s", path, stackLabel)
			}
		case oOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: o.Mode, Hash: o.Hash})
		case tOK:
			merged = append(merged, gitrepo.TreeEntry{Name: path, Mode: t.Mode, Hash: t.Hash})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })

	h, err := repo.WriteTree(merged)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return h, conflicted, nil
}

func flatten(repo *gitrepo.Repo, treeHash plumbing.Hash) (map[string]gitrepo.TreeEntry, error) {
	out := map[string]gitrepo.TreeEntry{}
	if treeHash.IsZero() {
		return out, nil
	}
	tree, err := repo.TreeObject(treeHash)
	if err != nil {
		return nil, err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &gitrepo.ObjectError{Op: "tree-walk", Err: err}
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		out[name] = gitrepo.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash}
	}
	return out, nil
}

// textMerge attempts a line-level three-way merge of a blob that changed
// on both sides. It returns ok=false when any hunk conflicts, in which
// case the caller writes conflict markers instead.
func textMerge(repo *gitrepo.Repo, base, ours, theirs gitrepo.TreeEntry) (plumbing.Hash, bool, error) {
	baseLines, err := blobLines(repo, base.Hash)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	oursLines, err := blobLines(repo, ours.Hash)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	theirsLines, err := blobLines(repo, theirs.Hash)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	merged, ok := diff3Merge(baseLines, oursLines, theirsLines)
	if !ok {
		return plumbing.ZeroHash, false, nil
	}

	content := []byte(bytesJoin(merged))
	h, err := repo.WriteBlob(content)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return h, true, nil
}

func blobLines(repo *gitrepo.Repo, h plumbing.Hash) ([]string, error) {
	if h.IsZero() {
		return nil, nil
	}
	b, err := repo.BlobObject(h)
	if err != nil {
		return nil, err
	}
	r, err := b.Reader()
	if err != nil {
		return nil, &gitrepo.ObjectError{Op: "blob-reader", OID: h, Err: err}
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return splitLines(string(content)), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func bytesJoin(lines []string) string {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l)
	}
	return b.String()
}

func writeConflictMarkers(repo *gitrepo.Repo, path, stackLabel string, base, ours, theirs gitrepo.TreeEntry) (plumbing.Hash, error) {
	oursContent, err := blobContent(repo, ours.Hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	theirsContent, err := blobContent(repo, theirs.Hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "<<<<<<< workspace\n%s=======\n%s>>>>>>> %s\n", oursContent, theirsContent, stackLabel)
	return repo.WriteBlob(b.Bytes())
}

func blobContent(repo *gitrepo.Repo, h plumbing.Hash) (string, error) {
	if h.IsZero() {
		return "", nil
	}
	blob, err := repo.BlobObject(h)
	if err != nil {
		return "", err
	}
	r, err := blob.Reader()
	if err != nil {
		return "", &gitrepo.ObjectError{Op: "blob-reader", OID: h, Err: err}
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

package worktree

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// CompareTrees diffs two trees directly (tree-vs-tree), without
// involving the on-disk worktree at all.
func CompareTrees(repo *gitrepo.Repo, from, to plumbing.Hash) ([]Change, error) {
	var fromTree, toTree *object.Tree
	var err error

	if !from.IsZero() {
		fromTree, err = repo.TreeObject(from)
		if err != nil {
			return nil, err
		}
	}
	if !to.IsZero() {
		toTree, err = repo.TreeObject(to)
		if err != nil {
			return nil, err
		}
	}

	var changes object.Changes
	if fromTree == nil && toTree == nil {
		return nil, nil
	} else if fromTree == nil {
		changes, err = object.DiffTree(&object.Tree{}, toTree)
	} else if toTree == nil {
		changes, err = object.DiffTree(fromTree, &object.Tree{})
	} else {
		changes, err = object.DiffTree(fromTree, toTree)
	}
	if err != nil {
		return nil, &gitrepo.ObjectError{Op: "diff-tree", Err: err}
	}

	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		ch, ok, skip := classify(c)
		if skip {
			continue
		}
		if !ok {
			out = append(out, Change{Path: pathOf(c), Failure: PathCheckFailed})
			engineerr.Warnf("worktree: could not classify change at %s", pathOf(c))
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func pathOf(c *object.Change) string {
	if c.To.Name != "" {
		return c.To.Name
	}
	return c.From.Name
}

// classify maps a go-git object.Change (which already distinguishes
// add/delete/modify by presence of From/To) onto this package's Change
// shape. go-git does not detect renames on its own, so Rename changes
// never originate here; PairRenames in this package (matching a
// deletion and an addition with identical blob hashes) is what produces
// Rename entries, mirroring the donor's own
// StatusPath output, which likewise reports a rename only when git
// itself detects one.
func classify(c *object.Change) (Change, bool, bool) {
	switch {
	case c.From.Name == "" && c.To.Name == "":
		return Change{}, false, true
	case c.From.Name == "":
		return Change{Path: c.To.Name, Kind: Addition, NewMode: c.To.TreeEntry.Mode}, true, false
	case c.To.Name == "":
		return Change{Path: c.From.Name, Kind: Deletion, OldMode: c.From.TreeEntry.Mode}, true, false
	default:
		return Change{
			Path:    c.To.Name,
			Kind:    Modification,
			OldMode: c.From.TreeEntry.Mode,
			NewMode: c.To.TreeEntry.Mode,
		}, true, false
	}
}

// PairRenames re-pairs a Deletion and an Addition that share a blob hash
// into a single Rename change, the same heuristic git's own rename
// detector applies at the content level (spec §4.2: Rename is a
// first-class change kind, not inferred purely from path structure).
func PairRenames(repo *gitrepo.Repo, changes []Change, fromTree, toTree plumbing.Hash) ([]Change, error) {
	if fromTree.IsZero() || toTree.IsZero() {
		return changes, nil
	}
	oldTree, err := repo.TreeObject(fromTree)
	if err != nil {
		return changes, err
	}
	newTree, err := repo.TreeObject(toTree)
	if err != nil {
		return changes, err
	}

	hashOf := func(t *object.Tree, path string) (plumbing.Hash, bool) {
		e, err := t.FindEntry(path)
		if err != nil {
			return plumbing.ZeroHash, false
		}
		return e.Hash, true
	}

	var deletions, additions []int
	for i, c := range changes {
		switch c.Kind {
		case Deletion:
			deletions = append(deletions, i)
		case Addition:
			additions = append(additions, i)
		}
	}

	used := map[int]bool{}
	out := make([]Change, len(changes))
	copy(out, changes)

	for _, di := range deletions {
		dHash, ok := hashOf(oldTree, changes[di].Path)
		if !ok {
			continue
		}
		for _, ai := range additions {
			if used[ai] {
				continue
			}
			aHash, ok := hashOf(newTree, changes[ai].Path)
			if !ok || aHash != dHash {
				continue
			}
			out[ai] = Change{
				Path:    changes[ai].Path,
				OldPath: changes[di].Path,
				Kind:    Rename,
				OldMode: changes[di].OldMode,
				NewMode: changes[ai].NewMode,
			}
			used[ai] = true
			used[di] = true
			break
		}
	}

	final := out[:0]
	for i, c := range out {
		if used[i] && changes[i].Kind == Deletion {
			continue
		}
		final = append(final, c)
	}
	return final, nil
}

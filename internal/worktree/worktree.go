// Package worktree is the Worktree Diff Engine (C2): it classifies the
// differences between a commit's tree, the index, and the on-disk
// worktree into the change set the rest of the engine reasons about. It
// generalizes the donor's porcelain-status parsing (internal/vcs/git.go,
// Status/StatusPath) from "parse `git status --porcelain=v2` output"
// into "walk go-git tree/index objects directly", since the engine needs
// structured change records, not a string to re-parse.
package worktree

import (
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// ChangeKind classifies what happened to a path between two trees.
type ChangeKind int

const (
	Unmodified ChangeKind = iota
	Modification
	Addition
	Deletion
	Rename
)

// FailureKind marks a path the engine could not classify, rather than
// silently dropping it (spec §4.2: PathCheckFailed/Unhashable/FilterFailed).
type FailureKind int

const (
	NoFailure FailureKind = iota
	PathCheckFailed
	Unhashable
	FilterFailed
)

// Change is one path's diff between two of {tree, index, worktree}.
type Change struct {
	Path    string
	OldPath string // set only for Rename
	Kind    ChangeKind
	OldMode filemode.FileMode
	NewMode filemode.FileMode
	Failure FailureKind
	// IsUntracked is meaningful only when Kind == Addition: the path has
	// no index entry at all, as opposed to being staged-then-added.
	IsUntracked bool
	// ContentChanged and ModeChanged are meaningful only when
	// Kind == Modification, distinguishing a content edit from a bare
	// mode flip (spec §4.2 Modification{flags}).
	ContentChanged bool
	ModeChanged    bool
}

// WorktreeChanges is the full result of one diff pass (spec §4.2).
type WorktreeChanges struct {
	// Changes are the effective tree-vs-worktree changes Scan reports:
	// tracked paths after merging the tree-vs-index and index-vs-worktree
	// layers, plus untracked additions and paths that could not be
	// classified.
	Changes []Change
	// IgnoredChanges is for paths that changed but are covered by
	// .gitignore. Scan does not read .gitignore and leaves it empty.
	IgnoredChanges []Change
	// IndexChanges are staged-but-not-committed changes (tree vs index).
	IndexChanges []Change
	// IndexConflicts are paths the index itself has marked conflicted
	// (unresolved merge stages), which worktree content can't repair by
	// itself.
	IndexConflicts []string
}

// HasChanges reports whether anything meaningful was found.
func (w WorktreeChanges) HasChanges() bool {
	return len(w.Changes) > 0 || len(w.IndexChanges) > 0 || len(w.IndexConflicts) > 0
}

// mergeKindTable implements the merge table from spec §4.2: combining a
// tree-vs-index change and an index-vs-worktree change at the same path
// into the effective tree-vs-worktree change, or detecting that the two
// changes cancel out (TreeIndexWorktreeChangeIneffective).
func mergeKindTable(treeIndex, indexWorktree ChangeKind) (ChangeKind, bool) {
	switch {
	case treeIndex == Unmodified:
		return indexWorktree, indexWorktree != Unmodified
	case indexWorktree == Unmodified:
		return treeIndex, true
	case treeIndex == Deletion && indexWorktree == Addition:
		// Staged deletion, then a new file reappeared on disk with the
		// same path: net effect is a modification. Content hashes are not
		// compared, so a file restored with its original content is still
		// a Modification.
		return Modification, true
	case treeIndex == Addition && indexWorktree == Deletion:
		// Staged as new, then removed from disk before commit: net
		// effect is as if nothing happened.
		return Unmodified, false
	default:
		return indexWorktree, true
	}
}

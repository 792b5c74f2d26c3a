// Package merge is the Merge Kernel (C5): it builds the synthetic
// octopus workspace commit from a target branch plus the tip of every
// applied stack, the same multi-parent commit the Workspace Projector
// later reads back out. It is grounded on the donor's Squash/Merge
// operations (internal/vcs/git.go, which shell out to "git merge"/"git
// rebase"), generalized here into direct, in-process tree construction
// since go-git v5 exposes no multi-way content merge of its own.
package merge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// ConflictPolicy controls what happens when a stack can't be
// cleanly merged into the workspace tree (spec §7
// OnWorkspaceMergeConflict).
type ConflictPolicy int

const (
	// Abort returns engineerr.ApplyConflictsError without writing a
	// commit, leaving the workspace ref untouched.
	Abort ConflictPolicy = iota
	// MaterializeInTree writes conflict markers into the affected paths
	// of the synthetic tree and still produces a commit, the same way
	// `git merge` leaves conflict markers in the worktree instead of
	// failing outright.
	MaterializeInTree
)

// StackInput is one applied stack's contribution to the merge: its tip
// commit and identifying metadata for conflict reporting.
type StackInput struct {
	StackID string
	RefName string
	Tip     plumbing.Hash
}

// Result is the outcome of building the synthetic workspace commit.
type Result struct {
	CommitHash plumbing.Hash
	// Conflicts lists any stack that could not be merged cleanly, even
	// when ConflictPolicy is MaterializeInTree (so callers can still
	// warn about it).
	Conflicts []engineerr.ConflictingStack
}

// sig is the commit signature the kernel writes for synthetic commits.
// It is fixed rather than sourced from git config, since this commit has
// no human author — it is a projection of the workspace's current
// state, not a change anyone made by hand.
var sig = object.Signature{Name: "gitbutler", Email: "gitbutler@localhost"}

// BuildWorkspaceCommit three-way-merges target's tree with each stack's
// tip tree in turn (spec §4.5: "recursive merge for 2 parents, extended
// octopus-style for more"), and writes the resulting tree plus an
// N-parent commit (target + one parent per stack).
func BuildWorkspaceCommit(repo *gitrepo.Repo, target plumbing.Hash, stacks []StackInput, policy ConflictPolicy) (*Result, error) {
	targetCommit, err := repo.CommitObject(target)
	if err != nil {
		return nil, err
	}
	mergedTree := targetCommit.TreeHash

	var conflicts []engineerr.ConflictingStack
	for _, st := range stacks {
		stackCommit, err := repo.CommitObject(st.Tip)
		if err != nil {
			return nil, err
		}

		base, err := repo.MergeBase(target, st.Tip)
		if err != nil {
			return nil, err
		}

		newTree, hadConflict, err := threeWayMergeTrees(repo, base, mergedTree, stackCommit.TreeHash, st.RefName)
		if err != nil {
			return nil, err
		}
		if hadConflict {
			conflicts = append(conflicts, engineerr.ConflictingStack{
				StackID: st.StackID,
				RefName: st.RefName,
				Reason:  "conflicting changes with workspace tree",
			})
			if policy == Abort {
				continue
			}
		}
		mergedTree = newTree
	}

	if policy == Abort && len(conflicts) > 0 {
		return nil, &engineerr.ApplyConflictsError{Stacks: conflicts}
	}

	parents := make([]plumbing.Hash, 0, len(stacks)+1)
	parents = append(parents, target)
	for _, st := range stacks {
		parents = append(parents, st.Tip)
	}

	msg := workspaceCommitMessage(stacks, conflicts)
	when := gitrepo.Now()
	s := sig
	s.When = when

	h, err := repo.WriteCommit(gitrepo.CommitSpec{
		Tree:      mergedTree,
		Parents:   parents,
		Message:   msg,
		Author:    s,
		Committer: s,
	})
	if err != nil {
		return nil, err
	}

	return &Result{CommitHash: h, Conflicts: conflicts}, nil
}

// workspaceCommitMessageMarker is the first line every synthetic
// workspace commit carries, so readers (and the Legacy Reconciler) can
// recognize one at a glance without inspecting parent count.
const workspaceCommitMessageMarker = "GitButler Workspace Commit"

func workspaceCommitMessage(stacks []StackInput, conflicts []engineerr.ConflictingStack) string {
	var b bytes.Buffer
	b.WriteString(workspaceCommitMessageMarker)
	b.WriteString("\n\n")
	names := make([]string, 0, len(stacks))
	for _, s := range stacks {
		names = append(names, s.RefName)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	if len(conflicts) > 0 {
		b.WriteString("\nconflicts:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- %s: %s\n", c.RefName, c.Reason)
		}
	}
	return b.String()
}

// IsWorkspaceCommit reports whether a commit message carries the marker
// workspaceCommitMessage writes, the cheap check the Legacy Reconciler
// and Workspace Projector use before doing anything more expensive.
func IsWorkspaceCommit(message string) bool {
	return len(message) >= len(workspaceCommitMessageMarker) && message[:len(workspaceCommitMessageMarker)] == workspaceCommitMessageMarker
}

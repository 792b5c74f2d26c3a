// Package workspace is the Workspace Projector (C4): it turns a Graph
// (internal/graph) plus ref metadata (internal/refmeta) into the entity
// model the rest of the engine and any front-end works with — the set
// of Stacks currently applied, each stack's branches, and each branch's
// push status relative to its remote. It generalizes the donor's
// StackInfo (internal/vcs/git.go, "describe one jj/git stack as a single
// struct") from one branch at a time to the whole workspace at once.
package workspace

import (
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/graph"
)

// Kind classifies how a workspace was detected (spec §4.4).
type Kind int

const (
	// KindAdHoc means there is no managed workspace ref at all: HEAD is
	// just sitting on an ordinary branch or is detached. The projector
	// still reports a Workspace, with one single-branch stack per named
	// segment in the graph, so callers have one shape to handle, the way
	// the donor's StackInfo always returns a struct rather than an
	// optional one.
	KindAdHoc Kind = iota
	// KindManaged means refmeta records a
	// "refs/heads/gitbutler/workspace[/name]" ref and a graph segment
	// carries that ref. The shape of the ref's commit (parent count,
	// message marker) is not checked.
	KindManaged
	// KindManagedMissingWorkspaceCommit means refmeta records a
	// workspace ref, but no graph segment with commits carries it. A
	// workspace ref reset externally onto an ordinary commit still
	// projects as KindManaged.
	KindManagedMissingWorkspaceCommit
)

// PushStatus classifies a branch relative to its remote-tracking
// counterpart (spec §4.4).
type PushStatus int

const (
	NothingToPush PushStatus = iota
	CompletelyUnpushed
	UnpushedCommits
	UnpushedCommitsRequiringForce
	Integrated
)

// Branch is one named ref within a stack.
type Branch struct {
	RefName    string
	IsDefault  bool
	SegmentID  int
	PushStatus PushStatus
}

// Stack is an ordered list of branches sharing one StackID, from the
// stack's tip (the branch the workspace commit merges) down to its base
// (closest to the target).
type Stack struct {
	StackID uuid.UUID
	// Base is the merge-base of the stack's tip and the workspace's
	// target branch: the point the stack actually branched off, used by
	// front-ends to size a diff against the target (spec §4.4).
	Base     graph.CommitID
	Branches []Branch
}

// Workspace is the full projection result for one repository state.
type Workspace struct {
	Kind         Kind
	Stacks       []Stack
	TargetRef    string
	TargetCommit graph.CommitID
	// LowerBound is the commit workspace history should not be
	// considered below (spec §4.4); typically the merge base with the
	// target branch.
	LowerBound graph.CommitID
	RefName    string // the managed workspace ref, "" for KindAdHoc
}

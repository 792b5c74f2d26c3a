// Package graph is the Commit Graph Builder (C3): it walks the object
// database outward from a set of seed refs and produces a Graph of
// Segments — maximal runs of single-parent commits that sit behind one
// ref — annotated with flags describing workspace membership, remote
// reachability, and integration status. It generalizes the donor's
// Log/LogBetween/StackInfo commands (internal/vcs/git.go), which asked
// the git CLI for a flat commit list per branch, into an in-process,
// whole-graph walk shared across every branch at once.
package graph

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// CommitID is a commit object id. A distinct type (rather than a bare
// plumbing.Hash alias) keeps graph.go's public API independent of the
// go-git import for callers that only need identity and comparison.
type CommitID [20]byte

func commitIDOf(h plumbing.Hash) CommitID { return CommitID(h) }

// CommitIDFromHash converts a go-git plumbing.Hash into a CommitID, for
// callers outside this package that resolved a hash themselves (e.g. the
// Workspace Projector resolving a remote-tracking ref).
func CommitIDFromHash(h plumbing.Hash) CommitID { return CommitID(h) }

func (c CommitID) Hash() plumbing.Hash { return plumbing.Hash(c) }

func (c CommitID) String() string { return c.Hash().String() }

func (c CommitID) IsZero() bool { return c == CommitID{} }

// Flags is a bitset of per-commit facts computed during the graph walk
// (spec §4.3 "CommitFlags").
type Flags uint32

const (
	// InWorkspace marks a commit reachable from the managed workspace ref.
	InWorkspace Flags = 1 << iota
	// NotInRemote marks a commit absent from the branch's remote-tracking
	// counterpart, i.e. not yet pushed.
	NotInRemote
	// Integrated marks a commit (or an equivalent squash/rebase of it)
	// already present in the target branch's history.
	Integrated
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Commit is one node of the graph: a loaded commit object plus the flags
// computed for it during the walk.
type Commit struct {
	ID      CommitID
	Parents []CommitID
	Message string
	Flags   Flags
}

// RefInfo carries the ref a segment sits behind, when it has one (spec
// §9.1 supplement: anonymous segments, e.g. the parent half of an octopus
// merge with no direct ref, have a nil Segment.Ref instead).
type RefInfo struct {
	RefName        gitrepo.RefName
	RemoteTracking gitrepo.RefName // "" if none configured
}

// Segment is a maximal run of single-parent commits sitting behind zero
// or one ref (spec §4.3). Commits are ordered newest-first.
type Segment struct {
	ID      int
	Ref     *RefInfo // nil for an anonymous segment
	Commits []Commit

	// Parents/Children are segment IDs, not commit IDs: a segment boundary
	// forms wherever a commit has more than one parent, or more than one
	// child, or carries its own ref.
	Parents  []int
	Children []int

	// SiblingSegmentID names the other side of an octopus merge split,
	// when this segment begins at a merge commit's non-first parent.
	SiblingSegmentID *int
}

// Graph is the full result of one builder run.
type Graph struct {
	Segments []Segment
	// Truncated is set when a configured commit limit cut the walk short
	// before it reached every reachable commit (spec §9.1 supplement).
	Truncated bool
}

// BySegmentID looks up a segment by its ID, or returns false.
func (g *Graph) BySegmentID(id int) (Segment, bool) {
	if id < 0 || id >= len(g.Segments) {
		return Segment{}, false
	}
	return g.Segments[id], true
}

// CommitByID scans every segment for a commit, returning its segment ID.
// Used by tests; production call sites that need this on a hot path should build an
// index from the Graph once instead of calling this repeatedly.
func (g *Graph) CommitByID(id CommitID) (Commit, int, bool) {
	for si, seg := range g.Segments {
		for _, c := range seg.Commits {
			if c.ID == id {
				return c, si, true
			}
		}
	}
	return Commit{}, -1, false
}

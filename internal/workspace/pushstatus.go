package workspace

import (
	"github.com/gitbutler/workspace-engine/internal/graph"
)

// ComputePushStatus classifies one branch segment's push status relative
// to the remote-tracking ref the graph walk seeded for it (spec §4.4).
// remoteTip is the zero CommitID when the branch has no configured
// remote at all.
func ComputePushStatus(g *graph.Graph, segID int, remoteTip graph.CommitID) PushStatus {
	seg, ok := g.BySegmentID(segID)
	if !ok || len(seg.Commits) == 0 {
		return NothingToPush
	}

	allIntegrated := true
	for _, c := range seg.Commits {
		if !c.Flags.Has(graph.Integrated) {
			allIntegrated = false
			break
		}
	}
	if allIntegrated {
		return Integrated
	}

	if remoteTip.IsZero() {
		return CompletelyUnpushed
	}

	// The remote tip at the segment's tip means nothing to push; further
	// down the segment, local history only extended it. A remote tip
	// outside the segment counts as unpushed while some segment commits
	// are still reachable from it, and as a rewrite needing force-push
	// once none are.
	found := false
	allUnpushed := true
	for _, c := range seg.Commits {
		if c.ID == remoteTip {
			found = true
		}
		if !c.Flags.Has(graph.NotInRemote) {
			allUnpushed = false
		}
	}

	switch {
	case seg.Commits[0].ID == remoteTip:
		return NothingToPush
	case found:
		return UnpushedCommits
	case !allUnpushed:
		return UnpushedCommits
	default:
		return UnpushedCommitsRequiringForce
	}
}

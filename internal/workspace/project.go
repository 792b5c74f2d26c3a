package workspace

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/graph"
	"github.com/gitbutler/workspace-engine/internal/refmeta"
)

// Project builds a Workspace from a built Graph and the ref metadata
// store. workspaceRef is "" when no managed workspace ref was found by
// the caller (the projector then reports KindAdHoc). repo resolves the
// target ref and computes merge bases for LowerBound/per-stack Base, and
// each branch's remote-tracking counterpart for push-status (spec §4.4);
// it may be nil in tests that don't exercise those reads, in which case
// the corresponding fields are left zero rather than failing the whole
// projection.
func Project(repo *gitrepo.Repo, g *graph.Graph, meta *refmeta.Store, workspaceRef string, targetRef string) (*Workspace, error) {
	targetCommit, targetHash := resolveTarget(repo, targetRef)

	if workspaceRef == "" {
		return projectAdHoc(repo, g, targetRef, targetHash), nil
	}

	h, err := meta.Workspace(gitrepo.RefName(workspaceRef))
	if err != nil {
		return nil, err
	}
	if !h.Exists() {
		return projectAdHoc(repo, g, targetRef, targetHash), nil
	}

	ws, ok := findSegmentByRef(g, workspaceRef)
	if !ok || len(ws.Commits) == 0 {
		return &Workspace{Kind: KindManagedMissingWorkspaceCommit, TargetRef: targetRef, TargetCommit: targetCommit, RefName: workspaceRef}, nil
	}

	stacks, err := extractStacks(repo, g, ws, meta, targetHash)
	if err != nil {
		return nil, err
	}

	lowerBound := graph.CommitID{}
	if repo != nil && !targetHash.IsZero() {
		wsTip := ws.Commits[0].ID.Hash()
		if base, err := repo.MergeBase(targetHash, wsTip); err == nil {
			lowerBound = graph.CommitIDFromHash(base)
		}
	}

	return &Workspace{
		Kind:         KindManaged,
		Stacks:       stacks,
		TargetRef:    targetRef,
		TargetCommit: targetCommit,
		LowerBound:   lowerBound,
		RefName:      workspaceRef,
	}, nil
}

// resolveTarget resolves targetRef to both a graph.CommitID and the raw
// plumbing.Hash callers need for MergeBase calls. Failing to resolve (no
// repo, unborn target, ...) just yields zero values rather than an error:
// a workspace can still be projected without a resolvable target, it
// simply can't compute a LowerBound or stack bases.
func resolveTarget(repo *gitrepo.Repo, targetRef string) (graph.CommitID, plumbing.Hash) {
	if repo == nil || targetRef == "" {
		return graph.CommitID{}, plumbing.ZeroHash
	}
	h, err := repo.Resolve(gitrepo.RefName(targetRef))
	if err != nil {
		return graph.CommitID{}, plumbing.ZeroHash
	}
	return graph.CommitIDFromHash(h), h
}

func projectAdHoc(repo *gitrepo.Repo, g *graph.Graph, targetRef string, targetHash plumbing.Hash) *Workspace {
	var stacks []Stack
	for _, seg := range g.Segments {
		if seg.Ref == nil {
			continue
		}
		stacks = append(stacks, Stack{
			StackID: uuid.Nil,
			Base:    stackBase(repo, targetHash, seg),
			Branches: []Branch{{
				RefName:    string(seg.Ref.RefName),
				IsDefault:  true,
				SegmentID:  seg.ID,
				PushStatus: computePushStatusFor(repo, g, seg),
			}},
		})
	}
	return &Workspace{Kind: KindAdHoc, Stacks: stacks, TargetRef: targetRef, TargetCommit: graph.CommitIDFromHash(targetHash)}
}

func findSegmentByRef(g *graph.Graph, ref string) (graph.Segment, bool) {
	for _, seg := range g.Segments {
		if seg.Ref != nil && string(seg.Ref.RefName) == ref {
			return seg, true
		}
	}
	return graph.Segment{}, false
}

// extractStacks walks the workspace merge commit's parent segments,
// grouping each parent chain into one Stack by the StackID recorded in
// ref metadata for its topmost branch ref. Branches within a stack are
// ordered tip-to-base by following segment Parents links.
func extractStacks(repo *gitrepo.Repo, g *graph.Graph, workspaceSeg graph.Segment, meta *refmeta.Store, targetHash plumbing.Hash) ([]Stack, error) {
	byStackID := map[uuid.UUID]*Stack{}
	var order []uuid.UUID

	for _, parentID := range workspaceSeg.Parents {
		segID := parentID
		for {
			seg, ok := g.BySegmentID(segID)
			if !ok || seg.Ref == nil {
				break
			}

			h, err := meta.Branch(seg.Ref.RefName)
			if err != nil {
				return nil, err
			}
			stackID := uuid.Nil
			isDefault := false
			if h.Exists() {
				stackID = h.Value.StackID
				isDefault = h.Value.IsDefault
			}

			st, ok := byStackID[stackID]
			if !ok {
				st = &Stack{StackID: stackID, Base: stackBase(repo, targetHash, seg)}
				byStackID[stackID] = st
				order = append(order, stackID)
			}
			st.Branches = append(st.Branches, Branch{
				RefName:    string(seg.Ref.RefName),
				IsDefault:  isDefault,
				SegmentID:  seg.ID,
				PushStatus: computePushStatusFor(repo, g, seg),
			})

			if len(seg.Parents) != 1 {
				break
			}
			segID = seg.Parents[0]
		}
	}

	out := make([]Stack, 0, len(order))
	for _, id := range order {
		out = append(out, *byStackID[id])
	}
	return out, nil
}

// stackBase is the merge-base of the target branch and the tip of the
// stack segment chain starting at seg (spec §4.4 journey steps 05-11: a
// stack's diff against target starts at this commit, not at the
// repository root).
func stackBase(repo *gitrepo.Repo, targetHash plumbing.Hash, seg graph.Segment) graph.CommitID {
	if repo == nil || targetHash.IsZero() || len(seg.Commits) == 0 {
		return graph.CommitID{}
	}
	tip := seg.Commits[0].ID.Hash()
	base, err := repo.MergeBase(targetHash, tip)
	if err != nil {
		return graph.CommitID{}
	}
	return graph.CommitIDFromHash(base)
}

// computePushStatusFor resolves seg's configured remote-tracking ref (if
// any) and classifies its push status relative to it (spec §4.4).
func computePushStatusFor(repo *gitrepo.Repo, g *graph.Graph, seg graph.Segment) PushStatus {
	if seg.Ref == nil || seg.Ref.RemoteTracking == "" || repo == nil {
		return CompletelyUnpushed
	}
	remoteHash, err := repo.Resolve(seg.Ref.RemoteTracking)
	if err != nil {
		return CompletelyUnpushed
	}
	return ComputePushStatus(g, seg.ID, graph.CommitIDFromHash(remoteHash))
}

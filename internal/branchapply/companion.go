package branchapply

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/merge"
	"github.com/gitbutler/workspace-engine/internal/refmeta"
)

// Remove takes branch out of the workspace (spec §5's inverse
// operation): it rewrites the synthetic workspace commit without
// branch's stack as a parent, demotes the workspace back to ad-hoc when
// that was the last stack, and moves HEAD off the old workspace commit
// if it was sitting there. When branch isn't actually part of any
// managed workspace, this degrades to the donor's original
// metadata-only delete (internal/vcs/interface.go RemoveWorkspace),
// since there is no synthetic commit to rebuild.
func Remove(repo *gitrepo.Repo, meta *refmeta.Store, workspaceRef gitrepo.RefName, target gitrepo.RefName, branch gitrepo.RefName) error {
	h, err := meta.Branch(branch)
	if err != nil {
		return err
	}
	if !h.Exists() {
		return meta.Remove(branch)
	}

	wsHandle, err := meta.Workspace(workspaceRef)
	if err != nil {
		return err
	}
	if !wsHandle.Exists() {
		return meta.Remove(branch)
	}

	oldWorkspaceHash, err := repo.Resolve(workspaceRef)
	if err != nil {
		return err
	}

	remainingStacks := removeBranchFromStacks(wsHandle.Value.Stacks, branch)

	if err := meta.Remove(branch); err != nil {
		return err
	}

	if len(remainingStacks) == 0 {
		headRef, detached, _, headErr := repo.Head()
		if err := meta.Remove(workspaceRef); err != nil {
			return err
		}
		if err := repo.RefTxn([]gitrepo.RefEdit{{Name: workspaceRef, Expected: oldWorkspaceHash, Delete: true}}); err != nil {
			return err
		}
		if headErr != nil {
			return nil
		}
		return moveHeadOffWorkspace(repo, workspaceRef, headRef, detached, target)
	}

	targetHash, err := repo.Resolve(target)
	if err != nil {
		return err
	}
	stacks := stackInputsFromEntries(repo, remainingStacks)

	result, err := merge.BuildWorkspaceCommit(repo, targetHash, stacks, merge.MaterializeInTree)
	if err != nil {
		return err
	}

	newWS := refmeta.WorkspaceValue{
		Stacks:         remainingStacks,
		TargetRef:      wsHandle.Value.TargetRef,
		TargetCommitID: targetHash.String(),
		PushRemote:     wsHandle.Value.PushRemote,
	}
	if err := meta.SetWorkspace(workspaceRef, newWS); err != nil {
		return err
	}

	if err := repo.RefTxn([]gitrepo.RefEdit{{Name: workspaceRef, Expected: oldWorkspaceHash, New: result.CommitHash}}); err != nil {
		return err
	}

	if _, detached, headHash, err := repo.Head(); err == nil && detached && headHash == oldWorkspaceHash {
		return repo.SetHeadDetached(result.CommitHash)
	}
	return nil
}

// removeBranchFromStacks drops branch from whichever stack lists it,
// and drops the stack entirely once it has no branches left.
func removeBranchFromStacks(stacks []refmeta.StackEntry, branch gitrepo.RefName) []refmeta.StackEntry {
	out := make([]refmeta.StackEntry, 0, len(stacks))
	for _, se := range stacks {
		branches := make([]refmeta.BranchRef, 0, len(se.Branches))
		for _, b := range se.Branches {
			if b.RefName == string(branch) {
				continue
			}
			branches = append(branches, b)
		}
		if len(branches) == 0 {
			continue
		}
		se.Branches = branches
		out = append(out, se)
	}
	return out
}

func stackInputsFromEntries(repo *gitrepo.Repo, entries []refmeta.StackEntry) []merge.StackInput {
	out := make([]merge.StackInput, 0, len(entries))
	for _, se := range entries {
		tip, ref, ok := topBranch(repo, se)
		if !ok {
			continue
		}
		out = append(out, merge.StackInput{StackID: se.StackID.String(), RefName: ref, Tip: tip})
	}
	return out
}

// moveHeadOffWorkspace points HEAD at target once the workspace ref
// itself has been deleted (the last stack just left), but only if HEAD
// was actually following the workspace to begin with. headRef and
// detached describe HEAD as read before the workspace ref was deleted,
// since a symbolic HEAD to the deleted ref no longer resolves.
func moveHeadOffWorkspace(repo *gitrepo.Repo, workspaceRef, headRef gitrepo.RefName, detached bool, target gitrepo.RefName) error {
	if detached {
		// HEAD already points directly at a commit hash; deleting the
		// workspace ref that also pointed there doesn't move it.
		return nil
	}
	if headRef == workspaceRef {
		return repo.SetHead(target)
	}
	return nil
}

// CreateReference creates a brand-new branch ref at commit and records it
// as an ordinary (non-workspace) branch. It does not place the branch
// into any stack; callers call Apply afterward if that's wanted.
func CreateReference(repo *gitrepo.Repo, meta *refmeta.Store, name gitrepo.RefName, at plumbing.Hash) error {
	if err := repo.RefTxn([]gitrepo.RefEdit{{Name: name, New: at}}); err != nil {
		return err
	}
	return meta.SetBranch(name, refmeta.BranchValue{})
}

// HeadInfo describes where a managed workspace's synthetic commit
// currently sits relative to HEAD, the small read used by front-ends to
// decide whether the working copy needs to be refreshed before another
// operation runs.
type HeadInfo struct {
	HeadRef      gitrepo.RefName
	HeadDetached bool
	HeadCommit   plumbing.Hash
	// AtWorkspaceHead is true when HEAD is pointed at the managed
	// workspace ref's current commit.
	AtWorkspaceHead bool
}

// GetHeadInfo reads the current HEAD state and compares it to the
// workspace ref's commit.
func GetHeadInfo(repo *gitrepo.Repo, workspaceRef gitrepo.RefName) (*HeadInfo, error) {
	ref, detached, hash, err := repo.Head()
	if err != nil {
		return nil, err
	}

	info := &HeadInfo{HeadRef: ref, HeadDetached: detached, HeadCommit: hash}
	if workspaceRef == "" {
		return info, nil
	}

	wsHash, err := repo.Resolve(workspaceRef)
	if err != nil {
		return info, nil
	}
	info.AtWorkspaceHead = wsHash == hash
	return info, nil
}

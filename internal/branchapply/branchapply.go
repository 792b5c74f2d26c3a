// Package branchapply is the Branch-Apply Engine (C6): the operation
// that takes a branch outside the workspace and makes it one of the
// workspace's stacks, plus its inverse (remove) and the small companion
// operations (create_reference, head_info) the front-end needs around
// apply/remove. It generalizes the donor's CreateBranch/SwitchBranch/
// ListWorkspaces family (internal/vcs/git.go, internal/vcs/interface.go)
// from "run one git/jj command" into the explicit decision tree spec §5
// describes: build the graph, project the workspace, re-run the Merge
// Kernel, and only then touch refs.
package branchapply

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/merge"
	"github.com/gitbutler/workspace-engine/internal/refmeta"
	"github.com/gitbutler/workspace-engine/internal/worktree"
)

// Options configures one Apply call.
type Options struct {
	// StackID places the branch into an existing stack instead of
	// creating a new one-branch stack. Zero value means "new stack".
	StackID uuid.UUID
	// AnchorCommit, when StackID is non-zero, is the commit in that
	// stack's segment chain the branch should be inserted above (spec
	// §9.1 supplement "insertDependent" retry path). The branch's own
	// tip is trusted to already contain the anchor as an ancestor, since
	// it is an ordinary git branch; Apply does not rewrite history to
	// enforce that. Apply does not read this field itself: with StackID
	// set, the stack's tip in the rebuilt workspace commit is replaced by
	// the branch's tip (see buildStackInputs).
	AnchorCommit gitrepo.RefName
}

// Outcome reports what Apply actually did.
type Outcome struct {
	StackID       uuid.UUID
	CreatedStack  bool
	BranchRefName gitrepo.RefName
	// WorkspaceChanged is false when the synthetic workspace commit this
	// apply computed is, content-wise, identical to the one already
	// there (spec §5 decision tree step 3's idempotence check). Ref
	// metadata for the branch is still recorded and the commit is still
	// built either way — only the workspace metadata update, the
	// workspace ref move and moving HEAD along are skipped.
	WorkspaceChanged bool
	// ConflictingStackIDs lists stacks the Merge Kernel could not fold
	// in cleanly. Conflicts are materialized into the tree rather than
	// aborting the apply, so this can be non-empty on a successful call.
	ConflictingStackIDs []string
	// AppliedBranches is every branch now represented in the workspace
	// commit's parent list, one per stack, after this apply.
	AppliedBranches []gitrepo.RefName
}

// Apply brings branch into the workspace (spec §5): reads the current
// set of applied stacks out of ref metadata, asks the Merge Kernel to
// rebuild the synthetic workspace commit with branch's stack added, and
// only then moves the workspace ref (and HEAD, if HEAD was following
// it). The workspace ref is created if this is the first branch ever
// applied against it.
func Apply(repo *gitrepo.Repo, meta *refmeta.Store, branch gitrepo.RefName, workspaceRef gitrepo.RefName, target gitrepo.RefName, opts Options) (*Outcome, error) {
	if err := normalize(repo, branch); err != nil {
		return nil, err
	}
	if branch == target || isTrackingCounterpart(branch, target) {
		return nil, engineerr.ErrTargetIsItsOwnWorkspace
	}

	h, err := meta.Branch(branch)
	if err != nil {
		return nil, err
	}
	if h.Exists() {
		return nil, engineerr.ErrBranchAlreadyInWorkspace
	}

	branchAsWS, err := meta.Workspace(branch)
	if err != nil {
		return nil, err
	}
	if branchAsWS.Exists() {
		return nil, engineerr.ErrBranchAlreadyWorkspaceRef
	}

	targetHash, err := repo.Resolve(target)
	if err != nil {
		return nil, err
	}
	branchHash, err := repo.Resolve(branch)
	if err != nil {
		return nil, err
	}

	existingWS, err := meta.Workspace(workspaceRef)
	if err != nil {
		return nil, err
	}

	var oldWorkspaceHash plumbing.Hash
	haveOldCommit := false
	if existingWS.Exists() {
		if hh, err := repo.Resolve(workspaceRef); err == nil {
			oldWorkspaceHash, haveOldCommit = hh, true
		}
	}

	if haveOldCommit {
		if err := guardSafeCheckout(repo, oldWorkspaceHash); err != nil {
			return nil, err
		}
	}

	stackID := opts.StackID
	created := stackID == uuid.Nil
	if created {
		stackID = uuid.New()
	}
	order := 0
	if !created {
		order = nextOrderInStack(meta, stackID)
	}

	stacks, applied := buildStackInputs(repo, existingWS.Value, branch, branchHash, stackID)

	result, err := merge.BuildWorkspaceCommit(repo, targetHash, stacks, merge.MaterializeInTree)
	if err != nil {
		return nil, err
	}

	workspaceChanged := !haveOldCommit || result.CommitHash != oldWorkspaceHash
	if haveOldCommit && workspaceChanged {
		if same, err := sameTree(repo, oldWorkspaceHash, result.CommitHash); err == nil && same {
			workspaceChanged = false
		}
	}

	if err := meta.SetBranch(branch, refmeta.BranchValue{StackID: stackID, IsDefault: created, Order: order}); err != nil {
		return nil, err
	}
	if err := configureTrackingIfRemote(repo, branch); err != nil {
		return nil, err
	}

	if workspaceChanged {
		newWS := addBranchToWorkspaceValue(existingWS.Value, stackID, branch, target, targetHash)
		if err := meta.SetWorkspace(workspaceRef, newWS); err != nil {
			return nil, err
		}

		expected := plumbing.ZeroHash
		if haveOldCommit {
			expected = oldWorkspaceHash
		}
		if err := repo.RefTxn([]gitrepo.RefEdit{{Name: workspaceRef, Expected: expected, New: result.CommitHash}}); err != nil {
			return nil, err
		}

		if err := followWorkspaceIfOnIt(repo, workspaceRef, oldWorkspaceHash, haveOldCommit); err != nil {
			return nil, err
		}
	}

	conflictIDs := make([]string, 0, len(result.Conflicts))
	for _, c := range result.Conflicts {
		conflictIDs = append(conflictIDs, c.StackID)
	}

	return &Outcome{
		StackID:             stackID,
		CreatedStack:        created,
		BranchRefName:       branch,
		WorkspaceChanged:    workspaceChanged,
		ConflictingStackIDs: conflictIDs,
		AppliedBranches:     applied,
	}, nil
}

// guardSafeCheckout refuses to move the workspace ref out from under
// uncommitted work (spec §5 "safe checkout"): anything the Worktree
// Diff Engine reports relative to the current workspace commit's tree
// would otherwise be silently overwritten once HEAD follows the new
// synthetic commit.
func guardSafeCheckout(repo *gitrepo.Repo, at plumbing.Hash) error {
	if repo.Root() == "" {
		// No on-disk worktree to protect: an in-memory repo (the Merge
		// Kernel's dry-run path, or a test) has nothing checked out that
		// an apply could clobber.
		return nil
	}
	c, err := repo.CommitObject(at)
	if err != nil {
		return err
	}
	changes, err := worktree.Scan(repo, c.TreeHash)
	if err != nil {
		return err
	}
	if changes.HasChanges() {
		return engineerr.ErrUncommittedChangesWouldBeOverwritten
	}
	return nil
}

// buildStackInputs assembles one merge.StackInput per stack that should
// be a parent of the rebuilt workspace commit: every stack already on
// record, with branch's own stack's tip replaced by branch's current
// hash (it is either a brand new stack, or the existing stack named by
// opts.StackID), plus
// a freshly-created entry if branch's stack wasn't on record yet.
func buildStackInputs(repo *gitrepo.Repo, existing refmeta.WorkspaceValue, branch gitrepo.RefName, branchHash plumbing.Hash, stackID uuid.UUID) ([]merge.StackInput, []gitrepo.RefName) {
	var stacks []merge.StackInput
	var applied []gitrepo.RefName
	stackAlreadyExisted := false

	for _, se := range existing.Stacks {
		if se.StackID == stackID {
			stackAlreadyExisted = true
			stacks = append(stacks, merge.StackInput{StackID: stackID.String(), RefName: string(branch), Tip: branchHash})
			applied = append(applied, branch)
			continue
		}
		tip, ref, ok := topBranch(repo, se)
		if !ok {
			continue
		}
		stacks = append(stacks, merge.StackInput{StackID: se.StackID.String(), RefName: ref, Tip: tip})
		applied = append(applied, gitrepo.RefName(ref))
	}

	if !stackAlreadyExisted {
		stacks = append(stacks, merge.StackInput{StackID: stackID.String(), RefName: string(branch), Tip: branchHash})
		applied = append(applied, branch)
	}

	return stacks, applied
}

// topBranch resolves a stack's topmost recorded branch to its current
// commit hash. A stack whose branch ref has gone missing (deleted out
// from under the metadata) is dropped from the rebuild rather than
// failing the whole apply, the same "warn and skip" tolerance the
// Commit Graph Builder applies to missing objects.
func topBranch(repo *gitrepo.Repo, se refmeta.StackEntry) (plumbing.Hash, string, bool) {
	if len(se.Branches) == 0 {
		return plumbing.ZeroHash, "", false
	}
	top := se.Branches[len(se.Branches)-1]
	h, err := repo.Resolve(gitrepo.RefName(top.RefName))
	if err != nil {
		engineerr.Warnf("branchapply: stack %s's top branch %s is missing: %v", se.StackID, top.RefName, err)
		return plumbing.ZeroHash, "", false
	}
	return h, top.RefName, true
}

// addBranchToWorkspaceValue returns the WorkspaceValue the ref metadata
// store should record after folding branch into stackID.
func addBranchToWorkspaceValue(old refmeta.WorkspaceValue, stackID uuid.UUID, branch, target gitrepo.RefName, targetHash plumbing.Hash) refmeta.WorkspaceValue {
	stacks := make([]refmeta.StackEntry, 0, len(old.Stacks)+1)
	found := false
	for _, se := range old.Stacks {
		if se.StackID == stackID {
			se.Branches = append(se.Branches, refmeta.BranchRef{RefName: string(branch)})
			found = true
		}
		stacks = append(stacks, se)
	}
	if !found {
		stacks = append(stacks, refmeta.StackEntry{StackID: stackID, Branches: []refmeta.BranchRef{{RefName: string(branch)}}})
	}
	return refmeta.WorkspaceValue{
		Stacks:         stacks,
		TargetRef:      string(target),
		TargetCommitID: targetHash.String(),
		PushRemote:     old.PushRemote,
	}
}

// sameTree reports whether two commits produced the same tree content,
// the idempotence signal used once commit hashes differ (they almost
// always do, since the parent list changes on every apply): if the tree
// didn't move either, nothing about the workspace actually changed.
func sameTree(repo *gitrepo.Repo, a, b plumbing.Hash) (bool, error) {
	ca, err := repo.CommitObject(a)
	if err != nil {
		return false, err
	}
	cb, err := repo.CommitObject(b)
	if err != nil {
		return false, err
	}
	return ca.TreeHash == cb.TreeHash, nil
}

// followWorkspaceIfOnIt moves HEAD onto workspaceRef when HEAD was
// already following the workspace (symbolically, or detached at its
// old commit) or when there was no prior workspace commit at all (this
// is the first apply). HEAD sitting on an unrelated branch is left
// alone — Apply never drags the caller's checkout somewhere it wasn't.
func followWorkspaceIfOnIt(repo *gitrepo.Repo, workspaceRef gitrepo.RefName, oldWorkspaceHash plumbing.Hash, haveOldCommit bool) error {
	headRef, detached, headHash, err := repo.Head()
	if err != nil {
		if !haveOldCommit {
			return repo.SetHead(workspaceRef)
		}
		return nil
	}
	switch {
	case !haveOldCommit:
		return repo.SetHead(workspaceRef)
	case !detached && headRef == workspaceRef:
		return nil // already following symbolically, ref move is enough
	case detached && headHash == oldWorkspaceHash:
		return repo.SetHead(workspaceRef)
	default:
		return nil
	}
}

// normalize rejects symbolic refs outright (spec §5: "apply() refuses a
// symbolic ref"): an empty name, or anything not under refs/heads/ or
// refs/remotes/ (a short branch name such as "main" included), is
// refused. No name is resolved or rewritten.
func normalize(repo *gitrepo.Repo, branch gitrepo.RefName) error {
	if branch == "" {
		return engineerr.ErrSymbolicBranchRefused
	}
	if !branch.IsLocalBranch() && !branch.IsRemoteTracking() {
		return engineerr.ErrSymbolicBranchRefused
	}
	return nil
}

// isTrackingCounterpart reports whether one of branch/target is
// "refs/remotes/<remote>/<name>" and the other is "refs/heads/<name>".
func isTrackingCounterpart(branch, target gitrepo.RefName) bool {
	local, remote := branch, target
	if branch.IsRemoteTracking() {
		local, remote = target, branch
	}
	_, name, ok := strings.Cut(remote.ShortName(), "/")
	return ok && remote.IsRemoteTracking() && local.IsLocalBranch() && local.ShortName() == name
}

func nextOrderInStack(meta *refmeta.Store, stackID uuid.UUID) int {
	entries, err := meta.Iter()
	if err != nil {
		return 0
	}
	max := -1
	for _, e := range entries {
		if e.Kind == refmeta.KindBranch && e.Branch.StackID == stackID && e.Branch.Order > max {
			max = e.Branch.Order
		}
	}
	return max + 1
}

// configureTrackingIfRemote, when branch is a remote-tracking ref
// "refs/remotes/<remote>/<name>", creates the local branch
// "refs/heads/<name>" at the same commit; the RefTxn fails if that local
// branch already exists. No branch.<name> upstream configuration is
// written.
func configureTrackingIfRemote(repo *gitrepo.Repo, branch gitrepo.RefName) error {
	if !branch.IsRemoteTracking() {
		return nil
	}
	h, err := repo.Resolve(branch)
	if err != nil {
		return err
	}
	_, name, _ := strings.Cut(branch.ShortName(), "/")
	local := gitrepo.RefName("refs/heads/" + name)
	return repo.RefTxn([]gitrepo.RefEdit{{Name: local, New: h}})
}

package branchapply

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/gitrepo/testrepo"
	"github.com/gitbutler/workspace-engine/internal/refmeta"
)

func TestApplyCreatesNewStack(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "1"}})
	testrepo.SetBranch(t, repo, "main", c1)
	testrepo.SetBranch(t, repo, "feature", c1)

	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	out, err := Apply(repo, meta, gitrepo.RefName("refs/heads/feature"), gitrepo.RefName("refs/heads/gitbutler/workspace"), gitrepo.RefName("refs/heads/main"), Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.CreatedStack {
		t.Error("CreatedStack = false, want true")
	}
	if out.StackID == uuid.Nil {
		t.Error("StackID is nil")
	}
	if !out.WorkspaceChanged {
		t.Error("WorkspaceChanged = false, want true for a brand new workspace")
	}
	if len(out.AppliedBranches) != 1 || out.AppliedBranches[0] != gitrepo.RefName("refs/heads/feature") {
		t.Errorf("AppliedBranches = %v, want [refs/heads/feature]", out.AppliedBranches)
	}

	h, err := meta.Branch(gitrepo.RefName("refs/heads/feature"))
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if !h.Exists() || h.Value.StackID != out.StackID {
		t.Errorf("metadata not persisted correctly: %+v", h)
	}

	wsHandle, err := meta.Workspace(gitrepo.RefName("refs/heads/gitbutler/workspace"))
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if !wsHandle.Exists() || len(wsHandle.Value.Stacks) != 1 {
		t.Fatalf("workspace metadata not persisted correctly: %+v", wsHandle.Value)
	}

	wsHash, err := repo.Resolve(gitrepo.RefName("refs/heads/gitbutler/workspace"))
	if err != nil {
		t.Fatalf("Resolve workspace ref: %v", err)
	}
	c, err := repo.CommitObject(wsHash)
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if len(c.ParentHashes) != 2 {
		t.Errorf("len(ParentHashes) = %d, want 2 (target + feature)", len(c.ParentHashes))
	}
}

func TestApplyRejectsTargetBranch(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = Apply(repo, meta, gitrepo.RefName("refs/heads/main"), gitrepo.RefName("refs/heads/gitbutler/workspace"), gitrepo.RefName("refs/heads/main"), Options{})
	if err != engineerr.ErrTargetIsItsOwnWorkspace {
		t.Errorf("err = %v, want ErrTargetIsItsOwnWorkspace", err)
	}
}

func TestApplyRejectsAlreadyApplied(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ref := gitrepo.RefName("refs/heads/feature")
	if err := meta.SetBranch(ref, refmeta.BranchValue{StackID: uuid.New()}); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}

	_, err = Apply(repo, meta, ref, gitrepo.RefName("refs/heads/gitbutler/workspace"), gitrepo.RefName("refs/heads/main"), Options{})
	if err != engineerr.ErrBranchAlreadyInWorkspace {
		t.Errorf("err = %v, want ErrBranchAlreadyInWorkspace", err)
	}
}

func TestApplySecondBranchAddsSecondStack(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "1"}})
	fa := testrepo.Commit(t, repo, "feature-a", when.Add(time.Hour), []plumbing.Hash{c1}, []testrepo.File{{Path: "b.txt", Content: "1"}})
	fb := testrepo.Commit(t, repo, "feature-b", when.Add(2*time.Hour), []plumbing.Hash{c1}, []testrepo.File{{Path: "c.txt", Content: "1"}})
	testrepo.SetBranch(t, repo, "main", c1)
	testrepo.SetBranch(t, repo, "feature-a", fa)
	testrepo.SetBranch(t, repo, "feature-b", fb)

	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ws := gitrepo.RefName("refs/heads/gitbutler/workspace")
	target := gitrepo.RefName("refs/heads/main")

	if _, err := Apply(repo, meta, gitrepo.RefName("refs/heads/feature-a"), ws, target, Options{}); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	out, err := Apply(repo, meta, gitrepo.RefName("refs/heads/feature-b"), ws, target, Options{})
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if len(out.AppliedBranches) != 2 {
		t.Fatalf("AppliedBranches = %v, want 2 entries", out.AppliedBranches)
	}

	wsHandle, err := meta.Workspace(ws)
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if len(wsHandle.Value.Stacks) != 2 {
		t.Fatalf("len(Stacks) = %d, want 2", len(wsHandle.Value.Stacks))
	}
}

func TestRemoveDeletesMetadataOnlyWhenNotInAWorkspace(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ref := gitrepo.RefName("refs/heads/feature")
	if err := meta.SetBranch(ref, refmeta.BranchValue{StackID: uuid.New()}); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}

	if err := Remove(repo, meta, gitrepo.RefName("refs/heads/gitbutler/workspace"), gitrepo.RefName("refs/heads/main"), ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	h, err := meta.Branch(ref)
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if h.Exists() {
		t.Error("expected metadata removed")
	}
}

func TestRemoveLastStackDemotesToAdHoc(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "1"}})
	fa := testrepo.Commit(t, repo, "feature-a", when.Add(time.Hour), []plumbing.Hash{c1}, []testrepo.File{{Path: "b.txt", Content: "1"}})
	testrepo.SetBranch(t, repo, "main", c1)
	testrepo.SetBranch(t, repo, "feature-a", fa)

	meta, err := refmeta.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ws := gitrepo.RefName("refs/heads/gitbutler/workspace")
	target := gitrepo.RefName("refs/heads/main")
	branch := gitrepo.RefName("refs/heads/feature-a")

	if _, err := Apply(repo, meta, branch, ws, target, Options{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := Remove(repo, meta, ws, target, branch); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	wsHandle, err := meta.Workspace(ws)
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if wsHandle.Exists() {
		t.Error("expected workspace metadata removed once the last stack left")
	}
	if _, err := repo.Resolve(ws); err == nil {
		t.Error("expected workspace ref to be deleted")
	}
}

package refmeta

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

func TestSetAndGetWorkspace(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ref := gitrepo.RefName("refs/heads/gitbutler/workspace")
	stackID := uuid.New()
	v := WorkspaceValue{
		Stacks:    []StackEntry{{StackID: stackID, Relation: RelationOutside, Branches: []BranchRef{{RefName: "refs/heads/feature/a"}}}},
		TargetRef: "refs/heads/main",
	}

	if err := s.SetWorkspace(ref, v); err != nil {
		t.Fatalf("SetWorkspace: %v", err)
	}

	h, err := s.Workspace(ref)
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if !h.Exists() {
		t.Fatalf("expected handle to exist")
	}
	if len(h.Value.Stacks) != 1 || h.Value.Stacks[0].StackID != stackID {
		t.Errorf("Stacks = %+v, want one stack with id %v", h.Value.Stacks, stackID)
	}
	if h.Value.TargetRef != "refs/heads/main" {
		t.Errorf("TargetRef = %q, want refs/heads/main", h.Value.TargetRef)
	}
}

func TestSetWorkspaceRejectsEmptyStacks(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = s.SetWorkspace(gitrepo.RefName("refs/heads/gitbutler/workspace"), WorkspaceValue{TargetRef: "refs/heads/main"})
	if err != engineerr.ErrWorkspaceRequiresAtLeastOneStack {
		t.Errorf("err = %v, want ErrWorkspaceRequiresAtLeastOneStack", err)
	}
}

func TestBranchNotFoundIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	h, err := s.Branch(gitrepo.RefName("refs/heads/feature/missing"))
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if h.Exists() {
		t.Error("expected handle to not exist")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ref := gitrepo.RefName("refs/heads/feature/a")
	if err := s.SetBranch(ref, BranchValue{StackID: uuid.New()}); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}
	if err := s.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	h, err := s.Branch(ref)
	if err != nil {
		t.Fatalf("Branch after remove: %v", err)
	}
	if h.Exists() {
		t.Error("expected handle to not exist after Remove")
	}

	// Removing an already-absent entry is a no-op, not an error.
	if err := s.Remove(ref); err != nil {
		t.Errorf("Remove on missing entry: %v", err)
	}
}

func TestBranchDescriptionAndReviewRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ref := gitrepo.RefName("refs/heads/feature/a")
	v := BranchValue{
		StackID:     uuid.New(),
		Description: "adds the frobnicator",
		Review:      Review{PullRequest: "https://example.com/pr/1", ReviewID: "rev_123"},
	}
	if err := s.SetBranch(ref, v); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}

	h, err := s.Branch(ref)
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if h.Value.Description != v.Description {
		t.Errorf("Description = %q, want %q", h.Value.Description, v.Description)
	}
	if h.Value.Review != v.Review {
		t.Errorf("Review = %+v, want %+v", h.Value.Review, v.Review)
	}
}

func TestIter(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	branches := []gitrepo.RefName{"refs/heads/feature/a", "refs/heads/feature/b"}
	for i, r := range branches {
		if err := s.SetBranch(r, BranchValue{StackID: uuid.New(), Order: i}); err != nil {
			t.Fatalf("SetBranch %s: %v", r, err)
		}
	}
	ws := gitrepo.RefName("refs/heads/gitbutler/workspace")
	if err := s.SetWorkspace(ws, WorkspaceValue{Stacks: []StackEntry{{StackID: uuid.New()}}, TargetRef: "refs/heads/main"}); err != nil {
		t.Fatalf("SetWorkspace: %v", err)
	}

	entries, err := s.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	if len(entries) != len(branches)+1 {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(branches)+1)
	}
}

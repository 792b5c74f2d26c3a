package legacy

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestReconcileCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)

	id := uuid.New()
	err := s.Reconcile([]DesiredStack{{
		StackID:     id,
		InWorkspace: true,
		Branches:    []BranchRecord{{RefName: "refs/heads/feature", Order: 0}},
	}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	stacks, err := s.Stacks()
	if err != nil {
		t.Fatalf("Stacks: %v", err)
	}
	if len(stacks) != 1 {
		t.Fatalf("len(stacks) = %d, want 1", len(stacks))
	}
	if !stacks[0].InWorkspace {
		t.Error("InWorkspace = false, want true")
	}
}

func TestReconcileNeverDeletesOnlyFlipsFlag(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)

	id := uuid.New()
	if err := s.Reconcile([]DesiredStack{{StackID: id, InWorkspace: true}}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Second reconcile run doesn't mention id at all (stack was removed
	// from the workspace) — the record must survive with InWorkspace
	// flipped false, not be deleted.
	if err := s.Reconcile(nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	stacks, err := s.Stacks()
	if err != nil {
		t.Fatalf("Stacks: %v", err)
	}
	if len(stacks) != 1 {
		t.Fatalf("len(stacks) = %d, want 1 (record must not be deleted)", len(stacks))
	}
	if stacks[0].InWorkspace {
		t.Error("InWorkspace = true, want false after removal from workspace")
	}
}

func TestOpenPathIsUnderGitCommonDir(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	if filepath.Dir(s.path) != dir {
		t.Errorf("path = %s, want directory %s", s.path, dir)
	}
}

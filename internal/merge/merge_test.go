package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutler/workspace-engine/internal/gitrepo/testrepo"
)

func TestBuildWorkspaceCommitNoConflict(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	base := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{
		{Path: "a.txt", Content: "one\ntwo\nthree\n"},
	})
	stackA := testrepo.Commit(t, repo, "a", when.Add(time.Hour), []plumbing.Hash{base}, []testrepo.File{
		{Path: "a.txt", Content: "one\ntwo\nthree\n"},
		{Path: "b.txt", Content: "new file\n"},
	})
	stackB := testrepo.Commit(t, repo, "b", when.Add(2*time.Hour), []plumbing.Hash{base}, []testrepo.File{
		{Path: "a.txt", Content: "one\ntwo\nthree\n"},
		{Path: "c.txt", Content: "another new file\n"},
	})

	result, err := BuildWorkspaceCommit(repo, base, []StackInput{
		{StackID: "s1", RefName: "refs/heads/a", Tip: stackA},
		{StackID: "s2", RefName: "refs/heads/b", Tip: stackB},
	}, Abort)
	if err != nil {
		t.Fatalf("BuildWorkspaceCommit: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want none", result.Conflicts)
	}

	c, err := repo.CommitObject(result.CommitHash)
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if len(c.ParentHashes) != 3 {
		t.Fatalf("len(ParentHashes) = %d, want 3", len(c.ParentHashes))
	}
	if !IsWorkspaceCommit(c.Message) {
		t.Errorf("IsWorkspaceCommit(%q) = false, want true", c.Message)
	}

	tree, err := repo.TreeObject(c.TreeHash)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}
	names := map[string]bool{}
	for _, e := range tree.Entries {
		names[e.Name] = true
	}
	for _, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if !names[want] {
			t.Errorf("tree missing %s", want)
		}
	}
}

func TestBuildWorkspaceCommitConflictAborts(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	base := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{
		{Path: "a.txt", Content: "one\ntwo\nthree\n"},
	})
	stackA := testrepo.Commit(t, repo, "a", when.Add(time.Hour), []plumbing.Hash{base}, []testrepo.File{
		{Path: "a.txt", Content: "ONE\ntwo\nthree\n"},
	})
	stackB := testrepo.Commit(t, repo, "b", when.Add(2*time.Hour), []plumbing.Hash{base}, []testrepo.File{
		{Path: "a.txt", Content: "uno\ntwo\nthree\n"},
	})

	_, err := BuildWorkspaceCommit(repo, base, []StackInput{
		{StackID: "s1", RefName: "refs/heads/a", Tip: stackA},
		{StackID: "s2", RefName: "refs/heads/b", Tip: stackB},
	}, Abort)
	if err == nil {
		t.Fatal("expected an ApplyConflictsError, got nil")
	}
	if !strings.Contains(err.Error(), "conflict") {
		t.Errorf("error = %q, want it to mention conflicts", err.Error())
	}
}

package worktree

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/gitrepo/testrepo"
)

func TestCompareTreesModification(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "one"}})
	c2 := testrepo.Commit(t, repo, "change", when, nil, []testrepo.File{{Path: "a.txt", Content: "two"}})

	changes, err := CompareTrees(repo, mustCommitTree(t, repo, c1), mustCommitTree(t, repo, c2))
	if err != nil {
		t.Fatalf("CompareTrees: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].Kind != Modification {
		t.Errorf("Kind = %v, want Modification", changes[0].Kind)
	}
	if changes[0].Path != "a.txt" {
		t.Errorf("Path = %q, want a.txt", changes[0].Path)
	}
}

func TestCompareTreesAdditionAndDeletion(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "one"}})
	c2 := testrepo.Commit(t, repo, "swap", when, nil, []testrepo.File{{Path: "b.txt", Content: "one"}})

	changes, err := CompareTrees(repo, mustCommitTree(t, repo, c1), mustCommitTree(t, repo, c2))
	if err != nil {
		t.Fatalf("CompareTrees: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2", len(changes))
	}
}

func TestPairRenames(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "same content"}})
	c2 := testrepo.Commit(t, repo, "rename", when, nil, []testrepo.File{{Path: "b.txt", Content: "same content"}})

	fromTree, toTree := mustCommitTree(t, repo, c1), mustCommitTree(t, repo, c2)
	changes, err := CompareTrees(repo, fromTree, toTree)
	if err != nil {
		t.Fatalf("CompareTrees: %v", err)
	}

	paired, err := PairRenames(repo, changes, fromTree, toTree)
	if err != nil {
		t.Fatalf("PairRenames: %v", err)
	}
	if len(paired) != 1 {
		t.Fatalf("len(paired) = %d, want 1", len(paired))
	}
	if paired[0].Kind != Rename {
		t.Errorf("Kind = %v, want Rename", paired[0].Kind)
	}
	if paired[0].OldPath != "a.txt" || paired[0].Path != "b.txt" {
		t.Errorf("OldPath/Path = %q/%q, want a.txt/b.txt", paired[0].OldPath, paired[0].Path)
	}
}

func mustCommitTree(t *testing.T, repo *gitrepo.Repo, h plumbing.Hash) plumbing.Hash {
	t.Helper()
	c, err := repo.CommitObject(h)
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	return c.TreeHash
}

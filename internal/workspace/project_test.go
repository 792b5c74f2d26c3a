package workspace

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/gitrepo"
	"github.com/gitbutler/workspace-engine/internal/gitrepo/testrepo"
	"github.com/gitbutler/workspace-engine/internal/graph"
	"github.com/gitbutler/workspace-engine/internal/refmeta"
)

func TestProjectAdHocWorkspace(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := testrepo.Commit(t, repo, "base", when, nil, []testrepo.File{{Path: "a.txt", Content: "1"}})

	g, err := graph.Build(repo, []graph.Seed{{
		Ref:             graph.RefInfo{RefName: gitrepo.RefName("refs/heads/main")},
		Tip:             c1,
		MarkInWorkspace: false,
	}}, c1, graph.Limits{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ws, err := Project(repo, g, nil, "", "refs/heads/main")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if ws.Kind != KindAdHoc {
		t.Errorf("Kind = %v, want KindAdHoc", ws.Kind)
	}
	if len(ws.Stacks) != 1 {
		t.Fatalf("len(Stacks) = %d, want 1", len(ws.Stacks))
	}
}

func TestProjectManagedWorkspaceGroupsStacks(t *testing.T) {
	repo := testrepo.NewMemoryRepo(t)
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	root := testrepo.Commit(t, repo, "root", when, nil, []testrepo.File{{Path: "a.txt", Content: "1"}})
	branchA := testrepo.Commit(t, repo, "a", when.Add(time.Hour), []plumbing.Hash{root}, []testrepo.File{{Path: "b.txt", Content: "1"}})
	wsCommit := testrepo.Commit(t, repo, "gitbutler-workspace-commit", when.Add(2*time.Hour), []plumbing.Hash{branchA}, []testrepo.File{{Path: "b.txt", Content: "1"}})

	dir := t.TempDir()
	meta, err := refmeta.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	stackID := uuid.New()
	if err := meta.SetBranch(gitrepo.RefName("refs/heads/feature/a"), refmeta.BranchValue{StackID: stackID, IsDefault: true}); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}
	wsMeta := refmeta.WorkspaceValue{
		Stacks:    []refmeta.StackEntry{{StackID: stackID, Branches: []refmeta.BranchRef{{RefName: "refs/heads/feature/a"}}}},
		TargetRef: "refs/heads/main",
	}
	if err := meta.SetWorkspace(gitrepo.RefName("refs/heads/gitbutler/workspace"), wsMeta); err != nil {
		t.Fatalf("SetWorkspace: %v", err)
	}

	g, err := graph.Build(repo, []graph.Seed{
		{Ref: graph.RefInfo{RefName: gitrepo.RefName("refs/heads/gitbutler/workspace")}, Tip: wsCommit, MarkInWorkspace: true},
		{Ref: graph.RefInfo{RefName: gitrepo.RefName("refs/heads/feature/a")}, Tip: branchA},
	}, root, graph.Limits{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ws, err := Project(repo, g, meta, "refs/heads/gitbutler/workspace", "refs/heads/main")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if ws.Kind != KindManaged {
		t.Fatalf("Kind = %v, want KindManaged", ws.Kind)
	}
	if len(ws.Stacks) != 1 {
		t.Fatalf("len(Stacks) = %d, want 1", len(ws.Stacks))
	}
	if ws.Stacks[0].StackID != stackID {
		t.Errorf("StackID = %v, want %v", ws.Stacks[0].StackID, stackID)
	}
}

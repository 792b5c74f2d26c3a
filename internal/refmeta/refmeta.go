// Package refmeta is the Ref-Metadata Store (C1): the durable, per-ref
// record of whether a branch is a workspace or an ordinary branch, which
// stack(s) sit inside a managed workspace, and the review/ordering facts
// attached to a branch. It is grounded on the donor's wongdb package
// (internal/wongdb/wongdb.go), generalized from "one SQLite-like append
// file of issues" to "one TOML file per ref, guarded by an flock", and on
// BurntSushi/toml (see DESIGN.md for the corrected provenance of that
// dependency — it is not the donor's own).
package refmeta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// Kind distinguishes the two ref roles the store tracks.
type Kind int

const (
	// KindBranch marks an ordinary stack branch.
	KindBranch Kind = iota
	// KindWorkspace marks a managed workspace ref.
	KindWorkspace
)

// Relation classifies how one of a workspace's stacks relates to the
// target branch (spec §4.1/§6): a stack whose changes already landed on
// target is Merged, everything else is Outside.
type Relation int

const (
	RelationOutside Relation = iota
	RelationMerged
)

// BranchRef is one branch within a workspace's stack listing (§6 Workspace
// schema "branches[{ref_name, archived}]"). Archived marks a branch that
// was integrated and is kept for history rather than still being worked on.
type BranchRef struct {
	RefName  string `toml:"ref_name"`
	Archived bool   `toml:"archived"`
}

// StackEntry is one stack as recorded in a workspace's metadata (§6).
type StackEntry struct {
	StackID  uuid.UUID   `toml:"stack_id"`
	Relation Relation    `toml:"relation"`
	Branches []BranchRef `toml:"branches"`
}

// Review is the §6 Branch schema's "review" sub-table: the external
// code-review system's handle on this branch, if any.
type Review struct {
	PullRequest string `toml:"pull_request,omitempty"`
	ReviewID    string `toml:"review_id,omitempty"`
}

// BranchValue is the persisted payload for an ordinary stack branch (§6
// Branch schema).
type BranchValue struct {
	StackID   uuid.UUID `toml:"stack_id"`
	IsDefault bool      `toml:"is_default"`
	// Order is the branch's position within its stack, lowest first.
	Order       int    `toml:"order"`
	Description string `toml:"description,omitempty"`
	Review      Review `toml:"review"`
}

// WorkspaceValue is the persisted payload for a managed workspace ref (§6
// Workspace schema): which stacks it merges, the target it tracks, and
// where it pushes.
type WorkspaceValue struct {
	Stacks         []StackEntry `toml:"stacks"`
	TargetRef      string       `toml:"target_ref"`
	TargetCommitID string       `toml:"target_commit_id"`
	PushRemote     string       `toml:"push_remote,omitempty"`
}

// BranchHandle is an opaque, in-memory view of one branch ref's metadata
// record, returned by Branch and written back via SetBranch.
type BranchHandle struct {
	RefName gitrepo.RefName
	Value   BranchValue
	exists  bool
}

func (h BranchHandle) Exists() bool { return h.exists }

// WorkspaceHandle is the workspace-schema counterpart of BranchHandle.
type WorkspaceHandle struct {
	RefName gitrepo.RefName
	Value   WorkspaceValue
	exists  bool
}

func (h WorkspaceHandle) Exists() bool { return h.exists }

// Store is the file-backed metadata store for one repository. One Store
// should be shared by a process working on a given repository; it is
// safe for concurrent use by multiple goroutines but relies on an flock
// for safety against other processes (see lock.go).
type Store struct {
	dir string
	mu  sync.RWMutex
}

// Open returns the metadata store rooted at <gitCommonDir>/workspace-metadata,
// creating the directory if it doesn't exist yet.
func Open(gitCommonDir string) (*Store, error) {
	dir := filepath.Join(gitCommonDir, "workspace-metadata")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("refmeta: create metadata dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(ref gitrepo.RefName) string {
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".toml")
}

// record is the on-disk shape; RefName is stored alongside the value so
// the store can be iterated without needing the caller to already know
// every ref name (sha256 digests aren't reversible). Exactly one of
// Branch/Workspace is populated, selected by Kind.
type record struct {
	RefName   string          `toml:"ref_name"`
	Kind      Kind            `toml:"kind"`
	Branch    *BranchValue    `toml:"branch,omitempty"`
	Workspace *WorkspaceValue `toml:"workspace,omitempty"`
}

func (s *Store) read(ref gitrepo.RefName) (record, bool, error) {
	path := s.pathFor(ref)
	var rec record
	if _, err := toml.DecodeFile(path, &rec); err != nil {
		if os.IsNotExist(err) {
			return record{}, false, nil
		}
		return record{}, false, fmt.Errorf("refmeta: decode %s: %w", path, err)
	}
	return rec, true, nil
}

func (s *Store) writeRecord(ref gitrepo.RefName, rec record) error {
	unlock, err := lockFile(filepath.Join(s.dir, ".lock"))
	if err != nil {
		return fmt.Errorf("refmeta: lock: %w", err)
	}
	defer unlock()

	path := s.pathFor(ref)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("refmeta: create temp file: %w", err)
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		_ = f.Close()
		return fmt.Errorf("refmeta: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("refmeta: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("refmeta: rename into place: %w", err)
	}
	return nil
}

// Workspace looks up a ref's metadata, expecting it to be a workspace
// entry. A ref with no entry at all returns a non-existent handle rather
// than an error, since "never applied" is a normal state.
func (s *Store) Workspace(ref gitrepo.RefName) (WorkspaceHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok, err := s.read(ref)
	if err != nil {
		return WorkspaceHandle{}, err
	}
	if !ok {
		return WorkspaceHandle{RefName: ref}, nil
	}
	if rec.Kind != KindWorkspace || rec.Workspace == nil {
		engineerr.Warnf("refmeta: ref %s has no workspace record (kind=%d)", ref, rec.Kind)
		return WorkspaceHandle{RefName: ref}, nil
	}
	return WorkspaceHandle{RefName: ref, Value: *rec.Workspace, exists: true}, nil
}

// Branch looks up a ref's metadata, expecting it to be a branch entry.
func (s *Store) Branch(ref gitrepo.RefName) (BranchHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok, err := s.read(ref)
	if err != nil {
		return BranchHandle{}, err
	}
	if !ok {
		return BranchHandle{RefName: ref}, nil
	}
	if rec.Kind != KindBranch || rec.Branch == nil {
		engineerr.Warnf("refmeta: ref %s has no branch record (kind=%d)", ref, rec.Kind)
		return BranchHandle{RefName: ref}, nil
	}
	return BranchHandle{RefName: ref, Value: *rec.Branch, exists: true}, nil
}

// SetWorkspace persists v as a workspace entry. A workspace with no
// stacks at all is rejected (§4.1 contract, round-trip property 5: a
// managed workspace always merges at least one stack — zero stacks means
// "demote to ad-hoc and remove the record", not "record an empty one").
func (s *Store) SetWorkspace(ref gitrepo.RefName, v WorkspaceValue) error {
	if len(v.Stacks) == 0 {
		return engineerr.ErrWorkspaceRequiresAtLeastOneStack
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(ref, record{RefName: string(ref), Kind: KindWorkspace, Workspace: &v})
}

// SetBranch persists v as a branch entry.
func (s *Store) SetBranch(ref gitrepo.RefName, v BranchValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(ref, record{RefName: string(ref), Kind: KindBranch, Branch: &v})
}

// Remove deletes a ref's metadata entirely, e.g. after the branch has
// been deleted from the repository.
func (s *Store) Remove(ref gitrepo.RefName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(filepath.Join(s.dir, ".lock"))
	if err != nil {
		return fmt.Errorf("refmeta: lock: %w", err)
	}
	defer unlock()

	path := s.pathFor(ref)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("refmeta: remove %s: %w", path, err)
	}
	return nil
}

// Entry is one stored record as returned by Iter: exactly one of
// Branch/Workspace is meaningful, selected by Kind.
type Entry struct {
	RefName   gitrepo.RefName
	Kind      Kind
	Branch    BranchValue
	Workspace WorkspaceValue
}

// Iter returns every stored entry. Order is unspecified.
func (s *Store) Iter() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("refmeta: read dir: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		var rec record
		path := filepath.Join(s.dir, e.Name())
		if _, err := toml.DecodeFile(path, &rec); err != nil {
			engineerr.Warnf("refmeta: skipping corrupt metadata file %s: %v", path, err)
			continue
		}
		entry := Entry{RefName: gitrepo.RefName(rec.RefName), Kind: rec.Kind}
		if rec.Branch != nil {
			entry.Branch = *rec.Branch
		}
		if rec.Workspace != nil {
			entry.Workspace = *rec.Workspace
		}
		out = append(out, entry)
	}
	return out, nil
}

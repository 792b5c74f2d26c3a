// Package legacy is the Legacy Reconciler (C7): it keeps an older,
// pre-workspace TOML record of stacks in sync with what the current
// Ref-Metadata Store and Commit Graph Builder say, for front-ends that
// still read the legacy format during a migration window. It is
// grounded on the donor's wongdb package (internal/wongdb/storage.go),
// generalized from an issue-tracker's flat record store into a
// stack-shaped one, and reuses BurntSushi/toml the same way refmeta
// does.
package legacy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// BranchRecord is one branch entry in a legacy stack record.
type BranchRecord struct {
	RefName string `toml:"ref_name"`
	Order   int    `toml:"order"`
}

// StackRecord is one legacy stack entry, keyed by StackID.
type StackRecord struct {
	StackID     uuid.UUID      `toml:"stack_id"`
	InWorkspace bool           `toml:"in_workspace"`
	Branches    []BranchRecord `toml:"branches"`
	// HeadCommit is an empty-string placeholder until the stack has at
	// least one real commit of its own (spec §9.1 supplement).
	HeadCommit string `toml:"head_commit"`
}

type document struct {
	Stacks []StackRecord `toml:"stacks"`
}

// Store is the legacy TOML file, one per repository.
type Store struct {
	path string
}

// Open returns the legacy store at <gitCommonDir>/workspace-legacy.toml.
func Open(gitCommonDir string) *Store {
	return &Store{path: filepath.Join(gitCommonDir, "workspace-legacy.toml")}
}

func (s *Store) load() (document, error) {
	var doc document
	if _, err := toml.DecodeFile(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("legacy: decode %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("legacy: create temp file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("legacy: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("legacy: close temp file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// DesiredStack is what the current engine state says a stack should look
// like; Reconcile brings the legacy record for StackID to match it.
type DesiredStack struct {
	StackID     uuid.UUID
	InWorkspace bool
	Branches    []BranchRecord
	HeadCommit  string
}

// Reconcile updates (or creates) the legacy record for each desired
// stack. It never deletes a stack record outright, even when the stack
// is no longer reported by the current workspace: it only flips
// InWorkspace to false and leaves the record in place for history (spec
// §9.1 supplement), since older front-ends reading this file treat a
// missing record differently from an explicitly-removed one.
func (s *Store) Reconcile(desired []DesiredStack) error {
	doc, err := s.load()
	if err != nil {
		return err
	}

	byID := map[uuid.UUID]int{}
	for i, st := range doc.Stacks {
		byID[st.StackID] = i
	}

	seen := map[uuid.UUID]bool{}
	for _, d := range desired {
		seen[d.StackID] = true
		branches := append([]BranchRecord{}, d.Branches...)
		sort.Slice(branches, func(i, j int) bool { return branches[i].Order < branches[j].Order })

		rec := StackRecord{
			StackID:     d.StackID,
			InWorkspace: d.InWorkspace,
			Branches:    branches,
			HeadCommit:  d.HeadCommit,
		}
		if i, ok := byID[d.StackID]; ok {
			doc.Stacks[i] = rec
		} else {
			doc.Stacks = append(doc.Stacks, rec)
			byID[d.StackID] = len(doc.Stacks) - 1
		}
	}

	for i := range doc.Stacks {
		if !seen[doc.Stacks[i].StackID] && doc.Stacks[i].InWorkspace {
			doc.Stacks[i].InWorkspace = false
		}
	}

	return s.save(doc)
}

// Stacks returns every legacy stack record currently on disk.
func (s *Store) Stacks() ([]StackRecord, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Stacks, nil
}

package worktree

import (
	"io/fs"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// entry is the shared shape used while diffing any two of {tree, index,
// worktree}: a path's content identity plus the mode git would record.
type entry struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// Scan performs the full §4.2 diff: tree-vs-index, independently
// index-vs-worktree, then merges the two per path through the table in
// worktree.go's mergeKindTable. treeHash is the commit tree the worktree
// is nominally checked out against (HEAD's tree, or the old workspace
// commit's tree during a safe-checkout check).
func Scan(repo *gitrepo.Repo, treeHash plumbing.Hash) (*WorktreeChanges, error) {
	tree, err := treeEntries(repo, treeHash)
	if err != nil {
		return nil, err
	}

	idx, err := repo.Raw().Storer.Index()
	if err != nil {
		return nil, &gitrepo.ObjectError{Op: "read-index", Err: err}
	}
	idxEntries, conflicts := indexEntries(idx)

	wt, err := repo.Raw().Worktree()
	if err != nil {
		return nil, &gitrepo.ObjectError{Op: "worktree", Err: err}
	}

	treeIndex := diffEntrySets(tree, idxEntries)
	indexWorktree, untracked, failures := diffIndexWorktree(idxEntries, wt.Filesystem)

	result := &WorktreeChanges{IndexConflicts: conflicts}

	paths := unionPaths(treeIndex, indexWorktree)
	for _, p := range paths {
		ti, hasTI := treeIndex[p]
		iw, hasIW := indexWorktree[p]

		switch {
		case hasTI && !hasIW:
			result.IndexChanges = append(result.IndexChanges, ti)
		case hasTI && hasIW:
			result.IndexChanges = append(result.IndexChanges, ti)
			if merged, ok := mergeChange(ti, iw); ok {
				result.Changes = append(result.Changes, merged)
			}
		case !hasTI && hasIW:
			result.Changes = append(result.Changes, iw)
		}
	}

	for p, c := range untracked {
		_ = p
		result.Changes = append(result.Changes, c)
	}
	result.Changes = append(result.Changes, failures...)

	sort.Slice(result.Changes, func(i, j int) bool { return result.Changes[i].Path < result.Changes[j].Path })
	sort.Slice(result.IndexChanges, func(i, j int) bool { return result.IndexChanges[i].Path < result.IndexChanges[j].Path })

	return result, nil
}

// mergeChange applies the tree-index/index-worktree merge table (§4.2)
// at one path and builds the net Change, or reports that the layers
// canceled out (TreeIndexWorktreeChangeIneffective).
func mergeChange(ti, iw Change) (Change, bool) {
	kind, effective := mergeKindTable(ti.Kind, iw.Kind)
	if !effective {
		return Change{}, false
	}
	out := iw
	out.Kind = kind
	if ti.Kind != Unmodified {
		out.OldMode = ti.OldMode
	}
	return out, true
}

func unionPaths(a, b map[string]Change) []string {
	seen := map[string]bool{}
	var out []string
	for p := range a {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for p := range b {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// treeEntries flattens a commit tree into a path -> entry map. A zero
// treeHash (unborn HEAD) yields an empty map, so every path looks Added.
func treeEntries(repo *gitrepo.Repo, treeHash plumbing.Hash) (map[string]entry, error) {
	out := map[string]entry{}
	if treeHash.IsZero() {
		return out, nil
	}
	tree, err := repo.TreeObject(treeHash)
	if err != nil {
		return nil, err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, te, err := walker.Next()
		if err != nil {
			break
		}
		if te.Mode == filemode.Dir {
			continue
		}
		out[name] = entry{hash: te.Hash, mode: te.Mode}
	}
	return out, nil
}

// indexEntries splits the index into its normal (stage 0) entries and the
// set of paths still carrying unresolved conflict stages (spec §4.2
// IndexConflicts: a path the index itself marks conflicted).
func indexEntries(idx *index.Index) (map[string]entry, []string) {
	out := map[string]entry{}
	conflictSet := map[string]bool{}
	for _, e := range idx.Entries {
		if e.Stage != index.Stage(0) {
			conflictSet[e.Name] = true
			continue
		}
		out[e.Name] = entry{hash: e.Hash, mode: e.Mode}
	}
	conflicts := make([]string, 0, len(conflictSet))
	for p := range conflictSet {
		conflicts = append(conflicts, p)
	}
	sort.Strings(conflicts)
	return out, conflicts
}

// diffEntrySets classifies every path present in either `from` or `to`
// into a tree-vs-index (or equivalent) Change, the independent first half
// of §4.2's two-layer scan.
func diffEntrySets(from, to map[string]entry) map[string]Change {
	out := map[string]Change{}
	for p, f := range from {
		t, ok := to[p]
		switch {
		case !ok:
			out[p] = Change{Path: p, Kind: Deletion, OldMode: f.mode}
		case t.hash != f.hash:
			out[p] = Change{Path: p, Kind: Modification, OldMode: f.mode, NewMode: t.mode, ContentChanged: true}
		case t.mode != f.mode:
			out[p] = Change{Path: p, Kind: Modification, OldMode: f.mode, NewMode: t.mode, ModeChanged: true}
		}
	}
	for p, t := range to {
		if _, ok := from[p]; !ok {
			out[p] = Change{Path: p, Kind: Addition, NewMode: t.mode}
		}
	}
	return out
}

// diffIndexWorktree hashes every on-disk file reachable under root and
// compares it against the index (spec §4.2: worktree content hashing via
// HashBlob so dirty detection matches git's own content-addressed
// comparison, not mtime heuristics). Files present on disk but absent
// from the index are reported separately as untracked additions.
func diffIndexWorktree(idxEntries map[string]entry, root billy.Filesystem) (map[string]Change, map[string]Change, []Change) {
	onDisk := map[string]entry{}
	var failures []Change

	walkErr := walkFS(root, "", func(p string, info fs.FileInfo) {
		if info.Mode()&fs.ModeSymlink != 0 {
			failures = append(failures, Change{Path: p, Failure: Unhashable})
			return
		}
		mode, err := filemode.NewFromOSFileMode(info.Mode())
		if err != nil {
			failures = append(failures, Change{Path: p, Failure: FilterFailed})
			return
		}
		f, err := root.Open(p)
		if err != nil {
			failures = append(failures, Change{Path: p, Failure: PathCheckFailed})
			return
		}
		defer f.Close()
		content := make([]byte, info.Size())
		if _, err := f.Read(content); err != nil && info.Size() > 0 {
			failures = append(failures, Change{Path: p, Failure: Unhashable})
			return
		}
		h, err := gitrepo.HashBlob(content)
		if err != nil {
			failures = append(failures, Change{Path: p, Failure: Unhashable})
			return
		}
		onDisk[p] = entry{hash: h, mode: mode}
	})
	if walkErr != nil {
		engineerr.Warnf("worktree: scanning worktree: %v", walkErr)
	}

	changes := map[string]Change{}
	untracked := map[string]Change{}
	for p, idxE := range idxEntries {
		diskE, ok := onDisk[p]
		if !ok {
			changes[p] = Change{Path: p, Kind: Deletion, OldMode: idxE.mode}
			continue
		}
		if diskE.hash != idxE.hash {
			changes[p] = Change{Path: p, Kind: Modification, OldMode: idxE.mode, NewMode: diskE.mode, ContentChanged: true}
		} else if diskE.mode != idxE.mode {
			changes[p] = Change{Path: p, Kind: Modification, OldMode: idxE.mode, NewMode: diskE.mode, ModeChanged: true}
		}
	}
	for p, diskE := range onDisk {
		if _, ok := idxEntries[p]; !ok {
			untracked[p] = Change{Path: p, Kind: Addition, NewMode: diskE.mode, IsUntracked: true}
		}
	}
	return changes, untracked, failures
}

// walkFS recursively visits every regular/symlink file under dir,
// skipping ".git", calling visit with the path relative to root.
func walkFS(bfs billy.Filesystem, dir string, visit func(path string, info fs.FileInfo)) error {
	entries, err := bfs.ReadDir(dir)
	if err != nil {
		if dir == "" {
			return nil
		}
		return err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.Name() == ".git" {
			continue
		}
		if e.IsDir() {
			if err := walkFS(bfs, p, visit); err != nil {
				return err
			}
			continue
		}
		visit(p, e)
	}
	return nil
}

package graph

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutler/workspace-engine/internal/engineerr"
	"github.com/gitbutler/workspace-engine/internal/gitrepo"
)

// Seed is one starting point for the graph walk: a ref and the goal
// flags commits reachable only from it should carry (spec §4.3 "goals").
type Seed struct {
	Ref             RefInfo
	Tip             plumbing.Hash
	MarkInWorkspace bool
	// RemoteTip is the commit this seed's configured remote-tracking ref
	// currently points to (spec §4.3 step 5). Zero means no remote is
	// configured for this branch, and NotInRemote is never set for its
	// commits (there is nothing to be "not in" yet).
	RemoteTip plumbing.Hash
}

// Limits bounds how much history a single build walks, so a repository
// with an enormous history doesn't make every operation pay for a full
// traversal (spec §9.1 supplement: commits_limit_hint + hard_limit).
type Limits struct {
	// CommitsLimitHint is a per-seed soft cap: once one seed's walk has
	// visited more than this many new commits, that seed's walk stops and
	// Graph.Truncated is set, while the remaining seeds are still walked.
	// Zero means no cap.
	CommitsLimitHint int
	// HardLimit is an absolute ceiling on commits visited across all
	// seeds. Zero means unlimited.
	HardLimit int
}

// Build walks the object graph from seeds and returns the resulting
// Graph. The target commit, when non-zero, is used to compute Integrated
// flags: any commit reachable from target is considered integrated.
func Build(repo *gitrepo.Repo, seeds []Seed, target plumbing.Hash, limits Limits) (*Graph, error) {
	b := &builder{
		repo:     repo,
		limits:   limits,
		visited:  map[plumbing.Hash]*node{},
		target:   target,
	}

	for _, s := range seeds {
		if err := b.walk(s); err != nil {
			return nil, err
		}
	}
	b.computeChildCounts()

	if !b.target.IsZero() {
		if err := b.markIntegrated(); err != nil {
			return nil, err
		}
	}

	b.markNotInRemote(seeds)

	return b.buildSegments(), nil
}

// node is the builder's internal per-commit bookkeeping, collapsed into
// Commit/Segment only once the walk finishes.
type node struct {
	hash    plumbing.Hash
	parents []plumbing.Hash
	message string
	flags   Flags
	// refHere is set when a seed's ref points directly at this commit.
	refHere *RefInfo
	childCount int
	// remoteTip is the RemoteTip of the first seed whose walk reached
	// this commit, or the zero hash if that seed configured none.
	remoteTip plumbing.Hash
}

type builder struct {
	repo      *gitrepo.Repo
	limits    Limits
	visited   map[plumbing.Hash]*node
	order     []plumbing.Hash
	target    plumbing.Hash
	truncated bool
}

func (b *builder) walk(s Seed) error {
	if s.Tip.IsZero() {
		return nil
	}

	queue := []plumbing.Hash{s.Tip}
	count := 0
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		if n, ok := b.visited[h]; ok {
			if h == s.Tip {
				n.refHere = &s.Ref
			}
			if s.MarkInWorkspace {
				n.flags |= InWorkspace
			}
			continue
		}

		if b.limits.HardLimit > 0 && len(b.order) >= b.limits.HardLimit {
			b.truncated = true
			continue
		}

		c, err := b.repo.CommitObject(h)
		if err != nil {
			engineerr.Warnf("graph: commit %s referenced by %s is missing: %v", h, s.Ref.RefName, err)
			continue
		}

		n := &node{hash: h, parents: c.ParentHashes, message: c.Message, remoteTip: s.RemoteTip}
		if s.MarkInWorkspace {
			n.flags |= InWorkspace
		}
		if h == s.Tip {
			n.refHere = &s.Ref
		}
		b.visited[h] = n
		b.order = append(b.order, h)
		count++

		for _, p := range c.ParentHashes {
			queue = append(queue, p)
		}

		if b.limits.CommitsLimitHint > 0 && count > b.limits.CommitsLimitHint && s.Tip != h {
			// Soft cap reached deep in this seed's history; stop
			// extending further but let sibling seeds still run.
			b.truncated = true
			break
		}
	}
	return nil
}

// computeChildCounts fills in each node's childCount, over the final
// visited set. This runs once after every seed has been walked rather
// than incrementally during the walk, since BFS across multiple seeds
// can visit a parent before all of its children are known.
func (b *builder) computeChildCounts() {
	for _, n := range b.visited {
		n.childCount = 0
	}
	for _, n := range b.visited {
		for _, p := range n.parents {
			if pn, ok := b.visited[p]; ok {
				pn.childCount++
			}
		}
	}
}

// markIntegrated flags every commit reachable from target as Integrated,
// plus any commit whose tree and first commit-message line matches a
// commit reachable from target (spec §9.1 supplement: squash-merge
// detection by tree id + first message line, since a squashed or rebased
// commit has a different hash and parents but usually the same content
// and message).
func (b *builder) markIntegrated() error {
	type fingerprint struct {
		tree       plumbing.Hash
		firstLine  string
	}
	seen := map[plumbing.Hash]bool{}
	fingerprints := map[fingerprint]bool{}

	queue := []plumbing.Hash{b.target}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if seen[h] {
			continue
		}
		seen[h] = true

		c, err := b.repo.CommitObject(h)
		if err != nil {
			engineerr.Warnf("graph: target history commit %s missing: %v", h, err)
			continue
		}
		fingerprints[fingerprint{tree: c.TreeHash, firstLine: firstLine(c.Message)}] = true
		queue = append(queue, c.ParentHashes...)
	}

	for h, n := range b.visited {
		if seen[h] {
			n.flags |= Integrated
			continue
		}
		c, err := b.repo.CommitObject(h)
		if err != nil {
			continue
		}
		if fingerprints[fingerprint{tree: c.TreeHash, firstLine: firstLine(c.Message)}] {
			n.flags |= Integrated
		}
	}
	return nil
}

// markNotInRemote flags every visited commit that belongs to a branch
// with a configured remote-tracking counterpart but is not reachable from
// that counterpart's current tip (spec §4.3 step 5): the set of commits a
// push would still need to send. Commits whose owning seed configured no
// remote at all are left unmarked — "not yet pushed" doesn't apply when
// there is nothing to push to.
func (b *builder) markNotInRemote(seeds []Seed) {
	reachable := map[plumbing.Hash]bool{}
	walked := map[plumbing.Hash]bool{}
	for _, s := range seeds {
		if s.RemoteTip.IsZero() || walked[s.RemoteTip] {
			continue
		}
		walked[s.RemoteTip] = true

		queue := []plumbing.Hash{s.RemoteTip}
		for len(queue) > 0 {
			h := queue[0]
			queue = queue[1:]
			if reachable[h] {
				continue
			}
			reachable[h] = true

			c, err := b.repo.CommitObject(h)
			if err != nil {
				engineerr.Warnf("graph: remote-tracking commit %s is missing: %v", h, err)
				continue
			}
			queue = append(queue, c.ParentHashes...)
		}
	}

	for _, n := range b.visited {
		if n.remoteTip.IsZero() {
			continue
		}
		if !reachable[n.hash] {
			n.flags |= NotInRemote
		}
	}
}

func firstLine(msg string) string {
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	return msg
}

// buildSegments collapses the visited node set into maximal single-parent
// runs, splitting wherever a commit has more than one child, more than
// one parent, or carries its own ref (spec §4.3).
func (b *builder) buildSegments() *Graph {
	// A commit starts a new segment if it has a ref, more than one
	// child, or its (sole) child has more than one parent (i.e. this
	// commit is a merge parent boundary).
	startsSegment := map[plumbing.Hash]bool{}
	// siblingAnchor maps a non-first-parent's hash to the first parent's
	// hash of the same merge commit, so the segments starting at each can
	// be cross-linked as SiblingSegmentID once segOf is known.
	siblingAnchor := map[plumbing.Hash]plumbing.Hash{}
	for _, h := range b.order {
		n := b.visited[h]
		if n.refHere != nil || n.childCount != 1 {
			startsSegment[h] = true
		}
	}
	for _, h := range b.order {
		n := b.visited[h]
		if len(n.parents) > 1 {
			first := n.parents[0]
			for i, p := range n.parents {
				startsSegment[p] = true
				if i == 0 {
					continue
				}
				siblingAnchor[p] = first
			}
		}
	}
	for _, h := range b.order {
		startsSegment[h] = startsSegment[h] || b.visited[h].childCount != 1
	}

	segOf := map[plumbing.Hash]int{}
	var segments []Segment

	for _, h := range b.order {
		if !startsSegment[h] {
			continue
		}
		seg := Segment{ID: len(segments)}
		if n := b.visited[h]; n.refHere != nil {
			ref := *n.refHere
			seg.Ref = &ref
		}
		cur := h
		for {
			n := b.visited[cur]
			seg.Commits = append(seg.Commits, Commit{
				ID:      commitIDOf(cur),
				Parents: hashesToIDs(n.parents),
				Message: n.message,
				Flags:   n.flags,
			})
			segOf[cur] = seg.ID
			if len(n.parents) != 1 {
				break
			}
			next := n.parents[0]
			if startsSegment[next] {
				break
			}
			cur = next
		}
		segments = append(segments, seg)
	}

	for i := range segments {
		last := segments[i].Commits[len(segments[i].Commits)-1]
		for _, p := range last.Parents {
			if pid, ok := segOf[p.Hash()]; ok {
				segments[i].Parents = append(segments[i].Parents, pid)
				segments[pid].Children = append(segments[pid].Children, i)
			}
		}
	}

	for startHash, anchorHash := range siblingAnchor {
		segID, ok1 := segOf[startHash]
		anchorSegID, ok2 := segOf[anchorHash]
		if !ok1 || !ok2 {
			continue
		}
		id := anchorSegID
		segments[segID].SiblingSegmentID = &id
	}

	return &Graph{Segments: segments, Truncated: b.truncated}
}

func hashesToIDs(hs []plumbing.Hash) []CommitID {
	out := make([]CommitID, len(hs))
	for i, h := range hs {
		out[i] = commitIDOf(h)
	}
	return out
}

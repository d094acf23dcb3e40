package revforest

import (
	"sort"

	"github.com/ketangupta550/docsync/internal/errs"
)

// Forest holds every known revision of one document as a set of trees. It is
// populated by ascending-generation Add calls and then queried read-only; it
// is never mutated after the last insertion of a given materialization and
// is not safe for concurrent use.
type Forest struct {
	roots  map[int64]*Node
	bySeq  map[int64]*Node
	leaves map[int64]*Node
}

// New returns an empty Forest.
func New() *Forest {
	return &Forest{
		roots:  make(map[int64]*Node),
		bySeq:  make(map[int64]*Node),
		leaves: make(map[int64]*Node),
	}
}

// Add inserts rev into the forest. It fails with AlreadyPresent if the
// sequence is already present, and with OrphanRevision if the parent
// sequence is not a root marker and isn't yet present. The caller must feed
// strictly new sequences in ascending generation order; Add offers no
// idempotence.
func (f *Forest) Add(rev Revision) error {
	if _, exists := f.bySeq[rev.Seq]; exists {
		return errs.New(errs.AlreadyPresent, "sequence already present in forest")
	}

	node := &Node{Revision: rev}

	if IsRoot(rev.ParentSeq) {
		f.roots[rev.Seq] = node
		f.bySeq[rev.Seq] = node
		f.leaves[rev.Seq] = node
		return nil
	}

	parent, ok := f.bySeq[rev.ParentSeq]
	if !ok {
		return errs.New(errs.OrphanRevision, "parent sequence not present in forest")
	}

	parent.children = append(parent.children, rev.Seq)
	delete(f.leaves, parent.Seq)

	f.bySeq[rev.Seq] = node
	f.leaves[rev.Seq] = node
	return nil
}

// Lookup performs a linear scan for a revision with the given docID and
// revID; a forest may contain nodes that share a docID but not a revID.
func (f *Forest) Lookup(docID, revID string) (Revision, bool) {
	for _, n := range f.bySeq {
		if n.DocID == docID && n.RevID == revID {
			return n.Revision, true
		}
	}
	return Revision{}, false
}

// BySequence returns the revision with the given sequence, if present.
func (f *Forest) BySequence(seq int64) (Revision, bool) {
	n, ok := f.bySeq[seq]
	if !ok {
		return Revision{}, false
	}
	return n.Revision, true
}

// Depth returns 0 for a root, the chain length from seq to its root
// otherwise, and -1 if seq is absent.
func (f *Forest) Depth(seq int64) int {
	n, ok := f.bySeq[seq]
	if !ok {
		return -1
	}
	depth := 0
	for !IsRoot(n.ParentSeq) {
		parent, ok := f.bySeq[n.ParentSeq]
		if !ok {
			// Invariant violation: every non-root node's parent must be
			// present. Treat as root rather than panicking on read paths.
			break
		}
		n = parent
		depth++
	}
	return depth
}

// LookupChildByRevID scans parentSeq's children for one with the given
// revision id. Fails with NotInTree if parentSeq itself is absent.
func (f *Forest) LookupChildByRevID(parentSeq int64, childRevID string) (Revision, bool, error) {
	parent, ok := f.bySeq[parentSeq]
	if !ok {
		return Revision{}, false, errs.New(errs.NotInTree, "parent sequence not present in forest")
	}
	for _, childSeq := range parent.children {
		child := f.bySeq[childSeq]
		if child != nil && child.RevID == childRevID {
			return child.Revision, true, nil
		}
	}
	return Revision{}, false, nil
}

// Leaves returns every leaf node's revision, sorted by sequence for
// deterministic iteration.
func (f *Forest) Leaves() []Revision {
	out := make([]Revision, 0, len(f.leaves))
	for _, n := range f.leaves {
		out = append(out, n.Revision)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// LeafRevisionIDs projects Leaves onto their revision ids.
func (f *Forest) LeafRevisionIDs() []string {
	leaves := f.Leaves()
	out := make([]string, len(leaves))
	for i, r := range leaves {
		out[i] = r.RevID
	}
	return out
}

// LeafRevisions is an alias kept for symmetry with the spec's naming
// (leaves/leafRevisionIds/leafRevisions all read off the same set).
func (f *Forest) LeafRevisions() []Revision {
	return f.Leaves()
}

// HasConflicts reports whether two or more leaves are non-deleted.
func (f *Forest) HasConflicts() bool {
	count := 0
	for _, n := range f.leaves {
		if !n.Deleted {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

// GetCurrentRevision returns the winning revision. A leaf marked Current wins,
// even if it is deleted; when several leaves are marked, the greatest of them
// in natural order (Less) wins. With no marked leaf the winner is computed
// lazily: the highest-generation, lexicographically-greatest-revision-id among
// non-deleted leaves. NoCurrent is returned only when no leaf is marked and
// every leaf is deleted.
func (f *Forest) GetCurrentRevision() (Revision, error) {
	var marked *Revision
	var best *Revision
	for _, n := range f.leaves {
		n := n
		if n.Current {
			if marked != nil {
				// More than one leaf marked current is a caller bug; prefer
				// the natural order winner among the marked set rather than
				// returning an arbitrary map-iteration result.
				if Less(*marked, n.Revision) {
					marked = &n.Revision
				}
				continue
			}
			marked = &n.Revision
		}
		if n.Deleted {
			continue
		}
		if best == nil || Less(*best, n.Revision) {
			best = &n.Revision
		}
	}
	if marked != nil {
		return *marked, nil
	}
	if best != nil {
		return *best, nil
	}
	return Revision{}, errs.New(errs.NoCurrent, "no non-deleted leaf in forest")
}

// GetPathForNode walks parent pointers from seq to its containing root,
// returning the chain leaf-to-root. Fails with NotInTree if seq is absent.
func (f *Forest) GetPathForNode(seq int64) ([]Revision, error) {
	n, ok := f.bySeq[seq]
	if !ok {
		return nil, errs.New(errs.NotInTree, "sequence not present in forest")
	}
	path := []Revision{n.Revision}
	for !IsRoot(n.ParentSeq) {
		parent, ok := f.bySeq[n.ParentSeq]
		if !ok {
			break
		}
		path = append(path, parent.Revision)
		n = parent
	}
	return path, nil
}

// GetPath is GetPathForNode projected onto revision ids.
func (f *Forest) GetPath(seq int64) ([]string, error) {
	path, err := f.GetPathForNode(seq)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(path))
	for i, r := range path {
		out[i] = r.RevID
	}
	return out, nil
}

// Roots returns every root revision, sorted by sequence.
func (f *Forest) Roots() []Revision {
	out := make([]Revision, 0, len(f.roots))
	for _, n := range f.roots {
		out = append(out, n.Revision)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

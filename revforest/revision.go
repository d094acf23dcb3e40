// Package revforest implements the revision-forest model: the in-memory,
// per-document MVCC ground truth that encodes a document's history as a
// forest of trees, grounded on the teacher's RevisionTree/RevisionInt64
// split (revision.go) but reworked around the spec's sequence-keyed forest
// rather than a Merkle hash bucket list.
package revforest

import (
	"strconv"
	"strings"

	"github.com/ketangupta550/docsync/internal/errs"
)

// Revision is one immutable version of a document.
type Revision struct {
	DocID      string
	RevID      string
	Generation int
	ParentSeq  int64
	Seq        int64
	Deleted    bool
	Current    bool
	Body       map[string]interface{}
}

// ParseRevID splits a revision id of the form "<generation>-<opaque>" into
// its generation and opaque parts. It fails if the prefix is not a positive
// integer or the separator is missing.
func ParseRevID(revID string) (generation int, opaque string, err error) {
	idx := strings.IndexByte(revID, '-')
	if idx <= 0 {
		return 0, "", errs.New(errs.InvalidArgument, "revision id missing generation prefix: "+revID)
	}
	gen, convErr := strconv.Atoi(revID[:idx])
	if convErr != nil || gen <= 0 {
		return 0, "", errs.New(errs.InvalidArgument, "revision id generation must be a positive integer: "+revID)
	}
	return gen, revID[idx+1:], nil
}

// IsRoot reports whether a parent sequence marks a root revision (spec: a
// non-positive parent sequence means root).
func IsRoot(parentSeq int64) bool {
	return parentSeq <= 0
}

// Less implements the forest's natural order over revisions: by generation,
// then lexicographically by revision id. Used to break ties when picking the
// winning revision; children within a node keep their insertion order.
func Less(a, b Revision) bool {
	if a.Generation != b.Generation {
		return a.Generation < b.Generation
	}
	return a.RevID < b.RevID
}

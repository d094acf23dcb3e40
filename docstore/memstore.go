package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ketangupta550/docsync/revforest"
)

// MemStore is an in-memory reference implementation of Store, good enough to
// exercise the index package end-to-end in tests and small embeddings that
// don't need real persistence. Grounded on the teacher's Database/Collection
// interface-first style (database.go), reworked around a global sequence
// counter instead of an HTTP-backed collection.
type MemStore struct {
	mu          sync.Mutex
	nextSeq     int64
	revisions   map[string][]revforest.Revision // docID -> ascending generation order
	bodies      map[string]map[string]interface{} // docID+"\x00"+revID -> body
	subscribers []func(PurgeEvent)
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		revisions: make(map[string][]revforest.Revision),
		bodies:    make(map[string]map[string]interface{}),
	}
}

func bodyKey(docID, revID string) string {
	return docID + "\x00" + revID
}

// PutRevision appends a new revision to docID's history, assigning it the
// next global sequence. If current is true, every other revision of docID
// has its Current flag cleared first, preserving "at most one current
// revision per document."
func (m *MemStore) PutRevision(docID, revID string, generation int, parentSeq int64, deleted, current bool, body map[string]interface{}) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	seq := m.nextSeq

	if current {
		for i := range m.revisions[docID] {
			m.revisions[docID][i].Current = false
		}
	}

	rev := revforest.Revision{
		DocID:      docID,
		RevID:      revID,
		Generation: generation,
		ParentSeq:  parentSeq,
		Seq:        seq,
		Deleted:    deleted,
		Current:    current,
		Body:       body,
	}
	m.revisions[docID] = append(m.revisions[docID], rev)
	m.bodies[bodyKey(docID, revID)] = body
	return seq
}

// LatestSequence implements Store.
func (m *MemStore) LatestSequence(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSeq, nil
}

// Changes implements Store.
func (m *MemStore) Changes(ctx context.Context, since int64, limit int) ([]DocChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var out []DocChange
	// Walk every revision in ascending sequence order, noting the first
	// (docID, seq) touch past the watermark.
	type hit struct {
		docID string
		seq   int64
	}
	var hits []hit
	for docID, revs := range m.revisions {
		for _, r := range revs {
			if r.Seq > since {
				hits = append(hits, hit{docID, r.Seq})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	for _, h := range hits {
		if seen[h.docID] {
			continue
		}
		seen[h.docID] = true
		out = append(out, DocChange{DocID: h.docID, Sequence: h.seq})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Revisions implements Store.
func (m *MemStore) Revisions(ctx context.Context, docID string) ([]revforest.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revs := m.revisions[docID]
	out := make([]revforest.Revision, len(revs))
	copy(out, revs)
	return out, nil
}

// Body implements Store.
func (m *MemStore) Body(ctx context.Context, docID, revID string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bodies[bodyKey(docID, revID)], nil
}

// Subscribe implements Store.
func (m *MemStore) Subscribe(fn func(PurgeEvent)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
	idx := len(m.subscribers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.subscribers) {
			m.subscribers[idx] = nil
		}
	}
}

// Purge removes docID's revisions with the given ids and notifies
// subscribers, simulating a compaction purge.
func (m *MemStore) Purge(docID string, revIDs []string) {
	m.mu.Lock()
	purge := make(map[string]bool, len(revIDs))
	for _, id := range revIDs {
		purge[id] = true
	}
	kept := m.revisions[docID][:0]
	for _, r := range m.revisions[docID] {
		if !purge[r.RevID] {
			kept = append(kept, r)
		} else {
			delete(m.bodies, bodyKey(docID, r.RevID))
		}
	}
	m.revisions[docID] = kept
	subs := make([]func(PurgeEvent), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	event := PurgeEvent{DocID: docID, PurgedRevIDs: revIDs}
	for _, fn := range subs {
		if fn != nil {
			fn(event)
		}
	}
}

var _ Store = (*MemStore)(nil)

// Package docstore declares the contract of the persistent document body
// store and event bus that spec.md §1 treats as an external collaborator:
// sequence-ordered revision iteration, body lookup by (docId, revId), and a
// purge event bus. Shaped after the teacher's interface-first Database/
// Collection split (database.go, collection.go) generalized away from HTTP.
package docstore

import (
	"context"

	"github.com/ketangupta550/docsync/revforest"
)

// DocChange names one document that gained a new revision sequence, as
// surfaced by a change-feed scan.
type DocChange struct {
	DocID    string
	Sequence int64
}

// PurgeEvent carries a purged document id and the revision ids removed from
// it, matching the external interface in spec.md §6.
type PurgeEvent struct {
	DocID        string
	PurgedRevIDs []string
}

// Store is the document-store contract IndexUpdater depends on. A host
// application backs this with its real persistent store; this package also
// ships an in-memory reference implementation (MemStore) for tests and small
// embeddings.
type Store interface {
	// LatestSequence returns the document store's current global sequence
	// cursor.
	LatestSequence(ctx context.Context) (int64, error)

	// Changes returns one DocChange for each document with a revision whose
	// sequence is greater than since, carrying the lowest such sequence,
	// ordered ascending by that sequence, up to limit entries (0 means
	// unbounded). Used by IndexUpdater to find documents touched since an
	// index's last_sequence.
	Changes(ctx context.Context, since int64, limit int) ([]DocChange, error)

	// Revisions returns every known revision of docID, in ascending
	// generation order, suitable for feeding revforest.Forest.Add in order.
	Revisions(ctx context.Context, docID string) ([]revforest.Revision, error)

	// Body returns the opaque document body for (docID, revID).
	Body(ctx context.Context, docID, revID string) (map[string]interface{}, error)

	// Subscribe registers fn to be called on every PurgeEvent and returns a
	// function that unregisters it.
	Subscribe(fn func(PurgeEvent)) (unsubscribe func())
}

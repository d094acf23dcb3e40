package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/docstore"
)

func TestMemStoreChangesAndRevisions(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()

	store.PutRevision("doc1", "1-a", 1, 0, false, false, map[string]interface{}{"x": 1})
	seq2 := store.PutRevision("doc1", "2-b", 2, 1, false, true, map[string]interface{}{"x": 2})
	store.PutRevision("doc2", "1-a", 1, 0, false, true, map[string]interface{}{"y": 1})

	latest, err := store.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	changes, err := store.Changes(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "doc1", changes[0].DocID)
	assert.Equal(t, "doc2", changes[1].DocID)

	revs, err := store.Revisions(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.False(t, revs[0].Current)
	assert.True(t, revs[1].Current)
	assert.Equal(t, seq2, revs[1].Seq)

	body, err := store.Body(ctx, "doc1", "2-b")
	require.NoError(t, err)
	assert.Equal(t, 2, body["x"])
}

func TestMemStorePurgeNotifiesSubscribers(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-a", 1, 0, false, true, nil)

	var got docstore.PurgeEvent
	unsubscribe := store.Subscribe(func(ev docstore.PurgeEvent) {
		got = ev
	})
	defer unsubscribe()

	store.Purge("doc1", []string{"1-a"})

	assert.Equal(t, "doc1", got.DocID)
	assert.Equal(t, []string{"1-a"}, got.PurgedRevIDs)

	revs, _ := store.Revisions(context.Background(), "doc1")
	assert.Empty(t, revs)
}

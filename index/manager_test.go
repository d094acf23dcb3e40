package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/index"
	"github.com/ketangupta550/docsync/internal/logging"
)

func openTestManager(t *testing.T, store docstore.Store) *index.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	m, err := index.Open(context.Background(), index.Config{
		DatabasePath: path,
		Store:        store,
		Log:          logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestEnsureIndexedCreatesAndProjects(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{
		"name": "alice",
		"age":  30.0,
	})
	m := openTestManager(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}, {Path: "age"}}, "", index.KindJSON, "")
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	defs, err := m.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, index.KindJSON, defs[0].Kind)
	assert.Equal(t, int64(1), defs[0].LastSequence)
}

func TestEnsureIndexedIsIdempotent(t *testing.T) {
	store := docstore.NewMemStore()
	m := openTestManager(t, store)
	ctx := context.Background()

	name1, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}}, "byname", index.KindJSON, "")
	require.NoError(t, err)
	name2, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}}, "byname", index.KindJSON, "")
	require.NoError(t, err)
	assert.Equal(t, name1, name2)
}

func TestEnsureIndexedRejectsConflictingDefinition(t *testing.T) {
	store := docstore.NewMemStore()
	m := openTestManager(t, store)
	ctx := context.Background()

	_, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}}, "byname", index.KindJSON, "")
	require.NoError(t, err)

	_, err = m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "age"}}, "byname", index.KindJSON, "")
	require.Error(t, err)
}

func TestEnsureIndexedGeneratesDeterministicName(t *testing.T) {
	store := docstore.NewMemStore()
	m := openTestManager(t, store)
	ctx := context.Background()

	// The reordered list goes to a second database: in the first one it would
	// be a different ordered definition under the same derived name, which
	// EnsureIndexed rejects with IndexExists.
	m2 := openTestManager(t, store)

	name1, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "a"}, {Path: "b"}}, "", index.KindJSON, "")
	require.NoError(t, err)
	name2, err := m2.EnsureIndexed(ctx, []index.FieldSpec{{Path: "b"}, {Path: "a"}}, "", index.KindJSON, "")
	require.NoError(t, err)
	assert.Equal(t, name1, name2, "field order should not affect the derived name")
}

func TestDeleteIndexRemovesMetadata(t *testing.T) {
	store := docstore.NewMemStore()
	m := openTestManager(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}}, "byname", index.KindJSON, "")
	require.NoError(t, err)

	require.NoError(t, m.DeleteIndex(ctx, name))

	defs, err := m.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestUpdateAllIndexesAdvancesWatermark(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{"name": "alice"})
	m := openTestManager(t, store)
	ctx := context.Background()

	_, err := m.EnsureIndexed(ctx, []index.FieldSpec{{Path: "name"}}, "byname", index.KindJSON, "")
	require.NoError(t, err)

	store.PutRevision("doc2", "1-bbb", 1, 0, false, true, map[string]interface{}{"name": "bob"})

	updated, failures := m.UpdateAllIndexes(ctx)
	assert.Empty(t, failures)
	assert.Contains(t, updated, "byname")

	defs, err := m.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, int64(2), defs[0].LastSequence)
}

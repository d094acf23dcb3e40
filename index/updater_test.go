package index

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/internal/logging"
)

func newTestManagerInternal(t *testing.T, store docstore.Store) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	m, err := Open(context.Background(), Config{DatabasePath: path, Store: store, Log: logging.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func queryColumn(t *testing.T, m *Manager, table, col, id string) interface{} {
	t.Helper()
	ctx := context.Background()
	res, err := m.queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`SELECT "`+col+`" FROM "`+table+`" WHERE _id = ?`, id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []interface{}
		for rows.Next() {
			var v interface{}
			if err := rows.Scan(&v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, rows.Err()
	})
	require.NoError(t, err)
	return res
}

func TestProjectDocumentExpandsArrayFields(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{
		"tags": []interface{}{"red", "blue", "green"},
	})
	m := newTestManagerInternal(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []FieldSpec{{Path: "tags"}}, "bytag", KindJSON, "")
	require.NoError(t, err)

	values := queryColumn(t, m, tableName(name), columnName("tags"), "doc1").([]interface{})
	assert.Len(t, values, 3)
}

func TestProjectDocumentNullsObjectValuedField(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{
		"address": map[string]interface{}{"city": "nowhere"},
	})
	m := newTestManagerInternal(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []FieldSpec{{Path: "address"}}, "byaddr", KindJSON, "")
	require.NoError(t, err)

	values := queryColumn(t, m, tableName(name), columnName("address"), "doc1").([]interface{})
	require.Len(t, values, 1)
	assert.Nil(t, values[0])
}

func TestProjectDocumentRemovesRowsForDeletedWinner(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{"name": "alice"})
	m := newTestManagerInternal(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []FieldSpec{{Path: "name"}}, "byname", KindJSON, "")
	require.NoError(t, err)
	require.NotEmpty(t, queryColumn(t, m, tableName(name), "_id", "doc1").([]interface{}))

	store.PutRevision("doc1", "2-bbb", 2, 1, true, true, nil)
	_, failures := m.UpdateAllIndexes(ctx)
	assert.Empty(t, failures)

	assert.Empty(t, queryColumn(t, m, tableName(name), "_id", "doc1").([]interface{}))
}

func TestPurgeRemovesIndexedRows(t *testing.T) {
	store := docstore.NewMemStore()
	store.PutRevision("doc1", "1-aaa", 1, 0, false, true, map[string]interface{}{"name": "alice"})
	m := newTestManagerInternal(t, store)
	ctx := context.Background()

	name, err := m.EnsureIndexed(ctx, []FieldSpec{{Path: "name"}}, "byname", KindJSON, "")
	require.NoError(t, err)
	require.NotEmpty(t, queryColumn(t, m, tableName(name), "_id", "doc1").([]interface{}))

	store.Purge("doc1", []string{"1-aaa"})

	assert.Empty(t, queryColumn(t, m, tableName(name), "_id", "doc1").([]interface{}))
}

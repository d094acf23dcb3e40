package index

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/internal/errs"
	"github.com/ketangupta550/docsync/internal/logging"
	"github.com/ketangupta550/docsync/sqlstore"
)

// TestEnsureIndexedRejectsTextWhenFTSUnavailable covers the scenario where
// the backing SQLite build was probed at Open time and found to lack FTS4:
// a text index request must fail with TextSearchUnavailable rather than
// attempting (and failing mid-transaction) a CREATE VIRTUAL TABLE.
func TestEnsureIndexedRejectsTextWhenFTSUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	queue, err := sqlstore.Open(path, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	ctx := context.Background()
	_, err = queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		return nil, applyMigrations(db)
	})
	require.NoError(t, err)

	m := &Manager{
		queue:      queue,
		store:      docstore.NewMemStore(),
		log:        logging.Nop(),
		ftsEnabled: false,
	}

	_, err = m.EnsureIndexed(ctx, []FieldSpec{{Path: "body"}}, "fulltext", KindText, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TextSearchUnavailable))
}

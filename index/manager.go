package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/internal/errs"
	"github.com/ketangupta550/docsync/sqlstore"
)

// Config configures a Manager.
type Config struct {
	// DatabasePath is the SQLite file backing the index tables.
	DatabasePath string
	// Store is the document store the Manager indexes against.
	Store docstore.Store
	// Log receives structured diagnostics; the zero value discards them.
	Log zerolog.Logger
}

// Manager is the Index Manager (IM): it owns the index database, the set
// of named index definitions stored in it, and their incremental refresh
// against a docstore.Store. Grounded on the teacher's database+collection
// pairing (database.go owns the HTTP connection, collection_indexes.go owns
// index lifecycle against it) collapsed into one type since there is only
// one logical "database" here: the local index file.
type Manager struct {
	queue       *sqlstore.Queue
	store       docstore.Store
	log         zerolog.Logger
	ftsEnabled  bool
	unsubscribe func()
}

// Open opens (or creates) the index database at cfg.DatabasePath, applies
// schema migrations, probes FTS availability, and subscribes to purge
// events from cfg.Store so tombstoned revisions are scrubbed from every
// index.
func Open(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errs.New(errs.InvalidArgument, "Config.Store is required")
	}

	queue, err := sqlstore.Open(cfg.DatabasePath, cfg.Log)
	if err != nil {
		return nil, err
	}

	if _, err := queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		return nil, applyMigrations(db)
	}); err != nil {
		_ = queue.Close()
		return nil, err
	}

	ftsResult, err := queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		return probeFTS(db), nil
	})
	if err != nil {
		_ = queue.Close()
		return nil, err
	}

	m := &Manager{
		queue:      queue,
		store:      cfg.Store,
		log:        cfg.Log,
		ftsEnabled: ftsResult.(bool),
	}
	m.unsubscribe = cfg.Store.Subscribe(m.handlePurge)
	return m, nil
}

// IsTextSearchEnabled reports whether the backing SQLite build supports
// FTS4, as determined once at Open time.
func (m *Manager) IsTextSearchEnabled() bool {
	return m.ftsEnabled
}

// ListIndexes returns every index definition currently registered.
func (m *Manager) ListIndexes(ctx context.Context) ([]Definition, error) {
	result, err := m.queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		return scanDefinitions(db, "")
	})
	if err != nil {
		return nil, err
	}
	return result.([]Definition), nil
}

func (m *Manager) listIndexNames(ctx context.Context) ([]string, error) {
	defs, err := m.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names, nil
}

func (m *Manager) lookupDefinition(ctx context.Context, name string) (Definition, bool, error) {
	result, err := m.queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		return scanDefinitions(db, name)
	})
	if err != nil {
		return Definition{}, false, err
	}
	defs := result.([]Definition)
	if len(defs) == 0 {
		return Definition{}, false, nil
	}
	return defs[0], true, nil
}

// scanDefinitions reads the metadata table, optionally filtered to one
// index name, and reassembles each index's ordered field list.
func scanDefinitions(db *sql.DB, onlyName string) ([]Definition, error) {
	query := fmt.Sprintf(`
		SELECT index_name, index_type, field_name, field_order, field_desc, last_sequence, index_settings
		FROM %s`, metadataTable)
	args := []interface{}{}
	if onlyName != "" {
		query += " WHERE index_name = ?"
		args = append(args, onlyName)
	}
	query += " ORDER BY index_name, field_order"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ExecutionFailed, "query index metadata", err)
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*Definition{}
	for rows.Next() {
		var name, kind, field, settings string
		var fieldOrder, fieldDesc int
		var lastSeq int64
		if err := rows.Scan(&name, &kind, &field, &fieldOrder, &fieldDesc, &lastSeq, &settings); err != nil {
			return nil, errs.Wrap(errs.ExecutionFailed, "scan index metadata row", err)
		}
		def, ok := byName[name]
		if !ok {
			def = &Definition{Name: name, Kind: Kind(kind), LastSequence: lastSeq}
			if settings != "" && settings != "null" {
				def.Settings = parseSettings(settings)
			}
			byName[name] = def
			order = append(order, name)
		}
		def.Fields = append(def.Fields, FieldSpec{Path: field, Descending: fieldDesc != 0})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ExecutionFailed, "iterate index metadata", err)
	}

	out := make([]Definition, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	return out, nil
}

func parseSettings(raw string) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// DeleteIndex drops an index's physical table and metadata rows.
func (m *Manager) DeleteIndex(ctx context.Context, name string) error {
	_, found, err := m.lookupDefinition(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return errs.New(errs.InvalidArgument, "no such index: "+name)
	}

	_, err = m.queue.SubmitTx(ctx, func(tx *sql.Tx) (interface{}, error) {
		table := tableName(name)
		if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table)); err != nil {
			return nil, err
		}
		_, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE index_name = ?`, metadataTable), name)
		return nil, err
	})
	return err
}

// handlePurge removes every row belonging to a purged document from every
// index's physical table, since a purge discards history the next
// UpdateAllIndexes pass would otherwise have no record of removing.
func (m *Manager) handlePurge(ev docstore.PurgeEvent) {
	ctx := context.Background()
	names, err := m.listIndexNames(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("could not list indexes while handling purge")
		return
	}
	for _, name := range names {
		table := tableName(name)
		if _, err := m.queue.SubmitTx(ctx, func(tx *sql.Tx) (interface{}, error) {
			_, err := tx.Exec(fmt.Sprintf(`DELETE FROM "%s" WHERE _id = ?`, table), ev.DocID)
			return nil, err
		}); err != nil {
			m.log.Warn().Err(err).Str("index", name).Str("doc", ev.DocID).Msg("purge cleanup failed")
		}
	}
}

// QueryRows runs a read-only SQL query against the index database and
// returns each row as a column-name-to-value map. It is the planner's only
// way to reach the index tables, keeping every access serialized through
// the same queue the rest of the Manager uses.
func (m *Manager) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	result, err := m.queue.Submit(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(query, args...)
		if err != nil {
			return nil, errs.Wrap(errs.ExecutionFailed, "execute query", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, errs.Wrap(errs.ExecutionFailed, "read query columns", err)
		}

		var out []map[string]interface{}
		for rows.Next() {
			vals := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, errs.Wrap(errs.ExecutionFailed, "scan query row", err)
			}
			row := make(map[string]interface{}, len(cols))
			for i, c := range cols {
				row[c] = vals[i]
			}
			out = append(out, row)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]map[string]interface{}), nil
}

// RowCount returns the number of rows materialized for an index, used by
// the planner as a cheap cardinality estimate when more than one index
// covers a query's fields.
func (m *Manager) RowCount(ctx context.Context, def Definition) (int64, error) {
	rows, err := m.QueryRows(ctx, fmt.Sprintf(`SELECT COUNT(*) AS n FROM "%s"`, tableName(def.Name)))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["n"].(int64)
	return n, nil
}

// Close unregisters from the document store and drains the index queue.
func (m *Manager) Close() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m.queue.Close()
}

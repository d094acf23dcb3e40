package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/internal/errs"
	"github.com/ketangupta550/docsync/revforest"
)

// IndexUpdateError records one index's failure to refresh during a
// multi-index update pass, per spec.md §4.4's per-index isolation rule:
// a failure on one index must not prevent the others from advancing.
type IndexUpdateError struct {
	Index string
	Err   error
}

func (e IndexUpdateError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Index, e.Err)
}

// UpdateAllIndexes refreshes every known index against the change feed,
// isolating failures per index. It returns the names successfully updated
// and any per-index failures; a non-empty failures slice is not itself a
// fatal error for the caller.
func (m *Manager) UpdateAllIndexes(ctx context.Context) ([]string, []IndexUpdateError) {
	names, err := m.listIndexNames(ctx)
	if err != nil {
		return nil, []IndexUpdateError{{Index: "*", Err: err}}
	}

	var ok []string
	var failures []IndexUpdateError
	for _, name := range names {
		if _, err := m.updateIndex(ctx, name); err != nil {
			failures = append(failures, IndexUpdateError{Index: name, Err: err})
			continue
		}
		ok = append(ok, name)
	}
	return ok, failures
}

// updateIndex brings a single index up to date with the change feed:
// walk every changed document since the index's last_sequence watermark,
// rebuild its revision forest, project the winning revision's fields, and
// upsert (delete+reinsert) the projected row.
func (m *Manager) updateIndex(ctx context.Context, name string) (int64, error) {
	def, found, err := m.lookupDefinition(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errs.New(errs.InvalidArgument, "no such index: "+name)
	}

	var changes []docstore.DocChange
	changes, err = m.store.Changes(ctx, def.LastSequence, changeBatchSize)
	if err != nil {
		return 0, errs.Wrap(errs.ExecutionFailed, "read change feed", err)
	}
	if len(changes) == 0 {
		return def.LastSequence, nil
	}

	// The whole batch — every document's projection plus the watermark
	// advance — runs inside one transaction, per spec.md §4.4 ("all in one
	// transaction per index... so that partial progress is never visible").
	// A crash or error partway through must leave either the old watermark
	// with the old rows, or the new watermark with every row in the batch
	// projected; it must never leave some docs projected and others not
	// while the watermark has already moved (or vice versa).
	newWatermark := def.LastSequence
	_, err = m.queue.SubmitTx(ctx, func(tx *sql.Tx) (interface{}, error) {
		for _, change := range changes {
			if err := m.projectDocument(ctx, tx, def, change.DocID); err != nil {
				return nil, errs.Wrap(errs.IndexOpFailed, "project document "+change.DocID, err)
			}
			if change.Sequence > newWatermark {
				newWatermark = change.Sequence
			}
		}
		if _, err := tx.Exec(fmt.Sprintf(
			`UPDATE %s SET last_sequence = ? WHERE index_name = ?`, metadataTable),
			newWatermark, name); err != nil {
			return nil, errs.Wrap(errs.IndexOpFailed, "advance watermark", err)
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	return newWatermark, nil
}

const changeBatchSize = 1000

// projectDocument rebuilds docID's revision forest, determines its winner
// (or absence of one), and replaces any previously materialized row(s) for
// docID in def's physical table with a fresh projection — or removes them
// entirely if the document has no current, non-deleted revision. It runs
// its SQL against the caller-supplied tx rather than opening its own, so a
// whole batch of documents commits or rolls back together (see
// updateIndex).
func (m *Manager) projectDocument(ctx context.Context, tx *sql.Tx, def Definition, docID string) error {
	revisions, err := m.store.Revisions(ctx, docID)
	if err != nil {
		return errs.Wrap(errs.ExecutionFailed, "load revisions", err)
	}

	forest := revforest.New()
	for _, rev := range revisions {
		if err := forest.Add(rev); err != nil {
			return err
		}
	}

	winner, err := forest.GetCurrentRevision()
	// A deleted winner is a tombstone: its rows are removed, none inserted.
	hasWinner := err == nil && !winner.Deleted
	if err != nil && !errs.Is(err, errs.NoCurrent) {
		return err
	}

	var body map[string]interface{}
	if hasWinner {
		body, err = m.store.Body(ctx, docID, winner.RevID)
		if err != nil {
			return errs.Wrap(errs.ExecutionFailed, "load document body", err)
		}
	}

	table := tableName(def.Name)
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM "%s" WHERE _id = ?`, table), docID); err != nil {
		return err
	}
	if !hasWinner {
		return nil
	}
	return insertProjectedRows(tx, def, table, docID, winner.RevID, body)
}

// insertProjectedRows inserts one row per combination of array-valued
// indexed fields, per spec.md §4.4: array expansion means a document whose
// indexed array field has N elements contributes N rows, one per element;
// object-valued fields project as NULL (objects are not indexable scalars).
func insertProjectedRows(tx *sql.Tx, def Definition, table, docID, revID string, body map[string]interface{}) error {
	rows := [][]interface{}{{}}
	cols := make([]string, len(def.Fields))

	for i, f := range def.Fields {
		cols[i] = columnName(f.Path)
		values := projectField(body, f.Path)
		rows = expandRows(rows, values)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)+2), ",")
	colList := "_id, _rev"
	for _, c := range cols {
		colList += fmt.Sprintf(`, "%s"`, c)
	}
	stmt := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, table, colList, placeholders)

	for _, row := range rows {
		args := make([]interface{}, 0, len(row)+2)
		args = append(args, docID, revID)
		args = append(args, row...)
		if _, err := tx.Exec(stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

// expandRows appends one new column of values to every existing partial
// row, cross-producing rows when values has more than one element (array
// expansion) and producing exactly one NULL column when values is empty.
func expandRows(rows [][]interface{}, values []interface{}) [][]interface{} {
	if len(values) == 0 {
		values = []interface{}{nil}
	}
	out := make([][]interface{}, 0, len(rows)*len(values))
	for _, row := range rows {
		for _, v := range values {
			next := make([]interface{}, len(row), len(row)+1)
			copy(next, row)
			out = append(out, append(next, v))
		}
	}
	return out
}

// projectField resolves a dotted path against body and returns the scalar
// value(s) found there: a single-element slice for a scalar, one element per
// entry for an array, or an empty slice if the path is absent, traverses
// through a non-object, or resolves to an object (objects are not
// indexable — they project as NULL per field, handled by the empty-slice
// case in expandRows).
func projectField(body map[string]interface{}, path string) []interface{} {
	segments := strings.Split(path, ".")
	var cur interface{} = body
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		v, present := m[seg]
		if !present {
			return nil
		}
		cur = v
	}

	switch v := cur.(type) {
	case map[string]interface{}:
		return nil
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, el := range v {
			if _, isObj := el.(map[string]interface{}); isObj {
				continue
			}
			if _, isArr := el.([]interface{}); isArr {
				continue
			}
			out = append(out, el)
		}
		return out
	default:
		return []interface{}{v}
	}
}

package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ketangupta550/docsync/internal/errs"
)

// EnsureIndexed runs the IndexCreator state machine from spec.md §4.3:
// validate, normalize the name, compare against any existing index of that
// name, create the physical table(s) and metadata rows, then trigger an
// initial update. It returns the final (possibly generated) index name.
func (m *Manager) EnsureIndexed(ctx context.Context, fields []FieldSpec, name string, kind Kind, tokenize string) (string, error) {
	if err := validateEnsureIndexed(fields, kind, tokenize); err != nil {
		return "", err
	}

	if name == "" {
		name = deterministicName(fields, kind, tokenize)
	} else if !ValidIdentifier(name) {
		return "", errs.New(errs.InvalidArgument, "index name does not match the identifier pattern")
	}

	existing, found, err := m.lookupDefinition(ctx, name)
	if err != nil {
		return "", err
	}
	wanted := Definition{Name: name, Kind: kind, Fields: fields}
	if tokenize != "" {
		wanted.Settings = map[string]interface{}{"tokenize": tokenize}
	}
	if found {
		if definitionsEquivalent(existing, wanted) {
			return name, nil
		}
		return "", errs.New(errs.IndexExists, "index exists with a different definition: "+name)
	}

	if kind == KindText && !m.IsTextSearchEnabled() {
		return "", errs.New(errs.TextSearchUnavailable, "full-text search is not available on this database")
	}

	if err := m.createPhysicalIndex(ctx, wanted); err != nil {
		return "", err
	}

	// The seed update runs in its own transaction, separate from creation;
	// per §5 a failure here leaves an empty but valid index that the next
	// updateAllIndexes call will populate, so we surface but don't unwind
	// the table/metadata just created.
	if _, err := m.updateIndex(ctx, name); err != nil {
		m.log.Warn().Err(err).Str("index", name).Msg("initial index seed failed; index left empty pending next update")
	}

	return name, nil
}

func validateEnsureIndexed(fields []FieldSpec, kind Kind, tokenize string) error {
	if kind != KindJSON && kind != KindText {
		return errs.New(errs.InvalidArgument, "kind must be json or text")
	}
	if tokenize != "" && kind != KindText {
		return errs.New(errs.InvalidArgument, "tokenize is only valid for text indexes")
	}
	if len(fields) == 0 {
		return errs.New(errs.InvalidArgument, "at least one field is required")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !ValidFieldPath(f.Path) {
			return errs.New(errs.InvalidArgument, "invalid field name: "+f.Path)
		}
		if seen[f.Path] {
			return errs.New(errs.InvalidArgument, "duplicate field in index definition: "+f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}

// deterministicName derives a stable name from a hash of the sorted field
// list, kind, and tokenize setting, per spec.md §4.3 step 2.
func deterministicName(fields []FieldSpec, kind Kind, tokenize string) string {
	sorted := make([]FieldSpec, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	for _, f := range sorted {
		fmt.Fprintf(&b, "%s:%v,", f.Path, f.Descending)
	}
	fmt.Fprintf(&b, "|%s|%s", kind, tokenize)

	sum := sha256.Sum256([]byte(b.String()))
	return "ix_" + hex.EncodeToString(sum[:])[:10]
}

func definitionsEquivalent(a, b Definition) bool {
	if a.Kind != b.Kind || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	at, aok := a.Tokenize()
	bt, bok := b.Tokenize()
	return aok == bok && at == bt
}

// createPhysicalIndex creates the table (or FTS virtual table) for def plus
// its metadata rows, in one transaction per spec.md §4.3 step 4.
func (m *Manager) createPhysicalIndex(ctx context.Context, def Definition) error {
	_, err := m.queue.SubmitTx(ctx, func(tx *sql.Tx) (interface{}, error) {
		table := tableName(def.Name)
		cols := make([]string, len(def.Fields))
		for i, f := range def.Fields {
			cols[i] = columnName(f.Path)
		}

		switch def.Kind {
		case KindJSON:
			ddl := fmt.Sprintf(`CREATE TABLE "%s" (_id TEXT NOT NULL, _rev TEXT NOT NULL%s)`,
				table, prefixedCols(cols))
			if _, err := tx.Exec(ddl); err != nil {
				return nil, errs.Wrap(errs.IndexOpFailed, "create index table", err)
			}
			idx := fmt.Sprintf(`CREATE INDEX "%s_cover" ON "%s" (_id, _rev%s)`,
				table, table, prefixedCols(cols))
			if _, err := tx.Exec(idx); err != nil {
				return nil, errs.Wrap(errs.IndexOpFailed, "create covering index", err)
			}
		case KindText:
			tokenizeSetting, _ := def.Tokenize()
			tokenizeClause := ""
			if tokenizeSetting != "" {
				tokenizeClause = fmt.Sprintf(`, tokenize=%s`, tokenizeSetting)
			}
			ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE "%s" USING fts4(_id, _rev%s%s)`,
				table, bareCols(cols), tokenizeClause)
			if _, err := tx.Exec(ddl); err != nil {
				return nil, errs.Wrap(errs.IndexOpFailed, "create fts index table", err)
			}
		}

		settingsJSON, err := json.Marshal(def.Settings)
		if err != nil {
			return nil, errs.Wrap(errs.IndexOpFailed, "marshal index settings", err)
		}
		for i, f := range def.Fields {
			_, err := tx.Exec(fmt.Sprintf(`
				INSERT INTO %s (index_name, index_type, field_name, field_order, field_desc, last_sequence, index_settings)
				VALUES (?, ?, ?, ?, ?, 0, ?)`, metadataTable),
				def.Name, string(def.Kind), f.Path, i, boolToInt(f.Descending), string(settingsJSON))
			if err != nil {
				return nil, errs.Wrap(errs.IndexOpFailed, "insert index metadata", err)
			}
		}
		return nil, nil
	})
	return err
}

// prefixedCols renders each column as ", \"name\" TEXT" for a plain table
// definition.
func prefixedCols(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, `, "%s" TEXT`, c)
	}
	return b.String()
}

// bareCols renders each column as ", \"name\"" with no type, for an FTS4
// virtual table definition where column types are not meaningful.
func bareCols(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, `, "%s"`, c)
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package index implements the Index Manager (IM): named secondary indexes
// materialized as SQLite tables, incrementally refreshed from a docstore.Store
// and queried via the query package's planner. Grounded on the teacher's
// collection_indexes.go/_impl.go "ensure index, list indexes, drop index"
// trio, reworked from ArangoDB's HTTP index API onto local SQL DDL/DML driven
// through sqlstore.Queue.
package index

import (
	"regexp"
	"strings"
)

// Kind is the index flavor: a JSON-projection table or a full-text virtual
// table.
type Kind string

// Symbolic constants for index kinds.
const (
	KindJSON Kind = "json"
	KindText Kind = "text"
)

// FieldSpec names one indexed field: a dotted path into the document body
// plus a sort direction hint.
type FieldSpec struct {
	Path       string
	Descending bool
}

// Definition is the persistent record for one index: its metadata-table rows
// assembled into a single struct.
type Definition struct {
	Name         string
	Kind         Kind
	Fields       []FieldSpec
	Settings     map[string]interface{}
	LastSequence int64
}

// Tokenize returns the FTS tokenize setting, if any.
func (d Definition) Tokenize() (string, bool) {
	if d.Settings == nil {
		return "", false
	}
	v, ok := d.Settings["tokenize"].(string)
	return v, ok
}

const (
	metadataTable   = "_t_cloudant_sync_query_metadata"
	indexTablePrefix = "_t_cloudant_sync_query_index_"
	ftsProbeTable   = "_t_cloudant_sync_query_fts_check"
)

// identifierPattern matches valid index names and field column names per
// spec.md §3: "^[A-Za-z][A-Za-z0-9_]*$".
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is a legal index name or field column
// name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// tableName returns the physical table name for an index of the given name.
func tableName(name string) string {
	return indexTablePrefix + name
}

// TableName exports tableName for callers outside the package (the query
// planner, which builds SQL against index tables directly).
func TableName(name string) string {
	return tableName(name)
}

// ColumnName exports columnName for callers outside the package.
func ColumnName(path string) string {
	return columnName(path)
}

// ValidFieldPath reports whether every dot-separated segment of path is a
// legal identifier.
func ValidFieldPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if !identifierPattern.MatchString(seg) {
			return false
		}
	}
	return true
}

// columnName returns the physical column name for an indexed field path.
// Dots in the dotted path are not legal in a bare SQL identifier, so they are
// replaced with underscores; field paths are validated with ValidFieldPath
// before this is ever called.
func columnName(path string) string {
	return "f_" + strings.ReplaceAll(path, ".", "_")
}

// Package query implements the QueryExecutor described in spec.md §4.5: a
// small query AST, a planner that picks covering indexes per conjunct and
// intersects disjoint-field-set results, and a lazy result type that joins
// back to a docstore.Store by (_id, _rev).
package query

// Query is a nested mapping of field name to Selector. Keys are implicitly
// ANDed together, matching the "nested mapping of field → selector" shape
// named in the component design.
type Query map[string]Selector

// Selector is a closed sum type: exactly one of its fields should be set on
// any given value. This is the minimum AST needed to exercise every planning
// rule in the design — it is not a general Mango/AQL clone.
type Selector struct {
	Eq     interface{}
	Ne     interface{}
	In     []interface{}
	Exists *bool
	And    []Query
	Or     []Query
	Not    *Query
	Text   string
}

// IsText reports whether this selector is a full-text conjunct, which
// requires a text index rather than a json one.
func (s Selector) IsText() bool {
	return s.Text != ""
}

// SortField names one sort key and its direction.
type SortField struct {
	Path       string
	Descending bool
}

// FindOptions carries the find() operation's non-AST parameters.
type FindOptions struct {
	Skip   int
	Limit  int
	Fields []string
	Sort   []SortField
}

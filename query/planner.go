package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/index"
	"github.com/ketangupta550/docsync/internal/errs"
)

// Planner executes Query values against a Manager's indexes, joining
// matches back to a docstore.Store to materialize full documents.
// Grounded on the teacher's cursor_impl.go (plan once, then stream results
// back), reworked from an AQL cursor onto a covering-index SQL planner.
type Planner struct {
	Indexes *index.Manager
	Store   docstore.Store
}

// New returns a Planner over the given index manager and document store.
func New(indexes *index.Manager, store docstore.Store) *Planner {
	return &Planner{Indexes: indexes, Store: store}
}

type docRef struct {
	id  string
	rev string
}

// Find runs q against the current indexes and returns a lazily-materializing
// Result. It refreshes every index first, per spec.md §4.2's "find calls
// updateAllIndexes() first, then planner" contract. Refresh failures are not
// reported and do not block planning: an index whose refresh failed stays
// eligible and is queried with the rows it already holds.
func (p *Planner) Find(ctx context.Context, q Query, opts FindOptions) (*Result, error) {
	if len(q) == 0 {
		return nil, errs.New(errs.InvalidQuery, "query must have at least one conjunct")
	}
	p.Indexes.UpdateAllIndexes(ctx)

	refs, sorted, limited, err := p.plan(ctx, q, opts)
	if err != nil {
		return nil, err
	}

	if !sorted && len(opts.Sort) > 0 {
		if err := p.sortInMemory(ctx, refs, opts.Sort); err != nil {
			return nil, err
		}
	}

	if !limited {
		refs = applySkipLimit(refs, opts.Skip, opts.Limit)
	}

	return &Result{store: p.Store, refs: refs, fields: opts.Fields}, nil
}

// plan resolves q into an ordered list of matching document references. It
// returns sorted=true if the chosen query path already produced rows in
// opts.Sort order via SQL (no in-memory post-sort needed), and limited=true
// if skip/limit were already applied in SQL (no post-processing needed).
func (p *Planner) plan(ctx context.Context, q Query, opts FindOptions) ([]docRef, bool, bool, error) {
	if fastPath, ok, sorted, limited, err := p.tryFastPath(ctx, q, opts); ok {
		return fastPath, sorted, limited, err
	}

	ids, err := p.resolveQuery(ctx, q)
	if err != nil {
		return nil, false, false, err
	}
	return sortedRefs(ids), false, false, nil
}

// tryFastPath handles the common single-conjunct case in one SQL statement,
// including ORDER BY/LIMIT/OFFSET pushed down when the chosen index covers
// every requested sort field, matching spec.md §4.5 step 4's "must be a
// covered field of the chosen index" fast path.
func (p *Planner) tryFastPath(ctx context.Context, q Query, opts FindOptions) ([]docRef, bool, bool, bool, error) {
	if len(q) != 1 {
		return nil, false, false, false, nil
	}
	var field string
	var sel Selector
	for f, s := range q {
		field, sel = f, s
	}
	if len(sel.And) > 0 || len(sel.Or) > 0 || sel.Not != nil || sel.IsText() {
		return nil, false, false, false, nil
	}

	def, err := p.pickIndex(ctx, []string{field}, index.KindJSON)
	if err != nil {
		return nil, true, false, false, err
	}

	covers := fieldsCoverSort(def, opts.Sort)
	pred, args, err := buildPredicate(index.ColumnName(field), sel)
	if err != nil {
		return nil, true, false, false, err
	}

	sqlQuery := fmt.Sprintf(`SELECT _id, _rev FROM "%s" WHERE %s`, index.TableName(def.Name), pred)
	limited := false
	if covers {
		if len(opts.Sort) > 0 {
			sqlQuery += " ORDER BY " + orderByClause(opts.Sort)
		}
		if opts.Limit > 0 {
			sqlQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Skip)
			limited = true
		} else if opts.Skip > 0 {
			sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", opts.Skip)
			limited = true
		}
	}

	rows, err := p.Indexes.QueryRows(ctx, sqlQuery, args...)
	if err != nil {
		return nil, true, false, false, err
	}
	refs := make([]docRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, docRef{id: asString(r["_id"]), rev: asString(r["_rev"])})
	}

	return refs, true, covers, limited, nil
}

func fieldsCoverSort(def index.Definition, sortFields []SortField) bool {
	if len(sortFields) == 0 {
		return true
	}
	covered := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		covered[f.Path] = true
	}
	for _, s := range sortFields {
		if !covered[s.Path] {
			return false
		}
	}
	return true
}

func orderByClause(sortFields []SortField) string {
	parts := make([]string, len(sortFields))
	for i, s := range sortFields {
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf(`"%s" %s`, index.ColumnName(s.Path), dir)
	}
	return strings.Join(parts, ", ")
}

// resolveQuery intersects the id sets of every top-level conjunct (the map
// keys are implicitly ANDed).
func (p *Planner) resolveQuery(ctx context.Context, q Query) (map[string]string, error) {
	if len(q) == 0 {
		return nil, errs.New(errs.InvalidQuery, "query must have at least one conjunct")
	}
	var result map[string]string
	first := true
	for field, sel := range q {
		ids, err := p.resolveConjunct(ctx, field, sel)
		if err != nil {
			return nil, err
		}
		if first {
			result = ids
			first = false
			continue
		}
		result = intersect(result, ids)
	}
	return result, nil
}

func (p *Planner) resolveConjunct(ctx context.Context, field string, sel Selector) (map[string]string, error) {
	switch {
	case len(sel.And) > 0:
		var result map[string]string
		first := true
		for _, sub := range sel.And {
			ids, err := p.resolveQuery(ctx, sub)
			if err != nil {
				return nil, err
			}
			if first {
				result = ids
				first = false
				continue
			}
			result = intersect(result, ids)
		}
		return result, nil
	case len(sel.Or) > 0:
		union := map[string]string{}
		for _, sub := range sel.Or {
			ids, err := p.resolveQuery(ctx, sub)
			if err != nil {
				return nil, err
			}
			for id, rev := range ids {
				union[id] = rev
			}
		}
		return union, nil
	case sel.Not != nil:
		return p.resolveNot(ctx, *sel.Not)
	case sel.IsText():
		return p.resolveText(ctx, field, sel.Text)
	default:
		return p.resolveSimple(ctx, field, sel)
	}
}

func (p *Planner) resolveSimple(ctx context.Context, field string, sel Selector) (map[string]string, error) {
	def, err := p.pickIndex(ctx, []string{field}, index.KindJSON)
	if err != nil {
		return nil, err
	}
	pred, args, err := buildPredicate(index.ColumnName(field), sel)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT _id, _rev FROM "%s" WHERE %s`, index.TableName(def.Name), pred)
	rows, err := p.Indexes.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return rowsToIDSet(rows), nil
}

// resolveText handles a full-text conjunct via an FTS4 column-filtered
// MATCH query against the text index whose field list names field.
func (p *Planner) resolveText(ctx context.Context, field, term string) (map[string]string, error) {
	def, err := p.pickIndex(ctx, []string{field}, index.KindText)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT _id, _rev FROM "%s" WHERE "%s" MATCH ?`, index.TableName(def.Name), index.TableName(def.Name))
	rows, err := p.Indexes.QueryRows(ctx, q, index.ColumnName(field)+":"+term)
	if err != nil {
		return nil, err
	}
	return rowsToIDSet(rows), nil
}

// resolveNot handles negation of a single plain field conjunct. Anything
// more elaborate (a Not wrapping And/Or/Text/another Not) is outside this
// AST's supported surface and is rejected as InvalidQuery — the design is
// deliberately not a general-purpose query clone.
func (p *Planner) resolveNot(ctx context.Context, sub Query) (map[string]string, error) {
	if len(sub) != 1 {
		return nil, errs.New(errs.InvalidQuery, "not selector must wrap exactly one field conjunct")
	}
	var field string
	var sel Selector
	for f, s := range sub {
		field, sel = f, s
	}
	if len(sel.And) > 0 || len(sel.Or) > 0 || sel.Not != nil || sel.IsText() {
		return nil, errs.New(errs.InvalidQuery, "not selector only supports a plain field comparison")
	}

	def, err := p.pickIndex(ctx, []string{field}, index.KindJSON)
	if err != nil {
		return nil, err
	}
	pred, args, err := buildNegatedPredicate(index.ColumnName(field), sel)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT _id, _rev FROM "%s" WHERE %s`, index.TableName(def.Name), pred)
	rows, err := p.Indexes.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return rowsToIDSet(rows), nil
}

// pickIndex chooses, among the indexes of the given kind that cover every
// field in fields, the one with the fewest materialized rows — the
// "smallest-cardinality covering index" rule of spec.md §4.5 step 2.
func (p *Planner) pickIndex(ctx context.Context, fields []string, kind index.Kind) (index.Definition, error) {
	defs, err := p.Indexes.ListIndexes(ctx)
	if err != nil {
		return index.Definition{}, err
	}

	var candidates []index.Definition
	for _, d := range defs {
		if d.Kind != kind {
			continue
		}
		if coversFields(d, fields) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return index.Definition{}, errs.New(errs.NoUsableIndex,
			fmt.Sprintf("no %s index covers fields %v", kind, fields))
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	best := candidates[0]
	bestCount, _ := p.Indexes.RowCount(ctx, best)
	for _, c := range candidates[1:] {
		count, err := p.Indexes.RowCount(ctx, c)
		if err != nil {
			continue
		}
		if count < bestCount {
			best, bestCount = c, count
		}
	}
	return best, nil
}

func coversFields(def index.Definition, fields []string) bool {
	have := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		have[f.Path] = true
	}
	for _, f := range fields {
		if !have[f] {
			return false
		}
	}
	return true
}

// buildPredicate renders one simple (non-composite) selector as a SQL
// fragment over the given physical column name.
func buildPredicate(col string, sel Selector) (string, []interface{}, error) {
	quoted := `"` + col + `"`
	switch {
	case sel.Eq != nil:
		return quoted + " = ?", []interface{}{sel.Eq}, nil
	case sel.Ne != nil:
		return quoted + " != ?", []interface{}{sel.Ne}, nil
	case sel.In != nil:
		if len(sel.In) == 0 {
			return "", nil, errs.New(errs.InvalidQuery, "in selector must not be empty")
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sel.In)), ",")
		return quoted + " IN (" + placeholders + ")", sel.In, nil
	case sel.Exists != nil:
		if *sel.Exists {
			return quoted + " IS NOT NULL", nil, nil
		}
		return quoted + " IS NULL", nil, nil
	default:
		return "", nil, errs.New(errs.InvalidQuery, "selector has no comparison set")
	}
}

// buildNegatedPredicate renders the logical negation of a simple selector,
// treating a NULL column (an absent or non-indexable field) as matching the
// negation — plain SQL `NOT (col = ?)` would silently exclude NULL rows
// under three-valued logic, which is not what "field does not equal x"
// means for a missing field.
func buildNegatedPredicate(col string, sel Selector) (string, []interface{}, error) {
	quoted := `"` + col + `"`
	switch {
	case sel.Eq != nil:
		return quoted + " IS NULL OR " + quoted + " != ?", []interface{}{sel.Eq}, nil
	case sel.Ne != nil:
		return quoted + " IS NULL OR " + quoted + " = ?", []interface{}{sel.Ne}, nil
	case sel.In != nil:
		if len(sel.In) == 0 {
			return "", nil, errs.New(errs.InvalidQuery, "in selector must not be empty")
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sel.In)), ",")
		return quoted + " IS NULL OR " + quoted + " NOT IN (" + placeholders + ")", sel.In, nil
	case sel.Exists != nil:
		if *sel.Exists {
			return quoted + " IS NULL", nil, nil
		}
		return quoted + " IS NOT NULL", nil, nil
	default:
		return "", nil, errs.New(errs.InvalidQuery, "selector has no comparison set")
	}
}

func rowsToIDSet(rows []map[string]interface{}) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[asString(r["_id"])] = asString(r["_rev"])
	}
	return out
}

func intersect(a, b map[string]string) map[string]string {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	out := make(map[string]string, len(small))
	for id, rev := range small {
		if _, ok := large[id]; ok {
			out[id] = rev
		}
	}
	return out
}

func sortedRefs(ids map[string]string) []docRef {
	out := make([]docRef, 0, len(ids))
	for id, rev := range ids {
		out = append(out, docRef{id: id, rev: rev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func applySkipLimit(refs []docRef, skip, limit int) []docRef {
	if skip > 0 {
		if skip >= len(refs) {
			return nil
		}
		refs = refs[skip:]
	}
	if limit > 0 && limit < len(refs) {
		refs = refs[:limit]
	}
	return refs
}

// sortInMemory fetches every matched document's body and sorts refs in
// place by the requested sort fields, the fallback path of spec.md §4.5
// step 4 for sort fields not covered by the chosen index.
func (p *Planner) sortInMemory(ctx context.Context, refs []docRef, sortFields []SortField) error {
	bodies := make([]map[string]interface{}, len(refs))
	for i, r := range refs {
		body, err := p.Store.Body(ctx, r.id, r.rev)
		if err != nil {
			return errs.Wrap(errs.ExecutionFailed, "load document for in-memory sort", err)
		}
		bodies[i] = body
	}

	idx := make([]int, len(refs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for _, s := range sortFields {
			va := lookupPath(bodies[idx[a]], s.Path)
			vb := lookupPath(bodies[idx[b]], s.Path)
			cmp := compareValues(va, vb)
			if cmp == 0 {
				continue
			}
			if s.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	sortedRefs := make([]docRef, len(refs))
	for i, j := range idx {
		sortedRefs[i] = refs[j]
	}
	copy(refs, sortedRefs)
	return nil
}

func lookupPath(body map[string]interface{}, path string) interface{} {
	var cur interface{} = body
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// compareValues orders two field values for sorting: numbers by magnitude,
// strings lexicographically, everything else falls back to a string
// comparison of their formatted form so sort never panics on mixed types.
func compareValues(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

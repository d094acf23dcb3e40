package query

import (
	"context"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/internal/errs"
)

// DocumentRevision is one materialized query match: the winning revision's
// identity plus its (optionally field-projected) body.
type DocumentRevision struct {
	DocID string
	RevID string
	Body  map[string]interface{}
}

// Result is a lazy iterator over a planned query's matches: the (_id, _rev)
// pairs are resolved up front by the planner, but each document's body is
// only fetched from the store when Next is called, matching spec.md §4.5's
// "lazy DocumentRevision materialization by (_id, _rev) join back to the
// document store."
type Result struct {
	store  docstore.Store
	refs   []docRef
	fields []string
	pos    int
	cur    DocumentRevision
	err    error
}

// Next advances to the next match, fetching its body from the store. It
// returns false once every match has been visited or a fetch fails; callers
// should check Err after Next returns false.
func (r *Result) Next(ctx context.Context) bool {
	if r.err != nil || r.pos >= len(r.refs) {
		return false
	}
	ref := r.refs[r.pos]
	r.pos++

	body, err := r.store.Body(ctx, ref.id, ref.rev)
	if err != nil {
		r.err = errs.Wrap(errs.ExecutionFailed, "load matched document body", err)
		return false
	}
	r.cur = DocumentRevision{DocID: ref.id, RevID: ref.rev, Body: projectFields(body, r.fields)}
	return true
}

// Doc returns the document revision loaded by the most recent Next call.
func (r *Result) Doc() DocumentRevision {
	return r.cur
}

// Err returns the error, if any, that caused Next to stop early.
func (r *Result) Err() error {
	return r.err
}

// Len reports the total number of matches, independent of iteration
// position.
func (r *Result) Len() int {
	return len(r.refs)
}

// projectFields restricts body to the requested top-level field names; an
// empty fields list returns body unchanged.
func projectFields(body map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 || body == nil {
		return body
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := body[f]; ok {
			out[f] = v
		}
	}
	return out
}

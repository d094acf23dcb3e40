// Package sqlstore implements the single-writer serialized queue described
// in spec.md §5: every read and write against the index database is
// submitted here and executed one at a time, optionally wrapped in a
// transaction, so no in-process locking is needed on the database handle.
// Grounded on the teacher's Connection/Request submission pattern
// (client_impl.go: NewRequest then Do, one call in flight at a time against
// a single logical connection) but driven by database/sql against an
// embedded SQLite file instead of an HTTP round trip.
package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ketangupta550/docsync/internal/errs"
)

// ReadFunc is a callable submitted for non-transactional execution.
type ReadFunc func(db *sql.DB) (interface{}, error)

// TxFunc is a callable submitted for execution inside one transaction.
type TxFunc func(tx *sql.Tx) (interface{}, error)

type job struct {
	ctx    context.Context
	read   ReadFunc
	tx     TxFunc
	result chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// Queue serializes all access to one SQLite file through a single goroutine.
type Queue struct {
	db     *sql.DB
	jobs   chan job
	done   chan struct{}
	wg     sync.WaitGroup
	log    zerolog.Logger
	closed chan struct{}
	once   sync.Once
}

// Open opens (creating if needed) the SQLite file at path and starts the
// single writer goroutine. Callers should Close the returned Queue when
// done.
func Open(path string, log zerolog.Logger) (*Queue, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errs.Wrap(errs.IndexOpFailed, "open sqlite database", err)
	}
	// A single connection mirrors the single-writer model: there is never a
	// second connection racing this one for the write lock.
	db.SetMaxOpenConns(1)

	q := &Queue{
		db:     db,
		jobs:   make(chan job),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		log:    log,
	}
	q.wg.Add(1)
	go q.loop()
	return q, nil
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(j)
		case <-q.done:
			// Drain whatever is already queued before exiting, per §5:
			// "pending submissions may be discarded on shutdown; in-flight
			// transactions are committed or rolled back... not interrupted
			// mid-statement." We stop accepting new work in Close and only
			// finish what's already been handed to us.
			for {
				select {
				case j, ok := <-q.jobs:
					if !ok {
						return
					}
					q.run(j)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(j job) {
	if j.read != nil {
		v, err := j.read(q.db)
		j.result <- jobResult{v, err}
		return
	}

	tx, err := q.db.BeginTx(j.ctx, nil)
	if err != nil {
		j.result <- jobResult{nil, errs.Wrap(errs.ExecutionFailed, "begin transaction", err)}
		return
	}
	v, err := j.tx(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			q.log.Error().Err(rbErr).Msg("rollback failed after task error")
		}
		j.result <- jobResult{nil, err}
		return
	}
	if err := tx.Commit(); err != nil {
		j.result <- jobResult{nil, errs.Wrap(errs.ExecutionFailed, "commit transaction", err)}
		return
	}
	j.result <- jobResult{v, nil}
}

// ErrQueueClosed is returned by Submit/SubmitTx once Close has been called.
var ErrQueueClosed = errs.New(errs.Interrupted, "queue is closed")

func (q *Queue) submit(ctx context.Context, j job) (interface{}, error) {
	select {
	case <-q.closed:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Interrupted, "submission canceled", ctx.Err())
	case <-q.closed:
		return nil, ErrQueueClosed
	}

	select {
	case res := <-j.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Interrupted, "execution canceled", ctx.Err())
	}
}

// Submit runs fn against the shared database handle without a transaction,
// serialized with respect to every other Submit/SubmitTx call.
func (q *Queue) Submit(ctx context.Context, fn ReadFunc) (interface{}, error) {
	return q.submit(ctx, job{ctx: ctx, read: fn, result: make(chan jobResult, 1)})
}

// SubmitTx runs fn inside one transaction, committed on success and rolled
// back if fn returns an error.
func (q *Queue) SubmitTx(ctx context.Context, fn TxFunc) (interface{}, error) {
	return q.submit(ctx, job{ctx: ctx, tx: fn, result: make(chan jobResult, 1)})
}

// Close stops accepting new submissions, lets in-flight and already-queued
// work finish, and closes the underlying database handle.
func (q *Queue) Close() error {
	q.once.Do(func() {
		close(q.closed)
		close(q.done)
	})
	q.wg.Wait()
	return q.db.Close()
}

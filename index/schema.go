package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/google/uuid"

	"github.com/ketangupta550/docsync/internal/errs"
)

// migration is one idempotent schema step, tagged with the version it
// brings the database to. Grounded on the sqlite-schema-as-string-constant
// idiom seen across the pack (tessera, beads): CREATE TABLE IF NOT EXISTS
// blocks applied in order.
type migration struct {
	version *semver.Version
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{
		version: semver.New("1.0.0"),
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					index_name TEXT NOT NULL,
					index_type TEXT NOT NULL,
					field_name TEXT NOT NULL,
					last_sequence INTEGER NOT NULL DEFAULT 0,
					index_settings TEXT,
					PRIMARY KEY (index_name, field_name)
				)`, metadataTable))
			return err
		},
	},
	{
		// v2 adds an explicit ordering column so listIndexes can reconstruct
		// the original field order (spec.md §4.2: "preserving insertion
		// order from the underlying rowid") even after row deletes/inserts
		// have disturbed rowid order. ALTER TABLE ADD COLUMN against a
		// column that already exists fails in SQLite, so this tolerates
		// "duplicate column name" to stay idempotent across repeated opens.
		version: semver.New("2.0.0"),
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				fmt.Sprintf(`ALTER TABLE %s ADD COLUMN field_order INTEGER NOT NULL DEFAULT 0`, metadataTable),
				fmt.Sprintf(`ALTER TABLE %s ADD COLUMN field_desc INTEGER NOT NULL DEFAULT 0`, metadataTable),
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil && !isDuplicateColumn(err) {
					return err
				}
			}
			return nil
		},
	},
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func applyMigrations(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return errs.Wrap(errs.IndexOpFailed, "begin migration transaction", err)
	}
	for _, m := range migrations {
		if err := m.apply(tx); err != nil {
			_ = tx.Rollback()
			return errs.Wrap(errs.IndexOpFailed, "apply migration "+m.version.String(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.IndexOpFailed, "commit migration transaction", err)
	}
	return nil
}

// probeFTS determines whether the SQLite build backing db supports FTS4, per
// spec.md §4.2 step 3: create then immediately drop a scratch virtual table
// in one transaction. A uuid-suffixed table name keeps concurrent probes
// (e.g. from two Managers opened against the same file in tests) from
// colliding.
func probeFTS(db *sql.DB) bool {
	table := fmt.Sprintf("%s_%s", ftsProbeTable, uuid.NewString())
	tx, err := db.Begin()
	if err != nil {
		return false
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(fmt.Sprintf(`CREATE VIRTUAL TABLE "%s" USING fts4(probe)`, table)); err != nil {
		return false
	}
	if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE "%s"`, table)); err != nil {
		return false
	}
	// Roll back rather than commit: this is a capability probe, it must
	// leave no trace regardless of success.
	return true
}

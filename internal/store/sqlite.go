package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/menu-cli/internal/guard"
	"github.com/sells-group/menu-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	guard *guard.Guard

	// writeMu serializes SaveMenu so the read-evaluate-write sequence of
	// one business cannot interleave with another writer in this process.
	writeMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, g *guard.Guard) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if g == nil {
		g = guard.Default()
	}
	return &SQLiteStore{db: db, guard: g}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS menus (
	business_id TEXT PRIMARY KEY,
	business    TEXT NOT NULL,
	document    TEXT NOT NULL,
	quality     REAL NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS menu_runs (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	accepted    INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	items       INTEGER NOT NULL DEFAULT 0,
	sections    INTEGER NOT NULL DEFAULT 0,
	quality     REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_menu_runs_business ON menu_runs(business_id, created_at);
`

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetMenu implements Store.
func (s *SQLiteStore) GetMenu(ctx context.Context, businessID string) (*Record, error) {
	var bizJSON, docJSON string
	var quality float64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT business, document, quality, updated_at FROM menus WHERE business_id = ?`,
		businessID,
	).Scan(&bizJSON, &docJSON, &quality, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get menu %s", businessID)
	}
	return decodeRecord(businessID, []byte(bizJSON), []byte(docJSON), quality, updatedAt)
}

// SaveMenu implements Store.
func (s *SQLiteStore) SaveMenu(ctx context.Context, businessID string, desc model.BusinessDescriptor, doc *model.MenuDocument) (*SaveResult, error) {
	if err := requireID(businessID); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback() //nolint:errcheck

	var prev []byte
	var prevJSON string
	err = tx.QueryRowContext(ctx, `SELECT document FROM menus WHERE business_id = ?`, businessID).Scan(&prevJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: read menu %s", businessID)
	default:
		prev = []byte(prevJSON)
	}

	ev, err := evaluate(s.guard, businessID, desc, prev, doc, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if ev.decision.Accept {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO menus (business_id, business, document, quality, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(business_id) DO UPDATE SET business = excluded.business, document = excluded.document,
			 quality = excluded.quality, updated_at = excluded.updated_at`,
			businessID, string(ev.bizJSON), string(ev.docJSON), ev.run.Quality, ev.run.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert menu %s", businessID)
		}
	}

	r := ev.run
	_, err = tx.ExecContext(ctx,
		`INSERT INTO menu_runs (id, business_id, accepted, reason, detail, items, sections, quality, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BusinessID, r.Accepted, r.Reason, r.Detail, r.Items, r.Sections, r.Quality, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save")
	}
	return ev.result(), nil
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, businessID string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, accepted, reason, detail, items, sections, quality, created_at
		 FROM menu_runs WHERE business_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		businessID, runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.Accepted, &r.Reason, &r.Detail, &r.Items, &r.Sections, &r.Quality, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

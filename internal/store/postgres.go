package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/db"
	"github.com/sells-group/menu-cli/internal/guard"
	"github.com/sells-group/menu-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool  db.Pool
	guard *guard.Guard
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int32, g *guard.Guard) (*PostgresStore, error) {
	if connString == "" {
		return nil, eris.New("postgres: database url is required")
	}
	pool, err := db.Open(ctx, connString, db.PoolConfig{MaxConns: maxConns})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return newPostgresStore(pool, g), nil
}

func newPostgresStore(pool db.Pool, g *guard.Guard) *PostgresStore {
	if g == nil {
		g = guard.Default()
	}
	return &PostgresStore{pool: pool, guard: g}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS menus (
	business_id TEXT PRIMARY KEY,
	business    JSONB NOT NULL,
	document    JSONB NOT NULL,
	quality     DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS menu_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id TEXT NOT NULL,
	accepted    BOOLEAN NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	items       INTEGER NOT NULL DEFAULT 0,
	sections    INTEGER NOT NULL DEFAULT 0,
	quality     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_menu_runs_business ON menu_runs(business_id, created_at DESC);
`

// menuUpsert is built once; the column list is fixed.
var menuUpsert = mustUpsert(db.UpsertConfig{
	Table:        "menus",
	Columns:      []string{"business_id", "business", "document", "quality", "updated_at"},
	ConflictKeys: []string{"business_id"},
})

func mustUpsert(cfg db.UpsertConfig) string {
	q, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return q
}

// Migrate creates the tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetMenu implements Store.
func (s *PostgresStore) GetMenu(ctx context.Context, businessID string) (*Record, error) {
	var bizJSON, docJSON []byte
	var quality float64
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT business, document, quality, updated_at FROM menus WHERE business_id = $1`,
		businessID,
	).Scan(&bizJSON, &docJSON, &quality, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get menu %s", businessID)
	}
	return decodeRecord(businessID, bizJSON, docJSON, quality, updatedAt)
}

// SaveMenu implements Store. A transaction-scoped advisory lock on the
// business id serializes concurrent saves across processes.
func (s *PostgresStore) SaveMenu(ctx context.Context, businessID string, desc model.BusinessDescriptor, doc *model.MenuDocument) (*SaveResult, error) {
	if err := requireID(businessID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, businessID); err != nil {
		return nil, eris.Wrapf(err, "postgres: lock %s", businessID)
	}

	var prev []byte
	err = tx.QueryRow(ctx, `SELECT document FROM menus WHERE business_id = $1`, businessID).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: read menu %s", businessID)
	}

	ev, err := evaluate(s.guard, businessID, desc, prev, doc, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if ev.decision.Accept {
		if _, err := tx.Exec(ctx, menuUpsert, businessID, ev.bizJSON, ev.docJSON, ev.run.Quality, ev.run.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert menu %s", businessID)
		}
	}

	r := ev.run
	_, err = tx.Exec(ctx,
		`INSERT INTO menu_runs (id, business_id, accepted, reason, detail, items, sections, quality, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.BusinessID, r.Accepted, r.Reason, r.Detail, r.Items, r.Sections, r.Quality, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit save")
	}
	return ev.result(), nil
}

// ListRuns implements Store.
func (s *PostgresStore) ListRuns(ctx context.Context, businessID string, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, accepted, reason, detail, items, sections, quality, created_at
		 FROM menu_runs WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`,
		businessID, runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.Accepted, &r.Reason, &r.Detail, &r.Items, &r.Sections, &r.Quality, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

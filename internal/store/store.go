// Package store persists menu documents per business and applies the
// regression guard when a new document is saved.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/guard"
	"github.com/sells-group/menu-cli/internal/metrics"
	"github.com/sells-group/menu-cli/internal/model"
)

// Store is the persistence interface for menu documents.
type Store interface {
	// GetMenu returns the stored record, or nil when the business has none.
	GetMenu(ctx context.Context, businessID string) (*Record, error)
	// SaveMenu evaluates doc against the stored document and replaces it
	// only when the guard accepts. Every call is recorded as a run.
	SaveMenu(ctx context.Context, businessID string, desc model.BusinessDescriptor, doc *model.MenuDocument) (*SaveResult, error)
	// ListRuns returns the most recent runs for a business, newest first.
	ListRuns(ctx context.Context, businessID string, limit int) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Record is the accepted menu of one business.
type Record struct {
	BusinessID string                   `json:"business_id"`
	Business   model.BusinessDescriptor `json:"business"`
	Document   *model.MenuDocument      `json:"document"`
	Quality    float64                  `json:"quality"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// Run is one save attempt and the guard's verdict on it.
type Run struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Accepted   bool      `json:"accepted"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Items      int       `json:"items"`
	Sections   int       `json:"sections"`
	Quality    float64   `json:"quality"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveResult reports what SaveMenu did.
type SaveResult struct {
	RunID    string         `json:"run_id"`
	Decision guard.Decision `json:"decision"`
	Stored   bool           `json:"stored"`
}

const defaultRunLimit = 100

// Open returns the store selected by cfg.Driver ("sqlite" or "postgres").
// A nil guard uses guard.Default().
func Open(ctx context.Context, cfg config.StoreConfig, g *guard.Guard) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "menu.db"
		}
		return NewSQLite(dsn, g)
	case "postgres", "postgresql":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns, g)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// evaluation is the outcome of comparing a new document with the stored one.
type evaluation struct {
	run      Run
	decision guard.Decision
	docJSON  []byte
	bizJSON  []byte
}

// evaluate decodes the previous document (prevJSON may be nil), runs the
// guard and prepares the run row and encoded columns.
func evaluate(g *guard.Guard, businessID string, desc model.BusinessDescriptor, prevJSON []byte, doc *model.MenuDocument, now time.Time) (*evaluation, error) {
	if doc == nil {
		doc = model.EmptyDocument()
	}

	var prev *model.MenuDocument
	if prevJSON != nil {
		prev = &model.MenuDocument{}
		if err := json.Unmarshal(prevJSON, prev); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal previous document")
		}
	}

	d := g.Evaluate(prev, doc)

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal document")
	}
	bizJSON, err := json.Marshal(desc)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal business")
	}

	if !d.Accept {
		zap.L().Warn("store: menu update rejected",
			zap.String("business_id", businessID),
			zap.String("reason", d.Reason),
			zap.String("detail", d.Detail),
		)
	}

	return &evaluation{
		run: Run{
			ID:         uuid.New().String(),
			BusinessID: businessID,
			Accepted:   d.Accept,
			Reason:     d.Reason,
			Detail:     d.Detail,
			Items:      doc.ItemCount(),
			Sections:   len(doc.Sections),
			Quality:    metrics.Quality(doc),
			CreatedAt:  now,
		},
		decision: d,
		docJSON:  docJSON,
		bizJSON:  bizJSON,
	}, nil
}

func (e *evaluation) result() *SaveResult {
	return &SaveResult{RunID: e.run.ID, Decision: e.decision, Stored: e.decision.Accept}
}

func requireID(businessID string) error {
	if strings.TrimSpace(businessID) == "" {
		return eris.New("store: business id is required")
	}
	return nil
}

func runLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	return limit
}

func decodeRecord(businessID string, bizJSON, docJSON []byte, quality float64, updatedAt time.Time) (*Record, error) {
	rec := &Record{BusinessID: businessID, Quality: quality, UpdatedAt: updatedAt, Document: &model.MenuDocument{}}
	if err := json.Unmarshal(bizJSON, &rec.Business); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal business")
	}
	if err := json.Unmarshal(docJSON, rec.Document); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal document")
	}
	return rec, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/config"
)

// Row is one persisted enriched reading.
type Row struct {
	ID     int64     `json:"id"`
	RunID  string    `json:"run_id"`
	Stored time.Time `json:"stored_at"`
	types.EnrichedReading
}

// Store is the persistence contract used by the runner and the API.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append writes rows as a single run. Either all rows are stored or none.
	// It returns the number of rows written.
	Append(ctx context.Context, runID string, rows []types.EnrichedReading) (int, error)

	// History returns up to limit of the newest rows, oldest first.
	// limit <= 0 returns every row.
	History(ctx context.Context, limit int) ([]Row, error)

	// Latest returns the most recently stored row, if any.
	Latest(ctx context.Context) (Row, bool, error)

	// Run returns the rows of one run in input order.
	Run(ctx context.Context, runID string) ([]Row, error)

	// Prune deletes rows stored before the given time and returns how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open returns the Store selected by cfg.Backend.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		dsn := cfg.DSN()
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres DSN variable %q is empty", cfg.DSNEnv)
		}
		s, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

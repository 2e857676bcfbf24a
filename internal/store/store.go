package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/yycdirectory/sync-cli/internal/config"
	"github.com/yycdirectory/sync-cli/internal/model"
)

// ConstraintError reports a unique-constraint violation on a specific
// column, so callers can distinguish a recoverable slug collision from any
// other persistence failure.
type ConstraintError struct {
	Field string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

// IsSlugConflict reports whether err is a unique violation on the slug
// column, the one insert failure the reconciler retries.
func IsSlugConflict(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Field == "slug"
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// GetByExternalID returns the stored record for the given external id,
	// or nil, nil when none exists. Absence is a normal outcome.
	GetByExternalID(ctx context.Context, externalID string) (*model.Business, error)
	// Insert adds a new record. A unique violation is returned as a
	// *ConstraintError naming the violated column.
	Insert(ctx context.Context, b *model.Business) error
	// Update rewrites the mutable fields of the record matching
	// b.ExternalID. The slug and primary key are never touched.
	Update(ctx context.Context, b *model.Business) error
	// Counts returns the aggregate figures for the status action.
	Counts(ctx context.Context) (*model.StoreCounts, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

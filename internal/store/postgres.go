package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/yycdirectory/sync-cli/internal/model"
)

// PostgresStore implements Store using pgxpool against the directory's
// service-role connection.
type PostgresStore struct {
	pool    pgxQuerier
	closeFn func()
}

// pgxQuerier is the minimal pool surface used by PostgresStore. pgxmock
// satisfies it in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromQuerier creates a PostgresStore over an existing querier.
// The store does not own the connection; Close is a no-op.
func NewPostgresFromQuerier(q pgxQuerier) *PostgresStore {
	return &PostgresStore{pool: q}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL,
	community       TEXT,
	licence_type    TEXT NOT NULL,
	first_issued    TEXT NOT NULL,
	slug            TEXT NOT NULL,
	category        TEXT NOT NULL,
	consumer_facing BOOLEAN NOT NULL DEFAULT TRUE,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT businesses_external_id_key UNIQUE (external_id),
	CONSTRAINT businesses_slug_key UNIQUE (slug)
);

CREATE INDEX IF NOT EXISTS idx_businesses_category ON businesses(category);
CREATE INDEX IF NOT EXISTS idx_businesses_community ON businesses(community);
CREATE INDEX IF NOT EXISTS idx_businesses_first_issued ON businesses(first_issued);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const getByExternalIDSQL = `
SELECT external_id, name, address, community, licence_type, first_issued,
       slug, category, consumer_facing, latitude, longitude, active
FROM businesses
WHERE external_id = $1`

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx, getByExternalIDSQL, externalID)

	var b model.Business
	err := row.Scan(
		&b.ExternalID, &b.Name, &b.Address, &b.Community, &b.LicenceType,
		&b.FirstIssued, &b.Slug, &b.Category, &b.ConsumerFacing,
		&b.Latitude, &b.Longitude, &b.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", externalID)
	}
	return &b, nil
}

const insertSQL = `
INSERT INTO businesses (
	external_id, name, address, community, licence_type, first_issued,
	slug, category, consumer_facing, latitude, longitude, active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (s *PostgresStore) Insert(ctx context.Context, b *model.Business) error {
	_, err := s.pool.Exec(ctx, insertSQL,
		b.ExternalID, b.Name, b.Address, b.Community, b.LicenceType,
		b.FirstIssued, b.Slug, b.Category, b.ConsumerFacing,
		b.Latitude, b.Longitude, b.Active,
	)
	if err != nil {
		if field, ok := pgUniqueField(err); ok {
			return &ConstraintError{Field: field}
		}
		return eris.Wrapf(err, "postgres: insert business %s", b.ExternalID)
	}
	return nil
}

const updateSQL = `
UPDATE businesses SET
	name = $2, address = $3, community = $4, licence_type = $5,
	first_issued = $6, category = $7, consumer_facing = $8,
	latitude = $9, longitude = $10, active = TRUE, updated_at = now()
WHERE external_id = $1`

func (s *PostgresStore) Update(ctx context.Context, b *model.Business) error {
	tag, err := s.pool.Exec(ctx, updateSQL,
		b.ExternalID, b.Name, b.Address, b.Community, b.LicenceType,
		b.FirstIssued, b.Category, b.ConsumerFacing, b.Latitude, b.Longitude,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %s", b.ExternalID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: business not found: %s", b.ExternalID)
	}
	return nil
}

const countsSQL = `
SELECT
	count(*),
	count(*) FILTER (WHERE first_issued >= $1),
	count(*) FILTER (WHERE consumer_facing)
FROM businesses
WHERE active`

func (s *PostgresStore) Counts(ctx context.Context) (*model.StoreCounts, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")

	var c model.StoreCounts
	err := s.pool.QueryRow(ctx, countsSQL, cutoff).Scan(&c.Total, &c.Recent, &c.ConsumerFacing)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}

// pgUniqueField maps a postgres unique-violation (23505) to the violated
// column via the constraint name.
func pgUniqueField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "slug"):
		return "slug", true
	case strings.Contains(pgErr.ConstraintName, "external_id"):
		return "external_id", true
	default:
		return pgErr.ConstraintName, true
	}
}

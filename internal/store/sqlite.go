package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/yycdirectory/sync-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// development and tests; deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id     TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL,
	community       TEXT,
	licence_type    TEXT NOT NULL,
	first_issued    TEXT NOT NULL,
	slug            TEXT NOT NULL UNIQUE,
	category        TEXT NOT NULL,
	consumer_facing INTEGER NOT NULL DEFAULT 1,
	latitude        REAL,
	longitude       REAL,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_businesses_category ON businesses(category);
CREATE INDEX IF NOT EXISTS idx_businesses_community ON businesses(community);
CREATE INDEX IF NOT EXISTS idx_businesses_first_issued ON businesses(first_issued);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetByExternalID(ctx context.Context, externalID string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT external_id, name, address, community, licence_type, first_issued,
		        slug, category, consumer_facing, latitude, longitude, active
		 FROM businesses WHERE external_id = ?`,
		externalID,
	)

	var b model.Business
	err := row.Scan(
		&b.ExternalID, &b.Name, &b.Address, &b.Community, &b.LicenceType,
		&b.FirstIssued, &b.Slug, &b.Category, &b.ConsumerFacing,
		&b.Latitude, &b.Longitude, &b.Active,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", externalID)
	}
	return &b, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, b *model.Business) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO businesses (
			external_id, name, address, community, licence_type, first_issued,
			slug, category, consumer_facing, latitude, longitude, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ExternalID, b.Name, b.Address, b.Community, b.LicenceType,
		b.FirstIssued, b.Slug, b.Category, b.ConsumerFacing,
		b.Latitude, b.Longitude, b.Active,
	)
	if err != nil {
		if field, ok := sqliteUniqueField(err); ok {
			return &ConstraintError{Field: field}
		}
		return eris.Wrapf(err, "sqlite: insert business %s", b.ExternalID)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, b *model.Business) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET
			name = ?, address = ?, community = ?, licence_type = ?,
			first_issued = ?, category = ?, consumer_facing = ?,
			latitude = ?, longitude = ?, active = 1, updated_at = datetime('now')
		 WHERE external_id = ?`,
		b.Name, b.Address, b.Community, b.LicenceType, b.FirstIssued,
		b.Category, b.ConsumerFacing, b.Latitude, b.Longitude, b.ExternalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update business %s", b.ExternalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: business not found: %s", b.ExternalID)
	}
	return nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (*model.StoreCounts, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")

	var c model.StoreCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			count(*),
			count(CASE WHEN first_issued >= ? THEN 1 END),
			count(CASE WHEN consumer_facing THEN 1 END)
		 FROM businesses WHERE active`,
		cutoff,
	).Scan(&c.Total, &c.Recent, &c.ConsumerFacing)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &c, nil
}

// sqliteUniqueField extracts the violated column from a modernc.org/sqlite
// unique-constraint error message ("UNIQUE constraint failed: businesses.slug").
func sqliteUniqueField(err error) (string, bool) {
	const marker = "UNIQUE constraint failed: businesses."
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	rest := msg[i+len(marker):]
	for j, r := range rest {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return rest[:j], true
		}
	}
	return rest, true
}

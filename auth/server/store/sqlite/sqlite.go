// Principal store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
)

const schema = `
CREATE TABLE IF NOT EXISTS principals (
  subject TEXT NOT NULL PRIMARY KEY,
  email TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  tier TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS principals_email ON principals (email);
`

// SQLite is a store.Store keeping principals in a SQLite database.
type SQLite struct {
	db *sql.DB
}

type options struct {
	dsn string
}

type Modifier func(*options)

// WithDSN specifies the SQLite data source name.
func WithDSN(dsn string) Modifier {
	return func(o *options) {
		o.dsn = dsn
	}
}

// WithPath specifies a filesystem path to the SQLite database.
func WithPath(path string) Modifier {
	return func(o *options) {
		o.dsn = path
	}
}

// New opens a SQLite database and ensures the schema is ready.
func New(mods ...Modifier) (*SQLite, error) {
	opts := options{}
	for _, m := range mods {
		m(&opts)
	}
	if opts.dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", opts.dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Open opens a SQLite principal store at the provided path.
func Open(path string) (*SQLite, error) {
	return New(WithPath(path))
}

// Close releases the underlying database resources.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) FindBySubject(ctx context.Context, subject string) (*store.Principal, error) {
	return s.find(ctx, `SELECT subject, email, display_name, role, tier, password_hash, provider, created_at
		FROM principals WHERE subject = ?`, subject)
}

func (s *SQLite) FindByEmail(ctx context.Context, email string) (*store.Principal, error) {
	return s.find(ctx, `SELECT subject, email, display_name, role, tier, password_hash, provider, created_at
		FROM principals WHERE email = ?`, store.NormalizeEmail(email))
}

func (s *SQLite) Upsert(ctx context.Context, record *store.Principal) error {
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (subject, email, display_name, role, tier, password_hash, provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject) DO UPDATE SET
		   email = excluded.email,
		   display_name = excluded.display_name,
		   role = excluded.role,
		   tier = excluded.tier,
		   password_hash = excluded.password_hash,
		   provider = excluded.provider`,
		record.Subject, store.NormalizeEmail(record.Email), record.DisplayName,
		string(record.Role), string(record.Tier), record.PasswordHash,
		record.Provider, created.Unix(),
	)
	return err
}

func (s *SQLite) find(ctx context.Context, query, key string) (*store.Principal, error) {
	row := s.db.QueryRowContext(ctx, query, key)

	var record store.Principal
	var role, tier string
	var created int64
	err := row.Scan(&record.Subject, &record.Email, &record.DisplayName,
		&role, &tier, &record.PasswordHash, &record.Provider, &created)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.Role, err = identity.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored principal %s is corrupt - %w", record.Subject, err)
	}
	record.Tier, err = identity.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("stored principal %s is corrupt - %w", record.Subject, err)
	}
	record.CreatedAt = time.Unix(created, 0)
	return &record, nil
}

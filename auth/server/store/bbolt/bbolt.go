// Principal store backed by bbolt.
//
// bbolt uses JSON encoding for records and is optimized for local,
// embedded use: development setups and single-node deployments.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/flokana/authgate/auth/server/store"
)

var (
	bucketPrincipals = []byte("principals")
	bucketEmails     = []byte("principals_by_email")
)

// Bolt is a store.Store keeping principals in a bbolt database.
type Bolt struct {
	db *bolt.DB
}

type options struct {
	path    string
	timeout time.Duration
}

type Modifier func(*options) error

// WithPath specifies the filesystem path for the bbolt database.
func WithPath(path string) Modifier {
	return func(o *options) error {
		o.path = path
		return nil
	}
}

// WithTimeout sets the bbolt file lock timeout.
func WithTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.timeout = timeout
		return nil
	}
}

// New opens a bbolt database and ensures the buckets exist.
func New(mods ...Modifier) (*Bolt, error) {
	opts := options{}
	for _, m := range mods {
		if err := m(&opts); err != nil {
			return nil, err
		}
	}
	if opts.path == "" {
		return nil, fmt.Errorf("bbolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.path), 0770); err != nil {
		return nil, err
	}

	boltOpts := &bolt.Options{}
	if opts.timeout != 0 {
		boltOpts.Timeout = opts.timeout
	}
	db, err := bolt.Open(opts.path, 0660, boltOpts)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPrincipals, bucketEmails} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Open opens a bbolt principal store at the provided path.
func Open(path string) (*Bolt, error) {
	return New(WithPath(path))
}

// Close releases the underlying database resources.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) FindBySubject(ctx context.Context, subject string) (*store.Principal, error) {
	var record *store.Principal
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		record, err = readPrincipal(tx, []byte(subject))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (b *Bolt) FindByEmail(ctx context.Context, email string) (*store.Principal, error) {
	var record *store.Principal
	err := b.db.View(func(tx *bolt.Tx) error {
		subject := tx.Bucket(bucketEmails).Get([]byte(store.NormalizeEmail(email)))
		if subject == nil {
			return store.ErrNotFound
		}
		var err error
		record, err = readPrincipal(tx, subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (b *Bolt) Upsert(ctx context.Context, record *store.Principal) error {
	stored := *record
	stored.Email = store.NormalizeEmail(record.Email)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		principals := tx.Bucket(bucketPrincipals)
		emails := tx.Bucket(bucketEmails)

		// Drop the stale email index entry when the address changed.
		if previous, err := readPrincipal(tx, []byte(stored.Subject)); err == nil && previous.Email != stored.Email {
			if err := emails.Delete([]byte(previous.Email)); err != nil {
				return err
			}
		}

		if err := principals.Put([]byte(stored.Subject), data); err != nil {
			return err
		}
		return emails.Put([]byte(stored.Email), []byte(stored.Subject))
	})
}

func readPrincipal(tx *bolt.Tx, subject []byte) (*store.Principal, error) {
	data := tx.Bucket(bucketPrincipals).Get(subject)
	if data == nil {
		return nil, store.ErrNotFound
	}
	var record store.Principal
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("stored principal %s is corrupt - %w", subject, err)
	}
	return &record, nil
}

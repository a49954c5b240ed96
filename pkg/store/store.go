// Package store keeps the command history of sophys-cli in a bbolt
// database.
package store

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"sophys.sh/cli/pkg/logutil"
	. "sophys.sh/cli/pkg/store/storedefs"
)

var logger = logutil.GetLogger("store")

const bucketCmd = "cmd"

// The following functions are called in NewStore to initialize the tables
// of the database.
var initDB = map[string](func(*bolt.Tx) error){}

// DBStore is the permanent storage backend for sophys-cli.
type DBStore interface {
	Store
	Close() error
}

type dbStore struct {
	db *bolt.DB
	mu sync.Mutex // Guards the bbolt database against concurrent closes.
}

func dbWithDefaultOptions(dbname string) (*bolt.DB, error) {
	db, err := bolt.Open(dbname, 0644,
		&bolt.Options{
			Timeout: 1 * time.Second,
		})
	return db, err
}

// NewStore creates a new Store from the given file.
func NewStore(dbname string) (DBStore, error) {
	db, err := dbWithDefaultOptions(dbname)
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", dbname, err)
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB creates a new Store from a bbolt DB.
func NewStoreFromDB(db *bolt.DB) (DBStore, error) {
	logger.Debug().Str("path", db.Path()).Msg("initializing store")
	st := &dbStore{db: db}

	err := db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// Close closes the database. Subsequent calls are no-ops.
func (s *dbStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

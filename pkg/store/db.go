// Package store abstracts the persistent storage used by the shell for
// command history and persisted variables.
package store

import (
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/coralstor/coral/pkg/logutil"
	"github.com/coralstor/coral/pkg/store/storedefs"
)

var logger = logutil.GetLogger("[store] ")

const (
	bucketCmd = "cmd"
	bucketVar = "var"
)

// initDB is the set of operations that initialize a fresh database. Each
// entry is run in a single transaction when the store is opened, in the
// order of their keys.
var initDB = map[string]func(tx *bolt.Tx) error{}

// DBStore is the permanent storage backend of the shell. It is not
// thread-safe. In particular, the store may be closed while another
// operation is in progress.
type DBStore interface {
	storedefs.Store
	Close() error
}

type dbStore struct {
	db *bolt.DB
}

// NewStore creates a new Store from the given file.
func NewStore(dbname string) (DBStore, error) {
	db, err := dbOpen(dbname)
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB creates a new Store from a bolt DB.
func NewStoreFromDB(db *bolt.DB) (DBStore, error) {
	logger.Println("initializing store")
	defer logger.Println("initialized store")
	st := &dbStore{db: db}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range sortedInitKeys() {
			if err := initDB[name](tx); err != nil {
				return fmt.Errorf("failed to %s: %v", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func dbOpen(dbname string) (*bolt.DB, error) {
	return bolt.Open(dbname, 0o644, &bolt.Options{
		Timeout: 1 * time.Second,
	})
}

func sortedInitKeys() []string {
	keys := make([]string, 0, len(initDB))
	for k := range initDB {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *dbStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

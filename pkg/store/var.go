package store

import (
	"encoding/json"
	"errors"

	bolt "go.etcd.io/bbolt"
)

// ErrNoVar is returned by (*dbStore).Var when there is no such variable.
var ErrNoVar = errors.New("no such variable")

func init() {
	initDB["initialize persisted variable table"] = func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketVar))
		return err
	}
}

// Var gets the value of a persisted variable. Values are stored as JSON, so
// the returned value is one of nil, bool, float64, string, []any or
// map[string]any.
func (s *dbStore) Var(name string) (any, error) {
	var value any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketVar))
		v := b.Get([]byte(name))
		if v == nil {
			return ErrNoVar
		}
		return json.Unmarshal(v, &value)
	})
	return value, err
}

// SetVar sets the value of a persisted variable. The value must be
// JSON-marshalable.
func (s *dbStore) SetVar(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketVar))
		return b.Put([]byte(name), data)
	})
}

// VarNames returns the names of all persisted variables, sorted.
func (s *dbStore) VarNames() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketVar))
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// DelVar deletes a persisted variable.
func (s *dbStore) DelVar(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketVar))
		return b.Delete([]byte(name))
	})
}

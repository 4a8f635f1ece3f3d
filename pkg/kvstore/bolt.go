package kvstore

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var valuesBucket = []byte("values")

// Bolt is a Store backed by a single bolt database file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bolt store at the specified file
// path. Users must close the store with Close().
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(valuesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(path, name string) (Value, error) {
	var raw []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(valuesBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(key(path, name)); v != nil {
			// v is only valid for the life of the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Value{}, fmt.Errorf("bolt get %s\\%s: %w", path, name, err)
	}
	if raw == nil {
		return Value{}, ErrNotExist
	}
	return decode(raw)
}

func (b *Bolt) Set(path, name string, v Value) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(valuesBucket)
		if err != nil {
			return err
		}
		return bucket.Put(key(path, name), encode(v))
	})
	if err != nil {
		return fmt.Errorf("bolt set %s\\%s: %w", path, name, err)
	}
	return nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

package kvstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog/log"
)

// This is the discard ratio recommended in Badger docs
// (https://pkg.go.dev/github.com/dgraph-io/badger#DB.RunValueLogGC)
const compactionDiscardRatio = 0.5

var compactionInterval = 5 * time.Minute

// Badger is a Store backed by a badger database, with a background value log
// compaction routine.
type Badger struct {
	db        *badger.DB
	closeChan chan struct{}
	m         sync.Mutex // synchronizes start/stop compaction.
}

// OpenBadger opens (initializing if necessary) a Badger store at the
// specified directory. After a bad shutdown badger may require truncating the
// value log; in that case the store is reopened with truncation, which may
// lose the writes that were in flight. Users must close the store with
// Close().
func OpenBadger(path string) (*Badger, error) {
	// DefaultOptions sets synchronous writes to true (maximum data integrity).
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if errors.Is(err, badger.ErrTruncateNeeded) {
		log.Warn().Str("path", path).Msg("open badger required truncate, data loss is possible")
		db, err = badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithTruncate(true))
	}
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}

	b := &Badger{db: db}
	b.startBackgroundCompaction()

	return b, nil
}

func (b *Badger) Get(path, name string) (Value, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(path, name))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return Value{}, ErrNotExist
	case err != nil:
		return Value{}, fmt.Errorf("badger get %s\\%s: %w", path, name, err)
	}
	return decode(raw)
}

func (b *Badger) Set(path, name string, v Value) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(path, name), encode(v))
	})
	if err != nil {
		return fmt.Errorf("badger set %s\\%s: %w", path, name, err)
	}
	return nil
}

// startBackgroundCompaction starts a background loop that will call the
// compaction method on the database. Badger does not do this automatically, so
// we need to be sure to do so here (or elsewhere).
func (b *Badger) startBackgroundCompaction() {
	b.m.Lock()
	defer b.m.Unlock()

	if b.closeChan != nil {
		panic("background compaction already running")
	}
	b.closeChan = make(chan struct{})

	go func() {
		ticker := time.NewTicker(compactionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.closeChan:
				return
			case <-ticker.C:
				err := b.db.RunValueLogGC(compactionDiscardRatio)
				if err == nil || errors.Is(err, badger.ErrNoRewrite) {
					continue
				}
				log.Error().Err(err).Msg("compact badger")
				if errors.Is(err, badger.ErrDBClosed) {
					return
				}
			}
		}
	}()
}

// stopBackgroundCompaction stops the background compaction routine.
func (b *Badger) stopBackgroundCompaction() {
	b.m.Lock()
	defer b.m.Unlock()

	if b.closeChan != nil {
		b.closeChan <- struct{}{}
		b.closeChan = nil
	}
}

// Close stops compaction and closes the database.
func (b *Badger) Close() error {
	b.stopBackgroundCompaction()
	return b.db.Close()
}

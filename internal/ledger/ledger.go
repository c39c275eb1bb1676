// Package ledger tracks edge IDs across build runs in a local bbolt file.
// Duplicate edge writes are upserts by contract, which makes them invisible
// at the sink; the ledger is what lets the build summary say how many edges
// a run actually discovered for the first time.
package ledger

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/devhealthops/workgraph/internal/errors"
)

var edgesBucket = []byte("edges")

// Ledger is a persistent set of previously seen edge IDs.
type Ledger struct {
	db *bolt.DB
}

// Open opens (creating if needed) the ledger file at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.BackendError(err, "create ledger directory")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.BackendError(err, "open edge ledger")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(edgesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.BackendError(err, "initialize edge ledger")
	}

	return &Ledger{db: db}, nil
}

// Close closes the ledger file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// MarkEdges records the given edge IDs and reports how many were new to
// this ledger versus already seen on an earlier run.
func (l *Ledger) MarkEdges(edgeIDs []string) (newCount, seenCount int, err error) {
	if len(edgeIDs) == 0 {
		return 0, 0, nil
	}

	err = l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(edgesBucket)
		for _, edgeID := range edgeIDs {
			key := []byte(edgeID)
			if bucket.Get(key) != nil {
				seenCount++
				continue
			}
			if err := bucket.Put(key, []byte{1}); err != nil {
				return err
			}
			newCount++
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.BackendError(err, "mark edges in ledger")
	}
	return newCount, seenCount, nil
}

// Contains reports whether an edge ID has been seen before.
func (l *Ledger) Contains(edgeID string) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(edgesBucket).Get([]byte(edgeID)) != nil
		return nil
	})
	if err != nil {
		return false, errors.BackendError(err, "read edge ledger")
	}
	return found, nil
}

// Count returns the number of edge IDs recorded.
func (l *Ledger) Count() (int, error) {
	var count int
	err := l.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(edgesBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, errors.BackendError(err, "count ledger edges")
	}
	return count, nil
}

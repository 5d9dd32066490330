package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// BoltFileName is the database file created inside the configured store directory.
const BoltFileName = "collections.db"

// BoltCollection persists records in a bbolt file. Records live in a bucket named
// after the collection, keyed by insertion sequence; a sibling index bucket maps
// record ids to their sequence key.
type BoltCollection struct {
	db    *bbolt.DB
	name  string
	data  []byte
	index []byte
}

// OpenBolt opens (or creates) dir/collections.db and ensures the collection buckets exist.
func OpenBolt(dir, name string) (*BoltCollection, error) {
	if name == "" {
		name = DefaultCollectionName
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, BoltFileName), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	c := &BoltCollection{
		db:    db,
		name:  name,
		data:  []byte(name),
		index: []byte(name + ".ids"),
	}
	if err := db.Update(c.ensureBuckets); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return c, nil
}

// Name returns the collection name.
func (c *BoltCollection) Name() string {
	return c.name
}

// Add stores records, replacing any existing record with the same id in place.
func (c *BoltCollection) Add(_ context.Context, records ...Record) error {
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(c.data)
		index := tx.Bucket(c.index)
		for _, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode record %s: %w", rec.ID, err)
			}

			key := bytes.Clone(index.Get([]byte(rec.ID)))
			if key == nil {
				seq, err := data.NextSequence()
				if err != nil {
					return err
				}
				key = sequenceKey(seq)
				if err := index.Put([]byte(rec.ID), key); err != nil {
					return err
				}
			}
			if err := data.Put(key, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns every record in insertion order.
func (c *BoltCollection) Get(_ context.Context) (GetResult, error) {
	records, err := c.all()
	if err != nil {
		return GetResult{}, err
	}

	res := newGetResult(len(records))
	for _, rec := range records {
		res.append(rec)
	}
	return res, nil
}

// Query ranks every stored record against embedding.
func (c *BoltCollection) Query(_ context.Context, embedding []float32, limit int) ([]Match, error) {
	records, err := c.all()
	if err != nil {
		return nil, err
	}
	return rank(embedding, records, limit)
}

// Count returns the number of stored records.
func (c *BoltCollection) Count(_ context.Context) (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(c.index).Stats().KeyN
		return nil
	})
	return n, err
}

// Reset drops and recreates the collection buckets.
func (c *BoltCollection) Reset(_ context.Context) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{c.data, c.index} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return c.ensureBuckets(tx)
	})
}

// Close releases the database file.
func (c *BoltCollection) Close() error {
	return c.db.Close()
}

func (c *BoltCollection) ensureBuckets(tx *bbolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(c.data); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(c.index)
	return err
}

func (c *BoltCollection) all() ([]Record, error) {
	var records []Record
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.data).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

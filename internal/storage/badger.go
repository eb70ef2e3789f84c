package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Key layout: rec:<id> holds the JSON-encoded record, coord:<coordinate>
// holds the owning id so records can be located by coordinate prefix.
var (
	recPrefix   = []byte("rec:")
	coordPrefix = []byte("coord:")
)

// Badger is the embedded ordered-KV Driver. Durable, single-process.
// List order is id key order (lexicographic).
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database at dir.
func OpenBadger(dir string) (*Badger, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create badger dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// OpenBadgerMemory opens an in-memory badger database for testing.
func OpenBadgerMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger memory: %w", err)
	}
	return &Badger{db: db}, nil
}

func recKey(id string) []byte {
	return append(append([]byte{}, recPrefix...), id...)
}

func coordKey(coordinate string) []byte {
	return append(append([]byte{}, coordPrefix...), coordinate...)
}

func (b *Badger) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recKey(rec.ID), data); err != nil {
			return err
		}
		if rec.Coordinate != "" {
			return txn.Set(coordKey(rec.Coordinate), []byte(rec.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", rec.ID, err)
	}
	return nil
}

func (b *Badger) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", id, err)
	}
	return &rec, nil
}

func (b *Badger) List(ctx context.Context, cursor string, limit int) ([]Record, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []Record
	next := ""
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		if cursor != "" {
			it.Seek(recKey(cursor))
			if it.ValidForPrefix(recPrefix) && string(it.Item().Key()) == string(recKey(cursor)) {
				it.Next()
			}
		} else {
			it.Seek(recPrefix)
		}

		for ; it.ValidForPrefix(recPrefix); it.Next() {
			if len(out) == limit {
				next = out[len(out)-1].ID
				return nil
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("badger list: %w", err)
	}
	return out, next, nil
}

// GetByCoordinate resolves a coordinate to its record through the coord:
// index key.
func (b *Badger) GetByCoordinate(ctx context.Context, coordinate string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(coordKey(coordinate))
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(recKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get coordinate %s: %w", coordinate, err)
	}
	return &rec, nil
}

func (b *Badger) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		if rec.Coordinate != "" {
			if err := txn.Delete(coordKey(rec.Coordinate)); err != nil {
				return err
			}
		}
		return txn.Delete(recKey(id))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", id, err)
	}
	return nil
}

func (b *Badger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return fmt.Errorf("badger: database closed")
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

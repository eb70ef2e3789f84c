package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no record exists for the given id.
// Callers distinguish it with errors.Is; it is never used for any other
// failure mode.
var ErrNotFound = errors.New("record not found")

// Record is the unit of storage: a signed, content-addressed payload with
// lifecycle metadata. All timestamps are unix milliseconds.
type Record struct {
	ID             string          `json:"id"`
	ContentHash    string          `json:"content_hash"`
	Signature      string          `json:"signature"`
	Coordinate     string          `json:"coordinate"`
	Payload        json.RawMessage `json:"payload"`
	Importance     float64         `json:"importance"`
	Pinned         bool            `json:"pinned"`
	Revoked        bool            `json:"revoked"`
	CreatedAt      int64           `json:"created_at"`
	LastAccessedAt int64           `json:"last_accessed_at"`
	AccessCount    int             `json:"access_count"`
}

// Clone returns a deep copy so callers can mutate freely without aliasing
// driver-owned state.
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = make(json.RawMessage, len(r.Payload))
		copy(c.Payload, r.Payload)
	}
	return &c
}

// Driver is the storage contract every backend implements. Engine code never
// branches on the concrete backend; anything a backend cannot express belongs
// in the engine layer instead.
//
// List pagination order is backend-defined but stable within one backend:
// memory iterates in insertion order, badger in id key order, sqlite by
// created_at then id. An empty next-cursor means the listing is exhausted.
type Driver interface {
	// Put upserts a record by id.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// GetByCoordinate returns the record addressed by coordinate, or
	// ErrNotFound.
	GetByCoordinate(ctx context.Context, coordinate string) (*Record, error)

	// List returns up to limit records starting after cursor, plus the
	// cursor for the next page.
	List(ctx context.Context, cursor string, limit int) ([]Record, string, error)

	// Delete physically removes a record. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// Ping is a cheap liveness probe for readiness checks.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// DefaultListLimit is applied when a caller passes limit <= 0.
const DefaultListLimit = 50

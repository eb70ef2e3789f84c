package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/sigil/internal/breaker"
	"github.com/lazypower/sigil/internal/coordinate"
	"github.com/lazypower/sigil/internal/dna"
	"github.com/lazypower/sigil/internal/metrics"
	"github.com/lazypower/sigil/internal/signing"
	"github.com/lazypower/sigil/internal/storage"
)

// Attester registers a record with the external DNAStore. Satisfied by
// *dna.Client; fakes stand in for it in tests.
type Attester interface {
	Attest(ctx context.Context, id, contentHash string) (*dna.Attestation, error)
}

// Engine is the façade unifying encode, decode, verify, revoke, and list
// over a storage driver, the signing service, and the coordinate deriver.
// All mutating operations run inside the concurrency guard; all calls to
// the external DNAStore run through the circuit breaker.
type Engine struct {
	driver   storage.Driver
	signer   *signing.Service
	deriver  *coordinate.Deriver
	guard    *Guard
	decay    *Decay
	brk      *breaker.Breaker
	attester Attester
	met      *metrics.Metrics

	// Last-known-good attestations, served as the fallback while the
	// breaker is open.
	attMu sync.RWMutex
	attos map[string]*dna.Attestation
}

// Options configures optional engine collaborators.
type Options struct {
	// SweepInterval, DecayThreshold, HalfLife tune the decay manager.
	SweepInterval  time.Duration
	DecayThreshold float64
	HalfLife       time.Duration

	// Attester and Breaker enable DNAStore attestation. Both nil disables
	// it entirely.
	Attester Attester
	Breaker  *breaker.Breaker

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// New creates an engine over the given driver and signer.
func New(driver storage.Driver, signer *signing.Service, opts Options) *Engine {
	e := &Engine{
		driver:   driver,
		signer:   signer,
		deriver:  coordinate.New(),
		guard:    NewGuard(),
		brk:      opts.Breaker,
		attester: opts.Attester,
		met:      opts.Metrics,
		attos:    make(map[string]*dna.Attestation),
	}
	e.decay = NewDecay(driver, e.guard, opts.Metrics, opts.SweepInterval, opts.DecayThreshold, opts.HalfLife)

	if e.brk != nil && opts.Metrics != nil {
		met := opts.Metrics
		e.brk.OnStateChange = func(from, to breaker.State) {
			met.BreakerState.Set(float64(to))
			if to == breaker.Open {
				met.BreakerTrips.Inc()
			}
		}
	}
	return e
}

// Start launches the decay loop. Stop shuts it down and closes the driver.
func (e *Engine) Start() {
	e.decay.Start()
}

// Stop stops background work and releases the driver.
func (e *Engine) Stop() error {
	e.decay.Stop()
	return e.driver.Close()
}

// Decay exposes the decay manager for administrative sweeps.
func (e *Engine) Decay() *Decay {
	return e.decay
}

// Ping reports whether the active driver is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.driver.Ping(ctx)
}

// EncodeOpts controls record creation.
type EncodeOpts struct {
	// Pin exempts the record from decay-based eviction.
	Pin bool
}

// Encode validates, canonicalizes, addresses, signs, and persists a payload,
// returning the full record including its signature.
func (e *Engine) Encode(ctx context.Context, payload json.RawMessage, opts EncodeOpts) (*storage.Record, error) {
	start := time.Now()

	canonical, hash, err := canonicalize(payload)
	if err != nil {
		e.countError(err)
		return nil, err
	}

	now := time.Now().UnixMilli()
	rec := &storage.Record{
		ID:             uuid.NewString(),
		ContentHash:    hash,
		Coordinate:     e.deriver.Derive(hash, now),
		Payload:        canonical,
		Importance:     1.0,
		Pinned:         opts.Pin,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	rec.Signature = e.signer.RecordSignature(rec.ID, rec.ContentHash, rec.CreatedAt)

	err = e.guard.RunExclusive(ctx, func() error {
		return e.driver.Put(ctx, rec)
	})
	if err != nil {
		e.countError(err)
		return nil, fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	// Best-effort attestation; an open breaker degrades, never fails encode.
	if _, err := e.Attest(ctx, rec.ID, rec.ContentHash); err != nil && !errors.Is(err, ErrDependencyUnavailable) {
		log.Printf("engine: attest %s: %v", rec.ID, err)
	}

	if e.met != nil {
		e.met.EncodesTotal.Inc()
		e.met.EncodeDuration.Observe(time.Since(start).Seconds())
	}
	return rec, nil
}

// Decode fetches a record and re-verifies its signature before returning.
// A signature or content-hash mismatch surfaces as ErrCorrupt, never as
// silently-wrong data. Revoked records are ErrNotFound unless included.
func (e *Engine) Decode(ctx context.Context, id string, includeRevoked bool) (*storage.Record, error) {
	return e.decode(ctx, includeRevoked, func(ctx context.Context) (*storage.Record, error) {
		return e.driver.Get(ctx, id)
	})
}

// Locate is Decode addressed by coordinate instead of id.
func (e *Engine) Locate(ctx context.Context, coord string, includeRevoked bool) (*storage.Record, error) {
	return e.decode(ctx, includeRevoked, func(ctx context.Context) (*storage.Record, error) {
		return e.driver.GetByCoordinate(ctx, coord)
	})
}

// decode runs the whole fetch, integrity check, and access-bookkeeping
// write-back inside the guard. Fetching outside it would let a concurrent
// Revoke or eviction land between the read and the write-back and be
// overwritten by the stale copy.
func (e *Engine) decode(ctx context.Context, includeRevoked bool, fetch func(context.Context) (*storage.Record, error)) (*storage.Record, error) {
	var rec *storage.Record
	err := e.guard.RunExclusive(ctx, func() error {
		r, err := fetch(ctx)
		if err != nil {
			return err
		}
		if err := e.checkIntegrity(r); err != nil {
			return err
		}
		if r.Revoked && !includeRevoked {
			return ErrNotFound
		}

		// Access bookkeeping feeds the importance score.
		r.LastAccessedAt = time.Now().UnixMilli()
		r.AccessCount++
		if err := e.driver.Put(ctx, r); err != nil {
			log.Printf("engine: touch %s: %v", r.ID, err)
		}
		rec = r
		return nil
	})
	if err != nil {
		// checkIntegrity already counts corruption.
		if !errors.Is(err, ErrCorrupt) {
			e.countError(err)
		}
		return nil, err
	}

	if e.met != nil {
		e.met.DecodesTotal.Inc()
	}
	return rec, nil
}

// Verify reports whether the caller's copy of a payload matches the stored
// original. The stored record's own integrity is checked first; a tampered
// record is ErrCorrupt, a mismatched caller payload is (false, nil).
func (e *Engine) Verify(ctx context.Context, id string, payload json.RawMessage) (bool, error) {
	rec, err := e.driver.Get(ctx, id)
	if err != nil {
		e.countError(err)
		return false, err
	}
	if err := e.checkIntegrity(rec); err != nil {
		return false, err
	}
	if rec.Revoked {
		e.countError(ErrNotFound)
		return false, ErrNotFound
	}

	_, hash, err := canonicalize(payload)
	if err != nil {
		e.countError(err)
		return false, err
	}

	if e.met != nil {
		e.met.VerifiesTotal.Inc()
	}
	return hash == rec.ContentHash, nil
}

// Revoke tombstones a record: it disappears from default reads but stays
// physically present for audit until compacted. Ids are never reused.
func (e *Engine) Revoke(ctx context.Context, id string) error {
	err := e.guard.RunExclusive(ctx, func() error {
		rec, err := e.driver.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Revoked {
			return ErrNotFound
		}
		rec.Revoked = true
		return e.driver.Put(ctx, rec)
	})
	if err != nil {
		e.countError(err)
	}
	return err
}

// ListOpts controls pagination and revoked-record visibility.
type ListOpts struct {
	Cursor         string
	Limit          int
	IncludeRevoked bool
}

// List enumerates records. The revoked filter is applied here in the façade
// so every backend behaves identically.
func (e *Engine) List(ctx context.Context, opts ListOpts) ([]storage.Record, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var out []storage.Record
	cursor := opts.Cursor
	for len(out) < limit {
		recs, next, err := e.driver.List(ctx, cursor, limit-len(out))
		if err != nil {
			e.countError(err)
			return nil, "", err
		}
		for _, rec := range recs {
			if rec.Revoked && !opts.IncludeRevoked {
				continue
			}
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
		if next == "" {
			// Underlying listing exhausted.
			return out, "", nil
		}
		cursor = next
		if len(out) == limit {
			return out, out[len(out)-1].ID, nil
		}
	}
	return out, "", nil
}

// Compact physically removes revoked records. Explicit administrative
// action only — revoked records are never compacted automatically.
func (e *Engine) Compact(ctx context.Context) (int, error) {
	removed := 0
	cursor := ""
	for {
		recs, next, err := e.driver.List(ctx, cursor, 200)
		if err != nil {
			e.countError(err)
			return removed, err
		}
		for i := range recs {
			if !recs[i].Revoked {
				continue
			}
			id := recs[i].ID
			err := e.guard.RunExclusive(ctx, func() error {
				return e.driver.Delete(ctx, id)
			})
			if err != nil {
				e.countError(err)
				return removed, fmt.Errorf("compact %s: %w", id, err)
			}
			removed++
		}
		if next == "" {
			return removed, nil
		}
		cursor = next
	}
}

// Attest registers (id, contentHash) with the DNAStore through the breaker.
// While the breaker is open the last-known-good attestation is served if
// one exists; otherwise ErrDependencyUnavailable. A nil attester means
// attestation is disabled and returns (nil, nil).
func (e *Engine) Attest(ctx context.Context, id, contentHash string) (*dna.Attestation, error) {
	if e.attester == nil {
		return nil, nil
	}

	var att *dna.Attestation
	call := func(ctx context.Context) error {
		a, err := e.attester.Attest(ctx, id, contentHash)
		if err != nil {
			return err
		}
		att = a
		return nil
	}

	var err error
	if e.brk != nil {
		err = e.brk.Do(ctx, call)
	} else {
		err = call(ctx)
	}

	if err == nil {
		e.attMu.Lock()
		e.attos[id] = att
		e.attMu.Unlock()
		return att, nil
	}

	if errors.Is(err, breaker.ErrOpen) {
		e.attMu.RLock()
		cached, ok := e.attos[id]
		e.attMu.RUnlock()
		if ok {
			return cached, nil
		}
		e.countError(ErrDependencyUnavailable)
		return nil, ErrDependencyUnavailable
	}
	e.countError(err)
	return nil, fmt.Errorf("attest %s: %w", id, err)
}

// Attestation returns the cached attestation for a record, if any.
func (e *Engine) Attestation(id string) (*dna.Attestation, bool) {
	e.attMu.RLock()
	defer e.attMu.RUnlock()
	att, ok := e.attos[id]
	return att, ok
}

// checkIntegrity validates a stored record's signature against its own
// content hash and payload. Corruption is rejected, never repaired.
func (e *Engine) checkIntegrity(rec *storage.Record) error {
	sum := sha256.Sum256(rec.Payload)
	if hex.EncodeToString(sum[:]) != rec.ContentHash ||
		!e.signer.VerifyRecord(rec.Signature, rec.ID, rec.ContentHash, rec.CreatedAt) {
		if e.met != nil {
			e.met.CorruptionTotal.Inc()
			e.met.ErrorsTotal.WithLabelValues("corrupt").Inc()
		}
		log.Printf("engine: integrity failure on %s", rec.ID)
		return fmt.Errorf("record %s: %w", rec.ID, ErrCorrupt)
	}
	return nil
}

func (e *Engine) countError(err error) {
	if e.met != nil {
		e.met.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	}
}

// canonicalize validates a payload and returns its compact form plus the
// hex SHA-256 content hash. Empty or malformed JSON is ErrInvalidPayload.
func canonicalize(payload json.RawMessage) (json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, "", fmt.Errorf("empty payload: %w", ErrInvalidPayload)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, "", fmt.Errorf("%v: %w", err, ErrInvalidPayload)
	}
	canonical := json.RawMessage(buf.Bytes())
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}

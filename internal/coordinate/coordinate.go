// Package coordinate derives the deterministic addressing key for a record.
// The coordinate is a storage key and indexing hint, not a correctness-
// critical value: any deterministic, well-distributed derivation works.
package coordinate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
)

// Deriver maps (payload digest, timestamp) to a stable coordinate. A
// monotonic per-process counter is mixed in so that identical payloads
// encoded in the same millisecond still land on distinct coordinates.
type Deriver struct {
	counter atomic.Uint64
}

// New returns a Deriver with its counter at zero.
func New() *Deriver {
	return &Deriver{}
}

// Derive computes the coordinate for a payload digest at a timestamp.
// The result is a fixed-width segmented hex key (e.g. "3f2a…-9c01…") so it
// sorts and prefixes cleanly in ordered backends. Collision probability is
// negligible far past 10^5 records (128 bits of SHA-256 output).
func (d *Deriver) Derive(digest string, ts int64) string {
	n := d.counter.Add(1)

	h := sha256.New()
	h.Write([]byte(digest))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(ts))
	binary.BigEndian.PutUint64(buf[8:], n)
	h.Write(buf[:])
	sum := h.Sum(nil)

	// 128 bits, split into four 32-bit segments.
	enc := hex.EncodeToString(sum[:16])
	return enc[:8] + "-" + enc[8:16] + "-" + enc[16:24] + "-" + enc[24:32]
}

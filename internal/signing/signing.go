// Package signing provides the HMAC primitive that guarantees record
// integrity. Every stored record carries a signature over (id, content hash,
// created_at); a record failing verification on read is treated as corrupt
// and rejected, never repaired.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Service signs and verifies byte sequences with a process-wide secret key
// loaded once at startup. Methods are pure functions over that key.
type Service struct {
	key []byte
}

// New creates a Service from a non-empty secret key.
func New(key []byte) (*Service, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is empty")
	}
	return &Service{key: key}, nil
}

// Load resolves the signing key from an inline value or a key file.
// Exactly this failing is fatal at startup: the engine must not run
// without a valid key.
func Load(inline, file string) (*Service, error) {
	if inline != "" {
		return New([]byte(inline))
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read signing key file: %w", err)
		}
		return New([]byte(strings.TrimSpace(string(data))))
	}
	return nil, fmt.Errorf("no signing key configured")
}

// Sign computes the hex HMAC-SHA256 over the given parts. Each part is
// length-prefixed before hashing so the serialization is unambiguous:
// Sign("ab","c") and Sign("a","bc") produce different signatures.
func (s *Service) Sign(parts ...[]byte) string {
	mac := hmac.New(sha256.New, s.key)
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		mac.Write(lenBuf[:])
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the signature of parts. Uses a
// constant-time comparison. A mismatch is a normal outcome, not an error.
func (s *Service) Verify(sig string, parts ...[]byte) bool {
	expected := s.Sign(parts...)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// RecordSignature produces the canonical signature for a stored record:
// HMAC over (id, content hash, creation time).
func (s *Service) RecordSignature(id, contentHash string, createdAt int64) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	return s.Sign([]byte(id), []byte(contentHash), ts[:])
}

// VerifyRecord checks a record signature produced by RecordSignature.
func (s *Service) VerifyRecord(sig, id, contentHash string, createdAt int64) bool {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	return s.Verify(sig, []byte(id), []byte(contentHash), ts[:])
}

package engine

import (
	"errors"

	"github.com/lazypower/sigil/internal/breaker"
	"github.com/lazypower/sigil/internal/storage"
)

// Error taxonomy. Validation and not-found are expected and map to 4xx at
// the API boundary; corrupt and storage failures are operational alerts;
// dependency-unavailable is the designed degraded-mode path under external
// outages. None of these are fatal to the process.
var (
	// ErrInvalidPayload rejects an empty or unserializable payload on
	// encode, before storage is touched.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNotFound covers an absent id and a revoked record when revoked
	// records are not explicitly included.
	ErrNotFound = storage.ErrNotFound

	// ErrCorrupt means a stored signature failed verification on read.
	// Never coerced into ErrNotFound.
	ErrCorrupt = errors.New("record corrupt")

	// ErrDependencyUnavailable means the circuit breaker is open and no
	// last-known-good fallback exists for the call.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// errorKind maps an error to its metrics label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrDependencyUnavailable), errors.Is(err, breaker.ErrOpen):
		return "dependency"
	default:
		return "storage"
	}
}

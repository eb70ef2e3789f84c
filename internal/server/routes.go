package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/sigil/internal/engine"
	"github.com/lazypower/sigil/internal/storage"
)

// recordJSON is the wire shape of a record. The raw payload is embedded
// unmodified; timestamps are unix milliseconds.
type recordJSON struct {
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

func toJSON(rec *storage.Record) recordJSON {
	return recordJSON{
		ID:             rec.ID,
		ContentHash:    rec.ContentHash,
		Signature:      rec.Signature,
		Coordinate:     rec.Coordinate,
		Payload:        rec.Payload,
		Importance:     rec.Importance,
		Pinned:         rec.Pinned,
		Revoked:        rec.Revoked,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
		AccessCount:    rec.AccessCount,
	}
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload json.RawMessage `json:"payload"`
		Pin     bool            `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	rec, err := s.engine.Encode(r.Context(), req.Payload, engine.EncodeOpts{Pin: req.Pin})
	if err != nil {
		writeError(w, err)
		return
	}

	attested := false
	if att, ok := s.engine.Attestation(rec.ID); ok {
		attested = att.Attested
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         rec.ID,
		"signature":  rec.Signature,
		"coordinate": rec.Coordinate,
		"created_at": rec.CreatedAt,
		"attested":   attested,
	})
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeRevoked := r.URL.Query().Get("includeRevoked") == "true"

	rec, err := s.engine.Decode(r.Context(), id, includeRevoked)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(rec))
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	coord := chi.URLParam(r, "coordinate")
	includeRevoked := r.URL.Query().Get("includeRevoked") == "true"

	rec, err := s.engine.Locate(r.Context(), coord, includeRevoked)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(rec))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts := engine.ListOpts{
		Cursor:         r.URL.Query().Get("cursor"),
		IncludeRevoked: r.URL.Query().Get("includeRevoked") == "true",
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	recs, next, err := s.engine.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recordJSON, len(recs))
	for i := range recs {
		out[i] = toJSON(&recs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":     out,
		"next_cursor": next,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	valid, err := s.engine.Verify(r.Context(), id, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.Revoke(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.Compact(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

package dna

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAttest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attest" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			ID          string `json:"id"`
			ContentHash string `json:"content_hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":           req.ID,
			"content_hash": req.ContentHash,
			"attested":     true,
			"receipt":      "r-123",
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	att, err := c.Attest(context.Background(), "rec-1", "abcd")
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if !att.Attested || att.Receipt != "r-123" || att.ID != "rec-1" {
		t.Errorf("attestation = %+v", att)
	}
}

func TestAttestServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := NewClient(ts.URL).Attest(context.Background(), "rec-1", "abcd"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestAttestUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.Attest(context.Background(), "rec-1", "abcd"); err == nil {
		t.Fatal("expected error when server is unreachable")
	}
}

// Package dna is the client for the external DNAStore attestation service.
// The engine only ever calls it through the circuit breaker, so a slow or
// dead DNAStore degrades encode/verify instead of failing them.
package dna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Attestation is the DNAStore response for a record.
type Attestation struct {
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`
	Attested    bool   `json:"attested"`
	Receipt     string `json:"receipt,omitempty"`
}

// Client calls the DNAStore HTTP API.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client for the DNAStore at url.
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Attest registers a record's id and content hash with the DNAStore and
// returns its attestation receipt.
func (c *Client) Attest(ctx context.Context, id, contentHash string) (*Attestation, error) {
	reqBody := map[string]string{
		"id":           id,
		"content_hash": contentHash,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/attest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dnastore api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dnastore api status %d: %s", resp.StatusCode, respBody)
	}

	var att Attestation
	if err := json.Unmarshal(respBody, &att); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &att, nil
}

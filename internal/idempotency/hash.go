// Package idempotency binds client-supplied keys to exactly one execution of
// a mutating operation and replays the stored response on retries.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns a stable digest over the endpoint and the payload. Payloads
// that differ only in field order hash identically.
func Hash(endpoint string, payload any) (string, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return "", err
	}
	// Map keys are emitted in sorted order.
	canonical, err := json.Marshal(map[string]any{
		"endpoint": endpoint,
		"payload":  normalized,
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func normalize(payload any) (any, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		raw = encoded
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

// Package payments talks to the payment service provider backing the ledger.
package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownReference is returned when a PSP reference was never issued.
var ErrUnknownReference = errors.New("unknown psp reference")

// PSP is the interface for a Payment Service Provider. Every call carries the
// caller's idempotency key so provider-side retries are deduplicated too.
type PSP interface {
	Authorize(ctx context.Context, amountCents int64, currency, idemKey string) (string, error)
	Capture(ctx context.Context, ref, idemKey string) error
	Refund(ctx context.Context, ref, idemKey string) error
}

// MockPSP is an in-process PSP that always succeeds for references it issued.
type MockPSP struct {
	mu   sync.Mutex
	refs map[string]string // ref -> state
	keys map[string]string // authorize idempotency key -> ref
}

// NewMockPSP creates a new mock PSP.
func NewMockPSP() *MockPSP {
	return &MockPSP{
		refs: make(map[string]string),
		keys: make(map[string]string),
	}
}

// Authorize places a hold. Reusing an idempotency key returns the first reference.
func (p *MockPSP) Authorize(ctx context.Context, amountCents int64, currency, idemKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref, ok := p.keys[idemKey]; ok && idemKey != "" {
		return ref, nil
	}
	ref := "mock_pi_" + uuid.New().String()
	p.refs[ref] = "authorized"
	if idemKey != "" {
		p.keys[idemKey] = ref
	}
	return ref, nil
}

// Capture settles a hold.
func (p *MockPSP) Capture(ctx context.Context, ref, _ string) error {
	return p.transition(ctx, ref, "captured")
}

// Refund returns a captured charge.
func (p *MockPSP) Refund(ctx context.Context, ref, _ string) error {
	return p.transition(ctx, ref, "refunded")
}

// State reports the provider-side state of ref, or "" when unknown.
func (p *MockPSP) State(ref string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs[ref]
}

func (p *MockPSP) transition(ctx context.Context, ref, state string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.refs[ref]; !ok {
		return ErrUnknownReference
	}
	p.refs[ref] = state
	return nil
}

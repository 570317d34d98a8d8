package payments

import (
	"context"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// noChargeRef stands in for zero-amount rides, which Stripe refuses to hold.
const noChargeRef = "no_charge"

// StripePSP holds funds with manual-capture PaymentIntents.
type StripePSP struct {
	api           *client.API
	paymentMethod string
}

// NewStripePSP initializes a Stripe client with the given secret key.
// When paymentMethod is set, intents are confirmed against it on authorize.
func NewStripePSP(apiKey, paymentMethod string) *StripePSP {
	return &StripePSP{
		api:           client.New(apiKey, nil),
		paymentMethod: paymentMethod,
	}
}

// Authorize creates a PaymentIntent with capture_method=manual and returns its ID.
func (s *StripePSP) Authorize(ctx context.Context, amountCents int64, currency, idemKey string) (string, error) {
	if amountCents <= 0 {
		return noChargeRef, nil
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if s.paymentMethod != "" {
		params.PaymentMethod = stripe.String(s.paymentMethod)
		params.Confirm = stripe.Bool(true)
	}
	params.Context = ctx
	params.SetIdempotencyKey("authorize:" + idemKey)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripePSP) Capture(ctx context.Context, ref, idemKey string) error {
	if ref == noChargeRef {
		return nil
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture:" + idemKey)
	_, err := s.api.PaymentIntents.Capture(ref, params)
	return err
}

// Refund returns a captured PaymentIntent in full.
func (s *StripePSP) Refund(ctx context.Context, ref, idemKey string) error {
	if ref == noChargeRef {
		return nil
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(ref)}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + idemKey)
	_, err := s.api.Refunds.New(params)
	return err
}

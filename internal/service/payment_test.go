package service

import (
	"context"
	"errors"
	"testing"

	"bikeshare/internal/domain"
	"bikeshare/internal/notify"
)

// endedRide runs a short ride and returns its id and fare.
func endedRide(t *testing.T, h *harness, qr string) (string, int64) {
	t.Helper()
	ride := h.unlock(t, h.user, qr, qr+"-unlock").Ride
	locked := h.lock(t, ride.ID, 1.2970, 103.8460, qr+"-lock")
	return ride.ID, locked.Ride.FareCents
}

func authorize(t *testing.T, h *harness, rideID string, amount int64, key string) PaymentView {
	t.Helper()
	out, err := h.payments.Authorize(context.Background(), AuthorizeRequest{RideID: rideID, AmountCents: amount}, key)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	var p PaymentView
	decode(t, out.Body, &p)
	return p
}

func TestPaymentService_Lifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rideID, fare := endedRide(t, h, "SG-BIKE-020")

	p := authorize(t, h, rideID, fare, "auth-1")
	if p.Status != string(domain.PaymentStatusAuthorized) || p.AmountCents != fare {
		t.Fatalf("authorized payment = %+v", p)
	}

	// A second authorize under a new key returns the same payment.
	again := authorize(t, h, rideID, fare, "auth-2")
	if again.ID != p.ID {
		t.Errorf("second authorize created payment %s, want %s", again.ID, p.ID)
	}

	for _, key := range []string{"cap-1", "cap-2"} {
		out, err := h.payments.Capture(ctx, PaymentActionRequest{PaymentID: p.ID}, key)
		if err != nil {
			t.Fatalf("Capture(%s) error = %v", key, err)
		}
		var got PaymentView
		decode(t, out.Body, &got)
		if got.Status != string(domain.PaymentStatusCaptured) || got.CapturedAt == nil {
			t.Errorf("Capture(%s) = %+v", key, got)
		}
	}
	ride, _ := h.rides.Get(ctx, rideID)
	if ride.State != string(domain.RideStateBilled) {
		t.Errorf("ride state after capture = %s, want billed", ride.State)
	}

	sum, err := h.payments.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.CapturedCount != 1 || sum.CapturedCents != fare {
		t.Errorf("summary = %+v, want 1 payment of %d", sum, fare)
	}

	for _, key := range []string{"ref-1", "ref-2"} {
		out, err := h.payments.Refund(ctx, PaymentActionRequest{PaymentID: p.ID}, key)
		if err != nil {
			t.Fatalf("Refund(%s) error = %v", key, err)
		}
		var got PaymentView
		decode(t, out.Body, &got)
		if got.Status != string(domain.PaymentStatusRefunded) {
			t.Errorf("Refund(%s) status = %s", key, got.Status)
		}
	}
	ride, _ = h.rides.Get(ctx, rideID)
	if ride.State != string(domain.RideStateRefunded) {
		t.Errorf("ride state after refund = %s, want refunded", ride.State)
	}

	// Repeats were no-ops: one event per transition.
	for _, typ := range []notify.EventType{notify.EventPaymentAuthorized, notify.EventPaymentCaptured, notify.EventPaymentRefunded} {
		if got := h.notifier.count(typ); got != 1 {
			t.Errorf("%s events = %d, want 1", typ, got)
		}
	}

	view, err := h.payments.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Status != string(domain.PaymentStatusRefunded) {
		t.Errorf("Get() status = %s", view.Status)
	}
}

func TestPaymentService_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	active := h.unlock(t, h.user, "SG-BIKE-030", "active").Ride
	if _, err := h.payments.Authorize(ctx, AuthorizeRequest{RideID: active.ID}, "a0"); !errors.Is(err, ErrRideNotBillable) {
		t.Errorf("authorize active ride error = %v, want ErrRideNotBillable", err)
	}
	h.lock(t, active.ID, 1.2970, 103.8460, "active-lock")

	rideID, fare := endedRide(t, h, "SG-BIKE-031")

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "unknown ride",
			call: func() error {
				_, err := h.payments.Authorize(ctx, AuthorizeRequest{RideID: "missing", AmountCents: 1}, "e1")
				return err
			},
			wantErr: ErrRideNotFound,
		},
		{
			name: "amount mismatch",
			call: func() error {
				_, err := h.payments.Authorize(ctx, AuthorizeRequest{RideID: rideID, AmountCents: fare + 1}, "e2")
				return err
			},
			wantErr: ErrBadRequest,
		},
		{
			name: "missing key",
			call: func() error {
				_, err := h.payments.Authorize(ctx, AuthorizeRequest{RideID: active.ID, AmountCents: 0}, " ")
				return err
			},
			wantErr: ErrIdempotencyKeyRequired,
		},
		{
			name: "capture unknown payment",
			call: func() error {
				_, err := h.payments.Capture(ctx, PaymentActionRequest{PaymentID: "missing"}, "e3")
				return err
			},
			wantErr: ErrPaymentNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPaymentService_RefundRequiresCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rideID, fare := endedRide(t, h, "SG-BIKE-040")
	p := authorize(t, h, rideID, fare, "rr-auth")

	_, err := h.payments.Refund(ctx, PaymentActionRequest{PaymentID: p.ID}, "rr-refund")
	if !errors.Is(err, ErrPaymentNotCaptured) || !errors.Is(err, ErrConflict) {
		t.Errorf("Refund() error = %v, want ErrPaymentNotCaptured", err)
	}
}

func TestPaymentService_AuthorizeReplayAndReuse(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rideID, fare := endedRide(t, h, "SG-BIKE-050")
	req := AuthorizeRequest{RideID: rideID, AmountCents: fare}

	first, err := h.payments.Authorize(ctx, req, "ar-key")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	second, err := h.payments.Authorize(ctx, req, "ar-key")
	if err != nil {
		t.Fatalf("replayed Authorize() error = %v", err)
	}
	if !second.Replayed || string(first.Body) != string(second.Body) {
		t.Errorf("authorize replay not byte-identical")
	}

	req.AmountCents++
	if _, err := h.payments.Authorize(ctx, req, "ar-key"); !errors.Is(err, ErrIdempotencyKeyReuse) {
		t.Errorf("key reuse error = %v, want ErrIdempotencyKeyReuse", err)
	}
}

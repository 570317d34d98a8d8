package service

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"testing"

	"bikeshare/internal/domain"
	"bikeshare/internal/idempotency"
	"bikeshare/internal/logging"
	"bikeshare/internal/notify"
	"bikeshare/internal/payments"
	"bikeshare/internal/repository"
	"bikeshare/internal/repository/memory"
	"bikeshare/internal/routing"
	"bikeshare/internal/seed"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Enqueue(evt notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) count(typ notify.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == typ {
			c++
		}
	}
	return c
}

type harness struct {
	store    *memory.Store
	notifier *recordingNotifier
	psp      *payments.MockPSP
	pricing  *PricingService
	rides    *RideService
	payments *PaymentService
	bikes    *BikeService
	routes   *RouteService

	admin domain.Principal
	user  domain.Principal
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := logging.Discard()
	store := memory.NewStore()
	if err := seed.Demo(context.Background(), store, rand.New(rand.NewPCG(7, 11)), logger); err != nil {
		t.Fatalf("seed.Demo() error = %v", err)
	}

	n := &recordingNotifier{}
	guard := idempotency.NewGuard(nil, logger)
	router := routing.NewRouter(routing.NewLoader(), "../../graphs", "toy", 4.5, logger)
	psp := payments.NewMockPSP()
	pricing := NewPricingService(store, n, logger)

	h := &harness{
		store:    store,
		notifier: n,
		psp:      psp,
		pricing:  pricing,
		rides:    NewRideService(store, guard, pricing, router, n, nil, DefaultRideConfig(), logger),
		payments: NewPaymentService(store, guard, psp, "sgd", n, logger),
		bikes:    NewBikeService(store, nil, n, logger),
		routes:   NewRouteService(router),
	}
	h.admin = h.principal(t, seed.AdminEmail)
	h.user = h.principal(t, seed.UserEmail)
	return h
}

func (h *harness) principal(t *testing.T, email string) domain.Principal {
	t.Helper()
	var p domain.Principal
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.Users().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		p = domain.Principal{UserID: u.ID, Role: u.Role}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	return p
}

func (h *harness) openRides(t *testing.T) int {
	t.Helper()
	var n int
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = tx.Rides().CountOpen(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("CountOpen() error = %v", err)
	}
	return n
}

// unlock starts a ride as p and returns the decoded response.
func (h *harness) unlock(t *testing.T, p domain.Principal, qr, key string) UnlockResponse {
	t.Helper()
	out, err := h.rides.Unlock(context.Background(), p, UnlockRequest{QRPublicID: qr}, key)
	if err != nil {
		t.Fatalf("Unlock(%s) error = %v", qr, err)
	}
	var resp UnlockResponse
	decode(t, out.Body, &resp)
	return resp
}

func (h *harness) lock(t *testing.T, rideID string, lat, lon float64, key string) LockResponse {
	t.Helper()
	out, err := h.rides.Lock(context.Background(), LockRequest{RideID: rideID, Lat: lat, Lon: lon}, key)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	var resp LockResponse
	decode(t, out.Body, &resp)
	return resp
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

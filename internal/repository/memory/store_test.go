package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

func seedBike(t *testing.T, s *Store, id, qr string) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Bikes().Create(ctx, &domain.Bike{
			ID:         id,
			QRPublicID: qr,
			LockState:  domain.BikeLockStateLocked,
			Status:     domain.BikeStatusOK,
		})
	})
	if err != nil {
		t.Fatalf("seed bike: %v", err)
	}
}

func TestWithinTx_RollbackDiscardsWrites(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedBike(t, s, "b1", "QR-1")
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Bikes().GetByIDForUpdate(ctx, "b1")
		if err != nil {
			return err
		}
		b.LockState = domain.BikeLockStateInUse
		if err := tx.Bikes().Update(ctx, b); err != nil {
			return err
		}

		got, _ := tx.Bikes().GetByID(ctx, "b1")
		if got.LockState != domain.BikeLockStateInUse {
			t.Error("transaction should read its own writes")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Bikes().GetByID(ctx, "b1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if b.LockState != domain.BikeLockStateLocked {
			t.Errorf("rolled back write is visible: %s", b.LockState)
		}
		return nil
	})

	if s.HeldLocks() != 0 {
		t.Errorf("expected locks to be released, %d held", s.HeldLocks())
	}
}

func TestWithinTx_RowLockSerializesWriters(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedBike(t, s, "b1", "QR-1")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				b, err := tx.Bikes().GetByIDForUpdate(ctx, "b1")
				if err != nil {
					return err
				}
				b.BatteryPct++
				return tx.Bikes().Update(ctx, b)
			})
			if err != nil {
				t.Errorf("tx failed: %v", err)
			}
		}()
	}
	wg.Wait()

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		b, _ := tx.Bikes().GetByID(ctx, "b1")
		if b.BatteryPct != workers {
			t.Errorf("lost update: battery = %d, want %d", b.BatteryPct, workers)
		}
		return nil
	})
}

func TestWithinTx_LockWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedBike(t, s, "b1", "QR-1")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Bikes().GetByIDForUpdate(ctx, "b1"); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Bikes().GetByIDForUpdate(ctx, "b1")
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(release)
	<-done
	if s.HeldLocks() != 0 {
		t.Errorf("expected no lock entries, %d held", s.HeldLocks())
	}
}

func TestRides_OneOpenRidePerBikeAndUser(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedBike(t, s, "b1", "QR-1")
	seedBike(t, s, "b2", "QR-2")

	create := func(id, bike, user string) error {
		return s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			return tx.Rides().Create(ctx, &domain.Ride{ID: id, BikeID: bike, UserID: user, State: domain.RideStateActive})
		})
	}

	if err := create("r1", "b1", "u1"); err != nil {
		t.Fatalf("first ride: %v", err)
	}
	if err := create("r2", "b1", "u2"); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("second ride on bike: expected ErrDuplicate, got %v", err)
	}
	if err := create("r3", "b2", "u1"); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("second ride for user: expected ErrDuplicate, got %v", err)
	}
	if err := create("r4", "b2", "u2"); err != nil {
		t.Errorf("independent ride: %v", err)
	}

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		n, _ := tx.Rides().CountOpen(ctx)
		if n != 2 {
			t.Errorf("CountOpen() = %d, want 2", n)
		}
		return nil
	})
}

func TestIdempotency_ConcurrentAcquireWaitsForOwner(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var created atomic.Int32
	var wg sync.WaitGroup
	bodies := make([][]byte, 10)

	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				rec, isNew, err := tx.Idempotency().Acquire(ctx, &domain.IdempotencyRecord{
					Key: "k1", Endpoint: "/unlock", RequestHash: "h",
				})
				if err != nil {
					return err
				}
				if isNew {
					created.Add(1)
					return tx.Idempotency().SaveResponse(ctx, "k1", 200, []byte(`{"ok":true}`))
				}
				bodies[i] = rec.ResponseBody
				return nil
			})
			if err != nil {
				t.Errorf("tx failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly one owner, got %d", created.Load())
	}
	for _, b := range bodies {
		if b != nil && string(b) != `{"ok":true}` {
			t.Errorf("follower saw %q", b)
		}
	}
}

func TestIdempotency_SaveWithoutRecord(t *testing.T) {
	t.Parallel()

	s := NewStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Idempotency().SaveResponse(ctx, "missing", 200, []byte("{}"))
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

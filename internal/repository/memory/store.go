// Package memory is an in-process repository.Store. Row locks are emulated
// with per-key semaphores held until the transaction ends; writes are staged
// per transaction and published atomically on commit.
package memory

import (
	"context"
	"sync"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type dataset struct {
	bikes    map[string]*domain.Bike
	rides    map[string]*domain.Ride
	users    map[string]*domain.User
	plans    map[string]*domain.PricingPlan
	payments map[string]*domain.Payment
	idem     map[string]*domain.IdempotencyRecord
	config   *domain.DynamicPricingConfig
	zones    []domain.GeoZone
	tasks    []*domain.MaintenanceTask
}

func newDataset() *dataset {
	return &dataset{
		bikes:    make(map[string]*domain.Bike),
		rides:    make(map[string]*domain.Ride),
		users:    make(map[string]*domain.User),
		plans:    make(map[string]*domain.PricingPlan),
		payments: make(map[string]*domain.Payment),
		idem:     make(map[string]*domain.IdempotencyRecord),
	}
}

// Store is an in-memory implementation of repository.Store.
type Store struct {
	mu    sync.RWMutex
	data  *dataset
	locks *lockTable
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newDataset(), locks: newLockTable()}
}

// WithinTx runs fn in a transaction. Staged writes are discarded unless fn
// succeeds and ctx is still live at commit time.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{store: s, held: make(map[string]struct{}), staged: newDataset()}
	defer t.releaseAll()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

// HeldLocks reports how many lock keys are currently referenced.
func (s *Store) HeldLocks() int {
	return s.locks.size()
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(t.staged); err != nil {
		return err
	}

	for id, b := range t.staged.bikes {
		s.data.bikes[id] = b
	}
	for id, r := range t.staged.rides {
		s.data.rides[id] = r
	}
	for id, u := range t.staged.users {
		s.data.users[id] = u
	}
	for id, p := range t.staged.plans {
		s.data.plans[id] = p
	}
	for id, p := range t.staged.payments {
		s.data.payments[id] = p
	}
	for k, r := range t.staged.idem {
		s.data.idem[k] = r
	}
	if t.staged.config != nil {
		s.data.config = t.staged.config
	}
	s.data.zones = append(s.data.zones, t.staged.zones...)
	s.data.tasks = append(s.data.tasks, t.staged.tasks...)
	return nil
}

// checkUnique enforces the constraints a database would: one open ride per
// bike and per user, one payment per ride, unique QR ids and emails.
func (s *Store) checkUnique(staged *dataset) error {
	for id, r := range staged.rides {
		if !r.State.Open() {
			continue
		}
		for otherID, o := range s.data.rides {
			if otherID == id || !o.State.Open() {
				continue
			}
			if next, ok := staged.rides[otherID]; ok && !next.State.Open() {
				continue
			}
			if o.BikeID == r.BikeID || (r.UserID != "" && o.UserID == r.UserID) {
				return repository.ErrDuplicate
			}
		}
	}
	for id, p := range staged.payments {
		for otherID, o := range s.data.payments {
			if otherID != id && o.RideID == p.RideID {
				return repository.ErrDuplicate
			}
		}
	}
	for id, b := range staged.bikes {
		for otherID, o := range s.data.bikes {
			if otherID != id && o.QRPublicID == b.QRPublicID {
				return repository.ErrDuplicate
			}
		}
	}
	for id, u := range staged.users {
		for otherID, o := range s.data.users {
			if otherID != id && o.Email == u.Email {
				return repository.ErrDuplicate
			}
		}
	}
	return nil
}

type tx struct {
	store  *Store
	held   map[string]struct{}
	staged *dataset
}

func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	return nil
}

func (t *tx) releaseAll() {
	for key := range t.held {
		t.store.locks.release(key)
	}
}

func (t *tx) Bikes() repository.BikeRepository                 { return bikeRepo{t} }
func (t *tx) Rides() repository.RideRepository                 { return rideRepo{t} }
func (t *tx) Users() repository.UserRepository                 { return userRepo{t} }
func (t *tx) Plans() repository.PlanRepository                 { return planRepo{t} }
func (t *tx) PricingConfig() repository.PricingConfigRepository { return configRepo{t} }
func (t *tx) Payments() repository.PaymentRepository           { return paymentRepo{t} }
func (t *tx) Zones() repository.ZoneRepository                 { return zoneRepo{t} }
func (t *tx) Idempotency() repository.IdempotencyRepository    { return idemRepo{t} }
func (t *tx) Maintenance() repository.MaintenanceRepository    { return maintenanceRepo{t} }

// view runs fn with the committed data read-locked.
func (t *tx) view(fn func(committed *dataset)) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	fn(t.store.data)
}

package memory

import (
	"context"
	"sort"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

type bikeRepo struct{ t *tx }

func (r bikeRepo) get(id string) (*domain.Bike, bool) {
	if b, ok := r.t.staged.bikes[id]; ok {
		c := *b
		return &c, true
	}
	var out *domain.Bike
	r.t.view(func(d *dataset) {
		if b, ok := d.bikes[id]; ok {
			c := *b
			out = &c
		}
	})
	return out, out != nil
}

func (r bikeRepo) all() map[string]*domain.Bike {
	merged := make(map[string]*domain.Bike)
	r.t.view(func(d *dataset) {
		for id, b := range d.bikes {
			c := *b
			merged[id] = &c
		}
	})
	for id, b := range r.t.staged.bikes {
		c := *b
		merged[id] = &c
	}
	return merged
}

func (r bikeRepo) Create(_ context.Context, bike *domain.Bike) error {
	for _, b := range r.all() {
		if b.ID == bike.ID || b.QRPublicID == bike.QRPublicID {
			return repository.ErrDuplicate
		}
	}
	c := *bike
	r.t.staged.bikes[bike.ID] = &c
	return nil
}

func (r bikeRepo) GetByID(_ context.Context, id string) (*domain.Bike, error) {
	b, ok := r.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (r bikeRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Bike, error) {
	if err := r.t.lock(ctx, "bike:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r bikeRepo) GetByQRForUpdate(ctx context.Context, qr string) (*domain.Bike, error) {
	for id, b := range r.all() {
		if b.QRPublicID != qr {
			continue
		}
		locked, err := r.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if locked.QRPublicID != qr {
			return nil, repository.ErrNotFound
		}
		return locked, nil
	}
	return nil, repository.ErrNotFound
}

func (r bikeRepo) List(_ context.Context) ([]*domain.Bike, error) {
	merged := r.all()
	bikes := make([]*domain.Bike, 0, len(merged))
	for _, b := range merged {
		bikes = append(bikes, b)
	}
	sort.Slice(bikes, func(i, j int) bool { return bikes[i].QRPublicID < bikes[j].QRPublicID })
	return bikes, nil
}

func (r bikeRepo) Update(_ context.Context, bike *domain.Bike) error {
	if _, ok := r.get(bike.ID); !ok {
		return repository.ErrNotFound
	}
	c := *bike
	r.t.staged.bikes[bike.ID] = &c
	return nil
}

type rideRepo struct{ t *tx }

func (r rideRepo) get(id string) (*domain.Ride, bool) {
	if ride, ok := r.t.staged.rides[id]; ok {
		return ride.Clone(), true
	}
	var out *domain.Ride
	r.t.view(func(d *dataset) {
		if ride, ok := d.rides[id]; ok {
			out = ride.Clone()
		}
	})
	return out, out != nil
}

func (r rideRepo) all() map[string]*domain.Ride {
	merged := make(map[string]*domain.Ride)
	r.t.view(func(d *dataset) {
		for id, ride := range d.rides {
			merged[id] = ride
		}
	})
	for id, ride := range r.t.staged.rides {
		merged[id] = ride
	}
	return merged
}

func (r rideRepo) findOpen(match func(*domain.Ride) bool) (*domain.Ride, error) {
	for _, ride := range r.all() {
		if ride.State.Open() && match(ride) {
			return ride.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r rideRepo) Create(_ context.Context, ride *domain.Ride) error {
	if _, ok := r.get(ride.ID); ok {
		return repository.ErrDuplicate
	}
	if ride.State.Open() {
		for _, o := range r.all() {
			if !o.State.Open() {
				continue
			}
			if o.BikeID == ride.BikeID || (ride.UserID != "" && o.UserID == ride.UserID) {
				return repository.ErrDuplicate
			}
		}
	}
	r.t.staged.rides[ride.ID] = ride.Clone()
	return nil
}

func (r rideRepo) GetByID(_ context.Context, id string) (*domain.Ride, error) {
	ride, ok := r.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride, nil
}

func (r rideRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	if err := r.t.lock(ctx, "ride:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r rideRepo) FindOpenByBike(_ context.Context, bikeID string) (*domain.Ride, error) {
	return r.findOpen(func(ride *domain.Ride) bool { return ride.BikeID == bikeID })
}

func (r rideRepo) FindOpenByUser(_ context.Context, userID string) (*domain.Ride, error) {
	return r.findOpen(func(ride *domain.Ride) bool { return ride.UserID == userID })
}

func (r rideRepo) CountOpen(_ context.Context) (int, error) {
	n := 0
	for _, ride := range r.all() {
		if ride.State.Open() {
			n++
		}
	}
	return n, nil
}

func (r rideRepo) Update(_ context.Context, ride *domain.Ride) error {
	if _, ok := r.get(ride.ID); !ok {
		return repository.ErrNotFound
	}
	r.t.staged.rides[ride.ID] = ride.Clone()
	return nil
}

type userRepo struct{ t *tx }

func (r userRepo) find(match func(*domain.User) bool) (*domain.User, bool) {
	for _, u := range r.t.staged.users {
		if match(u) {
			c := *u
			return &c, true
		}
	}
	var out *domain.User
	r.t.view(func(d *dataset) {
		for _, u := range d.users {
			if match(u) {
				c := *u
				out = &c
				return
			}
		}
	})
	return out, out != nil
}

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	if _, dup := r.find(func(u *domain.User) bool { return u.ID == user.ID || u.Email == user.Email }); dup {
		return repository.ErrDuplicate
	}
	c := *user
	r.t.staged.users[user.ID] = &c
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.find(func(u *domain.User) bool { return u.ID == id })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	u, ok := r.find(func(u *domain.User) bool { return u.Email == email })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r userRepo) LockUser(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return r.t.lock(ctx, "user:"+id)
}

type planRepo struct{ t *tx }

func (r planRepo) list() []*domain.PricingPlan {
	merged := make(map[string]*domain.PricingPlan)
	r.t.view(func(d *dataset) {
		for id, p := range d.plans {
			merged[id] = p
		}
	})
	for id, p := range r.t.staged.plans {
		merged[id] = p
	}
	plans := make([]*domain.PricingPlan, 0, len(merged))
	for _, p := range merged {
		c := *p
		plans = append(plans, &c)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Version > plans[j].Version })
	return plans
}

func (r planRepo) Create(_ context.Context, plan *domain.PricingPlan) error {
	for _, p := range r.list() {
		if p.ID == plan.ID || p.Version == plan.Version || (plan.IsActive && p.IsActive) {
			return repository.ErrDuplicate
		}
	}
	c := *plan
	r.t.staged.plans[plan.ID] = &c
	return nil
}

func (r planRepo) GetActive(_ context.Context) (*domain.PricingPlan, error) {
	for _, p := range r.list() {
		if p.IsActive {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r planRepo) GetByVersion(_ context.Context, version int) (*domain.PricingPlan, error) {
	for _, p := range r.list() {
		if p.Version == version {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r planRepo) List(_ context.Context) ([]*domain.PricingPlan, error) {
	return r.list(), nil
}

type configRepo struct{ t *tx }

func (r configRepo) Get(_ context.Context) (*domain.DynamicPricingConfig, error) {
	if c := r.t.staged.config; c != nil {
		cp := *c
		return &cp, nil
	}
	var out *domain.DynamicPricingConfig
	r.t.view(func(d *dataset) {
		if d.config != nil {
			cp := *d.config
			out = &cp
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r configRepo) GetForUpdate(ctx context.Context) (*domain.DynamicPricingConfig, error) {
	if err := r.t.lock(ctx, "pricing_config"); err != nil {
		return nil, err
	}
	return r.Get(ctx)
}

func (r configRepo) Save(_ context.Context, cfg *domain.DynamicPricingConfig) error {
	cp := *cfg
	r.t.staged.config = &cp
	return nil
}

type paymentRepo struct{ t *tx }

func (r paymentRepo) find(match func(*domain.Payment) bool) (*domain.Payment, bool) {
	for _, p := range r.t.staged.payments {
		if match(p) {
			c := *p
			return &c, true
		}
	}
	var out *domain.Payment
	r.t.view(func(d *dataset) {
		for id, p := range d.payments {
			if _, shadowed := r.t.staged.payments[id]; shadowed {
				continue
			}
			if match(p) {
				c := *p
				out = &c
				return
			}
		}
	})
	return out, out != nil
}

func (r paymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	if _, dup := r.find(func(p *domain.Payment) bool { return p.ID == payment.ID || p.RideID == payment.RideID }); dup {
		return repository.ErrDuplicate
	}
	c := *payment
	r.t.staged.payments[payment.ID] = &c
	return nil
}

func (r paymentRepo) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	p, ok := r.find(func(p *domain.Payment) bool { return p.ID == id })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r paymentRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	if err := r.t.lock(ctx, "payment:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r paymentRepo) GetByRideIDForUpdate(ctx context.Context, rideID string) (*domain.Payment, error) {
	p, ok := r.find(func(p *domain.Payment) bool { return p.RideID == rideID })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByIDForUpdate(ctx, p.ID)
}

func (r paymentRepo) Update(_ context.Context, payment *domain.Payment) error {
	if _, ok := r.find(func(p *domain.Payment) bool { return p.ID == payment.ID }); !ok {
		return repository.ErrNotFound
	}
	c := *payment
	r.t.staged.payments[payment.ID] = &c
	return nil
}

func (r paymentRepo) Summary(_ context.Context) (domain.PaymentSummary, error) {
	var s domain.PaymentSummary
	seen := make(map[string]struct{})
	add := func(p *domain.Payment) {
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		if p.Status == domain.PaymentStatusCaptured {
			s.CapturedCents += p.AmountCents
			s.CapturedCount++
		}
	}
	for _, p := range r.t.staged.payments {
		add(p)
	}
	r.t.view(func(d *dataset) {
		for _, p := range d.payments {
			add(p)
		}
	})
	return s, nil
}

type zoneRepo struct{ t *tx }

func (r zoneRepo) Create(_ context.Context, zone *domain.GeoZone) error {
	r.t.staged.zones = append(r.t.staged.zones, *zone)
	return nil
}

func (r zoneRepo) List(_ context.Context) ([]domain.GeoZone, error) {
	var zones []domain.GeoZone
	r.t.view(func(d *dataset) {
		zones = append(zones, d.zones...)
	})
	return append(zones, r.t.staged.zones...), nil
}

type idemRepo struct{ t *tx }

func (r idemRepo) get(key string) (*domain.IdempotencyRecord, bool) {
	if rec, ok := r.t.staged.idem[key]; ok {
		return copyRecord(rec), true
	}
	var out *domain.IdempotencyRecord
	r.t.view(func(d *dataset) {
		if rec, ok := d.idem[key]; ok {
			out = copyRecord(rec)
		}
	})
	return out, out != nil
}

func (r idemRepo) Acquire(ctx context.Context, rec *domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	if err := r.t.lock(ctx, "idem:"+rec.Key); err != nil {
		return nil, false, err
	}
	if stored, ok := r.get(rec.Key); ok {
		return stored, false, nil
	}
	pending := &domain.IdempotencyRecord{
		Key:         rec.Key,
		Endpoint:    rec.Endpoint,
		RequestHash: rec.RequestHash,
		CreatedAt:   rec.CreatedAt,
	}
	r.t.staged.idem[rec.Key] = pending
	return copyRecord(pending), true, nil
}

func (r idemRepo) SaveResponse(_ context.Context, key string, status int, body []byte) error {
	rec, ok := r.get(key)
	if !ok {
		return repository.ErrNotFound
	}
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	r.t.staged.idem[key] = rec
	return nil
}

func copyRecord(rec *domain.IdempotencyRecord) *domain.IdempotencyRecord {
	c := *rec
	if rec.ResponseBody != nil {
		c.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	}
	return &c
}

type maintenanceRepo struct{ t *tx }

func (r maintenanceRepo) Create(_ context.Context, task *domain.MaintenanceTask) error {
	c := *task
	r.t.staged.tasks = append(r.t.staged.tasks, &c)
	return nil
}

func (r maintenanceRepo) ListByBike(_ context.Context, bikeID string) ([]*domain.MaintenanceTask, error) {
	var tasks []*domain.MaintenanceTask
	collect := func(all []*domain.MaintenanceTask) {
		for _, t := range all {
			if t.BikeID == bikeID {
				c := *t
				tasks = append(tasks, &c)
			}
		}
	}
	r.t.view(func(d *dataset) { collect(d.tasks) })
	collect(r.t.staged.tasks)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bikeshare/internal/domain"
	"bikeshare/internal/geo"
	"bikeshare/internal/idempotency"
	"bikeshare/internal/notify"
	"bikeshare/internal/observability"
	"bikeshare/internal/repository"
	"bikeshare/internal/routing"
)

// Endpoint names bound into idempotency hashes.
const (
	EndpointUnlock = "/unlock"
	EndpointLock   = "/lock"
)

// RouteFinder computes routes between coordinates.
type RouteFinder interface {
	Compute(ctx context.Context, graph string, from, to geo.Point, variant routing.Variant) (*routing.Route, error)
}

// RideConfig holds ride lifecycle tunables.
type RideConfig struct {
	TelemetryMinInterval time.Duration
	GeofenceBufferM      float64
	Rounding             RoundingMode
	MET                  float64
	DefaultWeightKg      float64
}

// DefaultRideConfig returns the stock tunables.
func DefaultRideConfig() RideConfig {
	return RideConfig{
		TelemetryMinInterval: 2 * time.Second,
		GeofenceBufferM:      5,
		Rounding:             RoundingBankers,
		MET:                  8.0,
		DefaultWeightKg:      70,
	}
}

// Outcome is the response of an idempotency-guarded call. Replays carry the
// exact bytes stored by the first call.
type Outcome struct {
	Status   int
	Body     []byte
	Replayed bool
}

// UnlockRequest starts a ride on the bike behind a QR code.
type UnlockRequest struct {
	QRPublicID         string `json:"qr_public_id"`
	SimulatedUserEmail string `json:"simulated_user_email,omitempty"`
}

// TelemetryRequest is one position sample of an active ride.
type TelemetryRequest struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	SpeedMps float64 `json:"speed_mps"`
	TS       float64 `json:"ts"` // epoch seconds
}

// LockRequest ends a ride at a position.
type LockRequest struct {
	RideID string  `json:"ride_id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// RideService runs the ride state machine: unlock, telemetry and lock.
type RideService struct {
	store     repository.Store
	guard     *idempotency.Guard
	pricing   *PricingService
	router    RouteFinder
	notifier  Notifier
	locations LocationIndex
	cfg       RideConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRideService creates a new RideService. locations may be nil.
func NewRideService(
	store repository.Store,
	guard *idempotency.Guard,
	pricing *PricingService,
	router RouteFinder,
	notifier Notifier,
	locations LocationIndex,
	cfg RideConfig,
	logger *slog.Logger,
) *RideService {
	return &RideService{
		store:     store,
		guard:     guard,
		pricing:   pricing,
		router:    router,
		notifier:  notifier,
		locations: locations,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ride")),
		now:       time.Now,
	}
}

// Unlock starts a ride. The bike row lock serializes concurrent unlocks of
// one bike; the user row lock serializes ride starts of one rider.
func (s *RideService) Unlock(ctx context.Context, principal domain.Principal, req UnlockRequest, idemKey string) (*Outcome, error) {
	req.QRPublicID = strings.TrimSpace(req.QRPublicID)
	req.SimulatedUserEmail = strings.ToLower(strings.TrimSpace(req.SimulatedUserEmail))
	if req.QRPublicID == "" {
		return nil, ErrBikeNotFound
	}
	if req.SimulatedUserEmail != "" && !principal.IsAdmin() {
		observability.UnlockFailures.WithLabelValues("forbidden").Inc()
		return nil, ErrSimulationForbidden
	}

	ireq, err := idempotency.NewRequest(idemKey, EndpointUnlock, req)
	if err != nil {
		return nil, translate(err, ErrBadRequest)
	}

	var result *UnlockResponse
	resp, replayed, err := s.guard.Do(ctx, s.store, ireq, func(ctx context.Context, tx repository.Tx) (idempotency.Response, error) {
		var err error
		result, err = s.unlock(ctx, tx, principal, req)
		if err != nil {
			return idempotency.Response{}, err
		}
		return jsonResponse(http.StatusOK, result)
	})
	if err != nil {
		observability.UnlockFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, translate(err, ErrBikeNotFound)
	}

	if replayed {
		observability.IdempotentReplays.WithLabelValues(EndpointUnlock).Inc()
		return &Outcome{Status: resp.Status, Body: resp.Body, Replayed: true}, nil
	}

	observability.RidesUnlocked.Inc()
	s.logger.Info("bike unlocked",
		slog.String("ride_id", result.Ride.ID),
		slog.String("bike_id", result.Bike.ID),
		slog.String("triggered_by", principal.UserID),
	)
	s.notifier.Enqueue(notify.Event{
		Type:   notify.EventRideUnlocked,
		RideID: result.Ride.ID,
		BikeID: result.Bike.ID,
		Payload: map[string]any{
			"pricing_version":          result.Ride.PricingVersion,
			"dynamic_multiplier_start": result.Ride.DynamicMultiplierStart,
		},
	})
	indexLocation(ctx, s.locations, s.logger, result.Bike.ID, result.Bike.Lat, result.Bike.Lon)

	return &Outcome{Status: resp.Status, Body: resp.Body}, nil
}

func (s *RideService) unlock(ctx context.Context, tx repository.Tx, principal domain.Principal, req UnlockRequest) (*UnlockResponse, error) {
	now := s.now().UTC()

	bike, err := tx.Bikes().GetByQRForUpdate(ctx, req.QRPublicID)
	if err != nil {
		return nil, translate(err, ErrBikeNotFound)
	}
	if !bike.Unlockable() {
		return nil, ErrBikeUnavailable
	}

	rider, err := s.resolveRider(ctx, tx, principal, req.SimulatedUserEmail, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Users().LockUser(ctx, rider.ID); err != nil {
		return nil, translate(err, ErrUserNotFound)
	}

	if _, err := tx.Rides().FindOpenByBike(ctx, bike.ID); err == nil {
		return nil, ErrBikeBusy
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := tx.Rides().FindOpenByUser(ctx, rider.ID); err == nil {
		return nil, ErrRiderBusy
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	plan, err := tx.Plans().GetActive(ctx)
	if err != nil {
		return nil, translate(err, ErrNoActivePlan)
	}

	// Snapshot before the new ride counts as demand.
	snap, err := s.pricing.Snapshot(ctx, tx)
	if err != nil {
		return nil, err
	}
	observability.DynamicMultiplier.Set(snap.Multiplier)

	token, err := newUnlockToken()
	if err != nil {
		return nil, err
	}

	ride := &domain.Ride{
		ID:                     uuid.New().String(),
		UserID:                 rider.ID,
		BikeID:                 bike.ID,
		State:                  domain.RideStateActive,
		StartedAt:              now,
		PricingVersion:         plan.Version,
		DynamicMultiplierStart: snap.Multiplier,
		UnlockToken:            token,
		CreatedAt:              now,
	}
	if err := tx.Rides().Create(ctx, ride); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrBikeBusy
		}
		return nil, err
	}

	bike.LockState = domain.BikeLockStateInUse
	bike.LastReportedAt = now
	if err := tx.Bikes().Update(ctx, bike); err != nil {
		return nil, err
	}

	return &UnlockResponse{
		UnlockToken: token,
		Ride:        NewRideView(ride),
		Bike:        NewBikeView(bike),
	}, nil
}

// resolveRider returns the acting rider. Admins may ride as a simulated user,
// created on first use.
func (s *RideService) resolveRider(ctx context.Context, tx repository.Tx, principal domain.Principal, simulatedEmail string, now time.Time) (*domain.User, error) {
	if simulatedEmail == "" {
		u, err := tx.Users().GetByID(ctx, principal.UserID)
		if err != nil {
			return nil, translate(err, ErrUserNotFound)
		}
		return u, nil
	}

	u, err := tx.Users().GetByEmail(ctx, simulatedEmail)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	u = &domain.User{
		ID:        uuid.New().String(),
		Email:     simulatedEmail,
		Role:      domain.RoleUser,
		WeightKg:  s.cfg.DefaultWeightKg,
		CreatedAt: now,
	}
	if err := tx.Users().Create(ctx, u); err != nil {
		return nil, translate(err, ErrUserNotFound)
	}
	s.logger.Info("simulated rider created",
		slog.String("user_id", u.ID),
		slog.String("created_by", principal.UserID),
	)
	return u, nil
}

// Telemetry applies a position sample to an active ride.
func (s *RideService) Telemetry(ctx context.Context, rideID string, req TelemetryRequest) (*TelemetryResponse, error) {
	if !validLocation(req.Lat, req.Lon) {
		return nil, ErrInvalidLocation
	}
	sampleAt, err := sampleTime(req.TS, s.now())
	if err != nil {
		return nil, err
	}
	if req.SpeedMps < 0 {
		return nil, ErrBadRequest
	}

	var (
		out  *TelemetryResponse
		bike *domain.Bike
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var ride *domain.Ride
		var err error
		ride, bike, err = s.lockRideAndBike(ctx, tx, rideID)
		if err != nil {
			return err
		}

		elapsed := s.cfg.TelemetryMinInterval
		if !ride.LastTelemetryAt.IsZero() {
			if sampleAt.Before(ride.LastTelemetryAt) {
				return ErrInvalidTimestamp
			}
			if d := sampleAt.Sub(ride.LastTelemetryAt).Truncate(time.Second); d > elapsed {
				elapsed = d
			}
		}

		here := domain.NewPosition(req.Lat, req.Lon)
		if prev, ok := ride.LastPosition(); ok {
			ride.Meters += geo.HaversineM(
				geo.Point{Lat: prev.Lat(), Lon: prev.Lon()},
				geo.Point{Lat: req.Lat, Lon: req.Lon},
			)
		}
		ride.Polyline = append(ride.Polyline, here)
		ride.Seconds += int(elapsed / time.Second)
		ride.LastTelemetryAt = sampleAt

		weight, err := s.riderWeight(ctx, tx, ride)
		if err != nil {
			return err
		}
		ride.CaloriesKcal = Calories(s.cfg.MET, weight, ride.Seconds)

		if err := tx.Rides().Update(ctx, ride); err != nil {
			return err
		}
		bike.MoveTo(req.Lat, req.Lon, s.now().UTC())
		if err := tx.Bikes().Update(ctx, bike); err != nil {
			return err
		}

		zones, err := tx.Zones().List(ctx)
		if err != nil {
			return err
		}
		out = &TelemetryResponse{
			OK:           true,
			RideID:       ride.ID,
			Meters:       ride.Meters,
			Seconds:      ride.Seconds,
			CaloriesKcal: ride.CaloriesKcal,
			InSlowZone:   geo.InZone(geo.Point{Lat: req.Lat, Lon: req.Lon}, zones, domain.ZoneKindSlowZone),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrRideNotFound)
	}

	observability.TelemetrySamples.Inc()
	s.notifier.Enqueue(notify.Event{
		Type:   notify.EventRideTelemetry,
		RideID: out.RideID,
		BikeID: bike.ID,
		Payload: map[string]any{
			"lat":       req.Lat,
			"lon":       req.Lon,
			"speed_mps": req.SpeedMps,
			"ts":        req.TS,
		},
	})
	indexLocation(ctx, s.locations, s.logger, bike.ID, req.Lat, req.Lon)
	return out, nil
}

// Lock ends a ride at a position. Inside a no-park zone the lock is rejected
// with a RouteConflictError and nothing changes.
func (s *RideService) Lock(ctx context.Context, req LockRequest, idemKey string) (*Outcome, error) {
	req.RideID = strings.TrimSpace(req.RideID)
	if req.RideID == "" {
		return nil, ErrRideNotFound
	}
	if !validLocation(req.Lat, req.Lon) {
		return nil, ErrInvalidLocation
	}

	ireq, err := idempotency.NewRequest(idemKey, EndpointLock, req)
	if err != nil {
		return nil, translate(err, ErrBadRequest)
	}

	var (
		result *LockResponse
		bikeID string
	)
	resp, replayed, err := s.guard.Do(ctx, s.store, ireq, func(ctx context.Context, tx repository.Tx) (idempotency.Response, error) {
		var err error
		result, bikeID, err = s.lock(ctx, tx, req)
		if err != nil {
			return idempotency.Response{}, err
		}
		return jsonResponse(http.StatusOK, result)
	})
	if err != nil {
		var rc *RouteConflictError
		if errors.As(err, &rc) {
			observability.LockRejections.Inc()
			s.logger.Info("lock rejected in no-park zone",
				slog.String("ride_id", req.RideID),
				slog.Bool("route_suggested", rc.Route != nil),
			)
			s.notifier.Enqueue(notify.Event{
				Type:    notify.EventLockRejected,
				RideID:  req.RideID,
				Payload: map[string]any{"lat": req.Lat, "lon": req.Lon},
			})
			return nil, rc
		}
		return nil, translate(err, ErrRideNotFound)
	}

	if replayed {
		observability.IdempotentReplays.WithLabelValues(EndpointLock).Inc()
		return &Outcome{Status: resp.Status, Body: resp.Body, Replayed: true}, nil
	}

	observability.RidesLocked.WithLabelValues(result.ParkingStatus).Inc()
	observability.FareCents.Observe(float64(result.Ride.FareCents))
	s.logger.Info("bike locked",
		slog.String("ride_id", result.Ride.ID),
		slog.String("bike_id", bikeID),
		slog.String("parking_status", result.ParkingStatus),
		slog.Int64("fare_cents", result.Ride.FareCents),
	)
	s.notifier.Enqueue(notify.Event{
		Type:   notify.EventRideLocked,
		RideID: result.Ride.ID,
		BikeID: bikeID,
		Payload: map[string]any{
			"parking_status": result.ParkingStatus,
			"fare_cents":     result.Ride.FareCents,
			"meters":         result.Ride.Meters,
			"seconds":        result.Ride.Seconds,
		},
	})
	indexLocation(ctx, s.locations, s.logger, bikeID, req.Lat, req.Lon)

	return &Outcome{Status: resp.Status, Body: resp.Body}, nil
}

func (s *RideService) lock(ctx context.Context, tx repository.Tx, req LockRequest) (*LockResponse, string, error) {
	ride, bike, err := s.lockRideAndBike(ctx, tx, req.RideID)
	if err != nil {
		return nil, "", err
	}

	zones, err := tx.Zones().List(ctx)
	if err != nil {
		return nil, "", err
	}
	at := geo.Point{Lat: req.Lat, Lon: req.Lon}
	status := geo.Classify(at, zones, s.cfg.GeofenceBufferM)

	var suggested *RouteView
	if status.NeedsRoute() {
		suggested = s.routeToParking(ctx, at, zones)
	}
	if !status.Lockable() {
		return nil, "", &RouteConflictError{Route: suggested}
	}

	plan, err := s.planForRide(ctx, tx, ride)
	if err != nil {
		return nil, "", err
	}

	// The ride is still open here, so it counts toward demand.
	snap, err := s.pricing.Snapshot(ctx, tx)
	if err != nil {
		return nil, "", err
	}
	observability.DynamicMultiplier.Set(snap.Multiplier)

	fare := ComputeFare(plan, ride.Meters, ride.Seconds, snap.Multiplier, s.cfg.Rounding)
	now := s.now().UTC()

	if err := transition(ride, domain.RideStateEnded); err != nil {
		return nil, "", err
	}
	ride.EndedAt = now
	ride.FareCents = fare.TotalCents
	ride.DynamicMultiplierEnd = snap.Multiplier
	if err := tx.Rides().Update(ctx, ride); err != nil {
		return nil, "", err
	}

	bike.LockState = domain.BikeLockStateLocked
	bike.MoveTo(req.Lat, req.Lon, now)
	if err := tx.Bikes().Update(ctx, bike); err != nil {
		return nil, "", err
	}

	return &LockResponse{
		OK:                  true,
		ParkingStatus:       string(status),
		Ride:                NewRideView(ride),
		Fare:                &fare,
		NearestParkingRoute: suggested,
	}, bike.ID, nil
}

// routeToParking suggests a route to the nearest parking zone. Routing
// failures never block a lock decision.
func (s *RideService) routeToParking(ctx context.Context, from geo.Point, zones []domain.GeoZone) *RouteView {
	target, ok := geo.NearestZoneCentroid(from, zones, domain.ZoneKindParking)
	if !ok || s.router == nil {
		return nil
	}
	route, err := s.router.Compute(ctx, "", from, target, routing.VariantShortest)
	if err != nil {
		s.logger.Warn("parking route unavailable",
			slog.Float64("lat", from.Lat),
			slog.Float64("lon", from.Lon),
			slog.Any("error", err),
		)
		return nil
	}
	return newRouteView(route, false)
}

// planForRide resolves the plan version captured at unlock, falling back to
// the active plan when that version is gone.
func (s *RideService) planForRide(ctx context.Context, tx repository.Tx, ride *domain.Ride) (*domain.PricingPlan, error) {
	plan, err := tx.Plans().GetByVersion(ctx, ride.PricingVersion)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	plan, err = tx.Plans().GetActive(ctx)
	if err != nil {
		return nil, translate(err, ErrNoActivePlan)
	}
	return plan, nil
}

// lockRideAndBike takes the bike lock before the ride lock, matching unlock.
func (s *RideService) lockRideAndBike(ctx context.Context, tx repository.Tx, rideID string) (*domain.Ride, *domain.Bike, error) {
	peek, err := tx.Rides().GetByID(ctx, rideID)
	if err != nil {
		return nil, nil, translate(err, ErrRideNotFound)
	}
	bike, err := tx.Bikes().GetByIDForUpdate(ctx, peek.BikeID)
	if err != nil {
		return nil, nil, translate(err, ErrBikeNotFound)
	}
	ride, err := tx.Rides().GetByIDForUpdate(ctx, rideID)
	if err != nil {
		return nil, nil, translate(err, ErrRideNotFound)
	}
	if ride.State != domain.RideStateActive {
		return nil, nil, ErrRideNotActive
	}
	return ride, bike, nil
}

func (s *RideService) riderWeight(ctx context.Context, tx repository.Tx, ride *domain.Ride) (float64, error) {
	if ride.UserID == "" {
		return s.cfg.DefaultWeightKg, nil
	}
	u, err := tx.Users().GetByID(ctx, ride.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.cfg.DefaultWeightKg, nil
	}
	if err != nil {
		return 0, err
	}
	if u.WeightKg <= 0 {
		return s.cfg.DefaultWeightKg, nil
	}
	return u.WeightKg, nil
}

// Get returns a ride by ID.
func (s *RideService) Get(ctx context.Context, rideID string) (*RideView, error) {
	var view RideView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, err := tx.Rides().GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		view = NewRideView(ride)
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrRideNotFound)
	}
	return &view, nil
}

// Calories estimates energy burned over the whole ride with a constant-MET
// model. At least one second is always counted.
func Calories(met, weightKg float64, seconds int) float64 {
	hours := math.Max(float64(seconds), 1) / 3600.0
	return met * weightKg * hours
}

// maxClockSkew bounds how far a telemetry timestamp may run ahead of the server clock.
const maxClockSkew = time.Hour

// sampleTime converts epoch seconds to a time, rejecting values that are not
// finite, not positive, or too far in the future.
func sampleTime(ts float64, now time.Time) (time.Time, error) {
	if ts <= 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return time.Time{}, ErrInvalidTimestamp
	}
	if ts > float64(now.Add(maxClockSkew).Unix()) {
		return time.Time{}, ErrInvalidTimestamp
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// transition moves a ride to next, refusing moves the state machine forbids.
func transition(ride *domain.Ride, next domain.RideState) error {
	if !ride.State.CanTransitionTo(next) {
		return fmt.Errorf("ride %s cannot move from %s to %s: %w", ride.ID, ride.State, next, ErrIllegalTransition)
	}
	ride.State = next
	return nil
}

func newUnlockToken() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func jsonResponse(status int, v any) (idempotency.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return idempotency.Response{}, err
	}
	return idempotency.Response{Status: status, Body: body}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, idempotency.ErrKeyReuse):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

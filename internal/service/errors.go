package service

import (
	"errors"
	"fmt"

	"bikeshare/internal/idempotency"
	"bikeshare/internal/repository"
	"bikeshare/internal/routing"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")
)

var (
	// ErrBikeNotFound is returned when a QR id or bike id is unknown.
	ErrBikeNotFound = fmt.Errorf("bike not found: %w", ErrNotFound)

	// ErrRideNotFound is returned when a ride id is unknown.
	ErrRideNotFound = fmt.Errorf("ride not found: %w", ErrNotFound)

	// ErrPaymentNotFound is returned when a payment id is unknown.
	ErrPaymentNotFound = fmt.Errorf("payment not found: %w", ErrNotFound)

	// ErrUserNotFound is returned when the acting principal has no user record.
	ErrUserNotFound = fmt.Errorf("user not found: %w", ErrNotFound)

	// ErrGraphNotFound is returned when the named route graph does not exist.
	ErrGraphNotFound = fmt.Errorf("graph not found: %w", ErrNotFound)

	// ErrNoRoute is returned when the graph has no path between the endpoints.
	ErrNoRoute = fmt.Errorf("no route between points: %w", ErrNotFound)

	// ErrBikeUnavailable is returned when a bike is out of service or already in use.
	ErrBikeUnavailable = fmt.Errorf("bike not available: %w", ErrConflict)

	// ErrBikeBusy is returned when the bike already has an open ride.
	ErrBikeBusy = fmt.Errorf("bike already has an active ride: %w", ErrConflict)

	// ErrRiderBusy is returned when the rider already has an open ride.
	ErrRiderBusy = fmt.Errorf("rider already has an active ride: %w", ErrConflict)

	// ErrRideNotActive is returned when telemetry or lock targets a ride that is not active.
	ErrRideNotActive = fmt.Errorf("ride is not active: %w", ErrConflict)

	// ErrNoParkZone is returned when a lock is attempted inside a no-park zone.
	ErrNoParkZone = fmt.Errorf("cannot lock in no-park zone: %w", ErrConflict)

	// ErrRideNotBillable is returned when a payment targets a ride without a fixed fare.
	ErrRideNotBillable = fmt.Errorf("ride not ready for payment: %w", ErrConflict)

	// ErrIllegalTransition is returned when a ride state change is not allowed.
	ErrIllegalTransition = fmt.Errorf("illegal ride state transition: %w", ErrConflict)

	// ErrPaymentExists is returned when a ride was already paid differently.
	ErrPaymentExists = fmt.Errorf("payment already exists for ride: %w", ErrConflict)

	// ErrPaymentNotAuthorized is returned when capturing a payment that is not authorized.
	ErrPaymentNotAuthorized = fmt.Errorf("payment not in authorized state: %w", ErrConflict)

	// ErrPaymentNotCaptured is returned when refunding a payment that is not captured.
	ErrPaymentNotCaptured = fmt.Errorf("payment not in captured state: %w", ErrConflict)

	// ErrIdempotencyKeyReuse is returned when a key is replayed with a different payload.
	ErrIdempotencyKeyReuse = fmt.Errorf("idempotency key reused with different payload: %w", ErrConflict)

	// ErrIdempotencyKeyRequired is returned when a mutating call carries no key.
	ErrIdempotencyKeyRequired = fmt.Errorf("idempotency key header is required: %w", ErrBadRequest)

	// ErrAmountMismatch is returned when an authorize amount differs from the ride fare.
	ErrAmountMismatch = fmt.Errorf("amount does not match ride fare: %w", ErrBadRequest)

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = fmt.Errorf("invalid location: %w", ErrBadRequest)

	// ErrInvalidTimestamp is returned for out-of-order telemetry samples.
	ErrInvalidTimestamp = fmt.Errorf("telemetry timestamp earlier than last sample: %w", ErrBadRequest)

	// ErrInvalidPricingConfig is returned when a config update is out of range.
	ErrInvalidPricingConfig = fmt.Errorf("invalid pricing config: %w", ErrBadRequest)

	// ErrSimulationForbidden is returned when a non-admin tries to act as another rider.
	ErrSimulationForbidden = fmt.Errorf("only admins can simulate riders: %w", ErrForbidden)

	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrForbidden)

	// ErrNoActivePlan is returned when no pricing plan is active.
	ErrNoActivePlan = fmt.Errorf("no active pricing plan: %w", ErrInternal)
)

// RouteConflictError is a no-park rejection carrying the suggested route to
// the nearest parking zone.
type RouteConflictError struct {
	Route *RouteView
}

func (e *RouteConflictError) Error() string { return ErrNoParkZone.Error() }

// Unwrap exposes the no-park sentinel, and through it ErrConflict.
func (e *RouteConflictError) Unwrap() error { return ErrNoParkZone }

// translate maps collaborator errors onto the taxonomy.
func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%v: %w", err, ErrConflict)
	case errors.Is(err, idempotency.ErrKeyReuse):
		return ErrIdempotencyKeyReuse
	case errors.Is(err, idempotency.ErrMissingKey):
		return ErrIdempotencyKeyRequired
	case errors.Is(err, routing.ErrGraphNotFound):
		return fmt.Errorf("%v: %w", err, ErrGraphNotFound)
	case errors.Is(err, routing.ErrNoPath), errors.Is(err, routing.ErrEmptyGraph):
		return fmt.Errorf("%v: %w", err, ErrNoRoute)
	case errors.Is(err, routing.ErrUnknownVariant), errors.Is(err, routing.ErrUnknownNode):
		return fmt.Errorf("%v: %w", err, ErrBadRequest)
	default:
		return err
	}
}

func validLocation(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

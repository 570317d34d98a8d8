package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bikeshare/internal/domain"
	"bikeshare/internal/idempotency"
	"bikeshare/internal/notify"
	"bikeshare/internal/observability"
	"bikeshare/internal/payments"
	"bikeshare/internal/repository"
)

// Endpoint names bound into idempotency hashes.
const (
	EndpointAuthorize = "/payments/authorize"
	EndpointCapture   = "/payments/capture"
	EndpointRefund    = "/payments/refund"
)

// AuthorizeRequest places a hold for a finished ride's fare.
type AuthorizeRequest struct {
	RideID      string `json:"ride_id"`
	AmountCents int64  `json:"amount_cents"`
}

// PaymentActionRequest targets an existing payment.
type PaymentActionRequest struct {
	PaymentID string `json:"payment_id"`
}

// PaymentService maintains the payment ledger. Each transition is guarded by
// an idempotency key and is also a no-op when repeated in its target state.
type PaymentService struct {
	store    repository.Store
	guard    *idempotency.Guard
	psp      payments.PSP
	currency string
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	store repository.Store,
	guard *idempotency.Guard,
	psp payments.PSP,
	currency string,
	notifier Notifier,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		store:    store,
		guard:    guard,
		psp:      psp,
		currency: currency,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "payments")),
		now:      time.Now,
	}
}

// Authorize creates an authorized payment for an ended ride. The amount must
// equal the ride's fare.
func (s *PaymentService) Authorize(ctx context.Context, req AuthorizeRequest, idemKey string) (*Outcome, error) {
	req.RideID = strings.TrimSpace(req.RideID)
	if req.RideID == "" {
		return nil, ErrRideNotFound
	}
	if req.AmountCents < 0 {
		return nil, ErrAmountMismatch
	}

	return s.guarded(ctx, EndpointAuthorize, req, idemKey, func(ctx context.Context, tx repository.Tx, key string) (*domain.Payment, bool, error) {
		ride, err := tx.Rides().GetByIDForUpdate(ctx, req.RideID)
		if err != nil {
			return nil, false, translate(err, ErrRideNotFound)
		}
		if ride.State != domain.RideStateEnded && ride.State != domain.RideStateBilled {
			return nil, false, ErrRideNotBillable
		}
		if req.AmountCents != ride.FareCents {
			return nil, false, ErrAmountMismatch
		}

		existing, err := tx.Payments().GetByRideIDForUpdate(ctx, ride.ID)
		switch {
		case err == nil:
			if existing.AmountCents == req.AmountCents && existing.Status == domain.PaymentStatusAuthorized {
				return existing, false, nil
			}
			return nil, false, ErrPaymentExists
		case !errors.Is(err, repository.ErrNotFound):
			return nil, false, err
		}

		now := s.now().UTC()
		p := &domain.Payment{
			ID:             uuid.New().String(),
			RideID:         ride.ID,
			AmountCents:    req.AmountCents,
			Status:         domain.PaymentStatusAuthorized,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Payments().Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, false, ErrPaymentExists
			}
			return nil, false, err
		}

		// PSP last: a provider failure rolls the ledger row back.
		ref, err := s.psp.Authorize(ctx, p.AmountCents, s.currency, key)
		if err != nil {
			return nil, false, err
		}
		p.PSPReference = ref
		if err := tx.Payments().Update(ctx, p); err != nil {
			return nil, false, err
		}
		return p, true, nil
	})
}

// Capture settles an authorized payment and bills its ride.
func (s *PaymentService) Capture(ctx context.Context, req PaymentActionRequest, idemKey string) (*Outcome, error) {
	return s.guarded(ctx, EndpointCapture, req, idemKey, func(ctx context.Context, tx repository.Tx, key string) (*domain.Payment, bool, error) {
		ride, p, err := s.lockPayment(ctx, tx, req.PaymentID)
		if err != nil {
			return nil, false, err
		}
		if p.Status == domain.PaymentStatusCaptured {
			return p, false, nil
		}
		if p.Status != domain.PaymentStatusAuthorized {
			return nil, false, ErrPaymentNotAuthorized
		}

		now := s.now().UTC()
		p.Status = domain.PaymentStatusCaptured
		p.CapturedAt = now
		p.UpdatedAt = now
		if err := tx.Payments().Update(ctx, p); err != nil {
			return nil, false, err
		}
		if ride.State == domain.RideStateEnded {
			if err := transition(ride, domain.RideStateBilled); err != nil {
				return nil, false, err
			}
			if err := tx.Rides().Update(ctx, ride); err != nil {
				return nil, false, err
			}
		}

		if err := s.psp.Capture(ctx, p.PSPReference, key); err != nil {
			return nil, false, err
		}
		return p, true, nil
	})
}

// Refund returns a captured payment and marks its ride refunded.
func (s *PaymentService) Refund(ctx context.Context, req PaymentActionRequest, idemKey string) (*Outcome, error) {
	return s.guarded(ctx, EndpointRefund, req, idemKey, func(ctx context.Context, tx repository.Tx, key string) (*domain.Payment, bool, error) {
		ride, p, err := s.lockPayment(ctx, tx, req.PaymentID)
		if err != nil {
			return nil, false, err
		}
		if p.Status == domain.PaymentStatusRefunded {
			return p, false, nil
		}
		if p.Status != domain.PaymentStatusCaptured {
			return nil, false, ErrPaymentNotCaptured
		}

		now := s.now().UTC()
		p.Status = domain.PaymentStatusRefunded
		p.RefundedAt = now
		p.UpdatedAt = now
		if err := tx.Payments().Update(ctx, p); err != nil {
			return nil, false, err
		}
		if err := transition(ride, domain.RideStateRefunded); err != nil {
			return nil, false, err
		}
		if err := tx.Rides().Update(ctx, ride); err != nil {
			return nil, false, err
		}

		if err := s.psp.Refund(ctx, p.PSPReference, key); err != nil {
			return nil, false, err
		}
		return p, true, nil
	})
}

// Get returns a payment by ID.
func (s *PaymentService) Get(ctx context.Context, paymentID string) (*PaymentView, error) {
	var view PaymentView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		view = NewPaymentView(p)
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrPaymentNotFound)
	}
	return &view, nil
}

// Summary aggregates captured payments.
func (s *PaymentService) Summary(ctx context.Context) (*PaymentSummaryView, error) {
	var out PaymentSummaryView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sum, err := tx.Payments().Summary(ctx)
		if err != nil {
			return err
		}
		out = PaymentSummaryView{CapturedCents: sum.CapturedCents, CapturedCount: sum.CapturedCount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// lockPayment locks the owning ride before the payment.
func (s *PaymentService) lockPayment(ctx context.Context, tx repository.Tx, paymentID string) (*domain.Ride, *domain.Payment, error) {
	peek, err := tx.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, nil, translate(err, ErrPaymentNotFound)
	}
	ride, err := tx.Rides().GetByIDForUpdate(ctx, peek.RideID)
	if err != nil {
		return nil, nil, translate(err, ErrRideNotFound)
	}
	p, err := tx.Payments().GetByIDForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, translate(err, ErrPaymentNotFound)
	}
	return ride, p, nil
}

type paymentStep func(ctx context.Context, tx repository.Tx, idemKey string) (p *domain.Payment, changed bool, err error)

func (s *PaymentService) guarded(ctx context.Context, endpoint string, payload any, idemKey string, step paymentStep) (*Outcome, error) {
	ireq, err := idempotency.NewRequest(idemKey, endpoint, payload)
	if err != nil {
		return nil, translate(err, ErrBadRequest)
	}

	var (
		payment *domain.Payment
		changed bool
	)
	resp, replayed, err := s.guard.Do(ctx, s.store, ireq, func(ctx context.Context, tx repository.Tx) (idempotency.Response, error) {
		var err error
		payment, changed, err = step(ctx, tx, ireq.Key)
		if err != nil {
			return idempotency.Response{}, err
		}
		return jsonResponse(http.StatusOK, NewPaymentView(payment))
	})
	if err != nil {
		return nil, translate(err, ErrPaymentNotFound)
	}

	if replayed {
		observability.IdempotentReplays.WithLabelValues(endpoint).Inc()
		return &Outcome{Status: resp.Status, Body: resp.Body, Replayed: true}, nil
	}
	if changed {
		s.published(payment)
	}
	return &Outcome{Status: resp.Status, Body: resp.Body}, nil
}

func (s *PaymentService) published(p *domain.Payment) {
	observability.PaymentTransitions.WithLabelValues(string(p.Status)).Inc()
	s.logger.Info("payment "+string(p.Status),
		slog.String("payment_id", p.ID),
		slog.String("ride_id", p.RideID),
		slog.Int64("amount_cents", p.AmountCents),
	)

	var typ notify.EventType
	switch p.Status {
	case domain.PaymentStatusAuthorized:
		typ = notify.EventPaymentAuthorized
	case domain.PaymentStatusCaptured:
		typ = notify.EventPaymentCaptured
	case domain.PaymentStatusRefunded:
		typ = notify.EventPaymentRefunded
	default:
		return
	}
	s.notifier.Enqueue(notify.Event{
		Type:   typ,
		RideID: p.RideID,
		Payload: map[string]any{
			"payment_id":   p.ID,
			"amount_cents": p.AmountCents,
		},
	})
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ihor-metko/courtflow/internal/bus"
	"github.com/ihor-metko/courtflow/internal/observability"
)

// DefaultHoldTTL is how long a hold blocks a slot before it lapses.
const DefaultHoldTTL = 5 * time.Minute

// ExpiryPolicy selects how lapsed holds leave the picture.
//
// PolicyLazy retains expired Reserved rows (so a stalled payment can be
// resumed by re-reserving) and excludes them from the overlap predicate by
// comparing expiry times. PolicyEager deletes them inside the reserve
// transaction before the overlap check, and the scheduler additionally
// sweeps them in the background.
type ExpiryPolicy string

const (
	PolicyLazy  ExpiryPolicy = "lazy"
	PolicyEager ExpiryPolicy = "eager"
)

func (p ExpiryPolicy) Valid() bool {
	return p == PolicyLazy || p == PolicyEager
}

// EventPublisher is the slice of the bus the engine needs.
type EventPublisher interface {
	Publish(room string, ev bus.Event)
}

// EngineConfig tunes the reservation engine. Zero values fall back to
// DefaultHoldTTL, PolicyLazy and the system clock.
type EngineConfig struct {
	HoldTTL time.Duration
	Policy  ExpiryPolicy
	Clock   Clock
}

// Engine owns every write to reservation status and expiry. All other
// components only read. Conflict safety comes from running the overlap
// check and the conditional insert inside one store transaction, not from
// any in-process lock.
type Engine struct {
	store  Store
	events EventPublisher
	ttl    time.Duration
	policy ExpiryPolicy
	clock  Clock
}

func NewEngine(store Store, events EventPublisher, cfg EngineConfig) (*Engine, error) {
	if store == nil {
		return nil, errors.New("reservation engine requires a store")
	}
	if events == nil {
		return nil, errors.New("reservation engine requires an event publisher")
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultHoldTTL
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLazy
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("unknown expiry policy %q", cfg.Policy)
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Engine{
		store:  store,
		events: events,
		ttl:    cfg.HoldTTL,
		policy: cfg.Policy,
		clock:  cfg.Clock,
	}, nil
}

// Reserve atomically claims [start, end) on a court for holderID. On
// success the returned reservation is a hold that expires after the
// configured TTL unless confirmed. Returns ErrValidation for bad input,
// ErrNotFound if the court does not exist, ErrConflict if the interval is
// already booked or held.
func (e *Engine) Reserve(ctx context.Context, courtID string, start, end time.Time, holderID string) (Reservation, error) {
	if courtID == "" || holderID == "" {
		return Reservation{}, fmt.Errorf("%w: court and holder are required", ErrValidation)
	}
	start, end = start.UTC(), end.UTC()
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return Reservation{}, fmt.Errorf("%w: start must be before end", ErrValidation)
	}

	now := e.clock.Now().UTC()
	expires := now.Add(e.ttl)

	var created Reservation
	err := e.runInTx(ctx, func(tx Store) error {
		court, err := tx.GetCourt(ctx, courtID)
		if err != nil {
			return err
		}

		if e.policy == PolicyEager {
			if _, err := tx.DeleteExpired(ctx, courtID, now); err != nil {
				return fmt.Errorf("delete expired holds: %w", err)
			}
		}

		blocking, err := tx.FindOverlapping(ctx, courtID, start, end, now)
		if err != nil {
			return fmt.Errorf("overlap check: %w", err)
		}
		if len(blocking) > 0 {
			return ErrConflict
		}

		created = Reservation{
			ID:         uuid.NewString(),
			CourtID:    court.ID,
			ClubID:     court.ClubID,
			HolderID:   holderID,
			Start:      start,
			End:        end,
			Status:     StatusReserved,
			PriceCents: court.PriceCents,
			ReservedAt: now,
			ExpiresAt:  &expires,
			UpdatedAt:  now,
		}
		return tx.InsertReservation(ctx, created)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			observability.ReservationConflicts.Inc()
		}
		return Reservation{}, err
	}

	observability.ReservationsCreated.Inc()
	log.Ctx(ctx).Info().
		Str("reservation_id", created.ID).
		Str("court_id", created.CourtID).
		Str("club_id", created.ClubID).
		Time("start", created.Start).
		Time("end", created.End).
		Msg("Hold created")

	// Publish only after the transaction committed so subscribers never
	// see a rolled-back write.
	e.publish(bus.EventReservationCreated, created, now)
	return created, nil
}

// Confirm promotes a hold to a confirmed booking. The expiry is re-checked
// at confirmation time: a lapsed hold returns ErrExpired even if nobody
// else took the slot, and the caller must re-reserve.
func (e *Engine) Confirm(ctx context.Context, reservationID string) (Reservation, error) {
	now := e.clock.Now().UTC()

	var confirmed Reservation
	var changed bool
	err := e.runInTx(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch r.Status {
		case StatusConfirmed:
			confirmed = r
			return nil
		case StatusCancelled:
			return ErrNotFound
		}
		if r.Expired(now) {
			return ErrExpired
		}

		r.Status = StatusConfirmed
		r.ExpiresAt = nil
		r.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		confirmed = r
		changed = true
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	if !changed {
		return confirmed, nil
	}

	log.Ctx(ctx).Info().
		Str("reservation_id", confirmed.ID).
		Str("court_id", confirmed.CourtID).
		Msg("Reservation confirmed")

	e.publish(bus.EventReservationUpdated, confirmed, now)
	return confirmed, nil
}

// Cancel marks a reservation cancelled. Cancelled rows never block new
// reservations.
func (e *Engine) Cancel(ctx context.Context, reservationID string) (Reservation, error) {
	now := e.clock.Now().UTC()

	var cancelled Reservation
	err := e.runInTx(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status == StatusCancelled {
			return ErrNotFound
		}
		r.Status = StatusCancelled
		r.ExpiresAt = nil
		r.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	log.Ctx(ctx).Info().
		Str("reservation_id", cancelled.ID).
		Str("court_id", cancelled.CourtID).
		Msg("Reservation cancelled")

	e.publish(bus.EventReservationDeleted, cancelled, now)
	return cancelled, nil
}

// SweepExpired removes every lapsed hold and announces the freed capacity
// per club. Scheduled by the composition root when the eager policy is
// active; a no-op under the lazy policy, where expired rows are retained
// and simply excluded from overlap checks.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e.policy != PolicyEager {
		return 0, nil
	}
	now := e.clock.Now().UTC()

	var swept []Reservation
	err := e.runInTx(ctx, func(tx Store) error {
		var err error
		swept, err = tx.DeleteAllExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(swept) == 0 {
		return 0, nil
	}

	observability.HoldsSwept.Add(float64(len(swept)))
	log.Ctx(ctx).Info().Int("count", len(swept)).Msg("Expired holds swept")

	clubs := make(map[string]struct{}, len(swept))
	for _, r := range swept {
		if _, dup := clubs[r.ClubID]; dup {
			continue
		}
		clubs[r.ClubID] = struct{}{}
		ev := bus.Event{
			Type:   bus.EventAvailabilityChanged,
			ClubID: r.ClubID,
			At:     now,
		}
		e.events.Publish(bus.ClubRoom(r.ClubID), ev)
		e.events.Publish(bus.RoomRootAdmin, ev)
	}
	return len(swept), nil
}

// Policy returns the configured expiry policy.
func (e *Engine) Policy() ExpiryPolicy { return e.policy }

func (e *Engine) runInTx(ctx context.Context, fn func(Store) error) error {
	started := e.clock.Now()
	err := e.store.RunInTx(ctx, fn)
	observability.TxDuration.Observe(e.clock.Now().Sub(started).Seconds())
	return err
}

func (e *Engine) publish(eventType string, r Reservation, at time.Time) {
	ev := bus.Event{
		Type:    eventType,
		ClubID:  r.ClubID,
		Payload: r,
		At:      at,
	}
	e.events.Publish(bus.ClubRoom(r.ClubID), ev)
	e.events.Publish(bus.RoomRootAdmin, ev)
}

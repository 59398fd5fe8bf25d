// Package booking holds the reservation domain: courts, time-boxed holds,
// the overlap rules that prevent double-booking, and the availability grid.
package booking

import (
	"context"
	"time"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Court is a bookable resource belonging to exactly one club.
type Court struct {
	ID         string
	ClubID     string
	Name       string
	PriceCents int64
	Surface    string
	Indoor     bool
}

// Reservation is a claim on a court interval. While Status is
// StatusReserved the claim is a hold: ExpiresAt is set and the row stops
// blocking other callers once that instant passes.
type Reservation struct {
	ID         string
	CourtID    string
	ClubID     string
	HolderID   string
	Start      time.Time
	End        time.Time
	Status     Status
	PriceCents int64
	ReservedAt time.Time
	ExpiresAt  *time.Time
	UpdatedAt  time.Time
}

// Blocks reports whether the reservation should count against new
// reservation attempts at the given instant. Confirmed rows always block;
// Reserved rows block only while their hold has not expired.
func (r Reservation) Blocks(now time.Time) bool {
	switch r.Status {
	case StatusConfirmed:
		return true
	case StatusReserved:
		return r.ExpiresAt != nil && r.ExpiresAt.After(now)
	default:
		return false
	}
}

// Expired reports whether a Reserved hold has lapsed.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == StatusReserved && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Intervals that merely touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// UserRoles describes everything the platform knows about a user's
// standing: root admin flag, organizations they administer, and clubs they
// belong to directly.
type UserRoles struct {
	IsRootAdmin          bool
	AdminOrganizationIDs []string
	MemberClubIDs        []string
}

// Clock abstracts time for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the storage capability set the engine and evaluator depend on.
// Two implementations exist: a SQLite-backed store and an in-memory
// fixture. RunInTx must execute fn against a view of the store with
// serializable semantics; the engine relies on that to keep the overlap
// check and the conditional insert atomic.
type Store interface {
	GetCourt(ctx context.Context, id string) (Court, error)
	ListClubCourts(ctx context.Context, clubID string) ([]Court, error)

	// FindOverlapping returns rows for the court that intersect
	// [start, end) and still block at now: Confirmed rows plus Reserved
	// rows whose hold has not expired.
	FindOverlapping(ctx context.Context, courtID string, start, end, now time.Time) ([]Reservation, error)
	InsertReservation(ctx context.Context, r Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	UpdateReservation(ctx context.Context, r Reservation) error
	ListByCourt(ctx context.Context, courtID string) ([]Reservation, error)
	// ListByCourtRange returns every non-cancelled reservation for the
	// given courts intersecting [start, end), expired holds included.
	ListByCourtRange(ctx context.Context, courtIDs []string, start, end time.Time) ([]Reservation, error)

	// DeleteExpired removes Reserved rows for one court whose hold lapsed
	// before now, returning the removed rows. DeleteAllExpired does the
	// same across every court.
	DeleteExpired(ctx context.Context, courtID string, now time.Time) ([]Reservation, error)
	DeleteAllExpired(ctx context.Context, now time.Time) ([]Reservation, error)

	RunInTx(ctx context.Context, fn func(Store) error) error
}

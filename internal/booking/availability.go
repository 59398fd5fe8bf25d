package booking

import (
	"context"
	"fmt"
	"time"
)

// SlotStatus classifies one time bucket of one court.
type SlotStatus string

const (
	// SlotPending: an unexpired hold touches the bucket. Pending outranks
	// every other status so speculative holds are never shown as free or
	// silently merged into confirmed unavailability.
	SlotPending SlotStatus = "pending"
	// SlotBooked: a confirmed reservation covers the whole bucket.
	SlotBooked SlotStatus = "booked"
	// SlotPartial: a confirmed reservation covers part of the bucket.
	SlotPartial   SlotStatus = "partial"
	SlotAvailable SlotStatus = "available"
)

// Slot is one classified sub-interval. Never persisted; always recomputed
// from current reservation rows.
type Slot struct {
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Status SlotStatus `json:"status"`
}

// CourtAvailability is the classified grid for a single court.
type CourtAvailability struct {
	CourtID string `json:"courtId"`
	Slots   []Slot `json:"slots"`
}

// AvailabilityGrid is the per-court breakdown plus a per-bucket aggregate
// across all requested courts.
type AvailabilityGrid struct {
	Courts    []CourtAvailability `json:"courts"`
	Aggregate []Slot              `json:"aggregate"`
}

// Availability classifies every granularity-sized bucket of
// [periodStart, periodEnd) for each court. Purely read-only: the result is
// a fresh computation every call, since a cached grid used to gate a
// reservation decision would reintroduce double-booking risk.
func (e *Engine) Availability(ctx context.Context, courtIDs []string, periodStart, periodEnd time.Time, granularity time.Duration) (AvailabilityGrid, error) {
	if len(courtIDs) == 0 {
		return AvailabilityGrid{}, fmt.Errorf("%w: at least one court is required", ErrValidation)
	}
	periodStart, periodEnd = periodStart.UTC(), periodEnd.UTC()
	if !periodStart.Before(periodEnd) {
		return AvailabilityGrid{}, fmt.Errorf("%w: period start must be before end", ErrValidation)
	}
	if granularity <= 0 {
		return AvailabilityGrid{}, fmt.Errorf("%w: granularity must be positive", ErrValidation)
	}

	now := e.clock.Now().UTC()

	rows, err := e.store.ListByCourtRange(ctx, courtIDs, periodStart, periodEnd)
	if err != nil {
		return AvailabilityGrid{}, fmt.Errorf("list reservations: %w", err)
	}
	byCourt := make(map[string][]Reservation, len(courtIDs))
	for _, r := range rows {
		byCourt[r.CourtID] = append(byCourt[r.CourtID], r)
	}

	var buckets []Slot
	for cur := periodStart; cur.Before(periodEnd); cur = cur.Add(granularity) {
		end := cur.Add(granularity)
		if end.After(periodEnd) {
			end = periodEnd
		}
		buckets = append(buckets, Slot{Start: cur, End: end})
	}

	grid := AvailabilityGrid{
		Courts:    make([]CourtAvailability, 0, len(courtIDs)),
		Aggregate: make([]Slot, len(buckets)),
	}
	for i, b := range buckets {
		grid.Aggregate[i] = Slot{Start: b.Start, End: b.End}
	}

	for _, courtID := range courtIDs {
		ca := CourtAvailability{CourtID: courtID, Slots: make([]Slot, len(buckets))}
		for i, b := range buckets {
			ca.Slots[i] = Slot{
				Start:  b.Start,
				End:    b.End,
				Status: classifyBucket(byCourt[courtID], b.Start, b.End, now),
			}
		}
		grid.Courts = append(grid.Courts, ca)
	}

	for i := range grid.Aggregate {
		grid.Aggregate[i].Status = aggregateBucket(grid.Courts, i)
	}
	return grid, nil
}

// classifyBucket applies the precedence pending > booked > partial >
// available. Any live hold touching the bucket makes it pending, whether
// the hold covers the bucket fully or partially.
func classifyBucket(rows []Reservation, bucketStart, bucketEnd, now time.Time) SlotStatus {
	status := SlotAvailable
	for _, r := range rows {
		if !Overlaps(r.Start, r.End, bucketStart, bucketEnd) {
			continue
		}
		switch r.Status {
		case StatusReserved:
			if r.Blocks(now) {
				return SlotPending
			}
		case StatusConfirmed:
			covers := !r.Start.After(bucketStart) && !r.End.Before(bucketEnd)
			if covers {
				status = SlotBooked
			} else if status != SlotBooked {
				status = SlotPartial
			}
		}
	}
	return status
}

// aggregateBucket folds one bucket across courts: a uniform status wins,
// anything mixed is partial.
func aggregateBucket(courts []CourtAvailability, i int) SlotStatus {
	if len(courts) == 0 {
		return SlotAvailable
	}
	first := courts[0].Slots[i].Status
	for _, c := range courts[1:] {
		if c.Slots[i].Status != first {
			return SlotPartial
		}
	}
	return first
}

package store_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ihor-metko/courtflow/internal/booking"
	"github.com/ihor-metko/courtflow/internal/store"
	"github.com/ihor-metko/courtflow/internal/testutil"
)

// facilityStore is the full surface both implementations provide: the
// reservation port plus the role queries the realtime authorizer reads.
type facilityStore interface {
	booking.Store
	GetUserRoles(ctx context.Context, userID string) (booking.UserRoles, error)
	ListOrganizationClubs(ctx context.Context, orgID string) ([]string, error)
}

func seededMemory(t *testing.T) facilityStore {
	t.Helper()
	m := store.NewMemory()
	m.AddOrganization("org-1", "Riverside Sports")
	m.AddClub("club-1", "org-1", "Riverside Downtown")
	m.AddClub("club-2", "org-1", "Riverside North")
	m.AddCourt(booking.Court{ID: "court-1", ClubID: "club-1", Name: "Court One", PriceCents: 1500, Surface: "hard", Indoor: true})
	m.AddCourt(booking.Court{ID: "court-2", ClubID: "club-1", Name: "Court Two", PriceCents: 1200, Surface: "clay"})
	m.AddUser("root-1", true)
	m.AddUser("orgadmin-1", false)
	m.AddUser("member-1", false)
	m.AddOrganizationAdmin("orgadmin-1", "org-1")
	m.AddClubMember("orgadmin-1", "club-1")
	m.AddClubMember("member-1", "club-1")
	return m
}

func seededSQLite(t *testing.T) facilityStore {
	t.Helper()
	s := testutil.NewTestStore(t)
	testutil.SeedFacility(t, s)
	return s
}

var implementations = []struct {
	name string
	make func(t *testing.T) facilityStore
}{
	{"memory", seededMemory},
	{"sqlite", seededSQLite},
}

func eachStore(t *testing.T, fn func(t *testing.T, s facilityStore)) {
	t.Helper()
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			fn(t, impl.make(t))
		})
	}
}

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func ptr(t time.Time) *time.Time { return &t }

func res(id, holderID string, start, end time.Time, status booking.Status, expires *time.Time) booking.Reservation {
	return booking.Reservation{
		ID:         id,
		CourtID:    "court-1",
		ClubID:     "club-1",
		HolderID:   holderID,
		Start:      start,
		End:        end,
		Status:     status,
		PriceCents: 1500,
		ReservedAt: start,
		ExpiresAt:  expires,
		UpdatedAt:  start,
	}
}

func TestGetCourt(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()

		c, err := s.GetCourt(ctx, "court-1")
		if err != nil {
			t.Fatalf("GetCourt: %v", err)
		}
		if c.ClubID != "club-1" || c.Name != "Court One" || c.PriceCents != 1500 || !c.Indoor {
			t.Errorf("court = %+v", c)
		}

		if _, err := s.GetCourt(ctx, "court-ghost"); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("unknown court err = %v, want ErrNotFound", err)
		}
	})
}

func TestListClubCourts(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		courts, err := s.ListClubCourts(context.Background(), "club-1")
		if err != nil {
			t.Fatalf("ListClubCourts: %v", err)
		}
		if len(courts) != 2 || courts[0].Name != "Court One" || courts[1].Name != "Court Two" {
			t.Errorf("courts = %+v, want name order", courts)
		}

		empty, err := s.ListClubCourts(context.Background(), "club-2")
		if err != nil {
			t.Fatalf("ListClubCourts empty: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("club-2 courts = %+v, want none", empty)
		}
	})
}

func TestInsertAndGetReservation(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()
		in := res("r1", "user-1", at(10, 0), at(11, 0), booking.StatusReserved, ptr(at(10, 5)))

		if err := s.InsertReservation(ctx, in); err != nil {
			t.Fatalf("InsertReservation: %v", err)
		}
		got, err := s.GetReservation(ctx, "r1")
		if err != nil {
			t.Fatalf("GetReservation: %v", err)
		}
		if got.HolderID != "user-1" || got.Status != booking.StatusReserved {
			t.Errorf("reservation = %+v", got)
		}
		if !got.Start.Equal(at(10, 0)) || !got.End.Equal(at(11, 0)) {
			t.Errorf("interval = [%v, %v)", got.Start, got.End)
		}
		if got.Start.Location() != time.UTC {
			t.Errorf("start location = %v, want UTC", got.Start.Location())
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(at(10, 5)) {
			t.Errorf("expiresAt = %v, want %v", got.ExpiresAt, at(10, 5))
		}

		if _, err := s.GetReservation(ctx, "r-ghost"); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("unknown reservation err = %v, want ErrNotFound", err)
		}
	})
}

func TestFindOverlapping(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()
		now := at(12, 0)

		fixtures := []booking.Reservation{
			res("confirmed", "user-1", at(10, 0), at(11, 0), booking.StatusConfirmed, nil),
			res("live-hold", "user-2", at(14, 0), at(15, 0), booking.StatusReserved, ptr(at(12, 30))),
			res("dead-hold", "user-3", at(16, 0), at(17, 0), booking.StatusReserved, ptr(at(11, 0))),
			res("cancelled", "user-4", at(18, 0), at(19, 0), booking.StatusCancelled, nil),
		}
		for _, r := range fixtures {
			if err := s.InsertReservation(ctx, r); err != nil {
				t.Fatalf("insert %s: %v", r.ID, err)
			}
		}

		cases := []struct {
			name       string
			start, end time.Time
			wantIDs    []string
		}{
			{"overlaps confirmed", at(10, 30), at(11, 30), []string{"confirmed"}},
			{"touches confirmed end", at(11, 0), at(12, 0), nil},
			{"touches confirmed start", at(9, 0), at(10, 0), nil},
			{"overlaps live hold", at(14, 30), at(15, 30), []string{"live-hold"}},
			{"overlaps expired hold", at(16, 0), at(17, 0), nil},
			{"overlaps cancelled", at(18, 0), at(19, 0), nil},
			{"spans everything", at(9, 0), at(20, 0), []string{"confirmed", "live-hold"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rows, err := s.FindOverlapping(ctx, "court-1", tc.start, tc.end, now)
				if err != nil {
					t.Fatalf("FindOverlapping: %v", err)
				}
				var ids []string
				for _, r := range rows {
					ids = append(ids, r.ID)
				}
				if !reflect.DeepEqual(ids, tc.wantIDs) {
					t.Errorf("ids = %v, want %v", ids, tc.wantIDs)
				}
			})
		}
	})
}

func TestUpdateReservation(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()
		r := res("r1", "user-1", at(10, 0), at(11, 0), booking.StatusReserved, ptr(at(10, 5)))
		if err := s.InsertReservation(ctx, r); err != nil {
			t.Fatalf("InsertReservation: %v", err)
		}

		r.Status = booking.StatusConfirmed
		r.ExpiresAt = nil
		r.UpdatedAt = at(10, 2)
		if err := s.UpdateReservation(ctx, r); err != nil {
			t.Fatalf("UpdateReservation: %v", err)
		}

		got, err := s.GetReservation(ctx, "r1")
		if err != nil {
			t.Fatalf("GetReservation: %v", err)
		}
		if got.Status != booking.StatusConfirmed || got.ExpiresAt != nil {
			t.Errorf("reservation = %+v, want confirmed with no expiry", got)
		}
		if !got.UpdatedAt.Equal(at(10, 2)) {
			t.Errorf("updatedAt = %v, want %v", got.UpdatedAt, at(10, 2))
		}

		missing := res("r-ghost", "user-1", at(10, 0), at(11, 0), booking.StatusConfirmed, nil)
		if err := s.UpdateReservation(ctx, missing); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("unknown update err = %v, want ErrNotFound", err)
		}
	})
}

func TestListByCourtRange(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()

		fixtures := []booking.Reservation{
			res("a", "user-1", at(10, 0), at(11, 0), booking.StatusConfirmed, nil),
			res("b", "user-2", at(12, 0), at(13, 0), booking.StatusReserved, ptr(at(12, 5))),
			res("c", "user-3", at(14, 0), at(15, 0), booking.StatusCancelled, nil),
			res("d", "user-4", at(20, 0), at(21, 0), booking.StatusConfirmed, nil),
		}
		fixtures[3].CourtID = "court-2"
		for _, r := range fixtures {
			if err := s.InsertReservation(ctx, r); err != nil {
				t.Fatalf("insert %s: %v", r.ID, err)
			}
		}

		rows, err := s.ListByCourtRange(ctx, []string{"court-1", "court-2"}, at(9, 0), at(22, 0))
		if err != nil {
			t.Fatalf("ListByCourtRange: %v", err)
		}
		var ids []string
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		// Cancelled rows are excluded; results group by court then start.
		if want := []string{"a", "b", "d"}; !reflect.DeepEqual(ids, want) {
			t.Errorf("ids = %v, want %v", ids, want)
		}

		// The range is half-open: a row touching the boundary is excluded.
		rows, err = s.ListByCourtRange(ctx, []string{"court-1"}, at(11, 0), at(12, 0))
		if err != nil {
			t.Fatalf("ListByCourtRange boundary: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("boundary rows = %+v, want none", rows)
		}

		rows, err = s.ListByCourtRange(ctx, nil, at(9, 0), at(22, 0))
		if err != nil || rows != nil {
			t.Errorf("empty court list = (%v, %v), want (nil, nil)", rows, err)
		}
	})
}

func TestDeleteExpired(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()
		now := at(12, 0)

		fixtures := []booking.Reservation{
			res("dead-1", "user-1", at(10, 0), at(11, 0), booking.StatusReserved, ptr(at(10, 5))),
			res("dead-2", "user-2", at(13, 0), at(14, 0), booking.StatusReserved, ptr(at(12, 0))),
			res("alive", "user-3", at(15, 0), at(16, 0), booking.StatusReserved, ptr(at(12, 30))),
			res("confirmed", "user-4", at(17, 0), at(18, 0), booking.StatusConfirmed, nil),
		}
		fixtures[1].CourtID = "court-2"
		for _, r := range fixtures {
			if err := s.InsertReservation(ctx, r); err != nil {
				t.Fatalf("insert %s: %v", r.ID, err)
			}
		}

		// Court-scoped: only court-1's dead hold goes.
		removed, err := s.DeleteExpired(ctx, "court-1", now)
		if err != nil {
			t.Fatalf("DeleteExpired: %v", err)
		}
		if len(removed) != 1 || removed[0].ID != "dead-1" {
			t.Errorf("removed = %+v, want [dead-1]", removed)
		}
		if _, err := s.GetReservation(ctx, "dead-1"); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("dead-1 still present: %v", err)
		}

		// Global sweep catches the rest; live holds and confirmed rows stay.
		removed, err = s.DeleteAllExpired(ctx, now)
		if err != nil {
			t.Fatalf("DeleteAllExpired: %v", err)
		}
		if len(removed) != 1 || removed[0].ID != "dead-2" {
			t.Errorf("removed = %+v, want [dead-2]", removed)
		}
		for _, id := range []string{"alive", "confirmed"} {
			if _, err := s.GetReservation(ctx, id); err != nil {
				t.Errorf("%s: %v, want retained", id, err)
			}
		}
	})
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()
		sentinel := errors.New("abort")

		err := s.RunInTx(ctx, func(tx booking.Store) error {
			if err := tx.InsertReservation(ctx, res("r1", "user-1", at(10, 0), at(11, 0), booking.StatusReserved, ptr(at(10, 5)))); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("RunInTx err = %v, want sentinel", err)
		}
		if _, err := s.GetReservation(ctx, "r1"); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("rolled-back row visible: %v", err)
		}
	})
}

func TestRunInTxCommits(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()

		err := s.RunInTx(ctx, func(tx booking.Store) error {
			if err := tx.InsertReservation(ctx, res("r1", "user-1", at(10, 0), at(11, 0), booking.StatusReserved, ptr(at(10, 5)))); err != nil {
				return err
			}
			// Writes must be visible to later reads in the same tx, and a
			// nested RunInTx joins the current one.
			return tx.RunInTx(ctx, func(inner booking.Store) error {
				_, err := inner.GetReservation(ctx, "r1")
				return err
			})
		})
		if err != nil {
			t.Fatalf("RunInTx: %v", err)
		}
		if _, err := s.GetReservation(ctx, "r1"); err != nil {
			t.Errorf("committed row missing: %v", err)
		}
	})
}

func TestGetUserRoles(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		ctx := context.Background()

		root, err := s.GetUserRoles(ctx, "root-1")
		if err != nil {
			t.Fatalf("GetUserRoles root: %v", err)
		}
		if !root.IsRootAdmin {
			t.Error("root-1 IsRootAdmin = false")
		}

		admin, err := s.GetUserRoles(ctx, "orgadmin-1")
		if err != nil {
			t.Fatalf("GetUserRoles admin: %v", err)
		}
		if !reflect.DeepEqual(admin.AdminOrganizationIDs, []string{"org-1"}) {
			t.Errorf("AdminOrganizationIDs = %v", admin.AdminOrganizationIDs)
		}
		if !reflect.DeepEqual(admin.MemberClubIDs, []string{"club-1"}) {
			t.Errorf("MemberClubIDs = %v", admin.MemberClubIDs)
		}

		if _, err := s.GetUserRoles(ctx, "user-ghost"); !errors.Is(err, booking.ErrNotFound) {
			t.Errorf("unknown user err = %v, want ErrNotFound", err)
		}
	})
}

func TestListOrganizationClubs(t *testing.T) {
	eachStore(t, func(t *testing.T, s facilityStore) {
		clubs, err := s.ListOrganizationClubs(context.Background(), "org-1")
		if err != nil {
			t.Fatalf("ListOrganizationClubs: %v", err)
		}
		if want := []string{"club-1", "club-2"}; !reflect.DeepEqual(clubs, want) {
			t.Errorf("clubs = %v, want %v", clubs, want)
		}
	})
}

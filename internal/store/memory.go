package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ihor-metko/courtflow/internal/booking"
)

// Memory is the in-memory fixture implementation of the storage port,
// used by tests and by the memory database driver for local runs. A
// single mutex serializes every transaction, which trivially satisfies
// the engine's isolation requirement.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memClub struct {
	ID             string
	OrganizationID string
	Name           string
}

type memUser struct {
	ID          string
	IsRootAdmin bool
}

type memData struct {
	organizations map[string]string
	clubs         map[string]memClub
	courts        map[string]booking.Court
	users         map[string]memUser
	orgAdmins     map[string]map[string]struct{}
	clubMembers   map[string]map[string]struct{}
	reservations  map[string]booking.Reservation
}

func NewMemory() *Memory {
	return &Memory{data: &memData{
		organizations: make(map[string]string),
		clubs:         make(map[string]memClub),
		courts:        make(map[string]booking.Court),
		users:         make(map[string]memUser),
		orgAdmins:     make(map[string]map[string]struct{}),
		clubMembers:   make(map[string]map[string]struct{}),
		reservations:  make(map[string]booking.Reservation),
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		organizations: d.organizations,
		clubs:         d.clubs,
		courts:        d.courts,
		users:         d.users,
		orgAdmins:     d.orgAdmins,
		clubMembers:   d.clubMembers,
		reservations:  make(map[string]booking.Reservation, len(d.reservations)),
	}
	for id, r := range d.reservations {
		out.reservations[id] = r
	}
	return out
}

// Seed helpers. Not part of the storage port; fixtures only.

func (m *Memory) AddOrganization(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.organizations[id] = name
}

func (m *Memory) AddClub(id, organizationID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.clubs[id] = memClub{ID: id, OrganizationID: organizationID, Name: name}
}

func (m *Memory) AddCourt(c booking.Court) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.courts[c.ID] = c
}

func (m *Memory) AddUser(id string, isRootAdmin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.users[id] = memUser{ID: id, IsRootAdmin: isRootAdmin}
}

func (m *Memory) AddOrganizationAdmin(userID, organizationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.data.orgAdmins[userID]
	if set == nil {
		set = make(map[string]struct{})
		m.data.orgAdmins[userID] = set
	}
	set[organizationID] = struct{}{}
}

func (m *Memory) AddClubMember(userID, clubID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.data.clubMembers[userID]
	if set == nil {
		set = make(map[string]struct{})
		m.data.clubMembers[userID] = set
	}
	set[clubID] = struct{}{}
}

// RunInTx runs fn against a copy of the reservation table and swaps the
// copy in only if fn succeeds, so a failed transaction leaves no partial
// state behind.
func (m *Memory) RunInTx(ctx context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.data.clone()
	if err := fn(&memTx{data: working}); err != nil {
		return err
	}
	m.data = working
	return nil
}

func (m *Memory) GetCourt(ctx context.Context, id string) (booking.Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).GetCourt(ctx, id)
}

func (m *Memory) ListClubCourts(ctx context.Context, clubID string) ([]booking.Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).ListClubCourts(ctx, clubID)
}

func (m *Memory) FindOverlapping(ctx context.Context, courtID string, start, end, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).FindOverlapping(ctx, courtID, start, end, now)
}

func (m *Memory) InsertReservation(ctx context.Context, r booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).InsertReservation(ctx, r)
}

func (m *Memory) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).GetReservation(ctx, id)
}

func (m *Memory) UpdateReservation(ctx context.Context, r booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).UpdateReservation(ctx, r)
}

func (m *Memory) ListByCourt(ctx context.Context, courtID string) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).ListByCourt(ctx, courtID)
}

func (m *Memory) ListByCourtRange(ctx context.Context, courtIDs []string, start, end time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).ListByCourtRange(ctx, courtIDs, start, end)
}

func (m *Memory) DeleteExpired(ctx context.Context, courtID string, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).DeleteExpired(ctx, courtID, now)
}

func (m *Memory) DeleteAllExpired(ctx context.Context, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).DeleteAllExpired(ctx, now)
}

func (m *Memory) GetUserRoles(ctx context.Context, userID string) (booking.UserRoles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).GetUserRoles(ctx, userID)
}

func (m *Memory) ListOrganizationClubs(ctx context.Context, orgID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{data: m.data}).ListOrganizationClubs(ctx, orgID)
}

// memTx is a view over memData with the store mutex already held (or over
// a private working copy inside RunInTx).
type memTx struct {
	data *memData
}

func (t *memTx) RunInTx(ctx context.Context, fn func(booking.Store) error) error {
	return fn(t)
}

func (t *memTx) GetCourt(ctx context.Context, id string) (booking.Court, error) {
	c, ok := t.data.courts[id]
	if !ok {
		return booking.Court{}, fmt.Errorf("court %s: %w", id, booking.ErrNotFound)
	}
	return c, nil
}

func (t *memTx) ListClubCourts(ctx context.Context, clubID string) ([]booking.Court, error) {
	var courts []booking.Court
	for _, c := range t.data.courts {
		if c.ClubID == clubID {
			courts = append(courts, c)
		}
	}
	sort.Slice(courts, func(i, j int) bool { return courts[i].Name < courts[j].Name })
	return courts, nil
}

func (t *memTx) FindOverlapping(ctx context.Context, courtID string, start, end, now time.Time) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for _, r := range t.data.reservations {
		if r.CourtID != courtID {
			continue
		}
		if !booking.Overlaps(r.Start, r.End, start, end) {
			continue
		}
		if r.Blocks(now) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (t *memTx) InsertReservation(ctx context.Context, r booking.Reservation) error {
	if _, exists := t.data.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	t.data.reservations[r.ID] = r
	return nil
}

func (t *memTx) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	r, ok := t.data.reservations[id]
	if !ok {
		return booking.Reservation{}, fmt.Errorf("reservation %s: %w", id, booking.ErrNotFound)
	}
	return r, nil
}

func (t *memTx) UpdateReservation(ctx context.Context, r booking.Reservation) error {
	if _, ok := t.data.reservations[r.ID]; !ok {
		return fmt.Errorf("reservation %s: %w", r.ID, booking.ErrNotFound)
	}
	t.data.reservations[r.ID] = r
	return nil
}

func (t *memTx) ListByCourt(ctx context.Context, courtID string) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for _, r := range t.data.reservations {
		if r.CourtID == courtID {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (t *memTx) ListByCourtRange(ctx context.Context, courtIDs []string, start, end time.Time) ([]booking.Reservation, error) {
	wanted := make(map[string]struct{}, len(courtIDs))
	for _, id := range courtIDs {
		wanted[id] = struct{}{}
	}

	var out []booking.Reservation
	for _, r := range t.data.reservations {
		if _, ok := wanted[r.CourtID]; !ok {
			continue
		}
		if r.Status == booking.StatusCancelled {
			continue
		}
		if booking.Overlaps(r.Start, r.End, start, end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourtID != out[j].CourtID {
			return out[i].CourtID < out[j].CourtID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (t *memTx) DeleteExpired(ctx context.Context, courtID string, now time.Time) ([]booking.Reservation, error) {
	return t.deleteExpired(func(r booking.Reservation) bool { return r.CourtID == courtID }, now)
}

func (t *memTx) DeleteAllExpired(ctx context.Context, now time.Time) ([]booking.Reservation, error) {
	return t.deleteExpired(func(booking.Reservation) bool { return true }, now)
}

func (t *memTx) deleteExpired(match func(booking.Reservation) bool, now time.Time) ([]booking.Reservation, error) {
	var expired []booking.Reservation
	for id, r := range t.data.reservations {
		if match(r) && r.Expired(now) {
			expired = append(expired, r)
			delete(t.data.reservations, id)
		}
	}
	sortByStart(expired)
	return expired, nil
}

func (t *memTx) GetUserRoles(ctx context.Context, userID string) (booking.UserRoles, error) {
	u, ok := t.data.users[userID]
	if !ok {
		return booking.UserRoles{}, fmt.Errorf("user %s: %w", userID, booking.ErrNotFound)
	}

	roles := booking.UserRoles{IsRootAdmin: u.IsRootAdmin}
	for orgID := range t.data.orgAdmins[userID] {
		roles.AdminOrganizationIDs = append(roles.AdminOrganizationIDs, orgID)
	}
	sort.Strings(roles.AdminOrganizationIDs)
	for clubID := range t.data.clubMembers[userID] {
		roles.MemberClubIDs = append(roles.MemberClubIDs, clubID)
	}
	sort.Strings(roles.MemberClubIDs)
	return roles, nil
}

func (t *memTx) ListOrganizationClubs(ctx context.Context, orgID string) ([]string, error) {
	var ids []string
	for _, c := range t.data.clubs {
		if c.OrganizationID == orgID {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func sortByStart(rs []booking.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start.Equal(rs[j].Start) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Start.Before(rs[j].Start)
	})
}

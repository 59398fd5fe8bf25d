// Package realtime carries the websocket channel that keeps admin and
// player clients consistent with server state: connection authorization,
// room membership, and the event pump.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ihor-metko/courtflow/internal/auth"
	"github.com/ihor-metko/courtflow/internal/booking"
	"github.com/ihor-metko/courtflow/internal/bus"
)

// ErrUnauthorized covers every authorization failure: malformed token,
// missing subject, unknown user, or a store error during role lookup. The
// caller must refuse the connection outright; there is deliberately no
// way to obtain a partial room set.
var ErrUnauthorized = errors.New("unauthorized")

// RoleStore is the slice of the storage port the authorizer reads.
type RoleStore interface {
	GetUserRoles(ctx context.Context, userID string) (booking.UserRoles, error)
	ListOrganizationClubs(ctx context.Context, orgID string) ([]string, error)
}

// Identity is everything a connection is entitled to observe, computed
// once at connect time. Role changes made afterward take effect only on
// reconnect.
type Identity struct {
	UserID          string
	IsRootAdmin     bool
	OrganizationIDs []string
	ClubIDs         []string
}

// Rooms derives the deduplicated room set this identity joins: the root
// admin room for root admins, otherwise one room per administered
// organization plus one per observable club.
func (id *Identity) Rooms() []string {
	if id.IsRootAdmin {
		return []string{bus.RoomRootAdmin}
	}
	rooms := make([]string, 0, len(id.OrganizationIDs)+len(id.ClubIDs))
	for _, orgID := range id.OrganizationIDs {
		rooms = append(rooms, bus.OrganizationRoom(orgID))
	}
	for _, clubID := range id.ClubIDs {
		rooms = append(rooms, bus.ClubRoom(clubID))
	}
	return rooms
}

// CanObserveClub reports whether the identity's room set covers a club.
func (id *Identity) CanObserveClub(clubID string) bool {
	if id.IsRootAdmin {
		return true
	}
	for _, c := range id.ClubIDs {
		if c == clubID {
			return true
		}
	}
	return false
}

// Authorizer turns a bearer credential into an Identity.
type Authorizer struct {
	store  RoleStore
	secret string
}

func NewAuthorizer(store RoleStore, secret string) (*Authorizer, error) {
	if store == nil {
		return nil, errors.New("authorizer requires a role store")
	}
	if secret == "" {
		return nil, errors.New("authorizer requires a signing secret")
	}
	return &Authorizer{store: store, secret: secret}, nil
}

// Authorize validates token and loads the complete set of clubs the user
// may observe: direct memberships plus every club under each organization
// the user administers, deduplicated and sorted.
//
// Fail-closed: every failure path returns a nil identity. A store error
// must never produce an identity with an incomplete room set.
func (a *Authorizer) Authorize(ctx context.Context, token string) (*Identity, error) {
	sub, err := auth.ParseSubject(token, a.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	roles, err := a.store.GetUserRoles(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%w: role lookup: %v", ErrUnauthorized, err)
	}

	if roles.IsRootAdmin {
		// Root admin needs no explicit memberships; the root admin room
		// grants everything at this layer.
		return &Identity{UserID: sub, IsRootAdmin: true}, nil
	}

	clubSet := make(map[string]struct{}, len(roles.MemberClubIDs))
	for _, clubID := range roles.MemberClubIDs {
		clubSet[clubID] = struct{}{}
	}
	for _, orgID := range roles.AdminOrganizationIDs {
		clubs, err := a.store.ListOrganizationClubs(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("%w: organization expansion: %v", ErrUnauthorized, err)
		}
		for _, clubID := range clubs {
			clubSet[clubID] = struct{}{}
		}
	}

	clubIDs := make([]string, 0, len(clubSet))
	for clubID := range clubSet {
		clubIDs = append(clubIDs, clubID)
	}
	sort.Strings(clubIDs)

	orgIDs := append([]string(nil), roles.AdminOrganizationIDs...)
	sort.Strings(orgIDs)

	return &Identity{
		UserID:          sub,
		OrganizationIDs: orgIDs,
		ClubIDs:         clubIDs,
	}, nil
}

// Package testutil provides shared test fixtures.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ihor-metko/courtflow/internal/store"
)

// NewTestStore opens a migrated SQLite store backed by a temp file that is
// removed with the test.
func NewTestStore(t *testing.T) *store.SQLite {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedFacility inserts one organization, club, court and a set of users so
// reservation and role tests have referential-integrity targets to point at.
func SeedFacility(t *testing.T, s *store.SQLite) {
	t.Helper()

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO organizations (id, name) VALUES (?, ?)`, []any{"org-1", "Riverside Sports"}},
		{`INSERT INTO clubs (id, organization_id, name) VALUES (?, ?, ?)`, []any{"club-1", "org-1", "Riverside Downtown"}},
		{`INSERT INTO clubs (id, organization_id, name) VALUES (?, ?, ?)`, []any{"club-2", "org-1", "Riverside North"}},
		{`INSERT INTO courts (id, club_id, name, price_cents, surface, indoor) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{"court-1", "club-1", "Court One", 1500, "hard", 1}},
		{`INSERT INTO courts (id, club_id, name, price_cents, surface, indoor) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{"court-2", "club-1", "Court Two", 1200, "clay", 0}},
		{`INSERT INTO users (id, is_root_admin) VALUES (?, ?)`, []any{"root-1", 1}},
		{`INSERT INTO users (id, is_root_admin) VALUES (?, ?)`, []any{"orgadmin-1", 0}},
		{`INSERT INTO users (id, is_root_admin) VALUES (?, ?)`, []any{"member-1", 0}},
		{`INSERT INTO organization_admins (user_id, organization_id) VALUES (?, ?)`, []any{"orgadmin-1", "org-1"}},
		{`INSERT INTO club_members (user_id, club_id) VALUES (?, ?)`, []any{"orgadmin-1", "club-1"}},
		{`INSERT INTO club_members (user_id, club_id) VALUES (?, ?)`, []any{"member-1", "club-1"}},
	}
	for _, st := range stmts {
		if _, err := s.Handle().Exec(st.query, st.args...); err != nil {
			t.Fatalf("failed to seed test database: %v", err)
		}
	}
}

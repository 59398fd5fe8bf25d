// Package store provides the persistent and in-memory implementations of
// the booking storage port.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ihor-metko/courtflow/internal/booking"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query method
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is the SQLite-backed store. SQLite transactions are serializable
// (single writer), which is exactly the isolation the reservation engine
// requires for its read-check-insert sequence.
type SQLite struct {
	db *sql.DB
	q  dbtx
}

// OpenSQLite opens (creating the parent directory if needed) a SQLite
// database, ensures foreign keys are enabled in the DSN, and applies the
// embedded migrations.
func OpenSQLite(dataSourceName string) (*SQLite, error) {
	if dir := filepath.Dir(dataSourceName); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	dataSourceName = ensureForeignKeysEnabledDSN(dataSourceName)
	sqlDB, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &SQLite{db: sqlDB, q: sqlDB}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Handle exposes the underlying database handle for tooling and test
// fixtures.
func (s *SQLite) Handle() *sql.DB { return s.db }

// ensureForeignKeysEnabledDSN appends `_fk=1` to the DSN unless a foreign
// key setting is already present.
func ensureForeignKeysEnabledDSN(dataSourceName string) string {
	if strings.Contains(dataSourceName, "_fk=") {
		return dataSourceName
	}
	if strings.Contains(dataSourceName, "?") {
		return dataSourceName + "&_fk=1"
	}
	return dataSourceName + "?_fk=1"
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}
	return m, nil
}

func runMigrations(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// OpenMigrator opens the database at dataSourceName and returns a migrate
// instance over the embedded migrations, for the migration CLI.
func OpenMigrator(dataSourceName string) (*migrate.Migrate, error) {
	sqlDB, err := sql.Open("sqlite3", ensureForeignKeysEnabledDSN(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	m, err := newMigrator(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return m, nil
}

// RunInTx runs fn against a transaction-bound view of the store, rolling
// back on error or panic and committing otherwise.
func (s *SQLite) RunInTx(ctx context.Context, fn func(booking.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txStore := &SQLite{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}
	return nil
}

func (s *SQLite) GetCourt(ctx context.Context, id string) (booking.Court, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, club_id, name, price_cents, surface, indoor
		FROM courts WHERE id = ?`, id)

	var c booking.Court
	err := row.Scan(&c.ID, &c.ClubID, &c.Name, &c.PriceCents, &c.Surface, &c.Indoor)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Court{}, fmt.Errorf("court %s: %w", id, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Court{}, fmt.Errorf("get court: %w", err)
	}
	return c, nil
}

func (s *SQLite) ListClubCourts(ctx context.Context, clubID string) ([]booking.Court, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, club_id, name, price_cents, surface, indoor
		FROM courts WHERE club_id = ? ORDER BY name`, clubID)
	if err != nil {
		return nil, fmt.Errorf("list club courts: %w", err)
	}
	defer rows.Close()

	var courts []booking.Court
	for rows.Next() {
		var c booking.Court
		if err := rows.Scan(&c.ID, &c.ClubID, &c.Name, &c.PriceCents, &c.Surface, &c.Indoor); err != nil {
			return nil, fmt.Errorf("scan court: %w", err)
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

const reservationColumns = `id, court_id, club_id, holder_id, start_time, end_time, status, price_cents, reserved_at, expires_at, updated_at`

func (s *SQLite) FindOverlapping(ctx context.Context, courtID string, start, end, now time.Time) ([]booking.Reservation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE court_id = ?
		  AND start_time < ? AND ? < end_time
		  AND (status = ? OR (status = ? AND expires_at IS NOT NULL AND expires_at > ?))
		ORDER BY start_time`,
		courtID, end.UTC(), start.UTC(),
		booking.StatusConfirmed, booking.StatusReserved, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find overlapping: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *SQLite) InsertReservation(ctx context.Context, r booking.Reservation) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CourtID, r.ClubID, r.HolderID,
		r.Start.UTC(), r.End.UTC(), r.Status, r.PriceCents,
		r.ReservedAt.UTC(), nullableTime(r.ExpiresAt), r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *SQLite) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE id = ?`, id)

	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Reservation{}, fmt.Errorf("reservation %s: %w", id, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *SQLite) UpdateReservation(ctx context.Context, r booking.Reservation) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, expires_at = ?, updated_at = ?, price_cents = ?
		WHERE id = ?`,
		r.Status, nullableTime(r.ExpiresAt), r.UpdatedAt.UTC(), r.PriceCents, r.ID)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reservation %s: %w", r.ID, booking.ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListByCourt(ctx context.Context, courtID string) ([]booking.Reservation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE court_id = ? ORDER BY start_time`, courtID)
	if err != nil {
		return nil, fmt.Errorf("list by court: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *SQLite) ListByCourtRange(ctx context.Context, courtIDs []string, start, end time.Time) ([]booking.Reservation, error) {
	if len(courtIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(courtIDs)), ", ")
	args := make([]any, 0, len(courtIDs)+3)
	for _, id := range courtIDs {
		args = append(args, id)
	}
	args = append(args, end.UTC(), start.UTC(), booking.StatusCancelled)

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE court_id IN (`+placeholders+`)
		  AND start_time < ? AND ? < end_time
		  AND status != ?
		ORDER BY court_id, start_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("list by court range: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *SQLite) DeleteExpired(ctx context.Context, courtID string, now time.Time) ([]booking.Reservation, error) {
	return s.deleteExpiredWhere(ctx, "court_id = ? AND", []any{courtID}, now)
}

func (s *SQLite) DeleteAllExpired(ctx context.Context, now time.Time) ([]booking.Reservation, error) {
	return s.deleteExpiredWhere(ctx, "", nil, now)
}

func (s *SQLite) deleteExpiredWhere(ctx context.Context, extra string, extraArgs []any, now time.Time) ([]booking.Reservation, error) {
	args := append(append([]any{}, extraArgs...), booking.StatusReserved, now.UTC())

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE `+extra+` status = ? AND expires_at IS NOT NULL AND expires_at <= ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("select expired: %w", err)
	}
	expired, err := scanReservations(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	for _, r := range expired {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, r.ID); err != nil {
			return nil, fmt.Errorf("delete expired: %w", err)
		}
	}
	return expired, nil
}

func (s *SQLite) GetUserRoles(ctx context.Context, userID string) (booking.UserRoles, error) {
	var roles booking.UserRoles

	row := s.q.QueryRowContext(ctx, `SELECT is_root_admin FROM users WHERE id = ?`, userID)
	if err := row.Scan(&roles.IsRootAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return booking.UserRoles{}, fmt.Errorf("user %s: %w", userID, booking.ErrNotFound)
		}
		return booking.UserRoles{}, fmt.Errorf("get user: %w", err)
	}

	orgRows, err := s.q.QueryContext(ctx, `
		SELECT organization_id FROM organization_admins WHERE user_id = ? ORDER BY organization_id`, userID)
	if err != nil {
		return booking.UserRoles{}, fmt.Errorf("list admin organizations: %w", err)
	}
	defer orgRows.Close()
	for orgRows.Next() {
		var id string
		if err := orgRows.Scan(&id); err != nil {
			return booking.UserRoles{}, fmt.Errorf("scan organization: %w", err)
		}
		roles.AdminOrganizationIDs = append(roles.AdminOrganizationIDs, id)
	}
	if err := orgRows.Err(); err != nil {
		return booking.UserRoles{}, err
	}

	clubRows, err := s.q.QueryContext(ctx, `
		SELECT club_id FROM club_members WHERE user_id = ? ORDER BY club_id`, userID)
	if err != nil {
		return booking.UserRoles{}, fmt.Errorf("list club memberships: %w", err)
	}
	defer clubRows.Close()
	for clubRows.Next() {
		var id string
		if err := clubRows.Scan(&id); err != nil {
			return booking.UserRoles{}, fmt.Errorf("scan club: %w", err)
		}
		roles.MemberClubIDs = append(roles.MemberClubIDs, id)
	}
	return roles, clubRows.Err()
}

func (s *SQLite) ListOrganizationClubs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM clubs WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list organization clubs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan club id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (booking.Reservation, error) {
	var r booking.Reservation
	var expires sql.NullTime
	err := row.Scan(
		&r.ID, &r.CourtID, &r.ClubID, &r.HolderID,
		&r.Start, &r.End, &r.Status, &r.PriceCents,
		&r.ReservedAt, &expires, &r.UpdatedAt)
	if err != nil {
		return booking.Reservation{}, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		r.ExpiresAt = &t
	}
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	r.ReservedAt = r.ReservedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func scanReservations(rows *sql.Rows) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

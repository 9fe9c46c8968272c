package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"slotmanager/internal/adapters/storage"
	domain "slotmanager/internal/domain/user"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new user SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const userColumns = "id, display_name, first_name, last_name, email, registration_date, sponsor_id, is_active, is_admin"

// GetByID retrieves a User by its ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrUserNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a User by email.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByDisplayName retrieves a User by display name, ignoring case.
func (s *SQLiteStore) GetByDisplayName(ctx context.Context, name string) (domain.User, error) {
	return s.getOne(ctx, "display_name = ?", strings.TrimSpace(name))
}

// Create inserts a new User.
// PRE: u has been validated and its sponsorship checked
// POST: User persisted, or ErrDisplayNameTaken / ErrEmailTaken
func (s *SQLiteStore) Create(ctx context.Context, u domain.User) error {
	var sponsor any
	if u.SponsorID != "" {
		sponsor = u.SponsorID
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.DisplayName, u.FirstName, u.LastName, u.Email,
		storage.FormatTime(u.RegistrationDate), sponsor, u.IsActive, u.IsAdmin,
	)
	return translateSQL(err)
}

// UpdateProfile changes the self-editable fields.
// POST: Returns the updated user, or ErrUserNotFound / ErrDisplayNameTaken
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, p Profile) (domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET display_name = ?, first_name = ?, last_name = ? WHERE id = ?",
		p.DisplayName, p.FirstName, p.LastName, id,
	)
	if err != nil {
		return domain.User{}, translateSQL(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// List returns users ordered by display name.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	if filter.ActiveOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY display_name, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Count returns the number of users.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

func (s *SQLiteStore) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var registered string
	var sponsor sql.NullString
	err := row.Scan(&u.ID, &u.DisplayName, &u.FirstName, &u.LastName, &u.Email, &registered, &sponsor, &u.IsActive, &u.IsAdmin)
	if err != nil {
		return domain.User{}, err
	}
	if sponsor.Valid {
		u.SponsorID = sponsor.String
	}
	if u.RegistrationDate, err = storage.ParseTime(registered); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// translateSQL maps unique violations onto domain errors.
func translateSQL(err error) error {
	if err == nil {
		return nil
	}
	if storage.IsUniqueViolation(err) {
		switch {
		case strings.Contains(err.Error(), "users.display_name"):
			return domain.ErrDisplayNameTaken
		case strings.Contains(err.Error(), "users.email"):
			return domain.ErrEmailTaken
		}
	}
	return fmt.Errorf("write user: %w", err)
}

package slot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotmanager/internal/adapters/storage"
	domain "slotmanager/internal/domain/slot"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new slot SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

const slotColumns = "id, date, team_a, team_b, final_score, notes, created_at, updated_at"

// occupancySQL sums 1+len(guests) over a slot's registrations.
const occupancySQL = "(SELECT COALESCE(SUM(1 + json_array_length(guests)), 0) FROM registration WHERE slot_id = ?)"

// GetByID retrieves a Slot with its registrations.
// PRE: id is non-empty
// POST: Returns the slot or domain.ErrSlotNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Slot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+slotColumns+" FROM slot WHERE id = ?", id)
	return s.loadOne(ctx, row)
}

// FindByDate retrieves the Slot at an exact instant.
// POST: Returns the slot or domain.ErrSlotNotFound
func (s *SQLiteStore) FindByDate(ctx context.Context, date time.Time) (domain.Slot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+slotColumns+" FROM slot WHERE date = ?", storage.FormatTime(date))
	return s.loadOne(ctx, row)
}

// CreateIfAbsent inserts candidate unless a slot with the same date exists.
// PRE: candidate has an ID and a Date
// POST: Returns the one persisted slot for candidate.Date
// INVARIANT: At most one slot per date, enforced by UNIQUE(date)
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, candidate domain.Slot) (domain.Slot, error) {
	now := storage.FormatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO slot (id, date, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(date) DO NOTHING",
		candidate.ID, storage.FormatTime(candidate.Date), now, now,
	)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("create slot: %w", err)
	}
	return s.FindByDate(ctx, candidate.Date)
}

// AddRegistration appends reg to the slot if the user is not registered and
// the slot has room for 1+len(guests) more occupants. max <= 0 disables the cap.
// PRE: reg has been validated
// POST: Returns the updated slot, or ErrSlotNotFound, ErrAlreadyRegistered, *CapacityError
func (s *SQLiteStore) AddRegistration(ctx context.Context, slotID string, reg domain.Registration, max int) (domain.Slot, error) {
	guests, err := encodeList(reg.Guests)
	if err != nil {
		return domain.Slot{}, err
	}
	attempted := reg.Footprint()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Slot{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO registration (slot_id, user_id, guests, created_by, position, registered_at)
		SELECT ?, ?, ?, ?, COALESCE((SELECT MAX(position) FROM registration WHERE slot_id = ?), 0) + 1, ?
		WHERE EXISTS (SELECT 1 FROM slot WHERE id = ?)
		  AND (? <= 0 OR `+occupancySQL+` + ? <= ?)`,
		slotID, reg.UserID, guests, reg.CreatedBy, slotID, storage.FormatTime(reg.RegisteredAt),
		slotID,
		max, slotID, attempted, max,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return domain.Slot{}, domain.ErrAlreadyRegistered
		}
		return domain.Slot{}, fmt.Errorf("insert registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		current, err := s.GetByID(ctx, slotID)
		if err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, rejectRegister(current, reg.UserID, attempted, max)
	}
	if err := touch(ctx, tx, slotID, s.now()); err != nil {
		return domain.Slot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Slot{}, err
	}
	return s.GetByID(ctx, slotID)
}

// ReplaceGuests swaps the guest list of an existing registration.
// Shrinking always passes; growing needs others+1+len(guests) <= max.
// PRE: guests have been normalised and validated
// POST: Returns the updated slot, or ErrSlotNotFound, ErrNotRegistered, *CapacityError
func (s *SQLiteStore) ReplaceGuests(ctx context.Context, slotID, userID string, guests []string, max int) (domain.Slot, error) {
	encoded, err := encodeList(guests)
	if err != nil {
		return domain.Slot{}, err
	}
	n := len(guests)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Slot{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE registration SET guests = ?
		WHERE slot_id = ? AND user_id = ?
		  AND (? <= json_array_length(guests) OR ? <= 0 OR
		       (SELECT COALESCE(SUM(1 + json_array_length(o.guests)), 0) FROM registration o
		        WHERE o.slot_id = ? AND o.user_id <> ?) + 1 + ? <= ?)`,
		encoded, slotID, userID,
		n, max,
		slotID, userID, n, max,
	)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("update registration: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		current, err := s.GetByID(ctx, slotID)
		if err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, rejectReplace(current, userID, guests, max)
	}
	if err := touch(ctx, tx, slotID, s.now()); err != nil {
		return domain.Slot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Slot{}, err
	}
	return s.GetByID(ctx, slotID)
}

// RemoveRegistration deletes the user's registration.
// POST: Returns the updated slot, or ErrSlotNotFound, ErrNotRegistered
func (s *SQLiteStore) RemoveRegistration(ctx context.Context, slotID, userID string) (domain.Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Slot{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM registration WHERE slot_id = ? AND user_id = ?", slotID, userID)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("delete registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		if _, err := s.GetByID(ctx, slotID); err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, domain.ErrNotRegistered
	}
	if err := touch(ctx, tx, slotID, s.now()); err != nil {
		return domain.Slot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Slot{}, err
	}
	return s.GetByID(ctx, slotID)
}

// RecordDetails replaces the slot's post-game details.
// PRE: details have been validated
// POST: Returns the updated slot or ErrSlotNotFound
func (s *SQLiteStore) RecordDetails(ctx context.Context, slotID string, details domain.Details) (domain.Slot, error) {
	teamA, err := encodeList(details.Teams.TeamA)
	if err != nil {
		return domain.Slot{}, err
	}
	teamB, err := encodeList(details.Teams.TeamB)
	if err != nil {
		return domain.Slot{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE slot SET team_a = ?, team_b = ?, final_score = ?, notes = ?, updated_at = ? WHERE id = ?",
		teamA, teamB, details.FinalScore, details.Notes, storage.FormatTime(s.now()), slotID,
	)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("update slot details: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	return s.GetByID(ctx, slotID)
}

// List returns one page of slots, newest date first.
// PRE: filter.Limit > 0
// POST: Returns at most filter.Limit slots with registrations loaded
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+slotColumns+" FROM slot ORDER BY date DESC LIMIT ? OFFSET ?",
		filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, rows)
}

// ListAll returns every slot, newest date first.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+slotColumns+" FROM slot ORDER BY date DESC")
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, rows)
}

// Count returns the number of slots.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slot").Scan(&n)
	return n, err
}

// Ping checks the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func touch(ctx context.Context, tx *sql.Tx, slotID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, "UPDATE slot SET updated_at = ? WHERE id = ?", storage.FormatTime(now), slotID); err != nil {
		return fmt.Errorf("touch slot: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (domain.Slot, error) {
	var entity domain.Slot
	var date, teamA, teamB, createdAt, updatedAt string
	err := row.Scan(&entity.ID, &date, &teamA, &teamB, &entity.Details.FinalScore, &entity.Details.Notes, &createdAt, &updatedAt)
	if err != nil {
		return domain.Slot{}, err
	}
	if entity.Date, err = storage.ParseTime(date); err != nil {
		return domain.Slot{}, err
	}
	if entity.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return domain.Slot{}, err
	}
	if entity.UpdatedAt, err = storage.ParseTime(updatedAt); err != nil {
		return domain.Slot{}, err
	}
	if entity.Details.Teams.TeamA, err = decodeList(teamA); err != nil {
		return domain.Slot{}, err
	}
	if entity.Details.Teams.TeamB, err = decodeList(teamB); err != nil {
		return domain.Slot{}, err
	}
	return entity, nil
}

func (s *SQLiteStore) loadOne(ctx context.Context, row *sql.Row) (domain.Slot, error) {
	entity, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	if err != nil {
		return domain.Slot{}, err
	}
	regs, err := s.registrations(ctx, []string{entity.ID})
	if err != nil {
		return domain.Slot{}, err
	}
	entity.Registrations = regs[entity.ID]
	return entity, nil
}

func (s *SQLiteStore) loadMany(ctx context.Context, rows *sql.Rows) ([]domain.Slot, error) {
	var list []domain.Slot
	for rows.Next() {
		entity, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, entity)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	regs, err := s.registrations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Registrations = regs[list[i].ID]
	}
	return list, nil
}

// registrations loads registrations for the given slots in insertion order.
func (s *SQLiteStore) registrations(ctx context.Context, slotIDs []string) (map[string][]domain.Registration, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(slotIDs)), ", ")
	args := make([]any, len(slotIDs))
	for i, id := range slotIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot_id, user_id, guests, created_by, registered_at FROM registration WHERE slot_id IN ("+placeholders+") ORDER BY slot_id, position",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Registration, len(slotIDs))
	for rows.Next() {
		var slotID, guests, registeredAt string
		var reg domain.Registration
		if err := rows.Scan(&slotID, &reg.UserID, &guests, &reg.CreatedBy, &registeredAt); err != nil {
			return nil, err
		}
		if reg.Guests, err = decodeList(guests); err != nil {
			return nil, err
		}
		if reg.RegisteredAt, err = storage.ParseTime(registeredAt); err != nil {
			return nil, err
		}
		out[slotID] = append(out[slotID], reg)
	}
	return out, rows.Err()
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}

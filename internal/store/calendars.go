package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTimezone is assigned to calendars created without an explicit zone.
const DefaultTimezone = "America/Los_Angeles"

// Calendar owns a set of events. The public token is an opaque, unique
// identifier minted at creation and never changed; it is the only handle the
// unauthenticated booking surface gets.
type Calendar struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Timezone    string    `json:"timezone"`
	PublicToken string    `json:"public_token"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location resolves the calendar's IANA timezone, falling back to UTC if the
// stored name fails to load.
func (c *Calendar) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CreateCalendar creates a calendar for the user with a fresh public token.
func (s *Store) CreateCalendar(userID, name, timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, &ValidationError{Field: "timezone", Reason: "unknown IANA zone"}
	}
	now := utc(time.Now())
	cal := &Calendar{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Timezone:    timezone,
		PublicToken: uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.Exec(
		`INSERT INTO calendars (id, user_id, name, timezone, public_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cal.ID, cal.UserID, cal.Name, cal.Timezone, cal.PublicToken, cal.CreatedAt, cal.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar: %w", err)
	}
	return cal, nil
}

const calendarCols = `id, user_id, name, timezone, public_token, created_at, updated_at`

// GetCalendar fetches a calendar by ID within the user's tenant scope.
func (s *Store) GetCalendar(userID, id string) (*Calendar, error) {
	return scanCalendar(s.db.QueryRow(
		`SELECT `+calendarCols+` FROM calendars WHERE id = ? AND user_id = ?`, id, userID))
}

// GetCalendarByToken resolves a public booking token to its calendar. This is
// the only lookup that crosses no tenant boundary: the token itself is the
// authorization.
func (s *Store) GetCalendarByToken(token string) (*Calendar, error) {
	return scanCalendar(s.db.QueryRow(
		`SELECT `+calendarCols+` FROM calendars WHERE public_token = ?`, token))
}

// ListCalendars returns the user's calendars, oldest first.
func (s *Store) ListCalendars(userID string) ([]*Calendar, error) {
	rows, err := s.db.Query(
		`SELECT `+calendarCols+` FROM calendars WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query calendars: %w", err)
	}
	defer rows.Close()

	var cals []*Calendar
	for rows.Next() {
		cal, err := scanCalendarRows(rows)
		if err != nil {
			return nil, err
		}
		cals = append(cals, cal)
	}
	return cals, rows.Err()
}

// FirstCalendar returns the user's oldest calendar. Tool calls that omit
// calendar_id land here.
func (s *Store) FirstCalendar(userID string) (*Calendar, error) {
	return scanCalendar(s.db.QueryRow(
		`SELECT `+calendarCols+` FROM calendars WHERE user_id = ? ORDER BY created_at, id LIMIT 1`, userID))
}

// UpdateCalendar renames a calendar and/or changes its timezone. The public
// token is immutable.
func (s *Store) UpdateCalendar(userID, id, name, timezone string) (*Calendar, error) {
	cal, err := s.GetCalendar(userID, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		cal.Name = name
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, &ValidationError{Field: "timezone", Reason: "unknown IANA zone"}
		}
		cal.Timezone = timezone
	}
	cal.UpdatedAt = utc(time.Now())
	_, err = s.db.Exec(
		`UPDATE calendars SET name = ?, timezone = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		cal.Name, cal.Timezone, cal.UpdatedAt, cal.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("update calendar: %w", err)
	}
	return cal, nil
}

// DeleteCalendar deletes a calendar and cascades to its events.
func (s *Store) DeleteCalendar(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM calendars WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete calendar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LookupCalendarsByOwnerEmail returns all calendars owned by the user with
// the given email, for external automations that only know the owner address.
func (s *Store) LookupCalendarsByOwnerEmail(email string) (*User, []*Calendar, error) {
	u, err := s.GetUserByEmail(email)
	if err != nil {
		return nil, nil, err
	}
	cals, err := s.ListCalendars(u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, cals, nil
}

func scanCalendar(row *sql.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Timezone, &c.PublicToken, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan calendar: %w", err)
	}
	return &c, nil
}

func scanCalendarRows(rows *sql.Rows) (*Calendar, error) {
	var c Calendar
	if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Timezone, &c.PublicToken, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan calendar: %w", err)
	}
	return &c, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Event is a booked appointment. Start and end are instants (stored UTC);
// two events on the same calendar never overlap under the half-open
// [start, end) interpretation.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	ClientID    string    `json:"client_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
}

const eventCols = `id, calendar_id, client_id, title, description, start_time, end_time, created_at`

// CreateEvent books an event on the user's calendar for the user's client.
// The overlap check and insert run in one immediate transaction, so a
// concurrent booking for the same slot loses with ErrOverlap instead of
// slipping past a stale check. On success the notifier hook fires; its
// failures are logged, never propagated, and never reverse the booking.
func (s *Store) CreateEvent(userID, calendarID, clientID, title, description string, start, end time.Time) (*Event, error) {
	cal, err := s.GetCalendar(userID, calendarID)
	if err != nil {
		return nil, err
	}
	cl, err := s.GetClient(userID, clientID)
	if err != nil {
		return nil, err
	}
	ev, err := s.createEventOn(cal, cl, title, description, start, end)
	if err != nil {
		return nil, err
	}
	s.dispatchBooked(ev, cal, cl)
	return ev, nil
}

// CreatePublicEvent books via a calendar's public token. The third party
// supplies contact details, which resolve to a client of the calendar's
// owner.
func (s *Store) CreatePublicEvent(token, name, email, phone, title, description string, start, end time.Time) (*Event, *Client, error) {
	cal, err := s.GetCalendarByToken(token)
	if err != nil {
		return nil, nil, err
	}
	cl, err := s.Resolve(cal.UserID, name, email, phone)
	if err != nil {
		return nil, nil, err
	}
	ev, err := s.createEventOn(cal, cl, title, description, start, end)
	if err != nil {
		return nil, nil, err
	}
	s.dispatchBooked(ev, cal, cl)
	return ev, cl, nil
}

func (s *Store) createEventOn(cal *Calendar, cl *Client, title, description string, start, end time.Time) (*Event, error) {
	start, end = utc(start), utc(end)
	if !start.Before(end) {
		return nil, &ValidationError{Field: "start_time", Reason: "must be before end_time"}
	}

	ev := &Event{
		ID:          uuid.NewString(),
		CalendarID:  cal.ID,
		ClientID:    cl.ID,
		Title:       title,
		Description: description,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   utc(time.Now()),
	}

	// _txlock=immediate: the writer lock is held from here through commit,
	// serializing check-and-insert against concurrent bookings.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	var overlapping int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM events WHERE calendar_id = ? AND start_time < ? AND end_time > ?`,
		cal.ID, end, start,
	).Scan(&overlapping)
	if err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	}
	if overlapping > 0 {
		return nil, ErrOverlap
	}

	_, err = tx.Exec(
		`INSERT INTO events (id, calendar_id, client_id, title, description, start_time, end_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CalendarID, ev.ClientID, ev.Title, ev.Description, ev.StartTime, ev.EndTime, ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return ev, nil
}

// dispatchBooked runs the post-commit notification stage. Best-effort by
// contract: the booking is durable before this runs.
func (s *Store) dispatchBooked(ev *Event, cal *Calendar, cl *Client) {
	if s.notifier == nil {
		return
	}
	owner, err := s.GetUser(cal.UserID)
	if err != nil {
		log.Printf("[store] notification skipped for event %s: owner lookup: %v", ev.ID, err)
		return
	}
	s.notifier.EventBooked(ev, cal, cl, owner)
}

// GetEvent fetches an event by ID within the user's tenant scope.
func (s *Store) GetEvent(userID, id string) (*Event, error) {
	return scanEvent(s.db.QueryRow(
		`SELECT e.id, e.calendar_id, e.client_id, e.title, e.description, e.start_time, e.end_time, e.created_at
		 FROM events e JOIN calendars c ON e.calendar_id = c.id
		 WHERE e.id = ? AND c.user_id = ?`, id, userID))
}

// ListEvents returns all events on one of the user's calendars, ordered by
// start time.
func (s *Store) ListEvents(userID, calendarID string) ([]*Event, error) {
	if _, err := s.GetCalendar(userID, calendarID); err != nil {
		return nil, err
	}
	return s.queryEvents(
		`SELECT `+eventCols+` FROM events WHERE calendar_id = ? ORDER BY start_time`, calendarID)
}

// ListEventsBetween returns events on the calendar whose start falls in
// [from, to). Availability reads this as its snapshot of the day.
func (s *Store) ListEventsBetween(calendarID string, from, to time.Time) ([]*Event, error) {
	return s.queryEvents(
		`SELECT `+eventCols+` FROM events
		 WHERE calendar_id = ? AND start_time >= ? AND start_time < ?
		 ORDER BY start_time`,
		calendarID, utc(from), utc(to))
}

// UpdateEvent moves or retitles an event. The overlap check re-validates
// against every other event on the calendar; only the event's own row is
// excluded, so moving an event onto its unchanged slot succeeds.
func (s *Store) UpdateEvent(userID, id string, title, description *string, start, end *time.Time) (*Event, error) {
	ev, err := s.GetEvent(userID, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		ev.Title = *title
	}
	if description != nil {
		ev.Description = *description
	}
	if start != nil {
		ev.StartTime = utc(*start)
	}
	if end != nil {
		ev.EndTime = utc(*end)
	}
	if !ev.StartTime.Before(ev.EndTime) {
		return nil, &ValidationError{Field: "start_time", Reason: "must be before end_time"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	var overlapping int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM events WHERE calendar_id = ? AND id != ? AND start_time < ? AND end_time > ?`,
		ev.CalendarID, ev.ID, ev.EndTime, ev.StartTime,
	).Scan(&overlapping)
	if err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	}
	if overlapping > 0 {
		return nil, ErrOverlap
	}

	_, err = tx.Exec(
		`UPDATE events SET title = ?, description = ?, start_time = ?, end_time = ? WHERE id = ?`,
		ev.Title, ev.Description, ev.StartTime, ev.EndTime, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return ev, nil
}

// DeleteEvent deletes an event. Unconditional; no invariant cascades.
func (s *Store) DeleteEvent(userID, id string) error {
	res, err := s.db.Exec(
		`DELETE FROM events WHERE id = ? AND calendar_id IN (SELECT id FROM calendars WHERE user_id = ?)`,
		id, userID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLastPublicEvent removes the most recently created event on the
// token's calendar. Public callers use this to undo a booking they just made.
func (s *Store) DeleteLastPublicEvent(token string) (*Event, error) {
	cal, err := s.GetCalendarByToken(token)
	if err != nil {
		return nil, err
	}
	ev, err := scanEvent(s.db.QueryRow(
		`SELECT `+eventCols+` FROM events WHERE calendar_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		cal.ID))
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, ev.ID); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	return ev, nil
}

func (s *Store) queryEvents(query string, args ...any) ([]*Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CalendarID, &e.ClientID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func scanEvent(row *sql.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.CalendarID, &e.ClientID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

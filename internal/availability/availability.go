// Package availability turns a calendar's booked events into the open slots a
// caller can offer. Slot generation is pure: it takes an explicit event
// snapshot and clock so the same inputs always produce the same slots.
package availability

import (
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

// Working-day shape. Hours are in the calendar's local zone.
const (
	DayStartHour = 9
	DayEndHour   = 17
	SlotDuration = 30 * time.Minute
)

// Slot is an open bookable interval, half-open [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slots returns the open slots on the given day. The day argument names a
// calendar date: its own date fields are taken as-is and the working hours
// are placed in the calendar's timezone. A candidate survives only if it
// overlaps no event and starts strictly after now.
func Slots(cal *store.Calendar, day time.Time, events []*store.Event, now time.Time) []Slot {
	loc := cal.Location()
	y, m, d := day.Date()
	dayStart := time.Date(y, m, d, DayStartHour, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, d, DayEndHour, 0, 0, 0, loc)

	var slots []Slot
	for start := dayStart; !start.Add(SlotDuration).After(dayEnd); start = start.Add(SlotDuration) {
		end := start.Add(SlotDuration)
		if !start.After(now) {
			continue
		}
		if overlapsAny(start, end, events) {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots
}

// overlapsAny reports whether [start, end) intersects any event interval.
// Touching endpoints do not intersect.
func overlapsAny(start, end time.Time, events []*store.Event) bool {
	for _, ev := range events {
		if ev.StartTime.Before(end) && ev.EndTime.After(start) {
			return true
		}
	}
	return false
}

// Generator fetches the day's events from the store and generates slots.
type Generator struct {
	Store *store.Store
}

// ForDate returns the open slots on the user's calendar for the given day.
func (g *Generator) ForDate(userID, calendarID string, day time.Time) ([]Slot, error) {
	cal, err := g.Store.GetCalendar(userID, calendarID)
	if err != nil {
		return nil, err
	}
	return g.forCalendar(cal, day)
}

// ForToken returns the open slots for a public booking token.
func (g *Generator) ForToken(token string, day time.Time) (*store.Calendar, []Slot, error) {
	cal, err := g.Store.GetCalendarByToken(token)
	if err != nil {
		return nil, nil, err
	}
	slots, err := g.forCalendar(cal, day)
	if err != nil {
		return nil, nil, err
	}
	return cal, slots, nil
}

func (g *Generator) forCalendar(cal *store.Calendar, day time.Time) ([]Slot, error) {
	loc := cal.Location()
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	events, err := g.Store.ListEventsBetween(cal.ID, from, to)
	if err != nil {
		return nil, err
	}
	return Slots(cal, day, events, time.Now()), nil
}

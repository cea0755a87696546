package availability

import (
	"testing"
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

func testCalendar(t *testing.T, tz string) *store.Calendar {
	t.Helper()
	return &store.Calendar{ID: "cal-1", UserID: "user-1", Name: "Main", Timezone: tz}
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestSlotsEmptyDay(t *testing.T) {
	cal := testCalendar(t, "America/New_York")
	loc := mustLoc(t, "America/New_York")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, loc)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, loc)

	slots := Slots(cal, day, nil, now)
	if len(slots) != 16 {
		t.Fatalf("got %d slots, want 16 for a 9-17 day of 30m slots", len(slots))
	}
	first, last := slots[0], slots[len(slots)-1]
	if first.Start.Hour() != 9 || first.Start.Minute() != 0 {
		t.Errorf("first slot starts %v, want 09:00", first.Start)
	}
	if last.Start.Hour() != 16 || last.Start.Minute() != 30 {
		t.Errorf("last slot starts %v, want 16:30", last.Start)
	}
	if !last.End.Equal(time.Date(2026, 10, 5, 17, 0, 0, 0, loc)) {
		t.Errorf("last slot ends %v, want 17:00", last.End)
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != 30*time.Minute {
			t.Errorf("slot %v has length %v, want 30m", s.Start, s.End.Sub(s.Start))
		}
	}
}

func TestSlotsRemovesBookedSlot(t *testing.T) {
	cal := testCalendar(t, "America/New_York")
	loc := mustLoc(t, "America/New_York")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, loc)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, loc)

	booked := time.Date(2026, 10, 5, 10, 0, 0, 0, loc)
	events := []*store.Event{{
		CalendarID: cal.ID,
		StartTime:  booked.UTC(),
		EndTime:    booked.Add(30 * time.Minute).UTC(),
	}}

	slots := Slots(cal, day, events, now)
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15 with one booked", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(booked) {
			t.Errorf("booked 10:00 slot still offered")
		}
	}
	// The neighbors survive: an event touching a slot boundary does not
	// block that slot.
	var has930, has1030 bool
	for _, s := range slots {
		if s.Start.Hour() == 9 && s.Start.Minute() == 30 {
			has930 = true
		}
		if s.Start.Hour() == 10 && s.Start.Minute() == 30 {
			has1030 = true
		}
	}
	if !has930 || !has1030 {
		t.Errorf("adjacent slots removed: 09:30 present=%v 10:30 present=%v", has930, has1030)
	}
}

func TestSlotsCrossBoundaryEventBlocksBoth(t *testing.T) {
	cal := testCalendar(t, "America/New_York")
	loc := mustLoc(t, "America/New_York")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, loc)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, loc)

	// 10:15-10:45 straddles the 10:00 and 10:30 candidates.
	start := time.Date(2026, 10, 5, 10, 15, 0, 0, loc)
	events := []*store.Event{{StartTime: start.UTC(), EndTime: start.Add(30 * time.Minute).UTC()}}

	slots := Slots(cal, day, events, now)
	if len(slots) != 14 {
		t.Fatalf("got %d slots, want 14", len(slots))
	}
	for _, s := range slots {
		h, m := s.Start.Hour(), s.Start.Minute()
		if h == 10 && (m == 0 || m == 30) {
			t.Errorf("slot %02d:%02d offered despite straddling event", h, m)
		}
	}
}

func TestSlotsSkipsPastForToday(t *testing.T) {
	cal := testCalendar(t, "America/New_York")
	loc := mustLoc(t, "America/New_York")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, loc)

	// Midday: everything before 13:00 has started already; 13:00 onward
	// remains, 8 slots.
	now := time.Date(2026, 10, 5, 12, 45, 0, 0, loc)
	slots := Slots(cal, day, nil, now)
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8 after 12:45", len(slots))
	}
	if slots[0].Start.Hour() != 13 || slots[0].Start.Minute() != 0 {
		t.Errorf("first remaining slot %v, want 13:00", slots[0].Start)
	}

	// A slot starting exactly now has already begun and is not offered.
	now = time.Date(2026, 10, 5, 13, 0, 0, 0, loc)
	slots = Slots(cal, day, nil, now)
	if len(slots) != 7 {
		t.Errorf("got %d slots at exactly 13:00, want 7", len(slots))
	}
	if slots[0].Start.Hour() != 13 || slots[0].Start.Minute() != 30 {
		t.Errorf("first slot %v, want 13:30", slots[0].Start)
	}

	// After close, nothing.
	now = time.Date(2026, 10, 5, 17, 0, 0, 0, loc)
	if slots := Slots(cal, day, nil, now); len(slots) != 0 {
		t.Errorf("got %d slots after close, want 0", len(slots))
	}
}

func TestSlotsInCalendarZone(t *testing.T) {
	cal := testCalendar(t, "Asia/Tokyo")
	tokyo := mustLoc(t, "Asia/Tokyo")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	slots := Slots(cal, day, nil, now)
	if len(slots) != 16 {
		t.Fatalf("got %d slots, want 16", len(slots))
	}
	first := slots[0].Start.In(tokyo)
	if first.Hour() != 9 || first.Minute() != 0 {
		t.Errorf("first slot %v, want 09:00 Tokyo time", first)
	}
}

func TestSlotsBadZoneFallsBackToUTC(t *testing.T) {
	cal := testCalendar(t, "Not/A_Zone")
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	slots := Slots(cal, day, nil, now)
	if len(slots) != 16 {
		t.Fatalf("got %d slots, want 16", len(slots))
	}
	if slots[0].Start.Location() != time.UTC {
		t.Errorf("slots in %v, want UTC fallback", slots[0].Start.Location())
	}
}

package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

func TestInvite(t *testing.T) {
	start := time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)
	ev := &store.Event{
		ID:          "evt-123",
		Title:       "Consultation",
		Description: "Initial visit",
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		CreatedAt:   time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	cal := &store.Calendar{Timezone: "America/New_York"}
	cl := &store.Client{Name: "Jane Doe", Email: "jane@example.com"}
	owner := &store.User{Name: "Dana", Email: "dana@example.com"}

	data, err := Invite(ev, cal, cl, owner)
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	body := string(data)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"UID:event-evt-123@callab.app",
		"SUMMARY:Consultation",
		"DESCRIPTION:Initial visit",
		"mailto:dana@example.com",
		"mailto:jane@example.com",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("invite missing %q\n%s", want, body)
		}
	}
}

func TestUIDStable(t *testing.T) {
	ev := &store.Event{ID: "abc"}
	if UID(ev) != UID(ev) {
		t.Fatal("UID not stable across calls")
	}
	if UID(ev) != "event-abc@callab.app" {
		t.Errorf("UID %q has the wrong shape", UID(ev))
	}
}

func TestInviteWithoutContacts(t *testing.T) {
	start := time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)
	ev := &store.Event{ID: "evt-1", Title: "T", StartTime: start, EndTime: start.Add(time.Hour), CreatedAt: start}
	cal := &store.Calendar{Timezone: "UTC"}

	data, err := Invite(ev, cal, &store.Client{Name: "Walk In"}, nil)
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if strings.Contains(string(data), "mailto:") {
		t.Errorf("invite carries mailto for contacts without email")
	}
}

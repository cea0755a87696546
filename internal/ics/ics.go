// Package ics renders booked events as iCalendar invitations for the
// confirmation emails.
package ics

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-ical"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

// UID returns the stable iCalendar UID for an event. Re-sending an invite
// for the same event carries the same UID, so mail clients update in place
// instead of duplicating.
func UID(ev *store.Event) string {
	return fmt.Sprintf("event-%s@callab.app", ev.ID)
}

// Invite renders a single-event VCALENDAR. Times are emitted in the
// calendar's zone so mail clients display the appointment as booked.
func Invite(ev *store.Event, cal *store.Calendar, cl *store.Client, owner *store.User) ([]byte, error) {
	loc := cal.Location()

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, UID(ev))
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, ev.CreatedAt)
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.In(loc))
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.In(loc))
	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if owner != nil && owner.Email != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.SetText(fmt.Sprintf("mailto:%s", owner.Email))
		ve.Props.Add(p)
	}
	if cl != nil && cl.Email != "" {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", cl.Email))
		ve.Props.Add(p)
	}

	vcal := ical.NewCalendar()
	vcal.Props.SetText(ical.PropVersion, "2.0")
	vcal.Props.SetText(ical.PropProductID, "-//callab//EN")
	vcal.Children = append(vcal.Children, ve)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(vcal); err != nil {
		return nil, fmt.Errorf("encode invite: %w", err)
	}
	return buf.Bytes(), nil
}

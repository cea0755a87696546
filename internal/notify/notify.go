// Package notify delivers booking confirmations. Everything here is
// best-effort: the event is already committed when a notifier runs, so
// failures are logged and swallowed rather than surfaced to the caller.
package notify

import (
	"bytes"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/wneessen/go-mail"

	"github.com/dnajar2/calling-crm-s-and-l/internal/ics"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

// SMSConfig configures the Twilio sender. Empty AccountSID disables SMS.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// SMTPConfig configures the mail sender. Empty Host disables email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Service sends booking confirmations over SMS and email.
type Service struct {
	smsFrom string
	twilio  *twilio.RestClient
	smtp    SMTPConfig
}

// New builds a Service from the channel configs. Channels with empty config
// are disabled individually; a Service with no channels is still valid and
// simply logs what it would have sent.
func New(sms SMSConfig, smtp SMTPConfig) *Service {
	s := &Service{smsFrom: sms.From, smtp: smtp}
	if sms.AccountSID != "" {
		s.twilio = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: sms.AccountSID,
			Password: sms.AuthToken,
		})
	}
	return s
}

// EventBooked sends the client an SMS and an email, and the owner an email,
// each carrying the appointment details. Implements store.Notifier.
func (s *Service) EventBooked(ev *store.Event, cal *store.Calendar, cl *store.Client, owner *store.User) {
	when := ev.StartTime.In(cal.Location()).Format("Monday, Jan 2 at 3:04 PM")

	if cl.Phone != "" {
		body := fmt.Sprintf("Your appointment %q is confirmed for %s.", ev.Title, when)
		if err := s.sendSMS(cl.Phone, body); err != nil {
			log.Printf("[notify] sms to %s failed: %v", cl.Phone, err)
		}
	}

	invite, err := ics.Invite(ev, cal, cl, owner)
	if err != nil {
		log.Printf("[notify] invite render failed for event %s: %v", ev.ID, err)
		invite = nil
	}

	if cl.Email != "" {
		subject := fmt.Sprintf("Confirmed: %s on %s", ev.Title, when)
		body := fmt.Sprintf("Hi %s,\n\nYour appointment %q is confirmed for %s.\n", cl.Name, ev.Title, when)
		if err := s.sendEmail(cl.Email, subject, body, invite); err != nil {
			log.Printf("[notify] email to %s failed: %v", cl.Email, err)
		}
	}
	if owner != nil && owner.Email != "" {
		subject := fmt.Sprintf("New booking: %s on %s", ev.Title, when)
		body := fmt.Sprintf("%s booked %q for %s.\n", cl.Name, ev.Title, when)
		if err := s.sendEmail(owner.Email, subject, body, invite); err != nil {
			log.Printf("[notify] email to %s failed: %v", owner.Email, err)
		}
	}
}

func (s *Service) sendSMS(to, body string) error {
	if s.twilio == nil {
		log.Printf("[notify] sms disabled, would send to %s: %s", to, body)
		return nil
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.smsFrom)
	params.SetBody(body)
	if _, err := s.twilio.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}

func (s *Service) sendEmail(to, subject, body string, invite []byte) error {
	if s.smtp.Host == "" {
		log.Printf("[notify] email disabled, would send to %s: %s", to, subject)
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(s.smtp.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)
	if len(invite) > 0 {
		if err := m.AttachReader("invite.ics", bytes.NewReader(invite),
			mail.WithFileContentType(mail.ContentType("text/calendar"))); err != nil {
			return fmt.Errorf("attach invite: %w", err)
		}
	}

	client, err := mail.NewClient(s.smtp.Host,
		mail.WithPort(s.smtp.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.smtp.Username),
		mail.WithPassword(s.smtp.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Noop is a Notifier that does nothing. Tests and the MCP entrypoint use it.
type Noop struct{}

func (Noop) EventBooked(*store.Event, *store.Calendar, *store.Client, *store.User) {}

package identity

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"john AT example DOT com", "john@example.com"},
		{"  John@Example.COM  ", "john@example.com"},
		{"jane doe at mail dot example dot org", "janedoe@mail.example.org"},
		{"already@fine.com", "already@fine.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		got := NormalizeEmail(c.in)
		if got != c.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", c.in, got, c.want)
		}
		// Idempotence: normalizing the output must be a no-op
		if again := NormalizeEmail(got); again != got {
			t.Errorf("NormalizeEmail not idempotent: %q -> %q -> %q", c.in, got, again)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"555-123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{"+44 7911 123456", "+447911123456"},
		{"five five five one two three four five six seven", "+15551234567"},
		{"oh niner oh five five five one two three four", "+10905551234"},
		{"12345", "+112345"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		got := NormalizePhone(c.in)
		if got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
		if again := NormalizePhone(got); again != got {
			t.Errorf("NormalizePhone not idempotent: %q -> %q -> %q", c.in, got, again)
		}
	}
}

func TestNormalizePhoneSpokenMistranscriptions(t *testing.T) {
	// "to", "for" and "ate" show up in voice transcripts in place of digits
	got := NormalizePhone("five five five one to three for five six ate")
	if got != "+15551234568" {
		t.Errorf("spoken phone = %q, want +15551234568", got)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  john   smith ", "John Smith"},
		{"MARY ANN", "Mary Ann"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

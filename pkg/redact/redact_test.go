package redact

import "testing"

func TestTextRedactsWhenEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	out := Text("mail me at a.b@example.com or +62 812 3456 7890")
	if out != "mail me at [REDACTED_EMAIL] or [REDACTED_PHONE]" {
		t.Fatalf("unexpected redaction: %q", out)
	}
}

func TestTextPassThroughWhenDisabled(t *testing.T) {
	SetEnabled(false)
	in := "a.b@example.com"
	if Text(in) != in {
		t.Fatalf("expected passthrough")
	}
}

func TestPhraseTruncates(t *testing.T) {
	SetEnabled(false)
	if got := Phrase("héllo world", 5); got != "héllo…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Phrase("short", 0); got != "short" {
		t.Fatalf("expected no truncation, got %q", got)
	}
}

func TestTextRedactsCardNumbers(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	if got := Text("card 4111 1111 1111 1111 ok"); got != "card [REDACTED_CARD] ok" {
		t.Fatalf("unexpected card redaction: %q", got)
	}
	// Fails the checksum, so it falls through to the phone rule.
	if got := Text("call 4111 1111 1111 1112"); got != "call [REDACTED_PHONE]" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}

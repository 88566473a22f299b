package sanitize

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	in := "Call me at +63 912 345 6789 or mail juan.dela.cruz@example.ph after the crash on 2026-10-02."
	got := RedactPII(in)

	if strings.Contains(got, "912") || strings.Contains(got, "@") {
		t.Fatalf("pii left in %q", got)
	}
	if !strings.Contains(got, "[redacted phone]") || !strings.Contains(got, "[redacted email]") {
		t.Fatalf("markers missing in %q", got)
	}
	if !strings.Contains(got, "2026-10-02") {
		t.Fatalf("date should survive: %q", got)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary("short note", 40); got != "short note" {
		t.Fatalf("got %q", got)
	}
	got := Summary("rear bumper damaged while parked outside the campus library", 20)
	if got != "rear bumper damaged…" {
		t.Fatalf("got %q", got)
	}
}

func TestPreview(t *testing.T) {
	got := Preview("Contact 09171234567 for the hospital bill details and receipts", 30)
	if strings.Contains(got, "0917") || !strings.HasSuffix(got, "…") {
		t.Fatalf("got %q", got)
	}
}

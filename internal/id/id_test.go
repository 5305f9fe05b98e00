package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/remaimber-it/drivetheory/internal/id"
)

func TestSessionID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	sid := id.SessionID(now)

	if !strings.HasPrefix(sid, "local-") {
		t.Fatalf("expected local- prefix, got %q", sid)
	}
	parts := strings.Split(sid, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 dash-separated parts, got %q", sid)
	}
	if parts[1] != "loyw3v28" {
		t.Errorf("expected base36 millis %q, got %q", "loyw3v28", parts[1])
	}
	if len(parts[2]) != 8 {
		t.Errorf("expected 8 char suffix, got %q", parts[2])
	}
	if other := id.SessionID(now); other == sid {
		t.Error("expected two ids of the same millisecond to differ")
	}
}

func TestSessionQuestionID(t *testing.T) {
	if got := id.SessionQuestionID("local-abc-xyz", 3); got != "local-abc-xyz:q:3" {
		t.Errorf("unexpected session question id %q", got)
	}
}

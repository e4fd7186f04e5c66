package storage

import (
	"testing"
	"time"
)

func TestRecordingKey(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)

	got := RecordingKey("jamie-field", "room-42", at)
	want := "recordings/2026-08-30/jamie-field/room-42-20260830T140509Z.mp4"
	if got != want {
		t.Errorf("RecordingKey = %q, want %q", got, want)
	}
}

func TestRecordingKeyNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	at := time.Date(2026, 8, 31, 2, 0, 0, 0, loc) // still Aug 30 in UTC

	got := RecordingKey("s", "r", at)
	want := "recordings/2026-08-30/s/r-20260830T210000Z.mp4"
	if got != want {
		t.Errorf("RecordingKey = %q, want %q", got, want)
	}
}

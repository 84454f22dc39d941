package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.sqlite"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)

	s.Append(KindModeChange, map[string]any{"from": "active", "to": "dnd"})
	s.Append(KindInterventionStart, map[string]any{"type": "sensory"})

	recs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	// Newest first.
	if recs[0].Kind != KindInterventionStart {
		t.Fatalf("recs[0].Kind = %s", recs[0].Kind)
	}
	if recs[1].Kind != KindModeChange {
		t.Fatalf("recs[1].Kind = %s", recs[1].Kind)
	}
	if recs[1].Payload["to"] != "dnd" {
		t.Fatalf("payload = %v", recs[1].Payload)
	}
	if recs[0].ID == "" || recs[0].Timestamp.IsZero() {
		t.Fatalf("record missing id or timestamp: %+v", recs[0])
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		s.Append(KindUserFeedback, map[string]any{"n": i})
	}

	recs, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
}

func TestAppendNilPayload(t *testing.T) {
	s := openTestStore(t)
	s.Append(KindShutdown, nil)

	recs, err := s.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != KindShutdown {
		t.Fatalf("recs = %v", recs)
	}
}

func TestAppendAfterCloseIsSilent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	s.Append(KindShutdown, nil) // must not panic
}

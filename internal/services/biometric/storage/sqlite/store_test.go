package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/biomgate/internal/services/biometric/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestAppendAndListAuditEvents(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	inputs := []storage.AuditEvent{
		{
			SessionID: "sess-1",
			Kind:      "session_created",
			State:     "auth_called",
			Package:   "test_package",
			UserID:    10,
			Modality:  1,
			At:        now,
		},
		{
			SessionID: "sess-1",
			Kind:      "sensing_started",
			State:     "auth_started",
			Package:   "test_package",
			UserID:    10,
			Modality:  1,
			At:        now.Add(time.Second),
		},
		{
			SessionID: "sess-2",
			Kind:      "session_created",
			State:     "auth_called",
			Package:   "other_package",
			UserID:    11,
			Modality:  4,
			At:        now.Add(2 * time.Second),
		},
	}
	for _, evt := range inputs {
		if err := store.AppendAuditEvent(ctx, evt); err != nil {
			t.Fatalf("append %s/%s: %v", evt.SessionID, evt.Kind, err)
		}
	}

	events, err := store.ListAuditEvents(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != "session_created" || events[1].Kind != "sensing_started" {
		t.Fatalf("event order = [%s, %s]", events[0].Kind, events[1].Kind)
	}
	if !events[1].At.Equal(now.Add(time.Second)) {
		t.Fatalf("event time = %v", events[1].At)
	}
	if events[0].Package != "test_package" || events[0].UserID != 10 {
		t.Fatalf("event attribution = %+v", events[0])
	}
}

func TestListAuditEventsForUnknownSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)

	events, err := store.ListAuditEvents(context.Background(), "missing")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestAppendValidatesEvent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		evt  storage.AuditEvent
	}{
		{"missing session id", storage.AuditEvent{Kind: "session_created", At: now}},
		{"missing kind", storage.AuditEvent{SessionID: "sess-1", At: now}},
		{"missing time", storage.AuditEvent{SessionID: "sess-1", Kind: "session_created"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.AppendAuditEvent(ctx, tc.evt); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("close second: %v", err)
	}
}

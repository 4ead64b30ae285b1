package audit

import (
	"context"
	"errors"
	"testing"

	"crewgate.org/internal/identity"
)

type memAuditStore struct {
	entries []Entry
	failing bool
}

func (m *memAuditStore) AppendAudit(_ context.Context, entry *Entry) error {
	if m.failing {
		return errors.New("store down")
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAuditStore) ListAudit(_ context.Context, limit int) ([]Entry, error) {
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, limit)
	copy(out, m.entries[:limit])
	return out, nil
}

func TestRecordCapturesActorAndRequestID(t *testing.T) {
	store := &memAuditStore{}
	rec := NewRecorder(store)

	ctx := WithRequestID(context.Background(), "req-9")
	ctx = identity.ContextWithPrincipal(ctx, identity.Principal{UserID: "usr-1"})

	rec.Record(ctx, "tenant.create", "tenant", "tnt-1", map[string]string{"domain": "attendance"})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.ActorUserID != "usr-1" || e.RequestID != "req-9" {
		t.Fatalf("context not captured: %+v", e)
	}
	if e.Metadata["domain"] != "attendance" {
		t.Fatalf("metadata not captured: %+v", e.Metadata)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	rec := NewRecorder(&memAuditStore{failing: true})
	// Must not panic or surface the error.
	rec.Record(context.Background(), "role.create", "role", "rol-1", nil)
}

func TestRecordIgnoresEmptyAction(t *testing.T) {
	store := &memAuditStore{}
	rec := NewRecorder(store)
	rec.Record(context.Background(), "  ", "x", "y", nil)
	if len(store.entries) != 0 {
		t.Fatalf("empty action must not be recorded")
	}
}

package features

import (
	"context"
	"testing"
	"time"
)

type memToggleStore struct {
	toggles map[string]Toggle
	reads   int
}

func newMemToggleStore() *memToggleStore {
	return &memToggleStore{toggles: map[string]Toggle{}}
}

func (m *memToggleStore) GetToggle(_ context.Context, key string) (Toggle, error) {
	m.reads++
	t, ok := m.toggles[key]
	if !ok {
		return Toggle{}, ErrNotFound
	}
	return t, nil
}

func (m *memToggleStore) SetToggle(_ context.Context, key string, enabled bool) (Toggle, error) {
	t := Toggle{Key: key, Enabled: enabled, UpdatedAt: time.Now()}
	m.toggles[key] = t
	return t, nil
}

func (m *memToggleStore) ListToggles(_ context.Context) ([]Toggle, error) {
	out := make([]Toggle, 0, len(m.toggles))
	for _, t := range m.toggles {
		out = append(out, t)
	}
	return out, nil
}

func TestToggleOffThenOnTakesEffectImmediately(t *testing.T) {
	store := newMemToggleStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.SetEnabled(ctx, AttendanceGeolocation, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if on, _ := svc.IsEnabled(ctx, AttendanceGeolocation); !on {
		t.Fatalf("expected enabled")
	}

	if _, err := svc.SetEnabled(ctx, AttendanceGeolocation, false); err != nil {
		t.Fatalf("SetEnabled off: %v", err)
	}
	if on, _ := svc.IsEnabled(ctx, AttendanceGeolocation); on {
		t.Fatalf("toggle off must take effect immediately")
	}

	if _, err := svc.SetEnabled(ctx, AttendanceGeolocation, true); err != nil {
		t.Fatalf("SetEnabled on: %v", err)
	}
	if on, _ := svc.IsEnabled(ctx, AttendanceGeolocation); !on {
		t.Fatalf("toggle on must take effect immediately")
	}
}

func TestIsEnabledCachesReads(t *testing.T) {
	store := newMemToggleStore()
	svc, _ := NewService(store, WithCacheTTL(time.Minute))
	ctx := context.Background()

	if _, err := svc.SetEnabled(ctx, VisitorPhotoCapture, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	store.reads = 0
	for i := 0; i < 5; i++ {
		if on, err := svc.IsEnabled(ctx, VisitorPhotoCapture); err != nil || !on {
			t.Fatalf("IsEnabled #%d: on=%v err=%v", i, on, err)
		}
	}
	if store.reads != 1 {
		t.Fatalf("expected a single store read, got %d", store.reads)
	}
}

func TestUnknownKeyIsDisabledNotError(t *testing.T) {
	store := newMemToggleStore()
	svc, _ := NewService(store)

	on, err := svc.IsEnabled(context.Background(), "NoSuchFeature")
	if err != nil {
		t.Fatalf("IsEnabled: %v", err)
	}
	if on {
		t.Fatalf("unknown feature must be disabled")
	}
}

func TestListReturnsFullMap(t *testing.T) {
	store := newMemToggleStore()
	svc, _ := NewService(store)
	ctx := context.Background()

	_, _ = svc.SetEnabled(ctx, OfflineEntrySync, true)
	_, _ = svc.SetEnabled(ctx, LeaveAutoApproval, false)

	m, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(m) != 2 || !m[OfflineEntrySync] || m[LeaveAutoApproval] {
		t.Fatalf("unexpected map: %v", m)
	}
}

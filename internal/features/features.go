// Package features implements persisted boolean feature toggles behind a
// process-wide read-through cache. Toggles gate endpoints independently of
// who is asking; they are not part of the JWT claim set.
package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("features: not found")

// Known toggle keys, seeded by migration.
const (
	AttendanceGeolocation = "AttendanceGeolocation"
	VisitorPhotoCapture   = "VisitorPhotoCapture"
	OfflineEntrySync      = "OfflineEntrySync"
	LeaveAutoApproval     = "LeaveAutoApproval"
)

// Toggle is a persisted feature switch.
type Toggle struct {
	Key         string    `json:"key"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store describes toggle persistence.
type Store interface {
	GetToggle(ctx context.Context, key string) (Toggle, error)
	SetToggle(ctx context.Context, key string, enabled bool) (Toggle, error)
	ListToggles(ctx context.Context) ([]Toggle, error)
}

const defaultCacheTTL = 30 * time.Second

// Service fronts the store with an expirable cache. Writes invalidate the
// cached entry immediately, so in-process toggle flips take effect on the
// next check; other processes converge within one cache TTL.
type Service struct {
	store Store
	cache *expirable.LRU[string, bool]
}

// Option configures the Service.
type Option func(*Service)

// WithCacheTTL overrides the cache refresh interval.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = expirable.NewLRU[string, bool](256, nil, ttl)
		}
	}
}

// NewService constructs the toggle service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("feature store is required")
	}
	s := &Service{
		store: store,
		cache: expirable.NewLRU[string, bool](256, nil, defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsEnabled reports whether the feature identified by key is on. Unknown
// keys are disabled, not an error.
func (s *Service) IsEnabled(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	if enabled, ok := s.cache.Get(key); ok {
		return enabled, nil
	}
	toggle, err := s.store.GetToggle(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Add(key, false)
			return false, nil
		}
		return false, err
	}
	s.cache.Add(key, toggle.Enabled)
	return toggle.Enabled, nil
}

// SetEnabled flips a toggle and invalidates the cached entry.
func (s *Service) SetEnabled(ctx context.Context, key string, enabled bool) (Toggle, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Toggle{}, fmt.Errorf("feature key is required")
	}
	toggle, err := s.store.SetToggle(ctx, key, enabled)
	if err != nil {
		return Toggle{}, err
	}
	s.cache.Remove(key)
	return toggle, nil
}

// List returns every known toggle as a key → enabled map, for front-ends
// that conditionally render UI.
func (s *Service) List(ctx context.Context) (map[string]bool, error) {
	toggles, err := s.store.ListToggles(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(toggles))
	for _, t := range toggles {
		out[t.Key] = t.Enabled
	}
	return out, nil
}

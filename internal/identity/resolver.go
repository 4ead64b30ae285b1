package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Resolver computes the tenant-scoped access a user currently holds.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	return &Resolver{store: store, now: time.Now}, nil
}

// ResolveAccess returns every active, non-expired (tenant, role, permissions)
// tuple the user holds, ordered by tenant domain then role name. A non-empty
// tenantDomain restricts the result to that tenant. An unknown user is
// ErrNotFound; a user with no matching assignments yields an empty slice and
// no error; whether that constitutes a login failure is the caller's policy.
func (r *Resolver) ResolveAccess(ctx context.Context, userID, tenantDomain string) ([]TenantAccess, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	tenantDomain = strings.TrimSpace(strings.ToLower(tenantDomain))

	if _, err := r.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	access, err := r.store.TenantAccess(ctx, userID, tenantDomain, r.now().UTC())
	if err != nil {
		return nil, err
	}
	for i := range access {
		access[i].Permissions = dedupeSorted(access[i].Permissions)
	}
	sort.Slice(access, func(i, j int) bool {
		if access[i].Domain != access[j].Domain {
			return access[i].Domain < access[j].Domain
		}
		return access[i].RoleName < access[j].RoleName
	})
	if access == nil {
		access = []TenantAccess{}
	}
	return access, nil
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

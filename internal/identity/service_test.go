package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, "unit-test-secret", "crewgate-test", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestLoginIssuesTokenPairWithResolvedAccess(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, principal, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh expiry must outlive access expiry")
	}
	if len(principal.Access) != 1 {
		t.Fatalf("expected 1 tenant entry, got %d", len(principal.Access))
	}
	entry := principal.Access[0]
	if entry.Domain != "attendance" || entry.RoleName != "Manager" {
		t.Fatalf("unexpected access entry: %+v", entry)
	}
	if !principal.HasPermission("leave.approve", "attendance") {
		t.Fatalf("expected leave.approve in attendance tenant")
	}
	if principal.HasPermission("leave.approve", "entryexit") {
		t.Fatalf("permission must not leak across tenants")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := newMemStore()
	alice, _, _ := seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	// Wrong password.
	if _, _, err := svc.Login(ctx, "alice@co.com", "wrong-pass", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown email.
	if _, _, err := svc.Login(ctx, "nobody@co.com", "s3cret-pass", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	// Correct password, deactivated account.
	inactive := false
	if _, err := store.UpdateUser(ctx, alice.ID, UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithTenantFilterNoAccessIsNotError(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)

	_, principal, err := svc.Login(context.Background(), "alice@co.com", "s3cret-pass", "entryexit")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(principal.Access) != 0 {
		t.Fatalf("expected empty access for unassigned tenant, got %+v", principal.Access)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// The consumed token must be dead.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for rotated-out token, got %v", err)
	}
	// The new one works.
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("Refresh with rotated token: %v", err)
	}
}

func TestRefreshPicksUpPermissionChanges(t *testing.T) {
	store := newMemStore()
	_, _, manager := seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, principal, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if principal.HasPermission("entryexit.record", "") {
		t.Fatalf("fixture should not grant entryexit.record yet")
	}

	if err := store.SetRolePermissions(ctx, manager.ID, []string{"leave.approve", "attendance.view", "entryexit.record"}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}

	_, refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !refreshed.HasPermission("entryexit.record", "attendance") {
		t.Fatalf("refresh must re-resolve permissions, got %+v", refreshed.Access)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)

	current := time.Now()
	clock := func() time.Time { return current }
	svc := newTestService(t, store, WithRefreshTTL(time.Hour), WithClock(clock))
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestRefreshRevokedTokenFailsEvenForActiveUser(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestRefreshWrongSecretBurnsRecord(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, _, err := splitRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, id+".forged-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged secret, got %v", err)
	}
	// The legitimate token is revoked by the mismatch.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected record to be revoked after forged attempt, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Logout must be a no-op, got %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("Logout with malformed token must be a no-op, got %v", err)
	}
}

func TestAuthenticateRoundTrip(t *testing.T) {
	store := newMemStore()
	seedAlice(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	pair, issued, err := svc.Login(ctx, "alice@co.com", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	principal, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.UserID != issued.UserID || principal.Email != "alice@co.com" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if !principal.HasRole("Manager", "attendance") {
		t.Fatalf("role claim lost in round trip: %+v", principal.Access)
	}
	if _, err := svc.Authenticate(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAdminAssignRoleRejectsPastExpiry(t *testing.T) {
	store := newMemStore()
	alice, tenant, manager := seedAlice(t, store)
	admin, err := NewAdmin(store)
	if err != nil {
		t.Fatalf("NewAdmin: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	if _, err := admin.AssignRole(context.Background(), alice.ID, manager.ID, tenant.ID, &past); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAdminCreateUserValidation(t *testing.T) {
	store := newMemStore()
	admin, _ := NewAdmin(store)
	ctx := context.Background()

	if _, err := admin.CreateUser(ctx, "", "x@co.com", "longenough"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing username: %v", err)
	}
	if _, err := admin.CreateUser(ctx, "x", "not-an-email", "longenough"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
	if _, err := admin.CreateUser(ctx, "x", "x@co.com", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: %v", err)
	}
	u, err := admin.CreateUser(ctx, "carol", "Carol@CO.com", "longenough")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "carol@co.com" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	if !u.IsActive {
		t.Fatalf("new users must start active")
	}
}

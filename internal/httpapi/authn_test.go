package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crewgate.org/internal/identity"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "abc123", false},
		{"  Bearer   abc123  ", "abc123", false},
		{"", "", true},
		{"Basic abc123", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("header %q: %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestWithAuthPublicPathsSkipToken(t *testing.T) {
	env := newTestEnv(t, identity.Principal{})

	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/v1/features"} {
		rr := doRequest(t, env.handler, http.MethodGet, path, nil, "")
		if rr.Code == http.StatusUnauthorized {
			t.Fatalf("path %s should not require a token", path)
		}
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEmployeeManage))

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/employees", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestWithAuthRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEmployeeManage))

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/employees", nil, "expired")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestWithAuthInjectsPrincipal(t *testing.T) {
	principal := authedPrincipal(identity.PermEmployeeManage)
	api := newTestEnv(t, principal)

	var got identity.Principal
	var found bool
	h := api.api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = identity.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/employees", nil)
	req.Header.Set(authHeader, "Bearer "+validToken)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !found {
		t.Fatal("expected principal in context")
	}
	if got.UserID != principal.UserID {
		t.Fatalf("principal user %q, want %q", got.UserID, principal.UserID)
	}
}

func TestRequirePermission(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermAttendanceRecord))

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/employees", nil, validToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without employee.manage, got %d", rr.Code)
	}

	env = newTestEnv(t, authedPrincipal(identity.PermEmployeeManage))
	rr = doRequest(t, env.handler, http.MethodGet, "/v1/employees", nil, validToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with employee.manage, got %d: %s", rr.Code, rr.Body.String())
	}
}

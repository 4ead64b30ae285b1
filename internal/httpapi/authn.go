package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"crewgate.org/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/features",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := identity.ContextWithPrincipal(r.Context(), principal)
		ctx = identity.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission writes the 403 envelope itself and reports whether the
// caller may proceed. An empty domain accepts the permission in any tenant.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm, domain string) bool {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasPermission(perm, domain) {
		writeError(w, r, http.StatusForbidden, "missing permission: "+perm)
		return false
	}
	return true
}

func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role, domain string) bool {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasRole(role, domain) {
		writeError(w, r, http.StatusForbidden, "missing role: "+role)
		return false
	}
	return true
}

// requireFeature consults the toggle service; a disabled feature yields 403
// with an explanatory message.
func (a *API) requireFeature(w http.ResponseWriter, r *http.Request, key string) bool {
	enabled, err := a.features.IsEnabled(r.Context(), key)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "feature check failed")
		return false
	}
	if !enabled {
		writeError(w, r, http.StatusForbidden, "feature disabled: "+key)
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

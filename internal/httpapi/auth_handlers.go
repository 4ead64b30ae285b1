package httpapi

import (
	"errors"
	"net/http"

	"crewgate.org/internal/identity"
)

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	TenantDomain string `json:"tenant_domain,omitempty"`
}

type tokenResponse struct {
	TokenPair identity.TokenPair `json:"tokens"`
	User      userInfo           `json:"user"`
}

type userInfo struct {
	ID       string                  `json:"id"`
	Username string                  `json:"username"`
	Email    string                  `json:"email"`
	Access   []identity.TenantAccess `json:"access"`
}

func principalInfo(p identity.Principal) userInfo {
	return userInfo{ID: p.UserID, Username: p.Username, Email: p.Email, Access: p.Access}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, principal, err := a.auth.Login(r.Context(), req.Email, req.Password, req.TenantDomain)
	if err != nil {
		// Never distinguish unknown email from wrong password.
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	a.auditor.Record(identity.ContextWithPrincipal(r.Context(), principal),
		"auth.login", "user", principal.UserID, nil)
	writeData(w, r, http.StatusOK, tokenResponse{TokenPair: pair, User: principalInfo(principal)})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, principal, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeData(w, r, http.StatusOK, tokenResponse{TokenPair: pair, User: principalInfo(principal)})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Logout is idempotent; unknown tokens still report success.
	if err := a.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	a.auditor.Record(r.Context(), "auth.logout", "refresh_token", "", nil)
	writeData(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeData(w, r, http.StatusOK, principalInfo(principal))
}

package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"crewgate.org/internal/identity"
)

// GET /v1/features is public: front-ends fetch the map before login to
// decide what to render.
func (a *API) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	m, err := a.features.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "feature listing failed")
		return
	}
	writeData(w, r, http.StatusOK, m)
}

type featureUpdateRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) handleFeatureByKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/features/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		enabled, err := a.features.IsEnabled(r.Context(), key)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "feature check failed")
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{"key": key, "enabled": enabled})
	case http.MethodPut:
		if !a.requirePermission(w, r, identity.PermFeatureManage, "") {
			return
		}
		var req featureUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		toggle, err := a.features.SetEnabled(r.Context(), key, req.Enabled)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "feature update failed")
			return
		}
		a.auditor.Record(r.Context(), "feature.set", "feature", key,
			map[string]string{"enabled": strconv.FormatBool(req.Enabled)})
		writeData(w, r, http.StatusOK, toggle)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

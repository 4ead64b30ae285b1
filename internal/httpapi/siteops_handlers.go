package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crewgate.org/internal/features"
	"crewgate.org/internal/identity"
	"crewgate.org/internal/siteops"
)

func handleSiteopsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, siteops.ErrNotAssigned):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, siteops.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, siteops.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, siteops.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "siteops operation failed")
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	SiteAddress string `json:"site_address,omitempty"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		projects, err := a.siteops.ListProjects(r.Context(), activeOnly)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, projects)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		project, err := a.siteops.CreateProject(r.Context(), req.Name, req.SiteAddress)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "project.create", "project", project.ID,
			map[string]string{"name": project.Name})
		writeData(w, r, http.StatusCreated, project)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type linkContractorRequest struct {
	ContractorID string `json:"contractor_id"`
}

// handleProjectSub covers /v1/projects/{id} and /v1/projects/{id}/contractors.
func (a *API) handleProjectSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleProjectByID(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "contractors":
		a.handleProjectContractors(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProjectByID(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		project, err := a.siteops.GetProject(r.Context(), projectID)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, project)
	case http.MethodPatch:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		var req setActiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		project, err := a.siteops.SetProjectActive(r.Context(), projectID, req.Active)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "project.set_active", "project", project.ID,
			map[string]string{"active": strconv.FormatBool(req.Active)})
		writeData(w, r, http.StatusOK, project)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleProjectContractors(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		contractors, err := a.siteops.ListProjectContractors(r.Context(), projectID)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, contractors)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		var req linkContractorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.siteops.LinkContractor(r.Context(), projectID, req.ContractorID); err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "project.contractor.link", "project", projectID,
			map[string]string{"contractor_id": req.ContractorID})
		writeData(w, r, http.StatusCreated, map[string]any{
			"project_id":    projectID,
			"contractor_id": req.ContractorID,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type createContractorRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

func (a *API) handleContractors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		contractors, err := a.siteops.ListContractors(r.Context())
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, contractors)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermProjectManage, "") {
			return
		}
		var req createContractorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		contractor, err := a.siteops.CreateContractor(r.Context(), req.Name, req.Contact)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "contractor.create", "contractor", contractor.ID,
			map[string]string{"name": contractor.Name})
		writeData(w, r, http.StatusCreated, contractor)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type createLabourRequest struct {
	ContractorID string `json:"contractor_id"`
	Name         string `json:"name"`
	Barcode      string `json:"barcode"`
	PhotoRef     string `json:"photo_ref,omitempty"`
}

func (a *API) handleLabours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermLabourManage, "") {
			return
		}
		q := r.URL.Query()
		if barcode := q.Get("barcode"); barcode != "" {
			labour, err := a.siteops.GetLabourByBarcode(r.Context(), barcode)
			if err != nil {
				handleSiteopsError(w, r, err)
				return
			}
			writeData(w, r, http.StatusOK, labour)
			return
		}
		labours, err := a.siteops.ListLabours(r.Context(), q.Get("contractor_id"))
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, labours)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermLabourManage, "") {
			return
		}
		var req createLabourRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		labour, err := a.siteops.CreateLabour(r.Context(), req.ContractorID, req.Name, req.Barcode, req.PhotoRef)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "labour.create", "labour", labour.ID,
			map[string]string{"contractor_id": labour.ContractorID})
		writeData(w, r, http.StatusCreated, labour)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleLabourByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/labours/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.requirePermission(w, r, identity.PermLabourManage, "") {
		return
	}
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	labour, err := a.siteops.SetLabourActive(r.Context(), id, req.Active)
	if err != nil {
		handleSiteopsError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "labour.set_active", "labour", labour.ID,
		map[string]string{"active": strconv.FormatBool(req.Active)})
	writeData(w, r, http.StatusOK, labour)
}

type createVisitorRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
	HostEmployeeID string `json:"host_employee_id"`
	BadgeBarcode   string `json:"badge_barcode,omitempty"`
	PhotoRef       string `json:"photo_ref,omitempty"`
}

func (a *API) handleVisitors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermVisitorManage, "") {
			return
		}
		visitors, err := a.siteops.ListVisitors(r.Context(), r.URL.Query().Get("host_employee_id"))
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, visitors)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermVisitorManage, "") {
			return
		}
		var req createVisitorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		// A photo only rides along when the capture flag is on.
		if req.PhotoRef != "" && !a.requireFeature(w, r, features.VisitorPhotoCapture) {
			return
		}
		visitor, err := a.siteops.CreateVisitor(r.Context(), req.Name, req.Phone, req.Purpose,
			req.HostEmployeeID, req.BadgeBarcode, req.PhotoRef)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "visitor.create", "visitor", visitor.ID,
			map[string]string{"host_employee_id": visitor.HostEmployeeID})
		writeData(w, r, http.StatusCreated, visitor)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type recordEntryRequest struct {
	ProjectID      string     `json:"project_id"`
	LabourID       string     `json:"labour_id,omitempty"`
	VisitorID      string     `json:"visitor_id,omitempty"`
	Direction      string     `json:"direction"`
	OccurredAt     *time.Time `json:"occurred_at,omitempty"`
	DeviceID       string     `json:"device_id,omitempty"`
	ClientRecordID string     `json:"client_record_id,omitempty"`
}

func (a *API) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleEntriesList(w, r)
	case http.MethodPost:
		a.handleEntriesRecord(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEntriesRecord(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, identity.PermEntryRecord, "") {
		return
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req recordEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Replayed offline records carry a device and client record id.
	synced := req.DeviceID != "" || req.ClientRecordID != ""
	if synced && !a.requireFeature(w, r, features.OfflineEntrySync) {
		return
	}
	in := siteops.EntryInput{
		ProjectID:        req.ProjectID,
		LabourID:         req.LabourID,
		VisitorID:        req.VisitorID,
		Direction:        req.Direction,
		RecordedByUserID: principal.UserID,
		SyncedFromDevice: synced,
		DeviceID:         req.DeviceID,
		ClientRecordID:   req.ClientRecordID,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}
	rec, err := a.siteops.RecordEntry(r.Context(), in)
	if err != nil {
		handleSiteopsError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "entry.record", "entry_exit", rec.ID, map[string]string{
		"project_id": rec.ProjectID,
		"direction":  rec.Direction,
	})
	writeData(w, r, http.StatusCreated, rec)
}

func (a *API) handleEntriesList(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, identity.PermEntryView, "") {
		return
	}
	q := r.URL.Query()
	filter := siteops.EntryFilter{
		ProjectID: q.Get("project_id"),
		LabourID:  q.Get("labour_id"),
		VisitorID: q.Get("visitor_id"),
		Direction: q.Get("direction"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid from time, want RFC 3339")
			return
		}
		filter.From = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid to time, want RFC 3339")
			return
		}
		filter.To = parsed
	}
	entries, err := a.siteops.ListEntries(r.Context(), filter)
	if err != nil {
		handleSiteopsError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, entries)
}

type assignGuardRequest struct {
	GuardUserID string `json:"guard_user_id"`
	ProjectID   string `json:"project_id"`
}

func (a *API) handleGuardAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermGuardAssign, "") {
			return
		}
		assignments, err := a.siteops.ListGuardAssignments(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, assignments)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermGuardAssign, "") {
			return
		}
		var req assignGuardRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.siteops.AssignGuard(r.Context(), req.GuardUserID, req.ProjectID)
		if err != nil {
			handleSiteopsError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "guard.assign", "guard_assignment", assignment.ID, map[string]string{
			"guard_user_id": req.GuardUserID,
			"project_id":    req.ProjectID,
		})
		writeData(w, r, http.StatusCreated, assignment)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGuardAssignmentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/guards/assignments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, identity.PermGuardAssign, "") {
		return
	}
	assignment, err := a.siteops.RevokeGuardAssignment(r.Context(), id)
	if err != nil {
		handleSiteopsError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "guard.revoke", "guard_assignment", assignment.ID, nil)
	writeData(w, r, http.StatusOK, assignment)
}

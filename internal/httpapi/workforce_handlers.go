package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crewgate.org/internal/features"
	"crewgate.org/internal/identity"
	"crewgate.org/internal/workforce"
)

func handleWorkforceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workforce.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workforce.ErrInsufficientBalance):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workforce.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workforce.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "workforce operation failed")
	}
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}

type createEmployeeRequest struct {
	UserID     string `json:"user_id"`
	FullName   string `json:"full_name"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ManagerID  string `json:"manager_id,omitempty"`
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermEmployeeManage, "") {
			return
		}
		employees, err := a.workforce.ListEmployees(r.Context(), r.URL.Query().Get("department"))
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, employees)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermEmployeeManage, "") {
			return
		}
		var req createEmployeeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		emp, err := a.workforce.CreateEmployee(r.Context(), req.UserID, req.FullName, req.Department, req.Phone, req.ManagerID)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "employee.create", "employee", emp.ID,
			map[string]string{"user_id": emp.UserID})
		writeData(w, r, http.StatusCreated, emp)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateEmployeeRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	ManagerID  *string `json:"manager_id,omitempty"`
}

func (a *API) handleEmployeeByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/employees/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermEmployeeManage, "") {
			return
		}
		emp, err := a.workforce.GetEmployee(r.Context(), id)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, emp)
	case http.MethodPatch:
		if !a.requirePermission(w, r, identity.PermEmployeeManage, "") {
			return
		}
		var req updateEmployeeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		emp, err := a.workforce.UpdateEmployee(r.Context(), id, workforce.EmployeeUpdate{
			FullName:   req.FullName,
			Department: req.Department,
			Phone:      req.Phone,
			ManagerID:  req.ManagerID,
		})
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "employee.update", "employee", emp.ID, nil)
		writeData(w, r, http.StatusOK, emp)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

// selfEmployee resolves the caller's employee profile.
func (a *API) selfEmployee(w http.ResponseWriter, r *http.Request) (*workforce.Employee, bool) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	emp, err := a.workforce.GetEmployeeByUser(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, workforce.ErrNotFound) {
			writeError(w, r, http.StatusForbidden, "no employee profile for this account")
			return nil, false
		}
		handleWorkforceError(w, r, err)
		return nil, false
	}
	return emp, true
}

type checkInRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, identity.PermAttendanceRecord, "") {
		return
	}
	emp, ok := a.selfEmployee(w, r)
	if !ok {
		return
	}
	var req checkInRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	// Coordinates only flow through when the geolocation flag is on.
	if req.Latitude != nil || req.Longitude != nil {
		if !a.requireFeature(w, r, features.AttendanceGeolocation) {
			return
		}
	}
	rec, err := a.workforce.CheckIn(r.Context(), emp.ID, req.Latitude, req.Longitude)
	if err != nil {
		handleWorkforceError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "attendance.checkin", "attendance", rec.ID, nil)
	writeData(w, r, http.StatusCreated, rec)
}

func (a *API) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, identity.PermAttendanceRecord, "") {
		return
	}
	emp, ok := a.selfEmployee(w, r)
	if !ok {
		return
	}
	rec, err := a.workforce.CheckOut(r.Context(), emp.ID)
	if err != nil {
		handleWorkforceError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "attendance.checkout", "attendance", rec.ID, nil)
	writeData(w, r, http.StatusOK, rec)
}

func (a *API) handleAttendanceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	employeeID := q.Get("employee_id")
	if employeeID == "" {
		emp, ok := a.selfEmployee(w, r)
		if !ok {
			return
		}
		employeeID = emp.ID
	} else if !a.requirePermission(w, r, identity.PermAttendanceView, "") {
		return
	}
	now := time.Now().UTC()
	from, to := now.AddDate(0, -1, 0), now
	if v := q.Get("from"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
			return
		}
		to = parsed
	}
	records, err := a.workforce.ListAttendance(r.Context(), employeeID, from, to)
	if err != nil {
		handleWorkforceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, records)
}

type submitLeaveRequest struct {
	LeaveType string `json:"leave_type"`
	FromDate  string `json:"from_date"`
	ToDate    string `json:"to_date"`
	Reason    string `json:"reason,omitempty"`
}

func (a *API) handleLeaveRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		employeeID := q.Get("employee_id")
		if employeeID == "" {
			emp, ok := a.selfEmployee(w, r)
			if !ok {
				return
			}
			employeeID = emp.ID
		} else if !a.requirePermission(w, r, identity.PermLeaveView, "") {
			return
		}
		requests, err := a.workforce.ListLeaveRequests(r.Context(), employeeID, q.Get("status"))
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, requests)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermLeaveRequest, "") {
			return
		}
		emp, ok := a.selfEmployee(w, r)
		if !ok {
			return
		}
		var req submitLeaveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		from, err := parseDate(req.FromDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid from_date, want YYYY-MM-DD")
			return
		}
		to, err := parseDate(req.ToDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid to_date, want YYYY-MM-DD")
			return
		}
		autoApprove, err := a.features.IsEnabled(r.Context(), features.LeaveAutoApproval)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "feature check failed")
			return
		}
		lr, err := a.workforce.SubmitLeave(r.Context(), emp.ID, req.LeaveType, from, to, req.Reason, autoApprove)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "leave.submit", "leave_request", lr.ID,
			map[string]string{"type": lr.LeaveType, "days": strconv.Itoa(lr.Days)})
		writeData(w, r, http.StatusCreated, lr)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleLeaveRequestSub covers /v1/leave-requests/{id}/(approve|reject|cancel).
func (a *API) handleLeaveRequestSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/leave-requests/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	requestID, action := parts[0], parts[1]
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var (
		lr  *workforce.LeaveRequest
		err error
	)
	switch action {
	case "approve":
		if !a.requirePermission(w, r, identity.PermLeaveApprove, "") {
			return
		}
		lr, err = a.workforce.ApproveLeave(r.Context(), requestID, principal.UserID)
	case "reject":
		if !a.requirePermission(w, r, identity.PermLeaveApprove, "") {
			return
		}
		lr, err = a.workforce.RejectLeave(r.Context(), requestID, principal.UserID)
	case "cancel":
		emp, ok := a.selfEmployee(w, r)
		if !ok {
			return
		}
		lr, err = a.workforce.CancelLeave(r.Context(), requestID, emp.ID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleWorkforceError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "leave."+action, "leave_request", lr.ID, nil)
	writeData(w, r, http.StatusOK, lr)
}

type setEntitlementRequest struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	Year       int    `json:"year"`
	Allocated  int    `json:"allocated"`
}

func (a *API) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		if !a.requirePermission(w, r, identity.PermLeaveView, "") {
			return
		}
		year, _ := strconv.Atoi(q.Get("year"))
		if year == 0 {
			year = time.Now().UTC().Year()
		}
		ent, err := a.workforce.GetEntitlement(r.Context(), q.Get("employee_id"), q.Get("leave_type"), year)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, ent)
	case http.MethodPut:
		if !a.requirePermission(w, r, identity.PermLeaveApprove, "") {
			return
		}
		var req setEntitlementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ent, err := a.workforce.SetEntitlement(r.Context(), req.EmployeeID, req.LeaveType, req.Year, req.Allocated)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "leave.entitlement.set", "leave_entitlement", ent.ID,
			map[string]string{"allocated": strconv.Itoa(ent.Allocated)})
		writeData(w, r, http.StatusOK, ent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

type createHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

func (a *API) handleHolidays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year, _ := strconv.Atoi(r.URL.Query().Get("year"))
		holidays, err := a.workforce.ListHolidays(r.Context(), year)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, holidays)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermHolidayManage, "") {
			return
		}
		var req createHolidayRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		h, err := a.workforce.CreateHoliday(r.Context(), date, req.Name)
		if err != nil {
			handleWorkforceError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "holiday.create", "holiday", h.ID,
			map[string]string{"name": h.Name})
		writeData(w, r, http.StatusCreated, h)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleHolidayByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/holidays/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, identity.PermHolidayManage, "") {
		return
	}
	if err := a.workforce.DeleteHoliday(r.Context(), id); err != nil {
		handleWorkforceError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "holiday.delete", "holiday", id, nil)
	writeData(w, r, http.StatusOK, map[string]any{"deleted": true})
}

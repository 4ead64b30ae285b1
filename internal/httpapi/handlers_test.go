package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crewgate.org/internal/audit"
	"crewgate.org/internal/features"
	"crewgate.org/internal/identity"
	"crewgate.org/internal/siteops"
	"crewgate.org/internal/workforce"
)

const validToken = "good-token"

type stubAuth struct {
	principal identity.Principal
	pair      identity.TokenPair
	loginErr  error
	loggedOut []string
}

func (s *stubAuth) Login(ctx context.Context, email, password, tenantDomain string) (identity.TokenPair, identity.Principal, error) {
	if s.loginErr != nil {
		return identity.TokenPair{}, identity.Principal{}, s.loginErr
	}
	return s.pair, s.principal, nil
}

func (s *stubAuth) Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, identity.Principal, error) {
	if refreshToken != "refresh-ok" {
		return identity.TokenPair{}, identity.Principal{}, identity.ErrInvalidToken
	}
	return s.pair, s.principal, nil
}

func (s *stubAuth) Logout(ctx context.Context, refreshToken string) error {
	s.loggedOut = append(s.loggedOut, refreshToken)
	return nil
}

func (s *stubAuth) Authenticate(ctx context.Context, token string) (identity.Principal, error) {
	if token != validToken {
		return identity.Principal{}, identity.ErrInvalidToken
	}
	return s.principal, nil
}

type stubFeatures struct {
	flags map[string]bool
}

func (s *stubFeatures) IsEnabled(ctx context.Context, key string) (bool, error) {
	return s.flags[key], nil
}

func (s *stubFeatures) SetEnabled(ctx context.Context, key string, enabled bool) (features.Toggle, error) {
	s.flags[key] = enabled
	return features.Toggle{Key: key, Enabled: enabled, UpdatedAt: time.Now()}, nil
}

func (s *stubFeatures) List(ctx context.Context) (map[string]bool, error) {
	return s.flags, nil
}

type stubAuditor struct {
	entries []audit.Entry
}

func (s *stubAuditor) Record(ctx context.Context, action, resourceType, resourceID string, metadata map[string]string) {
	s.entries = append(s.entries, audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
}

func (s *stubAuditor) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.entries, nil
}

func (s *stubAuditor) lastAction() string {
	if len(s.entries) == 0 {
		return ""
	}
	return s.entries[len(s.entries)-1].Action
}

// stubWorkforce overrides only what each test touches; calling anything else
// panics through the embedded nil interface.
type stubWorkforce struct {
	WorkforceService
	employee      *workforce.Employee
	checkInLat    *float64
	checkInCalled bool
	submitAuto    bool
	submitErr     error
	checkInErr    error
}

func (s *stubWorkforce) GetEmployeeByUser(ctx context.Context, userID string) (*workforce.Employee, error) {
	if s.employee == nil {
		return nil, workforce.ErrNotFound
	}
	return s.employee, nil
}

func (s *stubWorkforce) ListEmployees(ctx context.Context, department string) ([]workforce.Employee, error) {
	if s.employee == nil {
		return []workforce.Employee{}, nil
	}
	return []workforce.Employee{*s.employee}, nil
}

func (s *stubWorkforce) CheckIn(ctx context.Context, employeeID string, lat, lon *float64) (*workforce.AttendanceRecord, error) {
	s.checkInCalled = true
	s.checkInLat = lat
	if s.checkInErr != nil {
		return nil, s.checkInErr
	}
	return &workforce.AttendanceRecord{ID: "att_1", EmployeeID: employeeID, Latitude: lat, Longitude: lon}, nil
}

func (s *stubWorkforce) SubmitLeave(ctx context.Context, employeeID, leaveType string, from, to time.Time, reason string, autoApprove bool) (*workforce.LeaveRequest, error) {
	s.submitAuto = autoApprove
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	status := workforce.LeavePending
	if autoApprove {
		status = workforce.LeaveApproved
	}
	return &workforce.LeaveRequest{ID: "lvr_1", EmployeeID: employeeID, LeaveType: leaveType, Days: 1, Status: status}, nil
}

type stubSiteops struct {
	SiteopsService
	recordErr error
	recorded  *siteops.EntryInput
}

func (s *stubSiteops) RecordEntry(ctx context.Context, in siteops.EntryInput) (*siteops.EntryExitRecord, error) {
	s.recorded = &in
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &siteops.EntryExitRecord{
		ID:        "eer_1",
		ProjectID: in.ProjectID,
		LabourID:  in.LabourID,
		Direction: in.Direction,
	}, nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	auth    *stubAuth
	feats   *stubFeatures
	wf      *stubWorkforce
	so      *stubSiteops
	aud     *stubAuditor
}

func newTestEnv(t *testing.T, principal identity.Principal) *testEnv {
	t.Helper()
	env := &testEnv{
		auth: &stubAuth{
			principal: principal,
			pair: identity.TokenPair{
				AccessToken:  "access",
				RefreshToken: "refresh-ok",
			},
		},
		feats: &stubFeatures{flags: map[string]bool{}},
		wf: &stubWorkforce{
			employee: &workforce.Employee{ID: "emp_1", UserID: principal.UserID, FullName: "Test Person"},
		},
		so:  &stubSiteops{},
		aud: &stubAuditor{},
	}
	env.api = New(env.auth, nil, env.feats, env.wf, env.so, env.aud, nil, "test", Options{})
	env.handler = env.api.Handler()
	return env
}

func authedPrincipal(perms ...string) identity.Principal {
	return identity.Principal{
		UserID:   "usr_1",
		Username: "testperson",
		Email:    "test@crewgate.org",
		Access: []identity.TenantAccess{{
			TenantID:    "ten_1",
			TenantName:  "Attendance",
			Domain:      "attendance",
			RoleName:    "Admin",
			Permissions: perms,
		}},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set(authHeader, bearer+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestLoginReturnsEnvelopeAndAudits(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermAttendanceRecord))

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "test@crewgate.org", "password": "secret"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeEnvelope(t, rr)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	tokens, ok := data["tokens"].(map[string]any)
	if !ok || tokens["access_token"] != "access" {
		t.Fatalf("unexpected tokens payload: %v", data["tokens"])
	}
	if env.aud.lastAction() != "auth.login" {
		t.Fatalf("expected auth.login audit, got %q", env.aud.lastAction())
	}
}

func TestLoginBadCredentialsGeneric(t *testing.T) {
	env := newTestEnv(t, identity.Principal{})
	env.auth.loginErr = identity.ErrInvalidCredentials

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "who@crewgate.org", "password": "bad"}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["message"] != "invalid email or password" {
		t.Fatalf("message must not reveal which part failed, got %v", body["message"])
	}
}

func TestMeReturnsPrincipal(t *testing.T) {
	principal := authedPrincipal(identity.PermAttendanceRecord)
	env := newTestEnv(t, principal)

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/auth/me", nil, validToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeEnvelope(t, rr)["data"].(map[string]any)
	if data["id"] != principal.UserID {
		t.Fatalf("unexpected principal id %v", data["id"])
	}
}

func TestFeatureTogglePermissionAndAudit(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermAttendanceRecord))
	rr := doRequest(t, env.handler, http.MethodPut, "/v1/features/"+features.LeaveAutoApproval,
		map[string]bool{"enabled": true}, validToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without feature.manage, got %d", rr.Code)
	}

	env = newTestEnv(t, authedPrincipal(identity.PermFeatureManage))
	rr = doRequest(t, env.handler, http.MethodPut, "/v1/features/"+features.LeaveAutoApproval,
		map[string]bool{"enabled": true}, validToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !env.feats.flags[features.LeaveAutoApproval] {
		t.Fatal("expected flag to be enabled")
	}
	if env.aud.lastAction() != "feature.set" {
		t.Fatalf("expected feature.set audit, got %q", env.aud.lastAction())
	}
}

func TestCheckInCoordinatesGatedByFeature(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermAttendanceRecord))

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/attendance/checkin",
		map[string]float64{"latitude": 51.5, "longitude": -0.12}, validToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with geolocation disabled, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.wf.checkInCalled {
		t.Fatal("check-in must not reach the service when the flag blocks it")
	}

	env.feats.flags[features.AttendanceGeolocation] = true
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/attendance/checkin",
		map[string]float64{"latitude": 51.5, "longitude": -0.12}, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.wf.checkInLat == nil || *env.wf.checkInLat != 51.5 {
		t.Fatalf("coordinates did not reach the service: %v", env.wf.checkInLat)
	}
}

func TestCheckInWithoutCoordinatesIgnoresFeature(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermAttendanceRecord))

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/attendance/checkin", nil, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.wf.checkInLat != nil {
		t.Fatal("expected no coordinates")
	}
}

func TestSubmitLeaveUsesAutoApprovalFlag(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermLeaveRequest))

	payload := map[string]string{
		"leave_type": "annual",
		"from_date":  "2026-09-01",
		"to_date":    "2026-09-03",
	}
	rr := doRequest(t, env.handler, http.MethodPost, "/v1/leave-requests", payload, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.wf.submitAuto {
		t.Fatal("auto approval should be off by default")
	}

	env.feats.flags[features.LeaveAutoApproval] = true
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/leave-requests", payload, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !env.wf.submitAuto {
		t.Fatal("expected auto approval flag to be passed through")
	}
}

func TestSubmitLeaveInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermLeaveRequest))
	env.wf.submitErr = workforce.ErrInsufficientBalance

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/leave-requests", map[string]string{
		"leave_type": "annual",
		"from_date":  "2026-09-01",
		"to_date":    "2026-09-03",
	}, validToken)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRecordEntryNotAssigned(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEntryRecord))
	env.so.recordErr = siteops.ErrNotAssigned

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/entries", map[string]string{
		"project_id": "prj_1",
		"labour_id":  "lab_1",
		"direction":  "in",
	}, validToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRecordEntrySetsRecordingGuard(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEntryRecord))

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/entries", map[string]string{
		"project_id": "prj_1",
		"labour_id":  "lab_1",
		"direction":  "in",
	}, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.so.recorded == nil || env.so.recorded.RecordedByUserID != "usr_1" {
		t.Fatalf("expected recording guard from principal, got %+v", env.so.recorded)
	}
	if env.so.recorded.SyncedFromDevice {
		t.Fatal("online record must not be marked as synced")
	}
	if env.aud.lastAction() != "entry.record" {
		t.Fatalf("expected entry.record audit, got %q", env.aud.lastAction())
	}
}

func TestRecordEntryOfflineSyncGated(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEntryRecord))

	payload := map[string]string{
		"project_id":       "prj_1",
		"labour_id":        "lab_1",
		"direction":        "in",
		"device_id":        "dev_1",
		"client_record_id": "cr_1",
	}
	rr := doRequest(t, env.handler, http.MethodPost, "/v1/entries", payload, validToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with sync disabled, got %d: %s", rr.Code, rr.Body.String())
	}

	env.feats.flags[features.OfflineEntrySync] = true
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/entries", payload, validToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !env.so.recorded.SyncedFromDevice {
		t.Fatal("replayed record should be marked as synced")
	}
}

func TestMethodNotAllowedSetsAllowHeader(t *testing.T) {
	env := newTestEnv(t, authedPrincipal(identity.PermEmployeeManage))

	rr := doRequest(t, env.handler, http.MethodDelete, "/v1/employees", nil, validToken)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	env := newTestEnv(t, identity.Principal{})

	rr := doRequest(t, env.handler, http.MethodGet, "/", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["success"] != false {
		t.Fatalf("expected error envelope, got %v", body)
	}
}

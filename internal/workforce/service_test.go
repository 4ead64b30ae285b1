package workforce

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type memStore struct {
	employees    map[string]*Employee
	attendance   map[string]*AttendanceRecord
	leaves       map[string]*LeaveRequest
	entitlements map[string]*LeaveEntitlement
	holidays     map[string]*PublicHoliday
}

func newMemStore() *memStore {
	return &memStore{
		employees:    map[string]*Employee{},
		attendance:   map[string]*AttendanceRecord{},
		leaves:       map[string]*LeaveRequest{},
		entitlements: map[string]*LeaveEntitlement{},
		holidays:     map[string]*PublicHoliday{},
	}
}

func (m *memStore) CreateEmployee(_ context.Context, e *Employee) error {
	for _, ex := range m.employees {
		if ex.UserID == e.UserID {
			return ErrConflict
		}
	}
	cp := *e
	m.employees[e.ID] = &cp
	return nil
}

func (m *memStore) GetEmployee(_ context.Context, id string) (*Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) GetEmployeeByUser(_ context.Context, userID string) (*Employee, error) {
	for _, e := range m.employees {
		if e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListEmployees(_ context.Context, department string) ([]Employee, error) {
	var out []Employee
	for _, e := range m.employees {
		if department == "" || e.Department == department {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEmployee(_ context.Context, id string, upd EmployeeUpdate) (*Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.FullName != nil {
		e.FullName = *upd.FullName
	}
	if upd.Department != nil {
		e.Department = *upd.Department
	}
	if upd.Phone != nil {
		e.Phone = *upd.Phone
	}
	if upd.ManagerID != nil {
		e.ManagerID = *upd.ManagerID
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) CreateAttendance(_ context.Context, rec *AttendanceRecord) error {
	for _, ex := range m.attendance {
		if ex.EmployeeID == rec.EmployeeID && ex.Day.Equal(rec.Day) {
			return ErrConflict
		}
	}
	cp := *rec
	m.attendance[rec.ID] = &cp
	return nil
}

func (m *memStore) GetAttendanceForDay(_ context.Context, employeeID string, day time.Time) (*AttendanceRecord, error) {
	for _, rec := range m.attendance {
		if rec.EmployeeID == employeeID && rec.Day.Equal(day) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) SetCheckOut(_ context.Context, recordID string, at time.Time) (*AttendanceRecord, error) {
	rec, ok := m.attendance[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	t := at
	rec.CheckOut = &t
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListAttendance(_ context.Context, employeeID string, from, to time.Time) ([]AttendanceRecord, error) {
	var out []AttendanceRecord
	for _, rec := range m.attendance {
		if rec.EmployeeID == employeeID && !rec.Day.Before(from) && !rec.Day.After(to) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) CreateLeaveRequest(_ context.Context, req *LeaveRequest) error {
	cp := *req
	m.leaves[req.ID] = &cp
	return nil
}

func (m *memStore) GetLeaveRequest(_ context.Context, id string) (*LeaveRequest, error) {
	req, ok := m.leaves[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memStore) ListLeaveRequests(_ context.Context, employeeID, status string) ([]LeaveRequest, error) {
	var out []LeaveRequest
	for _, req := range m.leaves {
		if employeeID != "" && req.EmployeeID != employeeID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (m *memStore) SetLeaveStatus(_ context.Context, id, status, decidedBy string) (*LeaveRequest, error) {
	req, ok := m.leaves[id]
	if !ok {
		return nil, ErrNotFound
	}
	req.Status = status
	req.DecidedBy = decidedBy
	cp := *req
	return &cp, nil
}

func entKey(employeeID, leaveType string, year int) string {
	return fmt.Sprintf("%s|%s|%d", employeeID, leaveType, year)
}

func (m *memStore) GetEntitlement(_ context.Context, employeeID, leaveType string, year int) (*LeaveEntitlement, error) {
	ent, ok := m.entitlements[entKey(employeeID, leaveType, year)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ent
	return &cp, nil
}

func (m *memStore) UpsertEntitlement(_ context.Context, ent *LeaveEntitlement) error {
	key := entKey(ent.EmployeeID, ent.LeaveType, ent.Year)
	if existing, ok := m.entitlements[key]; ok {
		existing.Allocated = ent.Allocated
		return nil
	}
	cp := *ent
	m.entitlements[key] = &cp
	return nil
}

func (m *memStore) AddEntitlementUsage(_ context.Context, employeeID, leaveType string, year, days int) error {
	ent, ok := m.entitlements[entKey(employeeID, leaveType, year)]
	if !ok {
		return ErrNotFound
	}
	ent.Used += days
	return nil
}

func (m *memStore) CreateHoliday(_ context.Context, h *PublicHoliday) error {
	for _, ex := range m.holidays {
		if ex.Date.Equal(h.Date) {
			return ErrConflict
		}
	}
	cp := *h
	m.holidays[h.ID] = &cp
	return nil
}

func (m *memStore) ListHolidays(_ context.Context, year int) ([]PublicHoliday, error) {
	var out []PublicHoliday
	for _, h := range m.holidays {
		if h.Date.Year() == year {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memStore) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := m.holidays[id]; !ok {
		return ErrNotFound
	}
	delete(m.holidays, id)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestService(t *testing.T, store *memStore, at time.Time) *Service {
	t.Helper()
	svc, err := NewService(store, WithClock(fixedClock(at)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedEmployee(t *testing.T, svc *Service, userID, name string) *Employee {
	t.Helper()
	e, err := svc.CreateEmployee(context.Background(), userID, name, "ops", "", "")
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}
	return e
}

func TestCheckInTwiceSameDayConflicts(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	store := newMemStore()
	svc := newTestService(t, store, day)
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")
	ctx := context.Background()

	rec, err := svc.CheckIn(ctx, emp.ID, nil, nil)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !rec.Day.Equal(DayOf(day)) {
		t.Fatalf("day = %v, want %v", rec.Day, DayOf(day))
	}
	if _, err := svc.CheckIn(ctx, emp.ID, nil, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("second check-in: err = %v, want ErrConflict", err)
	}
}

func TestCheckOutRequiresCheckIn(t *testing.T) {
	day := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	store := newMemStore()
	svc := newTestService(t, store, day)
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")
	ctx := context.Background()

	if _, err := svc.CheckOut(ctx, emp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("check-out without check-in: err = %v, want ErrNotFound", err)
	}

	if _, err := svc.CheckIn(ctx, emp.ID, nil, nil); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	rec, err := svc.CheckOut(ctx, emp.ID)
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if rec.CheckOut == nil || !rec.CheckOut.Equal(day) {
		t.Fatalf("check-out time = %v, want %v", rec.CheckOut, day)
	}
	if _, err := svc.CheckOut(ctx, emp.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("double check-out: err = %v, want ErrConflict", err)
	}
}

func TestCheckInGeolocationValidation(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")
	ctx := context.Background()

	lat := 91.0
	lon := 10.0
	if _, err := svc.CheckIn(ctx, emp.ID, &lat, &lon); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out-of-range latitude: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CheckIn(ctx, emp.ID, &lon, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("latitude without longitude: err = %v, want ErrInvalidInput", err)
	}

	lat = 51.5
	rec, err := svc.CheckIn(ctx, emp.ID, &lat, &lon)
	if err != nil {
		t.Fatalf("CheckIn with coordinates: %v", err)
	}
	if rec.Latitude == nil || *rec.Latitude != 51.5 {
		t.Fatalf("latitude not recorded: %+v", rec)
	}
}

func TestManagerCycleRejected(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()

	a := seedEmployee(t, svc, "usr-a", "A")
	b := seedEmployee(t, svc, "usr-b", "B")
	c := seedEmployee(t, svc, "usr-c", "C")

	// a ← b ← c chain.
	if _, err := svc.UpdateEmployee(ctx, b.ID, EmployeeUpdate{ManagerID: &a.ID}); err != nil {
		t.Fatalf("set b's manager: %v", err)
	}
	if _, err := svc.UpdateEmployee(ctx, c.ID, EmployeeUpdate{ManagerID: &b.ID}); err != nil {
		t.Fatalf("set c's manager: %v", err)
	}

	// Closing the loop must fail.
	if _, err := svc.UpdateEmployee(ctx, a.ID, EmployeeUpdate{ManagerID: &c.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cycle a→c: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.UpdateEmployee(ctx, a.ID, EmployeeUpdate{ManagerID: &a.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self-manager: err = %v, want ErrInvalidInput", err)
	}
}

func TestSubmitLeaveChargesEntitlementOnApproval(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 10); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}

	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)
	req, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, to, "trip", false)
	if err != nil {
		t.Fatalf("SubmitLeave: %v", err)
	}
	if req.Days != 3 || req.Status != LeavePending {
		t.Fatalf("unexpected request: %+v", req)
	}

	// Entitlement untouched while pending.
	ent, err := svc.GetEntitlement(ctx, emp.ID, "annual", 2026)
	if err != nil || ent.Used != 0 {
		t.Fatalf("pending must not charge: ent=%+v err=%v", ent, err)
	}

	approved, err := svc.ApproveLeave(ctx, req.ID, "usr-mgr")
	if err != nil {
		t.Fatalf("ApproveLeave: %v", err)
	}
	if approved.Status != LeaveApproved || approved.DecidedBy != "usr-mgr" {
		t.Fatalf("unexpected decision: %+v", approved)
	}
	ent, _ = svc.GetEntitlement(ctx, emp.ID, "annual", 2026)
	if ent.Used != 3 {
		t.Fatalf("used = %d, want 3", ent.Used)
	}

	// A decided request cannot be re-decided.
	if _, err := svc.ApproveLeave(ctx, req.ID, "usr-mgr"); !errors.Is(err, ErrConflict) {
		t.Fatalf("re-approve: err = %v, want ErrConflict", err)
	}
}

func TestSubmitLeaveExcludesHolidays(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 5); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}
	if _, err := svc.CreateHoliday(ctx, time.Date(2026, 4, 7, 0, 0, 0, 0, time.UTC), "Founders Day"); err != nil {
		t.Fatalf("CreateHoliday: %v", err)
	}

	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)
	req, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, to, "", false)
	if err != nil {
		t.Fatalf("SubmitLeave: %v", err)
	}
	if req.Days != 2 {
		t.Fatalf("days = %d, want 2 (holiday excluded)", req.Days)
	}
}

func TestSubmitLeaveInsufficientBalance(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 2); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}
	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	if _, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, to, "", false); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// No entitlement row at all reads as insufficient, not missing.
	if _, err := svc.SubmitLeave(ctx, emp.ID, "sick", from, from, "", false); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("missing entitlement: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestSubmitLeaveAutoApprove(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 5); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}
	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	req, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, from, "", true)
	if err != nil {
		t.Fatalf("SubmitLeave: %v", err)
	}
	if req.Status != LeaveApproved || req.DecidedBy != "system" {
		t.Fatalf("auto-approve: %+v", req)
	}
	ent, _ := svc.GetEntitlement(ctx, emp.ID, "annual", 2026)
	if ent.Used != 1 {
		t.Fatalf("used = %d, want 1", ent.Used)
	}
}

func TestCancelLeaveOwnershipEnforced(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")
	other := seedEmployee(t, svc, "usr-2", "Remy Oz")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 5); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}
	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	req, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, from, "", false)
	if err != nil {
		t.Fatalf("SubmitLeave: %v", err)
	}

	if _, err := svc.CancelLeave(ctx, req.ID, other.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("foreign cancel: err = %v, want ErrInvalidInput", err)
	}
	cancelled, err := svc.CancelLeave(ctx, req.ID, emp.ID)
	if err != nil {
		t.Fatalf("CancelLeave: %v", err)
	}
	if cancelled.Status != LeaveCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
}

func TestSetEntitlementPreservesUsage(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newMemStore()
	svc := newTestService(t, store, day)
	ctx := context.Background()
	emp := seedEmployee(t, svc, "usr-1", "Dana Ko")

	if _, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 5); err != nil {
		t.Fatalf("SetEntitlement: %v", err)
	}
	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	if _, err := svc.SubmitLeave(ctx, emp.ID, "annual", from, from, "", true); err != nil {
		t.Fatalf("SubmitLeave: %v", err)
	}

	ent, err := svc.SetEntitlement(ctx, emp.ID, "annual", 2026, 20)
	if err != nil {
		t.Fatalf("SetEntitlement raise: %v", err)
	}
	if ent.Allocated != 20 || ent.Used != 1 {
		t.Fatalf("raise must keep usage: %+v", ent)
	}
}

func TestHolidayLifecycle(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, newMemStore(), day)
	ctx := context.Background()

	h, err := svc.CreateHoliday(ctx, time.Date(2026, 12, 16, 10, 0, 0, 0, time.UTC), "Independence Day")
	if err != nil {
		t.Fatalf("CreateHoliday: %v", err)
	}
	if h.Date.Hour() != 0 {
		t.Fatalf("holiday date must be day-truncated: %v", h.Date)
	}
	if _, err := svc.CreateHoliday(ctx, h.Date, "Duplicate"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate date: err = %v, want ErrConflict", err)
	}

	list, err := svc.ListHolidays(ctx, 2026)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListHolidays: %v %v", list, err)
	}
	if err := svc.DeleteHoliday(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHoliday: %v", err)
	}
	list, _ = svc.ListHolidays(ctx, 2026)
	if len(list) != 0 {
		t.Fatalf("holiday not deleted")
	}
}

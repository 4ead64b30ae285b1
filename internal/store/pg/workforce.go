package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewgate.org/internal/workforce"
)

var _ workforce.Store = (*Store)(nil)

const employeeColumns = `id, user_id, full_name, department, phone, manager_id, created_at, updated_at`

func scanEmployee(row rowScanner, e *workforce.Employee) error {
	var dept, phone, mgr sql.NullString
	if err := row.Scan(&e.ID, &e.UserID, &e.FullName, &dept, &phone, &mgr, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	e.Department = dept.String
	e.Phone = phone.String
	e.ManagerID = mgr.String
	return nil
}

func (s *Store) CreateEmployee(ctx context.Context, e *workforce.Employee) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	err := scanEmployee(s.db.QueryRowContext(ctx, `
		insert into employees (id, user_id, full_name, department, phone, manager_id)
		values ($1, $2, $3, $4, $5, $6)
		returning `+employeeColumns+`
	`, e.ID, e.UserID, e.FullName, nullIfEmpty(e.Department), nullIfEmpty(e.Phone), nullIfEmpty(e.ManagerID)), e)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return workforce.ErrConflict
			case pgErrForeignKeyViolation:
				return workforce.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*workforce.Employee, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var e workforce.Employee
	err := scanEmployee(s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where id = $1`, id), &e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEmployeeByUser(ctx context.Context, userID string) (*workforce.Employee, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var e workforce.Employee
	err := scanEmployee(s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where user_id = $1`, userID), &e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, department string) ([]workforce.Employee, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+employeeColumns+` from employees
		where ($1 = '' or department = $1)
		order by full_name
	`, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workforce.Employee
	for rows.Next() {
		var e workforce.Employee
		if err := scanEmployee(rows, &e); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, id string, upd workforce.EmployeeUpdate) (*workforce.Employee, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.FullName != nil {
		setClauses = append(setClauses, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, *upd.FullName)
		idx++
	}
	if upd.Department != nil {
		setClauses = append(setClauses, fmt.Sprintf("department = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Department))
		idx++
	}
	if upd.Phone != nil {
		setClauses = append(setClauses, fmt.Sprintf("phone = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Phone))
		idx++
	}
	if upd.ManagerID != nil {
		setClauses = append(setClauses, fmt.Sprintf("manager_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.ManagerID))
		idx++
	}
	if len(setClauses) == 0 {
		return s.GetEmployee(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	var e workforce.Employee
	err := scanEmployee(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		update employees set %s where id = $%d
		returning %s
	`, strings.Join(setClauses, ", "), idx, employeeColumns), args...), &e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return nil, workforce.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

const attendanceColumns = `id, employee_id, day, check_in, check_out, latitude, longitude, created_at`

func scanAttendance(row rowScanner, rec *workforce.AttendanceRecord) error {
	var (
		out      sql.NullTime
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.Day, &rec.CheckIn, &out, &lat, &lon, &rec.CreatedAt); err != nil {
		return err
	}
	if out.Valid {
		rec.CheckOut = &out.Time
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lon.Valid {
		rec.Longitude = &lon.Float64
	}
	return nil
}

func (s *Store) CreateAttendance(ctx context.Context, rec *workforce.AttendanceRecord) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var lat, lon sql.NullFloat64
	if rec.Latitude != nil {
		lat = sql.NullFloat64{Float64: *rec.Latitude, Valid: true}
	}
	if rec.Longitude != nil {
		lon = sql.NullFloat64{Float64: *rec.Longitude, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into attendance_records (id, employee_id, day, check_in, latitude, longitude)
		values ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.EmployeeID, rec.Day, rec.CheckIn, lat, lon)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return workforce.ErrConflict
			case pgErrForeignKeyViolation:
				return workforce.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetAttendanceForDay(ctx context.Context, employeeID string, day time.Time) (*workforce.AttendanceRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var rec workforce.AttendanceRecord
	err := scanAttendance(s.db.QueryRowContext(ctx, `
		select `+attendanceColumns+` from attendance_records
		where employee_id = $1 and day = $2
	`, employeeID, day), &rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SetCheckOut(ctx context.Context, recordID string, at time.Time) (*workforce.AttendanceRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var rec workforce.AttendanceRecord
	err := scanAttendance(s.db.QueryRowContext(ctx, `
		update attendance_records set check_out = $2
		where id = $1 and check_out is null
		returning `+attendanceColumns+`
	`, recordID, at), &rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListAttendance(ctx context.Context, employeeID string, from, to time.Time) ([]workforce.AttendanceRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+attendanceColumns+` from attendance_records
		where employee_id = $1 and day between $2 and $3
		order by day desc
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workforce.AttendanceRecord
	for rows.Next() {
		var rec workforce.AttendanceRecord
		if err := scanAttendance(rows, &rec); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const leaveColumns = `id, employee_id, leave_type, from_date, to_date, days, reason, status, decided_by, created_at, updated_at`

func scanLeave(row rowScanner, req *workforce.LeaveRequest) error {
	var reason, decidedBy sql.NullString
	if err := row.Scan(&req.ID, &req.EmployeeID, &req.LeaveType, &req.FromDate, &req.ToDate,
		&req.Days, &reason, &req.Status, &decidedBy, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}
	req.Reason = reason.String
	req.DecidedBy = decidedBy.String
	return nil
}

func (s *Store) CreateLeaveRequest(ctx context.Context, req *workforce.LeaveRequest) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into leave_requests (id, employee_id, leave_type, from_date, to_date, days, reason, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.EmployeeID, req.LeaveType, req.FromDate, req.ToDate, req.Days, nullIfEmpty(req.Reason), req.Status)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return workforce.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetLeaveRequest(ctx context.Context, id string) (*workforce.LeaveRequest, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var req workforce.LeaveRequest
	err := scanLeave(s.db.QueryRowContext(ctx,
		`select `+leaveColumns+` from leave_requests where id = $1`, id), &req)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) ListLeaveRequests(ctx context.Context, employeeID, status string) ([]workforce.LeaveRequest, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+leaveColumns+` from leave_requests
		where ($1 = '' or employee_id = $1)
		  and ($2 = '' or status = $2)
		order by created_at desc
	`, employeeID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workforce.LeaveRequest
	for rows.Next() {
		var req workforce.LeaveRequest
		if err := scanLeave(rows, &req); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetLeaveStatus(ctx context.Context, id, status, decidedBy string) (*workforce.LeaveRequest, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var req workforce.LeaveRequest
	err := scanLeave(s.db.QueryRowContext(ctx, `
		update leave_requests set status = $2, decided_by = $3, updated_at = now()
		where id = $1
		returning `+leaveColumns+`
	`, id, status, nullIfEmpty(decidedBy)), &req)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) GetEntitlement(ctx context.Context, employeeID, leaveType string, year int) (*workforce.LeaveEntitlement, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var ent workforce.LeaveEntitlement
	err := s.db.QueryRowContext(ctx, `
		select id, employee_id, leave_type, year, allocated, used
		from leave_entitlements
		where employee_id = $1 and leave_type = $2 and year = $3
	`, employeeID, leaveType, year).
		Scan(&ent.ID, &ent.EmployeeID, &ent.LeaveType, &ent.Year, &ent.Allocated, &ent.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workforce.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (s *Store) UpsertEntitlement(ctx context.Context, ent *workforce.LeaveEntitlement) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into leave_entitlements (id, employee_id, leave_type, year, allocated, used)
		values ($1, $2, $3, $4, $5, 0)
		on conflict (employee_id, leave_type, year) do update set allocated = excluded.allocated
	`, ent.ID, ent.EmployeeID, ent.LeaveType, ent.Year, ent.Allocated)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return workforce.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) AddEntitlementUsage(ctx context.Context, employeeID, leaveType string, year, days int) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update leave_entitlements set used = used + $4
		where employee_id = $1 and leave_type = $2 and year = $3
	`, employeeID, leaveType, year, days)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workforce.ErrNotFound
	}
	return nil
}

func (s *Store) CreateHoliday(ctx context.Context, h *workforce.PublicHoliday) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into public_holidays (id, date, name) values ($1, $2, $3)
	`, h.ID, h.Date, h.Name)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return workforce.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context, year int) ([]workforce.PublicHoliday, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, date, name from public_holidays
		where extract(year from date) = $1
		order by date
	`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workforce.PublicHoliday
	for rows.Next() {
		var h workforce.PublicHoliday
		if err := rows.Scan(&h.ID, &h.Date, &h.Name); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from public_holidays where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workforce.ErrNotFound
	}
	return nil
}

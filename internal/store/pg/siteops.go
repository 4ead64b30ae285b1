package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crewgate.org/internal/siteops"
)

var _ siteops.Store = (*Store)(nil)

func translateSiteopsErr(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return siteops.ErrConflict
		case pgErrForeignKeyViolation:
			return siteops.ErrNotFound
		case pgErrCheckViolation:
			return siteops.ErrInvalidInput
		}
	}
	return err
}

func (s *Store) CreateProject(ctx context.Context, p *siteops.Project) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into projects (id, name, site_address, is_active)
		values ($1, $2, $3, $4)
	`, p.ID, p.Name, nullIfEmpty(p.SiteAddress), p.IsActive)
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

const projectColumns = `id, name, site_address, is_active, created_at, updated_at`

func scanProject(row rowScanner, p *siteops.Project) error {
	var addr sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &addr, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.SiteAddress = addr.String
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*siteops.Project, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var p siteops.Project
	err := scanProject(s.db.QueryRowContext(ctx,
		`select `+projectColumns+` from projects where id = $1`, id), &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, activeOnly bool) ([]siteops.Project, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+projectColumns+` from projects
		where (not $1 or is_active)
		order by name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.Project
	for rows.Next() {
		var p siteops.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetProjectActive(ctx context.Context, id string, active bool) (*siteops.Project, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var p siteops.Project
	err := scanProject(s.db.QueryRowContext(ctx, `
		update projects set is_active = $2, updated_at = now()
		where id = $1
		returning `+projectColumns+`
	`, id, active), &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateContractor(ctx context.Context, c *siteops.Contractor) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into contractors (id, name, contact) values ($1, $2, $3)
	`, c.ID, c.Name, nullIfEmpty(c.Contact))
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) GetContractor(ctx context.Context, id string) (*siteops.Contractor, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		c       siteops.Contractor
		contact sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, contact, created_at from contractors where id = $1
	`, id).Scan(&c.ID, &c.Name, &contact, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Contact = contact.String
	return &c, nil
}

func (s *Store) ListContractors(ctx context.Context) ([]siteops.Contractor, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return s.queryContractors(ctx, `select id, name, contact, created_at from contractors order by name`)
}

func (s *Store) LinkContractor(ctx context.Context, projectID, contractorID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into project_contractors (project_id, contractor_id) values ($1, $2)
	`, projectID, contractorID)
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) ListProjectContractors(ctx context.Context, projectID string) ([]siteops.Contractor, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return s.queryContractors(ctx, `
		select c.id, c.name, c.contact, c.created_at
		from project_contractors pc
		join contractors c on c.id = pc.contractor_id
		where pc.project_id = $1
		order by c.name
	`, projectID)
}

func (s *Store) queryContractors(ctx context.Context, query string, args ...any) ([]siteops.Contractor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.Contractor
	for rows.Next() {
		var (
			c       siteops.Contractor
			contact sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &contact, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Contact = contact.String
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const labourColumns = `id, contractor_id, name, barcode, photo_ref, is_active, created_at`

func scanLabour(row rowScanner, l *siteops.Labour) error {
	var photo sql.NullString
	if err := row.Scan(&l.ID, &l.ContractorID, &l.Name, &l.Barcode, &photo, &l.IsActive, &l.CreatedAt); err != nil {
		return err
	}
	l.PhotoRef = photo.String
	return nil
}

func (s *Store) CreateLabour(ctx context.Context, l *siteops.Labour) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into labours (id, contractor_id, name, barcode, photo_ref, is_active)
		values ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.ContractorID, l.Name, l.Barcode, nullIfEmpty(l.PhotoRef), l.IsActive)
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) GetLabour(ctx context.Context, id string) (*siteops.Labour, error) {
	return s.labourBy(ctx, "id", id)
}

func (s *Store) GetLabourByBarcode(ctx context.Context, barcode string) (*siteops.Labour, error) {
	return s.labourBy(ctx, "barcode", barcode)
}

func (s *Store) labourBy(ctx context.Context, column, value string) (*siteops.Labour, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var l siteops.Labour
	err := scanLabour(s.db.QueryRowContext(ctx,
		`select `+labourColumns+` from labours where `+column+` = $1`, value), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLabours(ctx context.Context, contractorID string) ([]siteops.Labour, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+labourColumns+` from labours
		where ($1 = '' or contractor_id = $1)
		order by name
	`, contractorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.Labour
	for rows.Next() {
		var l siteops.Labour
		if err := scanLabour(rows, &l); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetLabourActive(ctx context.Context, id string, active bool) (*siteops.Labour, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var l siteops.Labour
	err := scanLabour(s.db.QueryRowContext(ctx, `
		update labours set is_active = $2 where id = $1
		returning `+labourColumns+`
	`, id, active), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const visitorColumns = `id, name, phone, purpose, host_employee_id, badge_barcode, photo_ref, created_at`

func scanVisitor(row rowScanner, v *siteops.Visitor) error {
	var phone, purpose, badge, photo sql.NullString
	if err := row.Scan(&v.ID, &v.Name, &phone, &purpose, &v.HostEmployeeID, &badge, &photo, &v.CreatedAt); err != nil {
		return err
	}
	v.Phone = phone.String
	v.Purpose = purpose.String
	v.BadgeBarcode = badge.String
	v.PhotoRef = photo.String
	return nil
}

func (s *Store) CreateVisitor(ctx context.Context, v *siteops.Visitor) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into visitors (id, name, phone, purpose, host_employee_id, badge_barcode, photo_ref)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.Name, nullIfEmpty(v.Phone), nullIfEmpty(v.Purpose), v.HostEmployeeID,
		nullIfEmpty(v.BadgeBarcode), nullIfEmpty(v.PhotoRef))
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) GetVisitor(ctx context.Context, id string) (*siteops.Visitor, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var v siteops.Visitor
	err := scanVisitor(s.db.QueryRowContext(ctx,
		`select `+visitorColumns+` from visitors where id = $1`, id), &v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVisitors(ctx context.Context, hostEmployeeID string) ([]siteops.Visitor, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+visitorColumns+` from visitors
		where ($1 = '' or host_employee_id = $1)
		order by created_at desc
	`, hostEmployeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.Visitor
	for rows.Next() {
		var v siteops.Visitor
		if err := scanVisitor(rows, &v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const entryColumns = `id, project_id, labour_id, visitor_id, direction, occurred_at, recorded_by_user_id, synced_from_device, device_id, client_record_id, created_at`

func scanEntry(row rowScanner, rec *siteops.EntryExitRecord) error {
	var labour, visitor, device, clientRecord sql.NullString
	if err := row.Scan(&rec.ID, &rec.ProjectID, &labour, &visitor, &rec.Direction, &rec.OccurredAt,
		&rec.RecordedByUserID, &rec.SyncedFromDevice, &device, &clientRecord, &rec.CreatedAt); err != nil {
		return err
	}
	rec.LabourID = labour.String
	rec.VisitorID = visitor.String
	rec.DeviceID = device.String
	rec.ClientRecordID = clientRecord.String
	return nil
}

func (s *Store) CreateEntry(ctx context.Context, rec *siteops.EntryExitRecord) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into entry_exit_records
			(id, project_id, labour_id, visitor_id, direction, occurred_at,
			 recorded_by_user_id, synced_from_device, device_id, client_record_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.ProjectID, nullIfEmpty(rec.LabourID), nullIfEmpty(rec.VisitorID),
		rec.Direction, rec.OccurredAt, rec.RecordedByUserID, rec.SyncedFromDevice,
		nullIfEmpty(rec.DeviceID), nullIfEmpty(rec.ClientRecordID))
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) GetEntryByClientRecord(ctx context.Context, deviceID, clientRecordID string) (*siteops.EntryExitRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var rec siteops.EntryExitRecord
	err := scanEntry(s.db.QueryRowContext(ctx, `
		select `+entryColumns+` from entry_exit_records
		where device_id = $1 and client_record_id = $2
	`, deviceID, clientRecordID), &rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) LastEntryForPerson(ctx context.Context, projectID, labourID, visitorID string) (*siteops.EntryExitRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var rec siteops.EntryExitRecord
	err := scanEntry(s.db.QueryRowContext(ctx, `
		select `+entryColumns+` from entry_exit_records
		where project_id = $1
		  and ($2 = '' or labour_id = $2)
		  and ($3 = '' or visitor_id = $3)
		order by occurred_at desc
		limit 1
	`, projectID, labourID, visitorID), &rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListEntries(ctx context.Context, filter siteops.EntryFilter) ([]siteops.EntryExitRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s from entry_exit_records
		where ($1 = '' or project_id = $1)
		  and ($2 = '' or labour_id = $2)
		  and ($3 = '' or visitor_id = $3)
		  and ($4 = '' or direction = $4)
		  and ($5::timestamptz is null or occurred_at >= $5)
		  and ($6::timestamptz is null or occurred_at <= $6)
		order by occurred_at desc
		limit %d
	`, entryColumns, limit),
		filter.ProjectID, filter.LabourID, filter.VisitorID, filter.Direction,
		nullIfZero(filter.From), nullIfZero(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.EntryExitRecord
	for rows.Next() {
		var rec siteops.EntryExitRecord
		if err := scanEntry(rows, &rec); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const assignmentColumns = `id, guard_user_id, project_id, is_active, created_at`

func (s *Store) AssignGuard(ctx context.Context, a *siteops.GuardAssignment) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into guard_project_assignments (id, guard_user_id, project_id, is_active)
		values ($1, $2, $3, $4)
	`, a.ID, a.GuardUserID, a.ProjectID, a.IsActive)
	if err != nil {
		return translateSiteopsErr(err)
	}
	return nil
}

func (s *Store) GetGuardAssignment(ctx context.Context, guardUserID, projectID string) (*siteops.GuardAssignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var a siteops.GuardAssignment
	err := s.db.QueryRowContext(ctx, `
		select `+assignmentColumns+` from guard_project_assignments
		where guard_user_id = $1 and project_id = $2
	`, guardUserID, projectID).
		Scan(&a.ID, &a.GuardUserID, &a.ProjectID, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListGuardAssignments(ctx context.Context, projectID string) ([]siteops.GuardAssignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+assignmentColumns+` from guard_project_assignments
		where ($1 = '' or project_id = $1)
		order by created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []siteops.GuardAssignment
	for rows.Next() {
		var a siteops.GuardAssignment
		if err := rows.Scan(&a.ID, &a.GuardUserID, &a.ProjectID, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetGuardAssignmentActive(ctx context.Context, id string, active bool) (*siteops.GuardAssignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var a siteops.GuardAssignment
	err := s.db.QueryRowContext(ctx, `
		update guard_project_assignments set is_active = $2
		where id = $1
		returning `+assignmentColumns+`
	`, id, active).Scan(&a.ID, &a.GuardUserID, &a.ProjectID, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, siteops.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Package siteops covers projects, contractors, labour, visitors, guard
// assignments and the gate entry/exit log.
package siteops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewgate.org/internal/ids"
)

// Service enforces siteops business rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the siteops service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("siteops store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateProject registers a site.
func (s *Service) CreateProject(ctx context.Context, name, siteAddress string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &Project{
		ID:          ids.NewPrefixed("prj"),
		Name:        name,
		SiteAddress: strings.TrimSpace(siteAddress),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject fetches one project.
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	return s.store.GetProject(ctx, id)
}

// ListProjects lists projects, optionally active ones only.
func (s *Service) ListProjects(ctx context.Context, activeOnly bool) ([]Project, error) {
	return s.store.ListProjects(ctx, activeOnly)
}

// SetProjectActive enables or disables a project.
func (s *Service) SetProjectActive(ctx context.Context, id string, active bool) (*Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	return s.store.SetProjectActive(ctx, id, active)
}

// CreateContractor registers a contractor company.
func (s *Service) CreateContractor(ctx context.Context, name, contact string) (*Contractor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: contractor name is required", ErrInvalidInput)
	}
	c := &Contractor{
		ID:        ids.NewPrefixed("ctr"),
		Name:      name,
		Contact:   strings.TrimSpace(contact),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateContractor(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListContractors lists every contractor.
func (s *Service) ListContractors(ctx context.Context) ([]Contractor, error) {
	return s.store.ListContractors(ctx)
}

// LinkContractor attaches a contractor to a project. Linking twice is a
// conflict.
func (s *Service) LinkContractor(ctx context.Context, projectID, contractorID string) error {
	projectID = strings.TrimSpace(projectID)
	contractorID = strings.TrimSpace(contractorID)
	if projectID == "" || contractorID == "" {
		return fmt.Errorf("%w: project id and contractor id are required", ErrInvalidInput)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	if _, err := s.store.GetContractor(ctx, contractorID); err != nil {
		return err
	}
	return s.store.LinkContractor(ctx, projectID, contractorID)
}

// ListProjectContractors lists the contractors linked to a project.
func (s *Service) ListProjectContractors(ctx context.Context, projectID string) ([]Contractor, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	return s.store.ListProjectContractors(ctx, projectID)
}

// CreateLabour registers a contractor worker. The barcode is the gate
// identifier and must be unique.
func (s *Service) CreateLabour(ctx context.Context, contractorID, name, barcode, photoRef string) (*Labour, error) {
	contractorID = strings.TrimSpace(contractorID)
	name = strings.TrimSpace(name)
	barcode = strings.TrimSpace(barcode)
	if contractorID == "" || name == "" || barcode == "" {
		return nil, fmt.Errorf("%w: contractor id, name and barcode are required", ErrInvalidInput)
	}
	if _, err := s.store.GetContractor(ctx, contractorID); err != nil {
		return nil, err
	}
	l := &Labour{
		ID:           ids.NewPrefixed("lab"),
		ContractorID: contractorID,
		Name:         name,
		Barcode:      barcode,
		PhotoRef:     strings.TrimSpace(photoRef),
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateLabour(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetLabourByBarcode resolves a gate scan to a labour record.
func (s *Service) GetLabourByBarcode(ctx context.Context, barcode string) (*Labour, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("%w: barcode is required", ErrInvalidInput)
	}
	return s.store.GetLabourByBarcode(ctx, barcode)
}

// ListLabours lists labour, optionally for one contractor.
func (s *Service) ListLabours(ctx context.Context, contractorID string) ([]Labour, error) {
	return s.store.ListLabours(ctx, strings.TrimSpace(contractorID))
}

// SetLabourActive enables or disables a labour record.
func (s *Service) SetLabourActive(ctx context.Context, id string, active bool) (*Labour, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: labour id is required", ErrInvalidInput)
	}
	return s.store.SetLabourActive(ctx, id, active)
}

// CreateVisitor registers a guest. Photo capture is gated by a feature flag
// at the HTTP layer; an empty photoRef is always acceptable here.
func (s *Service) CreateVisitor(ctx context.Context, name, phone, purpose, hostEmployeeID, badgeBarcode, photoRef string) (*Visitor, error) {
	name = strings.TrimSpace(name)
	hostEmployeeID = strings.TrimSpace(hostEmployeeID)
	if name == "" || hostEmployeeID == "" {
		return nil, fmt.Errorf("%w: visitor name and host employee are required", ErrInvalidInput)
	}
	v := &Visitor{
		ID:             ids.NewPrefixed("vis"),
		Name:           name,
		Phone:          strings.TrimSpace(phone),
		Purpose:        strings.TrimSpace(purpose),
		HostEmployeeID: hostEmployeeID,
		BadgeBarcode:   strings.TrimSpace(badgeBarcode),
		PhotoRef:       strings.TrimSpace(photoRef),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVisitor fetches one visitor.
func (s *Service) GetVisitor(ctx context.Context, id string) (*Visitor, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: visitor id is required", ErrInvalidInput)
	}
	return s.store.GetVisitor(ctx, id)
}

// ListVisitors lists visitors, optionally for one host employee.
func (s *Service) ListVisitors(ctx context.Context, hostEmployeeID string) ([]Visitor, error) {
	return s.store.ListVisitors(ctx, strings.TrimSpace(hostEmployeeID))
}

// AssignGuard grants a guard the right to record entries on a project.
func (s *Service) AssignGuard(ctx context.Context, guardUserID, projectID string) (*GuardAssignment, error) {
	guardUserID = strings.TrimSpace(guardUserID)
	projectID = strings.TrimSpace(projectID)
	if guardUserID == "" || projectID == "" {
		return nil, fmt.Errorf("%w: guard user id and project id are required", ErrInvalidInput)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	a := &GuardAssignment{
		ID:          ids.NewPrefixed("gpa"),
		GuardUserID: guardUserID,
		ProjectID:   projectID,
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AssignGuard(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RevokeGuardAssignment deactivates an assignment.
func (s *Service) RevokeGuardAssignment(ctx context.Context, id string) (*GuardAssignment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	return s.store.SetGuardAssignmentActive(ctx, id, false)
}

// ListGuardAssignments lists assignments, optionally for one project.
func (s *Service) ListGuardAssignments(ctx context.Context, projectID string) ([]GuardAssignment, error) {
	return s.store.ListGuardAssignments(ctx, strings.TrimSpace(projectID))
}

// EntryInput is one gate movement to record.
type EntryInput struct {
	ProjectID        string
	LabourID         string
	VisitorID        string
	Direction        string
	OccurredAt       time.Time
	RecordedByUserID string
	SyncedFromDevice bool
	DeviceID         string
	ClientRecordID   string
}

// RecordEntry writes one gate movement. The recording guard must hold an
// active assignment for the project, exactly one of labour/visitor is set,
// and an "out" needs a prior unmatched "in". Replays of the same
// (device, client record id) return the already-stored record.
func (s *Service) RecordEntry(ctx context.Context, in EntryInput) (*EntryExitRecord, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.LabourID = strings.TrimSpace(in.LabourID)
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.RecordedByUserID = strings.TrimSpace(in.RecordedByUserID)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	in.ClientRecordID = strings.TrimSpace(in.ClientRecordID)

	if in.ProjectID == "" || in.RecordedByUserID == "" {
		return nil, fmt.Errorf("%w: project id and recording guard are required", ErrInvalidInput)
	}
	if (in.LabourID == "") == (in.VisitorID == "") {
		return nil, fmt.Errorf("%w: exactly one of labour id or visitor id must be set", ErrInvalidInput)
	}
	if in.Direction != DirectionIn && in.Direction != DirectionOut {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidInput, DirectionIn, DirectionOut)
	}
	if (in.ClientRecordID == "") != (in.DeviceID == "") {
		return nil, fmt.Errorf("%w: device id and client record id must be provided together", ErrInvalidInput)
	}

	// Offline replay: the first sync won; hand the stored record back.
	if in.ClientRecordID != "" {
		existing, err := s.store.GetEntryByClientRecord(ctx, in.DeviceID, in.ClientRecordID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	assignment, err := s.store.GetGuardAssignment(ctx, in.RecordedByUserID, in.ProjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAssigned
		}
		return nil, err
	}
	if !assignment.IsActive {
		return nil, ErrNotAssigned
	}

	if in.LabourID != "" {
		labour, err := s.store.GetLabour(ctx, in.LabourID)
		if err != nil {
			return nil, err
		}
		if !labour.IsActive {
			return nil, fmt.Errorf("%w: labour %s is inactive", ErrInvalidInput, in.LabourID)
		}
	} else {
		if _, err := s.store.GetVisitor(ctx, in.VisitorID); err != nil {
			return nil, err
		}
	}

	last, err := s.store.LastEntryForPerson(ctx, in.ProjectID, in.LabourID, in.VisitorID)
	switch {
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	case in.Direction == DirectionOut && (last == nil || last.Direction != DirectionIn):
		return nil, fmt.Errorf("%w: no unmatched entry to exit from", ErrConflict)
	case in.Direction == DirectionIn && last != nil && last.Direction == DirectionIn:
		return nil, fmt.Errorf("%w: person is already on site", ErrConflict)
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	rec := &EntryExitRecord{
		ID:               ids.NewPrefixed("eer"),
		ProjectID:        in.ProjectID,
		LabourID:         in.LabourID,
		VisitorID:        in.VisitorID,
		Direction:        in.Direction,
		OccurredAt:       occurred.UTC(),
		RecordedByUserID: in.RecordedByUserID,
		SyncedFromDevice: in.SyncedFromDevice,
		DeviceID:         in.DeviceID,
		ClientRecordID:   in.ClientRecordID,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateEntry(ctx, rec); err != nil {
		// Two replays racing past the lookup collide on the unique index;
		// the loser reads the winner's row.
		if errors.Is(err, ErrConflict) && rec.ClientRecordID != "" {
			return s.store.GetEntryByClientRecord(ctx, rec.DeviceID, rec.ClientRecordID)
		}
		return nil, err
	}
	return rec, nil
}

// ListEntries returns gate movements matching the filter, newest first.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]EntryExitRecord, error) {
	if filter.Direction != "" && filter.Direction != DirectionIn && filter.Direction != DirectionOut {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, filter.Direction)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.store.ListEntries(ctx, filter)
}

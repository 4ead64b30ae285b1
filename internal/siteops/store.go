package siteops

import (
	"context"
	"time"
)

// EntryFilter narrows entry listings. Zero values match everything.
type EntryFilter struct {
	ProjectID string
	LabourID  string
	VisitorID string
	Direction string
	From      time.Time
	To        time.Time
	Limit     int
}

// Store describes siteops persistence. Implementations translate driver
// errors into the package sentinels.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, activeOnly bool) ([]Project, error)
	SetProjectActive(ctx context.Context, id string, active bool) (*Project, error)

	CreateContractor(ctx context.Context, c *Contractor) error
	GetContractor(ctx context.Context, id string) (*Contractor, error)
	ListContractors(ctx context.Context) ([]Contractor, error)
	LinkContractor(ctx context.Context, projectID, contractorID string) error
	ListProjectContractors(ctx context.Context, projectID string) ([]Contractor, error)

	CreateLabour(ctx context.Context, l *Labour) error
	GetLabour(ctx context.Context, id string) (*Labour, error)
	GetLabourByBarcode(ctx context.Context, barcode string) (*Labour, error)
	ListLabours(ctx context.Context, contractorID string) ([]Labour, error)
	SetLabourActive(ctx context.Context, id string, active bool) (*Labour, error)

	CreateVisitor(ctx context.Context, v *Visitor) error
	GetVisitor(ctx context.Context, id string) (*Visitor, error)
	ListVisitors(ctx context.Context, hostEmployeeID string) ([]Visitor, error)

	CreateEntry(ctx context.Context, rec *EntryExitRecord) error
	GetEntryByClientRecord(ctx context.Context, deviceID, clientRecordID string) (*EntryExitRecord, error)
	LastEntryForPerson(ctx context.Context, projectID, labourID, visitorID string) (*EntryExitRecord, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]EntryExitRecord, error)

	AssignGuard(ctx context.Context, a *GuardAssignment) error
	GetGuardAssignment(ctx context.Context, guardUserID, projectID string) (*GuardAssignment, error)
	ListGuardAssignments(ctx context.Context, projectID string) ([]GuardAssignment, error)
	SetGuardAssignmentActive(ctx context.Context, id string, active bool) (*GuardAssignment, error)
}

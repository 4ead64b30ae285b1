package siteops

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("siteops: not found")
	ErrConflict     = errors.New("siteops: resource conflict")
	ErrInvalidInput = errors.New("siteops: invalid input")
	ErrNotAssigned  = errors.New("siteops: guard not assigned to project")
)

// Entry directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Project is a physical site where entries are recorded.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SiteAddress string    `json:"site_address,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Contractor supplies labour to one or more projects.
type Contractor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Labour is a contractor worker identified at the gate by barcode.
type Labour struct {
	ID           string    `json:"id"`
	ContractorID string    `json:"contractor_id"`
	Name         string    `json:"name"`
	Barcode      string    `json:"barcode"`
	PhotoRef     string    `json:"photo_ref,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Visitor is a one-off guest hosted by an employee.
type Visitor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	Purpose        string    `json:"purpose,omitempty"`
	HostEmployeeID string    `json:"host_employee_id"`
	BadgeBarcode   string    `json:"badge_barcode,omitempty"`
	PhotoRef       string    `json:"photo_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntryExitRecord is one gate movement. Exactly one of LabourID/VisitorID is
// set. ClientRecordID is the mobile device's local id; replaying it returns
// the record created by the first attempt.
type EntryExitRecord struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	LabourID         string    `json:"labour_id,omitempty"`
	VisitorID        string    `json:"visitor_id,omitempty"`
	Direction        string    `json:"direction"`
	OccurredAt       time.Time `json:"occurred_at"`
	RecordedByUserID string    `json:"recorded_by_user_id"`
	SyncedFromDevice bool      `json:"synced_from_device,omitempty"`
	DeviceID         string    `json:"device_id,omitempty"`
	ClientRecordID   string    `json:"client_record_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// GuardAssignment grants a guard user the right to record entries on a
// project. Unique per (guard, project).
type GuardAssignment struct {
	ID          string    `json:"id"`
	GuardUserID string    `json:"guard_user_id"`
	ProjectID   string    `json:"project_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

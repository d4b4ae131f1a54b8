/*
Package property holds the records the ledger is about: buildings, units,
tenants, leases, maintenance requests and the activity log.

PURPOSE:
  Plain data plus the status rules that belong to each record. Nothing in
  this package writes to storage on its own; occupancy/ coordinates writes
  that must happen together.

KEY CONCEPTS:
  - Unit.Status: VACANT / OCCUPIED derived from tenants, MAINTENANCE manual
  - Tenant.MoveOutDate: nil while active, set once on move-out
  - Lease.Status: DRAFT -> ACTIVE -> EXPIRED | TERMINATED
  - MaintenanceRequest.Status: PENDING -> IN_PROGRESS -> COMPLETED | CANCELLED

SEE ALSO:
  - lease.go, maintenance.go: transition rules
  - store.go: persistence interface
  - occupancy/: unit status recomputation and move-out
*/
package property

import (
	"strings"
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BuildingID string
type UnitID string
type LeaseID string
type MaintenanceID string

// =============================================================================
// BUILDING & UNIT
// =============================================================================

type Building struct {
	ID          BuildingID
	Name        string
	Address     string
	TotalUnits  int
	Description string
	CreatedAt   time.Time
}

type UnitStatus string

const (
	UnitVacant      UnitStatus = "VACANT"
	UnitOccupied    UnitStatus = "OCCUPIED"
	UnitMaintenance UnitStatus = "MAINTENANCE"
)

func (s UnitStatus) Valid() bool {
	return s == UnitVacant || s == UnitOccupied || s == UnitMaintenance
}

type Unit struct {
	ID          UnitID
	BuildingID  BuildingID
	Number      string
	MonthlyRent ledger.Money
	Bedrooms    int
	Bathrooms   int
	SquareFeet  int
	Status      UnitStatus
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// TENANT
// =============================================================================

type Tenant struct {
	ID                    ledger.TenantID
	UnitID                UnitID
	FirstName             string
	LastName              string
	Email                 string
	Phone                 string
	IDNumber              string
	EmergencyContactName  string
	EmergencyContactPhone string
	MoveInDate            time.Time
	MoveOutDate           *time.Time // nil while the tenant lives in the unit
	Deposit               ledger.Money
	Notes                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsActive reports whether the tenant still occupies the unit.
func (t Tenant) IsActive() bool { return t.MoveOutDate == nil }

func (t Tenant) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// =============================================================================
// ACTIVITY LOG
// =============================================================================

type AuditAction string

const (
	AuditCreate  AuditAction = "CREATE"
	AuditUpdate  AuditAction = "UPDATE"
	AuditCharge  AuditAction = "CHARGE"
	AuditPayment AuditAction = "PAYMENT"
	AuditMoveOut AuditAction = "MOVE_OUT"
	AuditExpire  AuditAction = "EXPIRE"
)

// AuditEntry records who did what. Append-only, like the ledger.
type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	Actor       string
	Action      AuditAction
	Model       string // "tenant", "lease", "payment", ...
	ObjectID    string
	Description string
}

type AuditFilter struct {
	Model    string
	ObjectID string
	Action   AuditAction
	Limit    int
}

// =============================================================================
// FILTERS
// =============================================================================

type UnitFilter struct {
	BuildingID BuildingID
	Status     UnitStatus
}

type TenantFilter struct {
	UnitID     UnitID
	ActiveOnly bool
}

type LeaseFilter struct {
	TenantID ledger.TenantID
	UnitID   UnitID
	Status   LeaseStatus
}

type MaintenanceFilter struct {
	TenantID ledger.TenantID
	UnitID   UnitID
	Status   MaintenanceStatus
}

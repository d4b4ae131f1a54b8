package property

import (
	"context"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// STORE - Persistence for property records
// =============================================================================

// Store persists property records. Save methods upsert by ID. Get methods
// return the matching ErrXxxNotFound sentinel for unknown IDs. The activity
// log is append-only.
type Store interface {
	SaveBuilding(ctx context.Context, b Building) error
	GetBuilding(ctx context.Context, id BuildingID) (Building, error)
	ListBuildings(ctx context.Context) ([]Building, error)

	SaveUnit(ctx context.Context, u Unit) error
	GetUnit(ctx context.Context, id UnitID) (Unit, error)
	ListUnits(ctx context.Context, filter UnitFilter) ([]Unit, error)

	SaveTenant(ctx context.Context, t Tenant) error
	GetTenant(ctx context.Context, id ledger.TenantID) (Tenant, error)
	ListTenants(ctx context.Context, filter TenantFilter) ([]Tenant, error)

	SaveLease(ctx context.Context, l Lease) error
	GetLease(ctx context.Context, id LeaseID) (Lease, error)
	ListLeases(ctx context.Context, filter LeaseFilter) ([]Lease, error)

	SaveMaintenance(ctx context.Context, m MaintenanceRequest) error
	GetMaintenance(ctx context.Context, id MaintenanceID) (MaintenanceRequest, error)
	ListMaintenance(ctx context.Context, filter MaintenanceFilter) ([]MaintenanceRequest, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support. A tenant write and the
// unit status it implies go through one WithTx call.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

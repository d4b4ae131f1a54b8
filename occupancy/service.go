/*
service.go - Tenant writes and the unit status they imply

PURPOSE:
  Every tenant write goes through Service so that the unit status derived
  from it is recomputed in the same transaction. Readers never observe a
  moved-out tenant whose unit still reads OCCUPIED.

STATE MACHINE (per unit):
  VACANT <-> OCCUPIED     derived: OCCUPIED iff the unit has an active tenant
  MAINTENANCE             manual; tenant writes never overwrite it

MOVE-OUT:
  1. Reject with *property.AlreadyMovedOutError if the date is already set
  2. Set the move-out date (once, never cleared)
  3. Terminate the tenant's ACTIVE leases, end date = move-out date
  4. Append an activity-log entry
  5. Recompute the unit status
  All five steps share one WithTx call.

SEE ALSO:
  - property/store.go: TxStore
  - property/lease.go, property/maintenance.go: transition rules
*/
package occupancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
	"go.uber.org/zap"
)

// Service coordinates tenant, lease, unit and maintenance writes.
type Service struct {
	store property.TxStore
	now   func() time.Time
	newID func() string
	log   *zap.Logger
	actor string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithActor sets the name recorded in the activity log.
func WithActor(actor string) Option {
	return func(s *Service) { s.actor = actor }
}

func NewService(store property.TxStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		log:   zap.NewNop(),
		actor: "system",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read-side callers.
func (s *Service) Store() property.TxStore { return s.store }

// =============================================================================
// UNIT STATUS
// =============================================================================

// RecomputeUnitStatus derives a unit's status from its active tenants and
// saves it if it changed. Call it inside the transaction that wrote the
// tenant. A unit under MAINTENANCE is left alone.
func RecomputeUnitStatus(ctx context.Context, tx property.Store, unitID property.UnitID) (property.UnitStatus, error) {
	unit, err := tx.GetUnit(ctx, unitID)
	if err != nil {
		return "", err
	}
	if unit.Status == property.UnitMaintenance {
		return unit.Status, nil
	}

	active, err := tx.ListTenants(ctx, property.TenantFilter{UnitID: unitID, ActiveOnly: true})
	if err != nil {
		return "", fmt.Errorf("list active tenants of unit %s: %w", unitID, err)
	}

	want := property.UnitVacant
	if len(active) > 0 {
		want = property.UnitOccupied
	}
	if unit.Status == want {
		return want, nil
	}

	unit.Status = want
	if err := tx.SaveUnit(ctx, unit); err != nil {
		return "", err
	}
	return want, nil
}

// SetUnitMaintenance puts a unit into or takes it out of MAINTENANCE.
// Leaving maintenance derives the status from the unit's tenants again.
func (s *Service) SetUnitMaintenance(ctx context.Context, unitID property.UnitID, on bool) (property.Unit, error) {
	var unit property.Unit
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		u, err := tx.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}

		if on {
			u.Status = property.UnitMaintenance
		} else if u.Status == property.UnitMaintenance {
			u.Status = property.UnitVacant
		}
		if err := tx.SaveUnit(ctx, u); err != nil {
			return err
		}
		if !on {
			if _, err := RecomputeUnitStatus(ctx, tx, unitID); err != nil {
				return err
			}
		}

		unit, err = tx.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditUpdate, "unit", string(unitID),
			fmt.Sprintf("Unit %s status set to %s", u.Number, unit.Status))
	})
	return unit, err
}

// =============================================================================
// TENANT WRITES
// =============================================================================

// SaveTenant creates or updates a tenant and recomputes the status of the
// tenant's unit (and of the previous unit when the tenant changed units).
// Once a tenant has moved out only the contact details can change.
func (s *Service) SaveTenant(ctx context.Context, t property.Tenant) (property.Tenant, error) {
	return s.UpdateTenant(ctx, t, nil)
}

// UpdateTenant saves t and, when moveOut is set, moves the tenant out in the
// same transaction. Nothing is written unless both steps succeed.
func (s *Service) UpdateTenant(ctx context.Context, t property.Tenant, moveOut *time.Time) (property.Tenant, error) {
	if err := validateTenant(t); err != nil {
		return property.Tenant{}, err
	}
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = ledger.TenantID(s.newID())
	}
	t.MoveInDate = ledger.DateOf(t.MoveInDate)
	t.UpdatedAt = now

	var terminated int
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		var err error
		if t, err = s.saveTenant(ctx, tx, t, now); err != nil {
			return err
		}
		if moveOut == nil {
			return nil
		}
		t, terminated, err = s.moveOut(ctx, tx, t.ID, ledger.DateOf(*moveOut), now)
		return err
	})
	if err != nil {
		return property.Tenant{}, err
	}
	if moveOut != nil {
		s.logMoveOut(t, terminated)
	}
	return t, nil
}

func (s *Service) saveTenant(ctx context.Context, tx property.Store, t property.Tenant, now time.Time) (property.Tenant, error) {
	if _, err := tx.GetUnit(ctx, t.UnitID); err != nil {
		return property.Tenant{}, err
	}

	prev, err := tx.GetTenant(ctx, t.ID)
	exists := err == nil
	if err != nil && !property.IsNotFound(err) {
		return property.Tenant{}, err
	}

	action := property.AuditCreate
	if exists {
		action = property.AuditUpdate
		t.CreatedAt = prev.CreatedAt
		if err := checkMovedOutUnchanged(prev, t); err != nil {
			return property.Tenant{}, err
		}
	} else {
		t.CreatedAt = now
	}

	if err := tx.SaveTenant(ctx, t); err != nil {
		return property.Tenant{}, err
	}
	if _, err := RecomputeUnitStatus(ctx, tx, t.UnitID); err != nil {
		return property.Tenant{}, err
	}
	if exists && prev.UnitID != t.UnitID {
		if _, err := RecomputeUnitStatus(ctx, tx, prev.UnitID); err != nil {
			return property.Tenant{}, err
		}
	}
	return t, s.audit(ctx, tx, action, "tenant", string(t.ID), "Tenant "+t.FullName()+" saved")
}

func validateTenant(t property.Tenant) error {
	switch {
	case t.UnitID == "":
		return fmt.Errorf("%w: tenant unit is required", property.ErrInvalidRecord)
	case t.FirstName == "" && t.LastName == "":
		return fmt.Errorf("%w: tenant name is required", property.ErrInvalidRecord)
	case t.MoveInDate.IsZero():
		return fmt.Errorf("%w: move-in date is required", property.ErrInvalidRecord)
	case t.MoveOutDate != nil && t.MoveOutDate.Before(ledger.DateOf(t.MoveInDate)):
		return fmt.Errorf("%w: move-out date precedes move-in date", property.ErrInvalidRecord)
	}
	return nil
}

// checkMovedOutUnchanged rejects any change to the occupancy of a tenant who
// has moved out: the unit, the move-in date and the move-out date are fixed.
func checkMovedOutUnchanged(prev, next property.Tenant) error {
	if prev.MoveOutDate == nil {
		return nil
	}
	switch {
	case next.MoveOutDate == nil,
		!ledger.DateOf(*next.MoveOutDate).Equal(ledger.DateOf(*prev.MoveOutDate)),
		next.UnitID != prev.UnitID,
		!ledger.DateOf(next.MoveInDate).Equal(ledger.DateOf(prev.MoveInDate)):
		return &property.AlreadyMovedOutError{TenantID: prev.ID, MoveOutDate: *prev.MoveOutDate}
	}
	return nil
}

// LeaseTerms describes the lease created alongside a move-in.
type LeaseTerms struct {
	StartDate       time.Time
	EndDate         time.Time
	MonthlyRent     ledger.Money // zero means the unit's rent
	SecurityDeposit ledger.Money
	Terms           string
}

type MoveInRequest struct {
	Tenant property.Tenant
	Lease  *LeaseTerms
}

// MoveIn creates a tenant and, when terms are given, an ACTIVE lease.
func (s *Service) MoveIn(ctx context.Context, req MoveInRequest) (property.Tenant, *property.Lease, error) {
	t := req.Tenant
	t.MoveOutDate = nil
	if err := validateTenant(t); err != nil {
		return property.Tenant{}, nil, err
	}
	if req.Lease != nil && !req.Lease.EndDate.After(req.Lease.StartDate) {
		return property.Tenant{}, nil, fmt.Errorf("%w: lease must end after it starts", property.ErrInvalidRecord)
	}

	now := s.now().UTC()
	if t.ID == "" {
		t.ID = ledger.TenantID(s.newID())
	}
	t.MoveInDate = ledger.DateOf(t.MoveInDate)
	t.CreatedAt, t.UpdatedAt = now, now

	var lease *property.Lease
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		unit, err := tx.GetUnit(ctx, t.UnitID)
		if err != nil {
			return err
		}
		if _, err := tx.GetTenant(ctx, t.ID); err == nil {
			return fmt.Errorf("%w: tenant %s already exists", property.ErrInvalidRecord, t.ID)
		}
		if t.Deposit.Currency == "" {
			t.Deposit = ledger.Zero(unit.MonthlyRent.Currency)
		}
		if err := tx.SaveTenant(ctx, t); err != nil {
			return err
		}

		if req.Lease != nil {
			l := s.newLease(t, unit, *req.Lease, now)
			if err := tx.SaveLease(ctx, l); err != nil {
				return err
			}
			lease = &l
		}

		if _, err := RecomputeUnitStatus(ctx, tx, t.UnitID); err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditCreate, "tenant", string(t.ID),
			fmt.Sprintf("%s moved into %s", t.FullName(), unit.Number))
	})
	if err != nil {
		return property.Tenant{}, nil, err
	}

	s.log.Info("tenant moved in",
		zap.String("tenant_id", string(t.ID)),
		zap.String("unit_id", string(t.UnitID)),
		zap.Bool("lease", lease != nil),
	)
	return t, lease, nil
}

// MoveOut records the tenant's departure. A second call fails with
// *property.AlreadyMovedOutError and changes nothing.
func (s *Service) MoveOut(ctx context.Context, tenantID ledger.TenantID, on time.Time) (property.Tenant, error) {
	if on.IsZero() {
		on = s.now()
	}

	var (
		tenant     property.Tenant
		terminated int
	)
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		var err error
		tenant, terminated, err = s.moveOut(ctx, tx, tenantID, ledger.DateOf(on), s.now().UTC())
		return err
	})
	if err != nil {
		return property.Tenant{}, err
	}
	s.logMoveOut(tenant, terminated)
	return tenant, nil
}

func (s *Service) moveOut(ctx context.Context, tx property.Store, tenantID ledger.TenantID, date, now time.Time) (property.Tenant, int, error) {
	t, err := tx.GetTenant(ctx, tenantID)
	if err != nil {
		return property.Tenant{}, 0, err
	}
	if t.MoveOutDate != nil {
		return property.Tenant{}, 0, &property.AlreadyMovedOutError{TenantID: t.ID, MoveOutDate: *t.MoveOutDate}
	}
	if date.Before(ledger.DateOf(t.MoveInDate)) {
		return property.Tenant{}, 0, fmt.Errorf("%w: move-out date precedes move-in date", property.ErrInvalidRecord)
	}

	t.MoveOutDate = &date
	t.UpdatedAt = now
	if err := tx.SaveTenant(ctx, t); err != nil {
		return property.Tenant{}, 0, err
	}

	leases, err := tx.ListLeases(ctx, property.LeaseFilter{TenantID: t.ID, Status: property.LeaseActive})
	if err != nil {
		return property.Tenant{}, 0, err
	}
	terminated := 0
	for _, l := range leases {
		if err := l.Terminate(date); err != nil {
			return property.Tenant{}, 0, err
		}
		l.UpdatedAt = now
		if err := tx.SaveLease(ctx, l); err != nil {
			return property.Tenant{}, 0, err
		}
		terminated++
	}

	unitLabel := string(t.UnitID)
	if unit, err := tx.GetUnit(ctx, t.UnitID); err == nil {
		unitLabel = unit.Number
	}
	if err := s.audit(ctx, tx, property.AuditMoveOut, "tenant", string(t.ID),
		fmt.Sprintf("%s moved out from %s", t.FullName(), unitLabel)); err != nil {
		return property.Tenant{}, 0, err
	}

	if _, err := RecomputeUnitStatus(ctx, tx, t.UnitID); err != nil {
		return property.Tenant{}, 0, err
	}
	return t, terminated, nil
}

func (s *Service) logMoveOut(t property.Tenant, terminated int) {
	s.log.Info("tenant moved out",
		zap.String("tenant_id", string(t.ID)),
		zap.Time("move_out_date", *t.MoveOutDate),
		zap.Int("leases_terminated", terminated),
	)
}

// =============================================================================
// LEASES
// =============================================================================

func (s *Service) newLease(t property.Tenant, unit property.Unit, terms LeaseTerms, now time.Time) property.Lease {
	l := property.Lease{
		ID:              property.LeaseID(s.newID()),
		TenantID:        t.ID,
		UnitID:          t.UnitID,
		StartDate:       ledger.DateOf(terms.StartDate),
		EndDate:         ledger.DateOf(terms.EndDate),
		MonthlyRent:     terms.MonthlyRent,
		SecurityDeposit: terms.SecurityDeposit,
		Status:          property.LeaseActive,
		Terms:           terms.Terms,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if l.MonthlyRent.IsZero() {
		l.MonthlyRent = unit.MonthlyRent
	}
	if l.SecurityDeposit.Currency == "" {
		l.SecurityDeposit = ledger.Zero(unit.MonthlyRent.Currency)
	}
	return l
}

// SignLease gives an active tenant a new ACTIVE lease on their unit.
func (s *Service) SignLease(ctx context.Context, tenantID ledger.TenantID, terms LeaseTerms) (property.Lease, error) {
	if !terms.EndDate.After(terms.StartDate) {
		return property.Lease{}, fmt.Errorf("%w: lease must end after it starts", property.ErrInvalidRecord)
	}

	var lease property.Lease
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		t, err := tx.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if !t.IsActive() {
			return &property.AlreadyMovedOutError{TenantID: t.ID, MoveOutDate: *t.MoveOutDate}
		}
		unit, err := tx.GetUnit(ctx, t.UnitID)
		if err != nil {
			return err
		}
		lease = s.newLease(t, unit, terms, s.now().UTC())
		if err := tx.SaveLease(ctx, lease); err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditCreate, "lease", string(lease.ID),
			fmt.Sprintf("Lease signed by %s for %s", t.FullName(), unit.Number))
	})
	if err != nil {
		return property.Lease{}, err
	}
	return lease, nil
}

// ExpireLeases moves every ACTIVE lease whose end date is before today to
// EXPIRED and returns the leases it changed.
func (s *Service) ExpireLeases(ctx context.Context, today time.Time) ([]property.Lease, error) {
	today = ledger.DateOf(today)

	var expired []property.Lease
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		leases, err := tx.ListLeases(ctx, property.LeaseFilter{Status: property.LeaseActive})
		if err != nil {
			return err
		}
		for _, l := range leases {
			if !ledger.DateOf(l.EndDate).Before(today) {
				continue
			}
			if err := l.Transition(property.LeaseExpired); err != nil {
				return err
			}
			l.UpdatedAt = s.now().UTC()
			if err := tx.SaveLease(ctx, l); err != nil {
				return err
			}
			if err := s.audit(ctx, tx, property.AuditExpire, "lease", string(l.ID),
				fmt.Sprintf("Lease ended %s", l.EndDate.Format(time.DateOnly))); err != nil {
				return err
			}
			expired = append(expired, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		s.log.Info("leases expired", zap.Int("count", len(expired)))
	}
	return expired, nil
}

// ExpiringSoon lists ACTIVE leases ending within the next 60 days.
func (s *Service) ExpiringSoon(ctx context.Context, today time.Time) ([]property.Lease, error) {
	leases, err := s.store.ListLeases(ctx, property.LeaseFilter{Status: property.LeaseActive})
	if err != nil {
		return nil, err
	}
	var result []property.Lease
	for _, l := range leases {
		if l.IsExpiringSoon(today) {
			result = append(result, l)
		}
	}
	return result, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// ReportMaintenance files a new PENDING request for a unit.
func (s *Service) ReportMaintenance(ctx context.Context, m property.MaintenanceRequest) (property.MaintenanceRequest, error) {
	if m.Title == "" || m.UnitID == "" {
		return property.MaintenanceRequest{}, fmt.Errorf("%w: title and unit are required", property.ErrInvalidRecord)
	}
	now := s.now().UTC()
	if m.ID == "" {
		m.ID = property.MaintenanceID(s.newID())
	}
	if m.Priority == "" {
		m.Priority = property.PriorityMedium
	}
	if m.Category == "" {
		m.Category = property.MaintenanceOther
	}
	m.Status = property.MaintenancePending
	m.ReportedAt, m.UpdatedAt = now, now
	m.CompletedAt = nil

	err := s.store.WithTx(ctx, func(tx property.Store) error {
		if _, err := tx.GetUnit(ctx, m.UnitID); err != nil {
			return err
		}
		if err := tx.SaveMaintenance(ctx, m); err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditCreate, "maintenance", string(m.ID), "Maintenance reported: "+m.Title)
	})
	if err != nil {
		return property.MaintenanceRequest{}, err
	}
	return m, nil
}

// UpdateMaintenanceStatus applies a status change to a request. Completing
// it stamps the completion time and records notes as the resolution.
func (s *Service) UpdateMaintenanceStatus(ctx context.Context, id property.MaintenanceID, to property.MaintenanceStatus, notes string) (property.MaintenanceRequest, error) {
	var req property.MaintenanceRequest
	err := s.store.WithTx(ctx, func(tx property.Store) error {
		m, err := tx.GetMaintenance(ctx, id)
		if err != nil {
			return err
		}
		from := m.Status
		if err := m.UpdateStatus(to, notes, s.now().UTC()); err != nil {
			return err
		}
		if err := tx.SaveMaintenance(ctx, m); err != nil {
			return err
		}
		req = m
		return s.audit(ctx, tx, property.AuditUpdate, "maintenance", string(m.ID),
			fmt.Sprintf("Status changed from %s to %s", from, to))
	})
	return req, err
}

// =============================================================================
// BUILDINGS & UNITS
// =============================================================================

// AddBuilding saves a new building.
func (s *Service) AddBuilding(ctx context.Context, b property.Building) (property.Building, error) {
	if b.Name == "" {
		return property.Building{}, fmt.Errorf("%w: building name is required", property.ErrInvalidRecord)
	}
	if b.TotalUnits < 0 {
		return property.Building{}, fmt.Errorf("%w: total units cannot be negative", property.ErrInvalidRecord)
	}
	if b.ID == "" {
		b.ID = property.BuildingID(s.newID())
	}
	b.CreatedAt = s.now().UTC()

	err := s.store.WithTx(ctx, func(tx property.Store) error {
		if err := tx.SaveBuilding(ctx, b); err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditCreate, "building", string(b.ID), "Building added: "+b.Name)
	})
	if err != nil {
		return property.Building{}, err
	}
	return b, nil
}

// AddUnit saves a new VACANT unit in an existing building.
func (s *Service) AddUnit(ctx context.Context, u property.Unit) (property.Unit, error) {
	if u.Number == "" {
		return property.Unit{}, fmt.Errorf("%w: unit number is required", property.ErrInvalidRecord)
	}
	if err := ledger.ValidateAmount(u.MonthlyRent); err != nil {
		return property.Unit{}, fmt.Errorf("%w: monthly rent: %v", property.ErrInvalidRecord, err)
	}
	if u.ID == "" {
		u.ID = property.UnitID(s.newID())
	}
	u.Status = property.UnitVacant
	u.CreatedAt = s.now().UTC()

	err := s.store.WithTx(ctx, func(tx property.Store) error {
		b, err := tx.GetBuilding(ctx, u.BuildingID)
		if err != nil {
			return err
		}
		if err := tx.SaveUnit(ctx, u); err != nil {
			return err
		}
		return s.audit(ctx, tx, property.AuditCreate, "unit", string(u.ID),
			fmt.Sprintf("Unit %s added to %s", u.Number, b.Name))
	})
	if err != nil {
		return property.Unit{}, err
	}
	return u, nil
}

// =============================================================================
// READS
// =============================================================================

// BuildingStats computes occupancy and rent roll for one building.
func (s *Service) BuildingStats(ctx context.Context, id property.BuildingID) (property.BuildingStats, error) {
	b, err := s.store.GetBuilding(ctx, id)
	if err != nil {
		return property.BuildingStats{}, err
	}
	units, err := s.store.ListUnits(ctx, property.UnitFilter{BuildingID: id})
	if err != nil {
		return property.BuildingStats{}, err
	}
	return property.StatsFor(b, units), nil
}

func (s *Service) audit(ctx context.Context, tx property.Store, action property.AuditAction, model, objectID, description string) error {
	return tx.AppendAudit(ctx, property.AuditEntry{
		ID:          s.newID(),
		Timestamp:   s.now().UTC(),
		Actor:       s.actor,
		Action:      action,
		Model:       model,
		ObjectID:    objectID,
		Description: description,
	})
}

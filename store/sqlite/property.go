package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
)

// =============================================================================
// PROPERTY STORE (property.TxStore interface)
// =============================================================================

type PropertyStore struct {
	s *Store
}

func (p *PropertyStore) write(fn func(propertyQueries) error) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return fn(propertyQueries{p.s.db})
}

func (p *PropertyStore) read() (propertyQueries, func()) {
	p.s.mu.RLock()
	return propertyQueries{p.s.db}, p.s.mu.RUnlock
}

// WithTx executes fn within a database transaction.
func (p *PropertyStore) WithTx(ctx context.Context, fn func(property.Store) error) error {
	return p.s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(propertyQueries{tx})
	})
}

func (p *PropertyStore) SaveBuilding(ctx context.Context, b property.Building) error {
	return p.write(func(q propertyQueries) error { return q.SaveBuilding(ctx, b) })
}

func (p *PropertyStore) GetBuilding(ctx context.Context, id property.BuildingID) (property.Building, error) {
	q, unlock := p.read()
	defer unlock()
	return q.GetBuilding(ctx, id)
}

func (p *PropertyStore) ListBuildings(ctx context.Context) ([]property.Building, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListBuildings(ctx)
}

func (p *PropertyStore) SaveUnit(ctx context.Context, u property.Unit) error {
	return p.write(func(q propertyQueries) error { return q.SaveUnit(ctx, u) })
}

func (p *PropertyStore) GetUnit(ctx context.Context, id property.UnitID) (property.Unit, error) {
	q, unlock := p.read()
	defer unlock()
	return q.GetUnit(ctx, id)
}

func (p *PropertyStore) ListUnits(ctx context.Context, f property.UnitFilter) ([]property.Unit, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListUnits(ctx, f)
}

func (p *PropertyStore) SaveTenant(ctx context.Context, t property.Tenant) error {
	return p.write(func(q propertyQueries) error { return q.SaveTenant(ctx, t) })
}

func (p *PropertyStore) GetTenant(ctx context.Context, id ledger.TenantID) (property.Tenant, error) {
	q, unlock := p.read()
	defer unlock()
	return q.GetTenant(ctx, id)
}

func (p *PropertyStore) ListTenants(ctx context.Context, f property.TenantFilter) ([]property.Tenant, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListTenants(ctx, f)
}

func (p *PropertyStore) SaveLease(ctx context.Context, l property.Lease) error {
	return p.write(func(q propertyQueries) error { return q.SaveLease(ctx, l) })
}

func (p *PropertyStore) GetLease(ctx context.Context, id property.LeaseID) (property.Lease, error) {
	q, unlock := p.read()
	defer unlock()
	return q.GetLease(ctx, id)
}

func (p *PropertyStore) ListLeases(ctx context.Context, f property.LeaseFilter) ([]property.Lease, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListLeases(ctx, f)
}

func (p *PropertyStore) SaveMaintenance(ctx context.Context, m property.MaintenanceRequest) error {
	return p.write(func(q propertyQueries) error { return q.SaveMaintenance(ctx, m) })
}

func (p *PropertyStore) GetMaintenance(ctx context.Context, id property.MaintenanceID) (property.MaintenanceRequest, error) {
	q, unlock := p.read()
	defer unlock()
	return q.GetMaintenance(ctx, id)
}

func (p *PropertyStore) ListMaintenance(ctx context.Context, f property.MaintenanceFilter) ([]property.MaintenanceRequest, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListMaintenance(ctx, f)
}

func (p *PropertyStore) AppendAudit(ctx context.Context, e property.AuditEntry) error {
	return p.write(func(q propertyQueries) error { return q.AppendAudit(ctx, e) })
}

func (p *PropertyStore) ListAudit(ctx context.Context, f property.AuditFilter) ([]property.AuditEntry, error) {
	q, unlock := p.read()
	defer unlock()
	return q.ListAudit(ctx, f)
}

// =============================================================================
// QUERIES
// =============================================================================

type propertyQueries struct {
	q querier
}

// where accumulates optional equality filters.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(column string, value string) {
	if value == "" {
		return
	}
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, value)
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// --- Buildings ---

func (pq propertyQueries) SaveBuilding(ctx context.Context, b property.Building) error {
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO buildings (id, name, address, total_units, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			total_units = excluded.total_units,
			description = excluded.description
	`, b.ID, b.Name, b.Address, b.TotalUnits, b.Description, formatTimestamp(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save building: %w", err)
	}
	return nil
}

const buildingColumns = `id, name, address, total_units, description, created_at`

func (pq propertyQueries) GetBuilding(ctx context.Context, id property.BuildingID) (property.Building, error) {
	b, err := scanBuilding(pq.q.QueryRowContext(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, property.ErrBuildingNotFound
	}
	return b, err
}

func (pq propertyQueries) ListBuildings(ctx context.Context) ([]property.Building, error) {
	rows, err := pq.q.QueryContext(ctx, `SELECT `+buildingColumns+` FROM buildings ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list buildings: %w", err)
	}
	defer rows.Close()

	var buildings []property.Building
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		buildings = append(buildings, b)
	}
	return buildings, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBuilding(row scanner) (property.Building, error) {
	var (
		b         property.Building
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Address, &b.TotalUnits, &b.Description, &createdAt); err != nil {
		return b, err
	}
	b.CreatedAt = parseTimestamp(createdAt)
	return b, nil
}

// --- Units ---

func (pq propertyQueries) SaveUnit(ctx context.Context, u property.Unit) error {
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO units
		(id, building_id, number, monthly_rent, currency, bedrooms, bathrooms, square_feet, status, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			number = excluded.number,
			monthly_rent = excluded.monthly_rent,
			currency = excluded.currency,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			square_feet = excluded.square_feet,
			status = excluded.status,
			description = excluded.description
	`, u.ID, u.BuildingID, u.Number, u.MonthlyRent.Value.String(), currencyOf(u.MonthlyRent),
		u.Bedrooms, u.Bathrooms, u.SquareFeet, u.Status, u.Description, formatTimestamp(u.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: unit %s already exists in building %s", property.ErrInvalidRecord, u.Number, u.BuildingID)
		}
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

const unitColumns = `id, building_id, number, monthly_rent, currency, bedrooms, bathrooms, square_feet, status, description, created_at`

func (pq propertyQueries) GetUnit(ctx context.Context, id property.UnitID) (property.Unit, error) {
	u, err := scanUnit(pq.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return u, property.ErrUnitNotFound
	}
	return u, err
}

func (pq propertyQueries) ListUnits(ctx context.Context, f property.UnitFilter) ([]property.Unit, error) {
	var w where
	w.eq("building_id", string(f.BuildingID))
	w.eq("status", string(f.Status))

	rows, err := pq.q.QueryContext(ctx, `SELECT `+unitColumns+` FROM units`+w.String()+` ORDER BY building_id, number`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []property.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func scanUnit(row scanner) (property.Unit, error) {
	var (
		u         property.Unit
		rent      string
		currency  string
		createdAt string
	)
	err := row.Scan(&u.ID, &u.BuildingID, &u.Number, &rent, &currency,
		&u.Bedrooms, &u.Bathrooms, &u.SquareFeet, &u.Status, &u.Description, &createdAt)
	if err != nil {
		return u, err
	}
	u.MonthlyRent = parseMoney(rent, currency)
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

// --- Tenants ---

func (pq propertyQueries) SaveTenant(ctx context.Context, t property.Tenant) error {
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO tenants
		(id, unit_id, first_name, last_name, email, phone, id_number,
		 emergency_contact_name, emergency_contact_phone, move_in_date, move_out_date,
		 deposit, currency, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			unit_id = excluded.unit_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			id_number = excluded.id_number,
			emergency_contact_name = excluded.emergency_contact_name,
			emergency_contact_phone = excluded.emergency_contact_phone,
			move_in_date = excluded.move_in_date,
			move_out_date = excluded.move_out_date,
			deposit = excluded.deposit,
			currency = excluded.currency,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, t.ID, t.UnitID, t.FirstName, t.LastName, t.Email, t.Phone, t.IDNumber,
		t.EmergencyContactName, t.EmergencyContactPhone,
		formatDate(t.MoveInDate), nullDate(t.MoveOutDate),
		t.Deposit.Value.String(), currencyOf(t.Deposit), t.Notes,
		formatTimestamp(t.CreatedAt), formatTimestamp(t.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: id number %s is already registered", property.ErrInvalidRecord, t.IDNumber)
		}
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

const tenantColumns = `id, unit_id, first_name, last_name, email, phone, id_number,
	emergency_contact_name, emergency_contact_phone, move_in_date, move_out_date,
	deposit, currency, notes, created_at, updated_at`

func (pq propertyQueries) GetTenant(ctx context.Context, id ledger.TenantID) (property.Tenant, error) {
	t, err := scanTenant(pq.q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, property.ErrTenantNotFound
	}
	return t, err
}

func (pq propertyQueries) ListTenants(ctx context.Context, f property.TenantFilter) ([]property.Tenant, error) {
	var w where
	w.eq("unit_id", string(f.UnitID))
	if f.ActiveOnly {
		w.raw("move_out_date IS NULL")
	}

	rows, err := pq.q.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants`+w.String()+` ORDER BY move_in_date DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []property.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(row scanner) (property.Tenant, error) {
	var (
		t                    property.Tenant
		moveIn               string
		moveOut              sql.NullString
		deposit, currency    string
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.UnitID, &t.FirstName, &t.LastName, &t.Email, &t.Phone, &t.IDNumber,
		&t.EmergencyContactName, &t.EmergencyContactPhone, &moveIn, &moveOut,
		&deposit, &currency, &t.Notes, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.MoveInDate = parseDate(moveIn)
	t.MoveOutDate = parseNullDate(moveOut)
	t.Deposit = parseMoney(deposit, currency)
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	return t, nil
}

// --- Leases ---

func (pq propertyQueries) SaveLease(ctx context.Context, l property.Lease) error {
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO leases
		(id, tenant_id, unit_id, start_date, end_date, monthly_rent, security_deposit, currency,
		 status, terms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			unit_id = excluded.unit_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			monthly_rent = excluded.monthly_rent,
			security_deposit = excluded.security_deposit,
			currency = excluded.currency,
			status = excluded.status,
			terms = excluded.terms,
			updated_at = excluded.updated_at
	`, l.ID, l.TenantID, l.UnitID, formatDate(l.StartDate), formatDate(l.EndDate),
		l.MonthlyRent.Value.String(), l.SecurityDeposit.Value.String(), currencyOf(l.MonthlyRent),
		l.Status, l.Terms, formatTimestamp(l.CreatedAt), formatTimestamp(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save lease: %w", err)
	}
	return nil
}

const leaseColumns = `id, tenant_id, unit_id, start_date, end_date, monthly_rent, security_deposit, currency,
	status, terms, created_at, updated_at`

func (pq propertyQueries) GetLease(ctx context.Context, id property.LeaseID) (property.Lease, error) {
	l, err := scanLease(pq.q.QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return l, property.ErrLeaseNotFound
	}
	return l, err
}

func (pq propertyQueries) ListLeases(ctx context.Context, f property.LeaseFilter) ([]property.Lease, error) {
	var w where
	w.eq("tenant_id", string(f.TenantID))
	w.eq("unit_id", string(f.UnitID))
	w.eq("status", string(f.Status))

	rows, err := pq.q.QueryContext(ctx, `SELECT `+leaseColumns+` FROM leases`+w.String()+` ORDER BY start_date DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var leases []property.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

func scanLease(row scanner) (property.Lease, error) {
	var (
		l                       property.Lease
		start, end              string
		rent, deposit, currency string
		createdAt, updatedAt    string
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.UnitID, &start, &end, &rent, &deposit, &currency,
		&l.Status, &l.Terms, &createdAt, &updatedAt)
	if err != nil {
		return l, err
	}
	l.StartDate = parseDate(start)
	l.EndDate = parseDate(end)
	l.MonthlyRent = parseMoney(rent, currency)
	l.SecurityDeposit = parseMoney(deposit, currency)
	l.CreatedAt = parseTimestamp(createdAt)
	l.UpdatedAt = parseTimestamp(updatedAt)
	return l, nil
}

// --- Maintenance ---

func (pq propertyQueries) SaveMaintenance(ctx context.Context, m property.MaintenanceRequest) error {
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO maintenance_requests
		(id, tenant_id, unit_id, title, description, priority, category, status, reported_at,
		 scheduled_date, completed_at, assigned_to, estimated_cost, actual_cost, currency,
		 resolution_notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			priority = excluded.priority,
			category = excluded.category,
			status = excluded.status,
			scheduled_date = excluded.scheduled_date,
			completed_at = excluded.completed_at,
			assigned_to = excluded.assigned_to,
			estimated_cost = excluded.estimated_cost,
			actual_cost = excluded.actual_cost,
			currency = excluded.currency,
			resolution_notes = excluded.resolution_notes,
			updated_at = excluded.updated_at
	`, m.ID, m.TenantID, m.UnitID, m.Title, m.Description, m.Priority, m.Category, m.Status,
		formatTimestamp(m.ReportedAt), nullDate(m.ScheduledDate), nullTimestamp(m.CompletedAt),
		m.AssignedTo, m.EstimatedCost.Value.String(), m.ActualCost.Value.String(), currencyOf(m.EstimatedCost),
		m.ResolutionNotes, formatTimestamp(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save maintenance request: %w", err)
	}
	return nil
}

const maintenanceColumns = `id, tenant_id, unit_id, title, description, priority, category, status, reported_at,
	scheduled_date, completed_at, assigned_to, estimated_cost, actual_cost, currency,
	resolution_notes, updated_at`

func (pq propertyQueries) GetMaintenance(ctx context.Context, id property.MaintenanceID) (property.MaintenanceRequest, error) {
	m, err := scanMaintenance(pq.q.QueryRowContext(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return m, property.ErrMaintenanceNotFound
	}
	return m, err
}

func (pq propertyQueries) ListMaintenance(ctx context.Context, f property.MaintenanceFilter) ([]property.MaintenanceRequest, error) {
	var w where
	w.eq("tenant_id", string(f.TenantID))
	w.eq("unit_id", string(f.UnitID))
	w.eq("status", string(f.Status))

	rows, err := pq.q.QueryContext(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_requests`+w.String()+` ORDER BY reported_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance requests: %w", err)
	}
	defer rows.Close()

	var requests []property.MaintenanceRequest
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, m)
	}
	return requests, rows.Err()
}

func scanMaintenance(row scanner) (property.MaintenanceRequest, error) {
	var (
		m                   property.MaintenanceRequest
		reportedAt          string
		scheduled           sql.NullString
		completed           sql.NullString
		estimated, actual   string
		currency, updatedAt string
	)
	err := row.Scan(&m.ID, &m.TenantID, &m.UnitID, &m.Title, &m.Description, &m.Priority, &m.Category, &m.Status,
		&reportedAt, &scheduled, &completed, &m.AssignedTo, &estimated, &actual, &currency,
		&m.ResolutionNotes, &updatedAt)
	if err != nil {
		return m, err
	}
	m.ReportedAt = parseTimestamp(reportedAt)
	m.ScheduledDate = parseNullDate(scheduled)
	m.CompletedAt = parseNullTimestamp(completed)
	m.EstimatedCost = parseMoney(estimated, currency)
	m.ActualCost = parseMoney(actual, currency)
	m.UpdatedAt = parseTimestamp(updatedAt)
	return m, nil
}

// --- Activity log (append-only) ---

func (pq propertyQueries) AppendAudit(ctx context.Context, e property.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := pq.q.ExecContext(ctx, `
		INSERT INTO activity_log (id, timestamp, actor, action, model, object_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTimestamp(e.Timestamp), e.Actor, e.Action, e.Model, e.ObjectID, e.Description)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (pq propertyQueries) ListAudit(ctx context.Context, f property.AuditFilter) ([]property.AuditEntry, error) {
	var w where
	w.eq("model", f.Model)
	w.eq("object_id", f.ObjectID)
	w.eq("action", string(f.Action))

	query := `SELECT id, timestamp, actor, action, model, object_id, description FROM activity_log` +
		w.String() + ` ORDER BY seq DESC`
	args := w.args
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := pq.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []property.AuditEntry
	for rows.Next() {
		var (
			e  property.AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.Model, &e.ObjectID, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var (
	_ property.TxStore = (*PropertyStore)(nil)
	_ property.Store   = propertyQueries{}
)

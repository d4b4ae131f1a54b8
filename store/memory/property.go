package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
)

// =============================================================================
// PROPERTY STORE - In-memory property.TxStore
// =============================================================================

type Properties struct {
	mu    sync.RWMutex
	state propertyState
}

type propertyState struct {
	buildings   map[property.BuildingID]property.Building
	units       map[property.UnitID]property.Unit
	tenants     map[ledger.TenantID]property.Tenant
	leases      map[property.LeaseID]property.Lease
	maintenance map[property.MaintenanceID]property.MaintenanceRequest
	audit       []property.AuditEntry
}

func newPropertyState() propertyState {
	return propertyState{
		buildings:   make(map[property.BuildingID]property.Building),
		units:       make(map[property.UnitID]property.Unit),
		tenants:     make(map[ledger.TenantID]property.Tenant),
		leases:      make(map[property.LeaseID]property.Lease),
		maintenance: make(map[property.MaintenanceID]property.MaintenanceRequest),
	}
}

func NewProperties() *Properties {
	return &Properties{state: newPropertyState()}
}

func (p *Properties) read(fn func(*propertyState)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(&p.state)
}

func (p *Properties) write(fn func(*propertyState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}

// WithTx runs fn with exclusive access and restores the previous state if
// fn fails.
func (p *Properties) WithTx(_ context.Context, fn func(property.Store) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.state.clone()
	if err := fn(&propertyTxView{state: &p.state}); err != nil {
		p.state = snap
		return err
	}
	return nil
}

func (s *propertyState) clone() propertyState {
	c := newPropertyState()
	for k, v := range s.buildings {
		c.buildings[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.leases {
		c.leases[k] = v
	}
	for k, v := range s.maintenance {
		c.maintenance[k] = v
	}
	c.audit = append([]property.AuditEntry(nil), s.audit...)
	return c
}

// =============================================================================
// Properties delegates every call to a view over its state under the lock.
// =============================================================================

func (p *Properties) SaveBuilding(ctx context.Context, b property.Building) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).SaveBuilding(ctx, b) })
	return err
}

func (p *Properties) GetBuilding(ctx context.Context, id property.BuildingID) (b property.Building, err error) {
	p.read(func(s *propertyState) { b, err = (&propertyTxView{state: s}).GetBuilding(ctx, id) })
	return b, err
}

func (p *Properties) ListBuildings(ctx context.Context) (bs []property.Building, err error) {
	p.read(func(s *propertyState) { bs, err = (&propertyTxView{state: s}).ListBuildings(ctx) })
	return bs, err
}

func (p *Properties) SaveUnit(ctx context.Context, u property.Unit) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).SaveUnit(ctx, u) })
	return err
}

func (p *Properties) GetUnit(ctx context.Context, id property.UnitID) (u property.Unit, err error) {
	p.read(func(s *propertyState) { u, err = (&propertyTxView{state: s}).GetUnit(ctx, id) })
	return u, err
}

func (p *Properties) ListUnits(ctx context.Context, f property.UnitFilter) (us []property.Unit, err error) {
	p.read(func(s *propertyState) { us, err = (&propertyTxView{state: s}).ListUnits(ctx, f) })
	return us, err
}

func (p *Properties) SaveTenant(ctx context.Context, t property.Tenant) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).SaveTenant(ctx, t) })
	return err
}

func (p *Properties) GetTenant(ctx context.Context, id ledger.TenantID) (t property.Tenant, err error) {
	p.read(func(s *propertyState) { t, err = (&propertyTxView{state: s}).GetTenant(ctx, id) })
	return t, err
}

func (p *Properties) ListTenants(ctx context.Context, f property.TenantFilter) (ts []property.Tenant, err error) {
	p.read(func(s *propertyState) { ts, err = (&propertyTxView{state: s}).ListTenants(ctx, f) })
	return ts, err
}

func (p *Properties) SaveLease(ctx context.Context, l property.Lease) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).SaveLease(ctx, l) })
	return err
}

func (p *Properties) GetLease(ctx context.Context, id property.LeaseID) (l property.Lease, err error) {
	p.read(func(s *propertyState) { l, err = (&propertyTxView{state: s}).GetLease(ctx, id) })
	return l, err
}

func (p *Properties) ListLeases(ctx context.Context, f property.LeaseFilter) (ls []property.Lease, err error) {
	p.read(func(s *propertyState) { ls, err = (&propertyTxView{state: s}).ListLeases(ctx, f) })
	return ls, err
}

func (p *Properties) SaveMaintenance(ctx context.Context, m property.MaintenanceRequest) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).SaveMaintenance(ctx, m) })
	return err
}

func (p *Properties) GetMaintenance(ctx context.Context, id property.MaintenanceID) (m property.MaintenanceRequest, err error) {
	p.read(func(s *propertyState) { m, err = (&propertyTxView{state: s}).GetMaintenance(ctx, id) })
	return m, err
}

func (p *Properties) ListMaintenance(ctx context.Context, f property.MaintenanceFilter) (ms []property.MaintenanceRequest, err error) {
	p.read(func(s *propertyState) { ms, err = (&propertyTxView{state: s}).ListMaintenance(ctx, f) })
	return ms, err
}

func (p *Properties) AppendAudit(ctx context.Context, e property.AuditEntry) (err error) {
	p.write(func(s *propertyState) { err = (&propertyTxView{state: s}).AppendAudit(ctx, e) })
	return err
}

func (p *Properties) ListAudit(ctx context.Context, f property.AuditFilter) (es []property.AuditEntry, err error) {
	p.read(func(s *propertyState) { es, err = (&propertyTxView{state: s}).ListAudit(ctx, f) })
	return es, err
}

// =============================================================================
// VIEW - Lock-free operations over a state; callers hold the lock
// =============================================================================

type propertyTxView struct {
	state *propertyState
}

func (v *propertyTxView) SaveBuilding(_ context.Context, b property.Building) error {
	v.state.buildings[b.ID] = b
	return nil
}

func (v *propertyTxView) GetBuilding(_ context.Context, id property.BuildingID) (property.Building, error) {
	b, ok := v.state.buildings[id]
	if !ok {
		return property.Building{}, property.ErrBuildingNotFound
	}
	return b, nil
}

func (v *propertyTxView) ListBuildings(_ context.Context) ([]property.Building, error) {
	result := make([]property.Building, 0, len(v.state.buildings))
	for _, b := range v.state.buildings {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (v *propertyTxView) SaveUnit(_ context.Context, u property.Unit) error {
	v.state.units[u.ID] = u
	return nil
}

func (v *propertyTxView) GetUnit(_ context.Context, id property.UnitID) (property.Unit, error) {
	u, ok := v.state.units[id]
	if !ok {
		return property.Unit{}, property.ErrUnitNotFound
	}
	return u, nil
}

func (v *propertyTxView) ListUnits(_ context.Context, f property.UnitFilter) ([]property.Unit, error) {
	var result []property.Unit
	for _, u := range v.state.units {
		if f.BuildingID != "" && u.BuildingID != f.BuildingID {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BuildingID != result[j].BuildingID {
			return result[i].BuildingID < result[j].BuildingID
		}
		return result[i].Number < result[j].Number
	})
	return result, nil
}

func (v *propertyTxView) SaveTenant(_ context.Context, t property.Tenant) error {
	v.state.tenants[t.ID] = t
	return nil
}

func (v *propertyTxView) GetTenant(_ context.Context, id ledger.TenantID) (property.Tenant, error) {
	t, ok := v.state.tenants[id]
	if !ok {
		return property.Tenant{}, property.ErrTenantNotFound
	}
	return t, nil
}

func (v *propertyTxView) ListTenants(_ context.Context, f property.TenantFilter) ([]property.Tenant, error) {
	var result []property.Tenant
	for _, t := range v.state.tenants {
		if f.UnitID != "" && t.UnitID != f.UnitID {
			continue
		}
		if f.ActiveOnly && !t.IsActive() {
			continue
		}
		result = append(result, t)
	}
	// Most recent move-in first.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].MoveInDate.Equal(result[j].MoveInDate) {
			return result[i].MoveInDate.After(result[j].MoveInDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *propertyTxView) SaveLease(_ context.Context, l property.Lease) error {
	v.state.leases[l.ID] = l
	return nil
}

func (v *propertyTxView) GetLease(_ context.Context, id property.LeaseID) (property.Lease, error) {
	l, ok := v.state.leases[id]
	if !ok {
		return property.Lease{}, property.ErrLeaseNotFound
	}
	return l, nil
}

func (v *propertyTxView) ListLeases(_ context.Context, f property.LeaseFilter) ([]property.Lease, error) {
	var result []property.Lease
	for _, l := range v.state.leases {
		if f.TenantID != "" && l.TenantID != f.TenantID {
			continue
		}
		if f.UnitID != "" && l.UnitID != f.UnitID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.After(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *propertyTxView) SaveMaintenance(_ context.Context, m property.MaintenanceRequest) error {
	v.state.maintenance[m.ID] = m
	return nil
}

func (v *propertyTxView) GetMaintenance(_ context.Context, id property.MaintenanceID) (property.MaintenanceRequest, error) {
	m, ok := v.state.maintenance[id]
	if !ok {
		return property.MaintenanceRequest{}, property.ErrMaintenanceNotFound
	}
	return m, nil
}

func (v *propertyTxView) ListMaintenance(_ context.Context, f property.MaintenanceFilter) ([]property.MaintenanceRequest, error) {
	var result []property.MaintenanceRequest
	for _, m := range v.state.maintenance {
		if f.TenantID != "" && m.TenantID != f.TenantID {
			continue
		}
		if f.UnitID != "" && m.UnitID != f.UnitID {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReportedAt.Equal(result[j].ReportedAt) {
			return result[i].ReportedAt.After(result[j].ReportedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *propertyTxView) AppendAudit(_ context.Context, e property.AuditEntry) error {
	v.state.audit = append(v.state.audit, e)
	return nil
}

func (v *propertyTxView) ListAudit(_ context.Context, f property.AuditFilter) ([]property.AuditEntry, error) {
	var result []property.AuditEntry
	// Newest first.
	for i := len(v.state.audit) - 1; i >= 0; i-- {
		e := v.state.audit[i]
		if f.Model != "" && e.Model != f.Model {
			continue
		}
		if f.ObjectID != "" && e.ObjectID != f.ObjectID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		result = append(result, e)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}

var (
	_ property.TxStore = (*Properties)(nil)
	_ property.Store   = (*propertyTxView)(nil)
)

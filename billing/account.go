package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/notify"
	"github.com/warp/tenancy-engine/property"
)

// Account is a tenant with the unit and building billing needs: the rent
// comes from the unit, the notification context from both.
type Account struct {
	Tenant   property.Tenant
	Unit     property.Unit
	Building property.Building
}

func (a Account) TenantID() ledger.TenantID { return a.Tenant.ID }

// Recipient addresses a notification to the account's tenant.
func (a Account) Recipient(balance ledger.Money) notify.Recipient {
	return notify.Recipient{
		TenantID:  a.Tenant.ID,
		FirstName: a.Tenant.FirstName,
		FullName:  a.Tenant.FullName(),
		Email:     a.Tenant.Email,
		Phone:     a.Tenant.Phone,
		Unit:      a.Unit.Number,
		Building:  a.Building.Name,
		Balance:   balance,
	}
}

// Directory resolves tenants to accounts.
type Directory interface {
	Account(ctx context.Context, id ledger.TenantID) (Account, error)
	ActiveAccounts(ctx context.Context) ([]Account, error)
}

// =============================================================================
// PROPERTY DIRECTORY - Directory over a property.Store
// =============================================================================

type PropertyDirectory struct {
	store property.Store
}

func NewDirectory(store property.Store) *PropertyDirectory {
	return &PropertyDirectory{store: store}
}

func (d *PropertyDirectory) Account(ctx context.Context, id ledger.TenantID) (Account, error) {
	t, err := d.store.GetTenant(ctx, id)
	if err != nil {
		return Account{}, err
	}
	u, err := d.store.GetUnit(ctx, t.UnitID)
	if err != nil {
		return Account{}, fmt.Errorf("unit of tenant %s: %w", id, err)
	}
	b, err := d.store.GetBuilding(ctx, u.BuildingID)
	if err != nil && !property.IsNotFound(err) {
		return Account{}, err
	}
	return Account{Tenant: t, Unit: u, Building: b}, nil
}

// ActiveAccounts lists every tenant without a move-out date, sorted by
// name. A tenant whose unit cannot be found is still returned, with a zero
// Unit, so that a batch reports it as a per-tenant failure.
func (d *PropertyDirectory) ActiveAccounts(ctx context.Context) ([]Account, error) {
	tenants, err := d.store.ListTenants(ctx, property.TenantFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	units := make(map[property.UnitID]property.Unit)
	buildings := make(map[property.BuildingID]property.Building)

	accounts := make([]Account, 0, len(tenants))
	for _, t := range tenants {
		a := Account{Tenant: t}

		u, ok := units[t.UnitID]
		if !ok {
			u, err = d.store.GetUnit(ctx, t.UnitID)
			if err != nil && !property.IsNotFound(err) {
				return nil, err
			}
			units[t.UnitID] = u
		}
		a.Unit = u

		if u.BuildingID != "" {
			b, ok := buildings[u.BuildingID]
			if !ok {
				b, err = d.store.GetBuilding(ctx, u.BuildingID)
				if err != nil && !property.IsNotFound(err) {
					return nil, err
				}
				buildings[u.BuildingID] = b
			}
			a.Building = b
		}
		accounts = append(accounts, a)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Tenant.FullName() < accounts[j].Tenant.FullName()
	})
	return accounts, nil
}

var _ Directory = (*PropertyDirectory)(nil)

/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the stores with realistic data
  for demos and manual testing. Each scenario creates a building, units and
  tenants, then writes ledger entries through the billing engine so that
  every balance is derived the same way production balances are.

AVAILABLE SCENARIOS:
  single-building:  One building, three paying tenants, one vacant unit
  arrears:          Two months charged; one tenant behind and past grace
  turnover:         A move-out, a unit under maintenance, a lease expiring

HOW SCENARIOS WORK:
  1. Reset the stores (clear all data)
  2. Create the building and units via occupancy.Service
  3. Move tenants in with leases
  4. Charge rent and record payments via billing.Engine

  Dates are relative to the seeder's Today, so a scenario loaded at any
  time has the same shape: "last month", "this month", "ten days ago".

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "arrears"}

USAGE VIA CLI:
  rentctl seed --scenario arrears

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler.Reset
  - cmd/rentctl: seed command
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/occupancy"
	"github.com/warp/tenancy-engine/property"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var Scenarios = []ScenarioDTO{
	{
		ID:          "single-building",
		Name:        "Single Building",
		Description: "Sunrise Court with three tenants charged for this month; one has paid",
	},
	{
		ID:          "arrears",
		Name:        "Arrears",
		Description: "Two months of rent charged; one tenant has paid nothing and is past the grace period",
	},
	{
		ID:          "turnover",
		Name:        "Turnover",
		Description: "A tenant moved out, a unit under maintenance and a lease about to expire",
	},
}

// ErrUnknownScenario is returned by Seeder.Load for an unlisted ID.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SEEDER
// =============================================================================

// Seeder writes a scenario through the services. It does not clear the
// stores; callers reset first.
type Seeder struct {
	Occupancy *occupancy.Service
	Billing   *billing.Engine
	Today     time.Time
}

func (s Seeder) Load(ctx context.Context, scenarioID string) error {
	switch scenarioID {
	case "single-building":
		return s.loadSingleBuilding(ctx)
	case "arrears":
		return s.loadArrears(ctx)
	case "turnover":
		return s.loadTurnover(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownScenario, scenarioID)
}

type seedTenant struct {
	id        ledger.TenantID
	unit      property.UnitID
	first     string
	last      string
	phone     string
	email     string
	leaseEnds time.Time // zero means a year after move-in
}

var sunriseUnits = []property.Unit{
	{ID: "u-a1", Number: "A1", MonthlyRent: kes("25000"), Bedrooms: 1, Bathrooms: 1},
	{ID: "u-a2", Number: "A2", MonthlyRent: kes("30000"), Bedrooms: 2, Bathrooms: 1},
	{ID: "u-b1", Number: "B1", MonthlyRent: kes("35000"), Bedrooms: 2, Bathrooms: 2},
	{ID: "u-b2", Number: "B2", MonthlyRent: kes("40000"), Bedrooms: 3, Bathrooms: 2},
}

func sunriseTenants() []seedTenant {
	return []seedTenant{
		{id: "t-amina", unit: "u-a1", first: "Amina", last: "Wanjiru", phone: "+254700000001", email: "amina@example.com"},
		{id: "t-brian", unit: "u-a2", first: "Brian", last: "Otieno", phone: "+254700000002"},
		{id: "t-chloe", unit: "u-b1", first: "Chloe", last: "Mutua", email: "chloe@example.com"},
	}
}

func kes(v string) ledger.Money { return ledger.MustMoney(v, ledger.CurrencyKES) }

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (s Seeder) loadSingleBuilding(ctx context.Context) error {
	if err := s.building(ctx, sunriseTenants()); err != nil {
		return err
	}
	current := ledger.PeriodOf(s.Today)
	for _, t := range sunriseTenants() {
		if err := s.chargeRent(ctx, t.id, current); err != nil {
			return err
		}
	}
	return s.pay(ctx, "t-amina", "25000", s.Today, ledger.MethodMPesa, "QK7H2M9XYZ")
}

func (s Seeder) loadArrears(ctx context.Context) error {
	if err := s.building(ctx, sunriseTenants()); err != nil {
		return err
	}
	current := ledger.PeriodOf(s.Today)
	prev := current.Prev()
	for _, p := range []ledger.BillingPeriod{prev, current} {
		for _, t := range sunriseTenants() {
			if err := s.chargeRent(ctx, t.id, p); err != nil {
				return err
			}
		}
	}

	// Amina is paid up, Brian paid last month only, Chloe paid nothing.
	if err := s.pay(ctx, "t-amina", "50000", s.Today, ledger.MethodBankTransfer, ""); err != nil {
		return err
	}
	return s.pay(ctx, "t-brian", "30000", prev.Start().AddDate(0, 0, 3), ledger.MethodCash, "")
}

func (s Seeder) loadTurnover(ctx context.Context) error {
	tenants := sunriseTenants()
	tenants[1].leaseEnds = s.Today.AddDate(0, 0, 30)
	if err := s.building(ctx, tenants); err != nil {
		return err
	}

	current := ledger.PeriodOf(s.Today)
	for _, t := range tenants {
		if err := s.chargeRent(ctx, t.id, current); err != nil {
			return err
		}
	}
	if _, err := s.Occupancy.MoveOut(ctx, "t-chloe", s.Today.AddDate(0, 0, -10)); err != nil {
		return err
	}
	if _, err := s.Occupancy.SetUnitMaintenance(ctx, "u-b2", true); err != nil {
		return err
	}
	m, err := s.Occupancy.ReportMaintenance(ctx, property.MaintenanceRequest{
		UnitID:      "u-b2",
		Title:       "Burst pipe under kitchen sink",
		Description: "Water damage to the lower cabinets",
		Priority:    property.PriorityHigh,
		Category:    property.MaintenancePlumbing,
		AssignedTo:  "Kamau Plumbing",
	})
	if err != nil {
		return err
	}
	if _, err := s.Occupancy.UpdateMaintenanceStatus(ctx, m.ID, property.MaintenanceInProgress, ""); err != nil {
		return err
	}
	return s.pay(ctx, "t-amina", "25000", s.Today, ledger.MethodMPesa, "QK7H2M9ABC")
}

// =============================================================================
// HELPERS
// =============================================================================

// building creates Sunrise Court and moves the given tenants in six
// months before today, each with a lease.
func (s Seeder) building(ctx context.Context, tenants []seedTenant) error {
	b, err := s.Occupancy.AddBuilding(ctx, property.Building{
		ID:         "b-sunrise",
		Name:       "Sunrise Court",
		Address:    "Ngong Road, Nairobi",
		TotalUnits: len(sunriseUnits),
	})
	if err != nil {
		return err
	}
	for _, u := range sunriseUnits {
		u.BuildingID = b.ID
		if _, err := s.Occupancy.AddUnit(ctx, u); err != nil {
			return fmt.Errorf("unit %s: %w", u.Number, err)
		}
	}

	moveIn := ledger.PeriodOf(s.Today).Start().AddDate(0, -6, 0)
	for _, t := range tenants {
		ends := t.leaseEnds
		if ends.IsZero() {
			ends = moveIn.AddDate(1, 0, -1)
		}
		_, _, err := s.Occupancy.MoveIn(ctx, occupancy.MoveInRequest{
			Tenant: property.Tenant{
				ID:         t.id,
				UnitID:     t.unit,
				FirstName:  t.first,
				LastName:   t.last,
				Phone:      t.phone,
				Email:      t.email,
				MoveInDate: moveIn,
			},
			Lease: &occupancy.LeaseTerms{StartDate: moveIn, EndDate: ends},
		})
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t.id, err)
		}
	}
	return nil
}

func (s Seeder) chargeRent(ctx context.Context, id ledger.TenantID, p ledger.BillingPeriod) error {
	_, err := s.Billing.ChargeTenant(ctx, id, billing.RentCharge{
		Period:    p,
		Date:      p.Start(),
		CreatedBy: "seed",
	})
	return err
}

func (s Seeder) pay(ctx context.Context, id ledger.TenantID, amount string, on time.Time, method ledger.PaymentMethod, ref string) error {
	_, err := s.Billing.RecordPayment(ctx, billing.PaymentRequest{
		TenantID:  id,
		Amount:    kes(amount),
		Date:      on,
		Method:    method,
		Reference: ref,
		CreatedBy: "seed",
	})
	return err
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range Scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the stores and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Reset == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	known := false
	for _, s := range Scenarios {
		known = known || s.ID == req.ScenarioID
	}
	if !known {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	seeder := Seeder{Occupancy: h.Occupancy, Billing: h.Billing, Today: h.today()}
	if err := seeder.Load(ctx, req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Reset == nil {
		writeError(w, http.StatusNotFound, "Reset is disabled", nil)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

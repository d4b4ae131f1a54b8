/*
handlers_test.go - HTTP tests for the API handlers

Tests run the full router over an in-memory SQLite database, so they cover
routing, JSON decoding, error mapping and the services underneath.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/api"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/notify"
	"github.com/warp/tenancy-engine/occupancy"
	"github.com/warp/tenancy-engine/store/sqlite"
	"go.uber.org/zap"
)

var today = ledger.Date(2026, time.March, 15)

type testServer struct {
	router    http.Handler
	handler   *api.Handler
	engine    *billing.Engine
	occupancy *occupancy.Service
	notes     *notify.Recorder
	now       time.Time
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &testServer{notes: &notify.Recorder{}, now: today}
	clock := func() time.Time { return s.now.Add(10 * time.Hour) }

	l := ledger.New(db.Ledger(), ledger.WithClock(clock))
	s.occupancy = occupancy.NewService(db.Properties(), occupancy.WithClock(clock))
	s.engine = billing.NewEngine(l, billing.NewDirectory(db.Properties()),
		billing.WithNotifier(s.notes),
		billing.WithActivityLog(db.Properties()),
		billing.WithClock(clock),
	)

	s.handler = api.NewHandler(s.engine, s.occupancy, zap.NewNop())
	s.handler.Now = clock
	s.handler.Reset = db.Reset
	s.router = api.NewRouter(s.handler, api.RouterOptions{})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) load(t *testing.T, scenario string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: scenario})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// TENANT LIFECYCLE
// =============================================================================

func TestTenantLifecycle(t *testing.T) {
	s := newServer(t)

	// GIVEN: a building with one unit
	rec := s.do(t, http.MethodPost, "/api/buildings", api.CreateBuildingRequest{ID: "b-1", Name: "Lakeview", TotalUnits: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/units", api.CreateUnitRequest{ID: "u-1", BuildingID: "b-1", Number: "1A", MonthlyRent: "30000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: a tenant moves in with a lease
	rec = s.do(t, http.MethodPost, "/api/tenants", api.TenantRequest{
		ID: "t-1", UnitID: "u-1", FirstName: "Amina", LastName: "Wanjiru", Phone: "+254700000001",
		MoveInDate: "2026-03-01",
		Lease:      &api.LeaseRequest{StartDate: "2026-03-01", EndDate: "2027-02-28"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: the unit is occupied and the lease carries the unit's rent
	unit := decode[api.UnitDTO](t, s.do(t, http.MethodGet, "/api/units/u-1", nil))
	assert.Equal(t, "OCCUPIED", unit.Status)
	leases := decode[[]api.LeaseDTO](t, s.do(t, http.MethodGet, "/api/leases?tenant_id=t-1", nil))
	require.Len(t, leases, 1)
	assert.Equal(t, "30000.00", leases[0].MonthlyRent)

	// WHEN: rent is charged twice for March
	rec = s.do(t, http.MethodPost, "/api/tenants/t-1/charge-rent", api.ChargeRentRequest{Period: "2026-03"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[api.EntryDTO](t, rec)
	assert.Equal(t, "Rent for March 2026", entry.Description)

	rec = s.do(t, http.MethodPost, "/api/tenants/t-1/charge-rent", api.ChargeRentRequest{Period: "2026-03"})

	// THEN: the second is a conflict
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: the tenant pays in full
	rec = s.do(t, http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "t-1", Amount: "30000", PaymentMethod: "mpesa"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "MPESA", decode[api.EntryDTO](t, rec).PaymentMethod)

	// THEN: nothing is owed
	bal := decode[api.BalanceDTO](t, s.do(t, http.MethodGet, "/api/tenants/t-1/balance", nil))
	assert.Equal(t, "0.00", bal.Balance)
	assert.Equal(t, "30000.00", bal.TotalCharges)
	assert.False(t, bal.Overdue)

	// WHEN: the tenant moves out
	rec = s.do(t, http.MethodPost, "/api/tenants/t-1/move-out", api.MoveOutRequest{Date: "2026-03-31"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tenant := decode[api.TenantDTO](t, rec)
	assert.False(t, tenant.Active)
	require.NotNil(t, tenant.MoveOutDate)
	assert.Equal(t, "2026-03-31", *tenant.MoveOutDate)

	// THEN: the unit is vacant, the lease terminated, and a second move-out conflicts
	unit = decode[api.UnitDTO](t, s.do(t, http.MethodGet, "/api/units/u-1", nil))
	assert.Equal(t, "VACANT", unit.Status)
	leases = decode[[]api.LeaseDTO](t, s.do(t, http.MethodGet, "/api/leases?tenant_id=t-1", nil))
	assert.Equal(t, "TERMINATED", leases[0].Status)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/tenants/t-1/move-out", nil).Code)
}

func TestUpdateTenant_MoveOutDateMovesOut(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	rec := s.do(t, http.MethodPut, "/api/tenants/t-brian", api.TenantRequest{
		FirstName: "Brian", LastName: "Otieno", Phone: "+254711111111", MoveOutDate: "2026-03-20",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tenant := decode[api.TenantDTO](t, rec)
	assert.Equal(t, "+254711111111", tenant.Phone)
	assert.False(t, tenant.Active)

	unit := decode[api.UnitDTO](t, s.do(t, http.MethodGet, "/api/units/u-a2", nil))
	assert.Equal(t, "VACANT", unit.Status)

	// A recorded move-out date cannot be changed.
	rec = s.do(t, http.MethodPut, "/api/tenants/t-brian", api.TenantRequest{FirstName: "Brian", MoveOutDate: "2026-03-25"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Nor can the unit of a tenant who left.
	rec = s.do(t, http.MethodPut, "/api/tenants/t-brian", api.TenantRequest{FirstName: "Brian", UnitID: "u-a1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateTenant_FailedMoveOutKeepsTenantUnchanged(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	// WHEN: contact edits arrive with a move-out date before the move-in
	rec := s.do(t, http.MethodPut, "/api/tenants/t-brian", api.TenantRequest{
		FirstName: "Changed", LastName: "Otieno", Phone: "+254700000999", MoveOutDate: "1990-01-01",
	})

	// THEN: the whole update is refused
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "move-out date precedes move-in date")

	tenant := decode[api.TenantDTO](t, s.do(t, http.MethodGet, "/api/tenants/t-brian", nil))
	assert.Equal(t, "Brian", tenant.FirstName)
	assert.Equal(t, "+254700000002", tenant.Phone)
	assert.True(t, tenant.Active)
}

// =============================================================================
// BILLING RUNS
// =============================================================================

func TestChargeAllRent_IsIdempotentPerPeriod(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	// GIVEN: the scenario already charged March
	rec := s.do(t, http.MethodPost, "/api/payments/charge-all-rent", api.RunRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[api.RunResultDTO](t, rec)
	assert.Equal(t, "2026-03", res.Period)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Skipped, 3)
	assert.Equal(t, "already_charged", res.Skipped[0].Reason)

	// WHEN: April is charged
	rec = s.do(t, http.MethodPost, "/api/payments/charge-all-rent", api.RunRequest{Period: "2026-04"})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[api.RunResultDTO](t, rec)

	// THEN: every active tenant is charged their unit's rent
	assert.Len(t, res.Applied, 3)
	assert.Equal(t, "90000.00", res.Total)
	assert.Len(t, s.notes.Calls(), 1+3) // the seed payment receipt, then three rent notices

	rec = s.do(t, http.MethodPost, "/api/payments/charge-all-rent", api.RunRequest{Period: "April"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyLateFees_ChargesTenantsPastGrace(t *testing.T) {
	s := newServer(t)
	s.load(t, "arrears")

	// WHEN: a dry run, then a real run
	rec := s.do(t, http.MethodPost, "/api/billing/late-fees", api.RunRequest{DryRun: true})
	require.Equal(t, http.StatusOK, rec.Code)
	dry := decode[api.RunResultDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/api/billing/late-fees", api.RunRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.RunResultDTO](t, rec)

	// THEN: Brian and Chloe owe since February 1st (42 days); Amina is paid up
	assert.True(t, dry.DryRun)
	assert.Equal(t, res.Total, dry.Total)
	require.Len(t, res.Applied, 2)
	assert.Equal(t, "3250.00", res.Total) // 5% of 30000 + 5% of 35000
	for _, o := range res.Applied {
		assert.Equal(t, 42, o.DaysOverdue)
	}
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "no_balance", res.Skipped[0].Reason)

	// AND: a second run in the same month charges nothing
	res = decode[api.RunResultDTO](t, s.do(t, http.MethodPost, "/api/billing/late-fees", nil))
	assert.Empty(t, res.Applied)

	fees := decode[[]api.EntryDTO](t, s.do(t, http.MethodGet, "/api/payments?category=late_fee", nil))
	assert.Len(t, fees, 2)
}

func TestSendReminders(t *testing.T) {
	s := newServer(t)
	s.load(t, "arrears")
	before := len(s.notes.Calls())

	res := decode[api.RunResultDTO](t, s.do(t, http.MethodPost, "/api/billing/reminders", nil))

	// Last charge was March 1st, 14 days ago.
	require.Len(t, res.Applied, 2)
	calls := s.notes.Calls()[before:]
	require.Len(t, calls, 2)
	assert.Equal(t, notify.KindLatePayment, calls[0].Kind)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestGetStatement_Formats(t *testing.T) {
	s := newServer(t)
	s.load(t, "arrears")

	rec := s.do(t, http.MethodGet, "/api/tenants/t-brian/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stmt := decode[api.StatementDTO](t, rec)
	require.Len(t, stmt.Lines, 3)
	assert.Equal(t, "30000.00", stmt.Lines[0].Balance)
	assert.Equal(t, "0.00", stmt.Lines[1].Balance)
	assert.Equal(t, "30000.00", stmt.Balance)

	rec = s.do(t, http.MethodGet, "/api/tenants/t-brian/statement?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "TENANT STATEMENT")

	rec = s.do(t, http.MethodGet, "/api/tenants/t-brian/statement?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Brian Otieno")

	rec = s.do(t, http.MethodGet, "/api/tenants/t-brian/statement?from=2026-03-01", nil)
	assert.Len(t, decode[api.StatementDTO](t, rec).Lines, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/tenants/t-brian/statement?format=pdf", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/tenants/nobody/statement", nil).Code)
}

func TestGetInvoice(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	charges := decode[[]api.EntryDTO](t, s.do(t, http.MethodGet, "/api/payments?tenant_id=t-chloe&kind=charge", nil))
	require.Len(t, charges, 1)

	rec := s.do(t, http.MethodGet, "/api/payments/"+charges[0].ID+"/invoice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv := decode[api.InvoiceDTO](t, rec)
	assert.Regexp(t, `^INV-\d{6}$`, inv.Number)
	assert.Equal(t, "March 2026", inv.Period)
	assert.Equal(t, "35000.00", inv.Total)

	rec = s.do(t, http.MethodGet, "/api/payments/"+charges[0].ID+"/invoice?format=text", nil)
	assert.Contains(t, rec.Body.String(), "RENT INVOICE")

	payments := decode[[]api.EntryDTO](t, s.do(t, http.MethodGet, "/api/payments?kind=PAYMENT", nil))
	require.Len(t, payments, 1)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/payments/"+payments[0].ID+"/invoice", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/payments/nope/invoice", nil).Code)
}

// =============================================================================
// PROPERTY
// =============================================================================

func TestMaintenanceWorkflow(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	rec := s.do(t, http.MethodPost, "/api/maintenance", api.CreateMaintenanceRequest{
		UnitID: "u-a1", TenantID: "t-amina", Title: "Leaking tap", Category: "PLUMBING",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[api.MaintenanceDTO](t, rec)
	assert.Equal(t, "PENDING", m.Status)
	assert.Equal(t, "MEDIUM", m.Priority)

	rec = s.do(t, http.MethodPost, "/api/maintenance/"+m.ID+"/status", api.MaintenanceStatusRequest{Status: "COMPLETED", Notes: "Washer replaced"})
	require.Equal(t, http.StatusOK, rec.Code)
	m = decode[api.MaintenanceDTO](t, rec)
	assert.NotNil(t, m.CompletedAt)
	assert.Equal(t, "Washer replaced", m.ResolutionNotes)

	// COMPLETED is terminal.
	rec = s.do(t, http.MethodPost, "/api/maintenance/"+m.ID+"/status", api.MaintenanceStatusRequest{Status: "PENDING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnitMaintenanceSurvivesTenantWrites(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	rec := s.do(t, http.MethodPost, "/api/units/u-a1/maintenance", api.UnitMaintenanceRequest{Maintenance: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/tenants/t-amina", api.TenantRequest{FirstName: "Amina", Notes: "prefers SMS"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	unit := decode[api.UnitDTO](t, s.do(t, http.MethodGet, "/api/units/u-a1", nil))
	assert.Equal(t, "MAINTENANCE", unit.Status)

	// Leaving maintenance derives the status from the tenants again.
	rec = s.do(t, http.MethodPost, "/api/units/u-a1/maintenance", api.UnitMaintenanceRequest{Maintenance: false})
	assert.Equal(t, "OCCUPIED", decode[api.UnitDTO](t, rec).Status)
}

func TestBuildingStatsAndExpiringLeases(t *testing.T) {
	s := newServer(t)
	s.load(t, "turnover")

	stats := decode[api.BuildingStatsDTO](t, s.do(t, http.MethodGet, "/api/buildings/b-sunrise/stats", nil))
	assert.Equal(t, 2, stats.Occupied)
	assert.Equal(t, 1, stats.Vacant)
	assert.Equal(t, 1, stats.UnderMaintenance)
	assert.Equal(t, "50.00", stats.OccupancyRate)
	assert.Equal(t, "55000.00", stats.ActualIncome)

	leases := decode[[]api.LeaseDTO](t, s.do(t, http.MethodGet, "/api/leases/expiring-soon", nil))
	require.Len(t, leases, 1)
	assert.Equal(t, "t-brian", leases[0].TenantID)

	activity := decode[[]api.ActivityDTO](t, s.do(t, http.MethodGet, "/api/activity?model=tenant&object_id=t-chloe", nil))
	require.NotEmpty(t, activity)
	assert.Equal(t, "MOVE_OUT", activity[0].Action)
}

func TestCreateLease_ForMovedOutTenant(t *testing.T) {
	s := newServer(t)
	s.load(t, "turnover")

	rec := s.do(t, http.MethodPost, "/api/leases", api.LeaseRequest{TenantID: "t-chloe", StartDate: "2026-04-01", EndDate: "2027-03-31"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/leases", api.LeaseRequest{TenantID: "t-amina", StartDate: "2026-04-01", EndDate: "2026-03-31"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/leases", api.LeaseRequest{TenantID: "t-amina", StartDate: "2026-09-01", EndDate: "2027-08-31", MonthlyRent: "27000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "27000.00", decode[api.LeaseDTO](t, rec).MonthlyRent)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown tenant", http.MethodGet, "/api/tenants/nobody", nil, http.StatusNotFound},
		{"unknown unit", http.MethodGet, "/api/units/nope", nil, http.StatusNotFound},
		{"balance of unknown tenant", http.MethodGet, "/api/tenants/nobody/balance", nil, http.StatusNotFound},
		{"zero payment", http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "t-amina", Amount: "0"}, http.StatusBadRequest},
		{"sub-cent payment", http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "t-amina", Amount: "10.005"}, http.StatusBadRequest},
		{"non-numeric amount", http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "t-amina", Amount: "ten"}, http.StatusBadRequest},
		{"payment for unknown tenant", http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "nobody", Amount: "100"}, http.StatusNotFound},
		{"bad method", http.MethodPost, "/api/payments", api.EntryRequest{TenantID: "t-amina", Amount: "100", PaymentMethod: "gold"}, http.StatusBadRequest},
		{"unit in unknown building", http.MethodPost, "/api/units", api.CreateUnitRequest{BuildingID: "nope", Number: "9", MonthlyRent: "100"}, http.StatusNotFound},
		{"bad unit status filter", http.MethodGet, "/api/units?status=HAUNTED", nil, http.StatusBadRequest},
		{"unknown scenario", http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/buildings", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_ListAndCurrent(t *testing.T) {
	s := newServer(t)

	list := decode[[]api.ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(api.Scenarios))

	s.load(t, "arrears")
	current := decode[api.ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "arrears", current.ID)

	// Loading again resets first, so nothing is duplicated.
	s.load(t, "arrears")
	tenants := decode[[]api.TenantDTO](t, s.do(t, http.MethodGet, "/api/tenants", nil))
	assert.Len(t, tenants, 3)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/scenarios/reset", nil).Code)
	tenants = decode[[]api.TenantDTO](t, s.do(t, http.MethodGet, "/api/tenants", nil))
	assert.Empty(t, tenants)
}

func TestSeeder_UnknownScenario(t *testing.T) {
	s := newServer(t)
	err := api.Seeder{Occupancy: s.occupancy, Billing: s.engine, Today: today}.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, api.ErrUnknownScenario)
}

/*
handlers.go - HTTP API handlers for the tenancy engine

PURPOSE:
  Exposes the occupancy and billing services via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to domain logic.
  No handler writes to a store directly.

ENDPOINTS:
  Property:
    GET    /api/buildings                  List buildings
    POST   /api/buildings                  Create building
    GET    /api/buildings/{id}/stats       Occupancy and rent roll
    GET    /api/units                      List units (?building_id, ?status)
    POST   /api/units                      Create unit
    GET    /api/units/{id}                 Get unit
    POST   /api/units/{id}/maintenance     Enter or leave MAINTENANCE

  Tenants:
    GET    /api/tenants                    List tenants (?active, ?unit_id)
    POST   /api/tenants                    Move a tenant in
    GET    /api/tenants/{id}               Get tenant
    PUT    /api/tenants/{id}               Update tenant
    POST   /api/tenants/{id}/move-out      Record move-out

  Leases & maintenance:
    GET    /api/leases                     List leases
    POST   /api/leases                     Sign a lease
    GET    /api/leases/expiring-soon       ACTIVE leases ending within 60 days
    GET    /api/maintenance                List requests
    POST   /api/maintenance                Report a problem
    POST   /api/maintenance/{id}/status    Change status

  Activity:
    GET    /api/activity                   Activity log (?model, ?object_id)

  Billing endpoints live in billing_handlers.go.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (period already charged, tenant already moved out)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - billing_handlers.go: Ledger, statements and billing runs
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/occupancy"
	"github.com/warp/tenancy-engine/property"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Billing   *billing.Engine
	Occupancy *occupancy.Service
	Logger    *zap.Logger
	Currency  ledger.Currency
	Now       func() time.Time

	// Reset clears every store before a scenario loads. Nil disables
	// the scenario endpoints.
	Reset func(ctx context.Context) error

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the two services.
func NewHandler(engine *billing.Engine, occ *occupancy.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Billing:   engine,
		Occupancy: occ,
		Logger:    logger,
		Currency:  ledger.DefaultCurrency,
		Now:       time.Now,
	}
}

func (h *Handler) store() property.Store { return h.Occupancy.Store() }

func (h *Handler) today() time.Time { return ledger.DateOf(h.Now()) }

// =============================================================================
// BUILDING & UNIT HANDLERS
// =============================================================================

func (h *Handler) ListBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := h.store().ListBuildings(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list buildings", err)
		return
	}
	dtos := make([]BuildingDTO, len(buildings))
	for i, b := range buildings {
		dtos[i] = toBuildingDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateBuilding(w http.ResponseWriter, r *http.Request) {
	var req CreateBuildingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Occupancy.AddBuilding(r.Context(), property.Building{
		ID:          property.BuildingID(req.ID),
		Name:        req.Name,
		Address:     req.Address,
		TotalUnits:  req.TotalUnits,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, "Failed to create building", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBuildingDTO(b))
}

// GetBuildingStats returns occupancy and rent roll for one building.
// GET /api/buildings/{id}/stats
func (h *Handler) GetBuildingStats(w http.ResponseWriter, r *http.Request) {
	id := property.BuildingID(chi.URLParam(r, "id"))

	s, err := h.Occupancy.BuildingStats(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to compute building stats", err)
		return
	}
	writeJSON(w, http.StatusOK, BuildingStatsDTO{
		BuildingID:       string(s.BuildingID),
		Occupied:         s.Occupied,
		Vacant:           s.Vacant,
		UnderMaintenance: s.UnderMaintenance,
		OccupancyRate:    s.OccupancyRate.StringFixed(2),
		PotentialIncome:  s.PotentialIncome.String(),
		ActualIncome:     s.ActualIncome.String(),
	})
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.UnitFilter{
		BuildingID: property.BuildingID(q.Get("building_id")),
		Status:     property.UnitStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid unit status", nil)
		return
	}

	units, err := h.store().ListUnits(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list units", err)
		return
	}
	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rent, err := h.parseMoney(req.MonthlyRent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid monthly_rent", err)
		return
	}

	u, err := h.Occupancy.AddUnit(r.Context(), property.Unit{
		ID:          property.UnitID(req.ID),
		BuildingID:  property.BuildingID(req.BuildingID),
		Number:      req.Number,
		MonthlyRent: rent,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		SquareFeet:  req.SquareFeet,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, "Failed to create unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(u))
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.store().GetUnit(r.Context(), property.UnitID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

// SetUnitMaintenance puts a unit into or out of MAINTENANCE.
// POST /api/units/{id}/maintenance
func (h *Handler) SetUnitMaintenance(w http.ResponseWriter, r *http.Request) {
	var req UnitMaintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	u, err := h.Occupancy.SetUnitMaintenance(r.Context(), property.UnitID(chi.URLParam(r, "id")), req.Maintenance)
	if err != nil {
		writeDomainError(w, "Failed to update unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns tenants, optionally only active ones or one unit's.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.TenantFilter{UnitID: property.UnitID(q.Get("unit_id"))}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid active flag", err)
			return
		}
		filter.ActiveOnly = active
	}

	tenants, err := h.store().ListTenants(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list tenants", err)
		return
	}
	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toTenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant moves a tenant in, with a lease when one is given.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := h.tenantFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	if t.MoveInDate.IsZero() {
		t.MoveInDate = h.today()
	}
	t.MoveOutDate = nil

	var terms *occupancy.LeaseTerms
	if req.Lease != nil {
		lt, err := h.leaseTerms(*req.Lease)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid lease", err)
			return
		}
		terms = &lt
	}

	tenant, lease, err := h.Occupancy.MoveIn(r.Context(), occupancy.MoveInRequest{Tenant: t, Lease: terms})
	if err != nil {
		writeDomainError(w, "Failed to create tenant", err)
		return
	}

	resp := struct {
		TenantDTO
		Lease *LeaseDTO `json:"lease,omitempty"`
	}{TenantDTO: toTenantDTO(tenant)}
	if lease != nil {
		l := toLeaseDTO(*lease)
		resp.Lease = &l
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.store().GetTenant(r.Context(), ledger.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(t))
}

// UpdateTenant overwrites a tenant's details. Setting move_out_date on an
// active tenant performs the full move-out; a recorded date cannot change.
// PUT /api/tenants/{id}
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.TenantID(chi.URLParam(r, "id"))

	prev, err := h.store().GetTenant(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}

	var req TenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := h.tenantFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	t.ID = id
	if t.UnitID == "" {
		t.UnitID = prev.UnitID
	}
	if t.MoveInDate.IsZero() {
		t.MoveInDate = prev.MoveInDate
	}
	if t.Deposit.Currency == "" {
		t.Deposit = prev.Deposit
	}

	// A move-out date on an active tenant is a move-out, applied together
	// with the other edits.
	var moveOut *time.Time
	if prev.IsActive() {
		moveOut, t.MoveOutDate = t.MoveOutDate, nil
	} else if t.MoveOutDate == nil {
		t.MoveOutDate = prev.MoveOutDate
	}

	saved, err := h.Occupancy.UpdateTenant(ctx, t, moveOut)
	if err != nil {
		writeDomainError(w, "Failed to update tenant", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(saved))
}

// MoveOut records the tenant's departure.
// POST /api/tenants/{id}/move-out
func (h *Handler) MoveOut(w http.ResponseWriter, r *http.Request) {
	var req MoveOutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	on, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	if on.IsZero() {
		on = h.today()
	}

	t, err := h.Occupancy.MoveOut(r.Context(), ledger.TenantID(chi.URLParam(r, "id")), on)
	if err != nil {
		writeDomainError(w, "Failed to move tenant out", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(t))
}

func (h *Handler) tenantFromRequest(req TenantRequest) (property.Tenant, error) {
	moveIn, err := parseOptionalDate(req.MoveInDate)
	if err != nil {
		return property.Tenant{}, err
	}
	t := property.Tenant{
		ID:                    ledger.TenantID(req.ID),
		UnitID:                property.UnitID(req.UnitID),
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Email:                 req.Email,
		Phone:                 req.Phone,
		IDNumber:              req.IDNumber,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		MoveInDate:            moveIn,
		Notes:                 req.Notes,
	}
	if req.MoveOutDate != "" {
		out, err := ledger.ParseDate(req.MoveOutDate)
		if err != nil {
			return property.Tenant{}, err
		}
		t.MoveOutDate = &out
	}
	if req.Deposit != "" {
		if t.Deposit, err = ledger.ParseMoney(req.Deposit, h.Currency); err != nil {
			return property.Tenant{}, err
		}
	}
	return t, nil
}

// =============================================================================
// LEASE HANDLERS
// =============================================================================

func (h *Handler) ListLeases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.LeaseFilter{
		TenantID: ledger.TenantID(q.Get("tenant_id")),
		UnitID:   property.UnitID(q.Get("unit_id")),
		Status:   property.LeaseStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid lease status", nil)
		return
	}

	leases, err := h.store().ListLeases(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list leases", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

// ListExpiringLeases returns ACTIVE leases ending within 60 days.
// GET /api/leases/expiring-soon
func (h *Handler) ListExpiringLeases(w http.ResponseWriter, r *http.Request) {
	leases, err := h.Occupancy.ExpiringSoon(r.Context(), h.today())
	if err != nil {
		writeDomainError(w, "Failed to list leases", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var req LeaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	terms, err := h.leaseTerms(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease", err)
		return
	}

	lease, err := h.Occupancy.SignLease(r.Context(), ledger.TenantID(req.TenantID), terms)
	if err != nil {
		writeDomainError(w, "Failed to create lease", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaseDTO(lease))
}

func (h *Handler) leaseTerms(req LeaseRequest) (occupancy.LeaseTerms, error) {
	start, err := ledger.ParseDate(req.StartDate)
	if err != nil {
		return occupancy.LeaseTerms{}, err
	}
	end, err := ledger.ParseDate(req.EndDate)
	if err != nil {
		return occupancy.LeaseTerms{}, err
	}
	rent, err := h.parseMoney(req.MonthlyRent)
	if err != nil {
		return occupancy.LeaseTerms{}, fmt.Errorf("monthly_rent: %w", err)
	}
	deposit, err := h.parseMoney(req.SecurityDeposit)
	if err != nil {
		return occupancy.LeaseTerms{}, fmt.Errorf("security_deposit: %w", err)
	}
	return occupancy.LeaseTerms{
		StartDate:       start,
		EndDate:         end,
		MonthlyRent:     rent,
		SecurityDeposit: deposit,
		Terms:           req.Terms,
	}, nil
}

func leaseDTOs(leases []property.Lease) []LeaseDTO {
	dtos := make([]LeaseDTO, len(leases))
	for i, l := range leases {
		dtos[i] = toLeaseDTO(l)
	}
	return dtos
}

// =============================================================================
// MAINTENANCE HANDLERS
// =============================================================================

func (h *Handler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.MaintenanceFilter{
		TenantID: ledger.TenantID(q.Get("tenant_id")),
		UnitID:   property.UnitID(q.Get("unit_id")),
		Status:   property.MaintenanceStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid maintenance status", nil)
		return
	}

	reqs, err := h.store().ListMaintenance(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list maintenance requests", err)
		return
	}
	dtos := make([]MaintenanceDTO, len(reqs))
	for i, m := range reqs {
		dtos[i] = toMaintenanceDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var req CreateMaintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cost, err := h.parseMoney(req.EstimatedCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid estimated_cost", err)
		return
	}

	m, err := h.Occupancy.ReportMaintenance(r.Context(), property.MaintenanceRequest{
		TenantID:      ledger.TenantID(req.TenantID),
		UnitID:        property.UnitID(req.UnitID),
		Title:         req.Title,
		Description:   req.Description,
		Priority:      property.Priority(req.Priority),
		Category:      property.MaintenanceCategory(req.Category),
		AssignedTo:    req.AssignedTo,
		EstimatedCost: cost,
	})
	if err != nil {
		writeDomainError(w, "Failed to report maintenance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMaintenanceDTO(m))
}

// UpdateMaintenanceStatus moves a request along its state machine.
// POST /api/maintenance/{id}/status
func (h *Handler) UpdateMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Occupancy.UpdateMaintenanceStatus(r.Context(),
		property.MaintenanceID(chi.URLParam(r, "id")),
		property.MaintenanceStatus(req.Status),
		req.Notes,
	)
	if err != nil {
		writeDomainError(w, "Failed to update maintenance request", err)
		return
	}
	writeJSON(w, http.StatusOK, toMaintenanceDTO(m))
}

// =============================================================================
// ACTIVITY
// =============================================================================

// ListActivity returns the activity log, newest first.
// GET /api/activity?model=tenant&object_id=...&limit=50
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.AuditFilter{
		Model:    q.Get("model"),
		ObjectID: q.Get("object_id"),
		Action:   property.AuditAction(q.Get("action")),
		Limit:    100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.store().ListAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list activity", err)
		return
	}
	dtos := make([]ActivityDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toActivityDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's sentinel.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsConflict(err), errors.Is(err, property.ErrAlreadyMovedOut):
		return http.StatusConflict
	case ledger.IsNotFound(err), property.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsClientError(err), property.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDate(s)
}

// parseMoney reads an amount in the handler's currency. An empty string
// is the zero Money, which callers treat as "not given".
func (h *Handler) parseMoney(s string) (ledger.Money, error) {
	if s == "" {
		return ledger.Money{}, nil
	}
	return ledger.ParseMoney(s, h.Currency)
}

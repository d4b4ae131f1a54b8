/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money travels as a
  decimal string ("30000.00") with a separate currency, dates as
  YYYY-MM-DD, timestamps as RFC 3339.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the services they call, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing_handlers.go: Ledger and billing-run endpoints
*/
package api

import (
	"time"

	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
	"github.com/warp/tenancy-engine/statement"
)

// =============================================================================
// PROPERTY
// =============================================================================

type BuildingDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	TotalUnits  int    `json:"total_units"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type CreateBuildingRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	TotalUnits  int    `json:"total_units"`
	Description string `json:"description"`
}

type BuildingStatsDTO struct {
	BuildingID       string `json:"building_id"`
	Occupied         int    `json:"occupied"`
	Vacant           int    `json:"vacant"`
	UnderMaintenance int    `json:"under_maintenance"`
	OccupancyRate    string `json:"occupancy_rate"`
	PotentialIncome  string `json:"potential_income"`
	ActualIncome     string `json:"actual_income"`
}

type UnitDTO struct {
	ID          string `json:"id"`
	BuildingID  string `json:"building_id"`
	Number      string `json:"number"`
	MonthlyRent string `json:"monthly_rent"`
	Currency    string `json:"currency"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	SquareFeet  int    `json:"square_feet,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

type CreateUnitRequest struct {
	ID          string `json:"id"`
	BuildingID  string `json:"building_id"`
	Number      string `json:"number"`
	MonthlyRent string `json:"monthly_rent"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	SquareFeet  int    `json:"square_feet"`
	Description string `json:"description"`
}

type UnitMaintenanceRequest struct {
	Maintenance bool `json:"maintenance"`
}

type TenantDTO struct {
	ID                    string  `json:"id"`
	UnitID                string  `json:"unit_id"`
	FirstName             string  `json:"first_name"`
	LastName              string  `json:"last_name"`
	FullName              string  `json:"full_name"`
	Email                 string  `json:"email,omitempty"`
	Phone                 string  `json:"phone,omitempty"`
	IDNumber              string  `json:"id_number,omitempty"`
	EmergencyContactName  string  `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string  `json:"emergency_contact_phone,omitempty"`
	MoveInDate            string  `json:"move_in_date"`
	MoveOutDate           *string `json:"move_out_date"`
	Active                bool    `json:"active"`
	Deposit               string  `json:"deposit"`
	Notes                 string  `json:"notes,omitempty"`
}

// TenantRequest creates or updates a tenant. Lease is only read on create.
type TenantRequest struct {
	ID                    string        `json:"id"`
	UnitID                string        `json:"unit_id"`
	FirstName             string        `json:"first_name"`
	LastName              string        `json:"last_name"`
	Email                 string        `json:"email"`
	Phone                 string        `json:"phone"`
	IDNumber              string        `json:"id_number"`
	EmergencyContactName  string        `json:"emergency_contact_name"`
	EmergencyContactPhone string        `json:"emergency_contact_phone"`
	MoveInDate            string        `json:"move_in_date"`
	MoveOutDate           string        `json:"move_out_date"`
	Deposit               string        `json:"deposit"`
	Notes                 string        `json:"notes"`
	Lease                 *LeaseRequest `json:"lease,omitempty"`
}

type MoveOutRequest struct {
	Date string `json:"date"` // empty means today
}

type LeaseDTO struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	UnitID          string `json:"unit_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	MonthlyRent     string `json:"monthly_rent"`
	SecurityDeposit string `json:"security_deposit"`
	Status          string `json:"status"`
	Terms           string `json:"terms,omitempty"`
}

type LeaseRequest struct {
	TenantID        string `json:"tenant_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	MonthlyRent     string `json:"monthly_rent"`
	SecurityDeposit string `json:"security_deposit"`
	Terms           string `json:"terms"`
}

type MaintenanceDTO struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id,omitempty"`
	UnitID          string  `json:"unit_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Priority        string  `json:"priority"`
	Category        string  `json:"category"`
	Status          string  `json:"status"`
	ReportedAt      string  `json:"reported_at"`
	CompletedAt     *string `json:"completed_at"`
	AssignedTo      string  `json:"assigned_to,omitempty"`
	ResolutionNotes string  `json:"resolution_notes,omitempty"`
}

type CreateMaintenanceRequest struct {
	TenantID      string `json:"tenant_id"`
	UnitID        string `json:"unit_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	Category      string `json:"category"`
	AssignedTo    string `json:"assigned_to"`
	EstimatedCost string `json:"estimated_cost"`
}

type MaintenanceStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type ActivityDTO struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Actor       string `json:"actor"`
	Action      string `json:"action"`
	Model       string `json:"model"`
	ObjectID    string `json:"object_id"`
	Description string `json:"description"`
}

// =============================================================================
// LEDGER & BILLING
// =============================================================================

type EntryDTO struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Kind            string `json:"kind"`
	Category        string `json:"category"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Date            string `json:"date"`
	Description     string `json:"description"`
	PeriodKey       string `json:"period,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Notes           string `json:"notes,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// EntryRequest records a payment (the default) or a one-off charge.
type EntryRequest struct {
	TenantID        string `json:"tenant_id"`
	Kind            string `json:"kind"` // PAYMENT or CHARGE
	Category        string `json:"category"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	Period          string `json:"period"` // YYYY-MM, charges only
	PaymentMethod   string `json:"payment_method"`
	ReferenceNumber string `json:"reference_number"`
	Description     string `json:"description"`
	Notes           string `json:"notes"`
}

type ChargeRentRequest struct {
	Period      string `json:"period"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Notify      bool   `json:"notify"`
}

// RunRequest drives the batch endpoints. Period is only read by
// charge-all-rent.
type RunRequest struct {
	Period            string `json:"period"`
	DryRun            bool   `json:"dry_run"`
	SkipNotifications bool   `json:"skip_notifications"`
}

type OutcomeDTO struct {
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Amount      string `json:"amount,omitempty"`
	Balance     string `json:"balance,omitempty"`
	DaysOverdue int    `json:"days_overdue,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

type RunResultDTO struct {
	Operation string       `json:"operation"`
	Period    string       `json:"period,omitempty"`
	DryRun    bool         `json:"dry_run"`
	Processed int          `json:"processed"`
	Applied   []OutcomeDTO `json:"applied"`
	Skipped   []OutcomeDTO `json:"skipped"`
	Failed    []OutcomeDTO `json:"failed"`
	Total     string       `json:"total"`
}

type BalanceDTO struct {
	TenantID      string  `json:"tenant_id"`
	AsOf          string  `json:"as_of"`
	TotalCharges  string  `json:"total_charges"`
	TotalPayments string  `json:"total_payments"`
	Balance       string  `json:"balance"`
	Display       string  `json:"display"`
	EntryCount    int     `json:"entry_count"`
	Overdue       bool    `json:"overdue"`
	DaysOverdue   int     `json:"days_overdue"`
	OldestCharge  *string `json:"oldest_charge_date"`
	LatestCharge  *string `json:"latest_charge_date"`
}

type StatementLineDTO struct {
	EntryID     string `json:"entry_id"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Balance     string `json:"balance"`
}

type StatementDTO struct {
	TenantID      string             `json:"tenant_id"`
	Name          string             `json:"name"`
	Building      string             `json:"building"`
	Unit          string             `json:"unit"`
	Lines         []StatementLineDTO `json:"lines"`
	TotalCharges  string             `json:"total_charges"`
	TotalPayments string             `json:"total_payments"`
	Balance       string             `json:"balance"`
	GeneratedAt   string             `json:"generated_at"`
}

// =============================================================================
// MISC
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func toBuildingDTO(b property.Building) BuildingDTO {
	dto := BuildingDTO{
		ID:          string(b.ID),
		Name:        b.Name,
		Address:     b.Address,
		TotalUnits:  b.TotalUnits,
		Description: b.Description,
	}
	if !b.CreatedAt.IsZero() {
		dto.CreatedAt = b.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toUnitDTO(u property.Unit) UnitDTO {
	return UnitDTO{
		ID:          string(u.ID),
		BuildingID:  string(u.BuildingID),
		Number:      u.Number,
		MonthlyRent: u.MonthlyRent.String(),
		Currency:    string(u.MonthlyRent.Currency),
		Bedrooms:    u.Bedrooms,
		Bathrooms:   u.Bathrooms,
		SquareFeet:  u.SquareFeet,
		Status:      string(u.Status),
		Description: u.Description,
	}
}

func toTenantDTO(t property.Tenant) TenantDTO {
	return TenantDTO{
		ID:                    string(t.ID),
		UnitID:                string(t.UnitID),
		FirstName:             t.FirstName,
		LastName:              t.LastName,
		FullName:              t.FullName(),
		Email:                 t.Email,
		Phone:                 t.Phone,
		IDNumber:              t.IDNumber,
		EmergencyContactName:  t.EmergencyContactName,
		EmergencyContactPhone: t.EmergencyContactPhone,
		MoveInDate:            t.MoveInDate.Format(time.DateOnly),
		MoveOutDate:           datePtr(t.MoveOutDate),
		Active:                t.IsActive(),
		Deposit:               t.Deposit.String(),
		Notes:                 t.Notes,
	}
}

func toLeaseDTO(l property.Lease) LeaseDTO {
	return LeaseDTO{
		ID:              string(l.ID),
		TenantID:        string(l.TenantID),
		UnitID:          string(l.UnitID),
		StartDate:       l.StartDate.Format(time.DateOnly),
		EndDate:         l.EndDate.Format(time.DateOnly),
		MonthlyRent:     l.MonthlyRent.String(),
		SecurityDeposit: l.SecurityDeposit.String(),
		Status:          string(l.Status),
		Terms:           l.Terms,
	}
}

func toMaintenanceDTO(m property.MaintenanceRequest) MaintenanceDTO {
	dto := MaintenanceDTO{
		ID:              string(m.ID),
		TenantID:        string(m.TenantID),
		UnitID:          string(m.UnitID),
		Title:           m.Title,
		Description:     m.Description,
		Priority:        string(m.Priority),
		Category:        string(m.Category),
		Status:          string(m.Status),
		ReportedAt:      m.ReportedAt.Format(time.RFC3339),
		AssignedTo:      m.AssignedTo,
		ResolutionNotes: m.ResolutionNotes,
	}
	if m.CompletedAt != nil {
		s := m.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toActivityDTO(a property.AuditEntry) ActivityDTO {
	return ActivityDTO{
		ID:          a.ID,
		Timestamp:   a.Timestamp.Format(time.RFC3339),
		Actor:       a.Actor,
		Action:      string(a.Action),
		Model:       a.Model,
		ObjectID:    a.ObjectID,
		Description: a.Description,
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:              string(e.ID),
		TenantID:        string(e.TenantID),
		Kind:            string(e.Kind),
		Category:        string(e.Category),
		Amount:          e.Amount.String(),
		Currency:        string(e.Amount.Currency),
		Date:            e.TransactionDate.Format(time.DateOnly),
		Description:     e.Description,
		PeriodKey:       e.PeriodKey,
		PaymentMethod:   string(e.PaymentMethod),
		ReferenceNumber: e.ReferenceNumber,
		Notes:           e.Notes,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}

func toOutcomeDTOs(outs []billing.Outcome) []OutcomeDTO {
	dtos := make([]OutcomeDTO, len(outs))
	for i, o := range outs {
		dto := OutcomeDTO{
			TenantID:    string(o.TenantID),
			Name:        o.Name,
			DaysOverdue: o.DaysOverdue,
			EntryID:     string(o.EntryID),
			Reason:      string(o.Reason),
		}
		if o.Amount.Currency != "" {
			dto.Amount = o.Amount.String()
		}
		if o.Balance.Currency != "" {
			dto.Balance = o.Balance.String()
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		dtos[i] = dto
	}
	return dtos
}

func toRunResultDTO(r *billing.RunResult) RunResultDTO {
	dto := RunResultDTO{
		Operation: r.Operation,
		DryRun:    r.DryRun,
		Processed: r.Processed(),
		Applied:   toOutcomeDTOs(r.Applied),
		Skipped:   toOutcomeDTOs(r.Skipped),
		Failed:    toOutcomeDTOs(r.Failed),
		Total:     r.Total.String(),
	}
	if !r.Period.IsZero() {
		dto.Period = r.Period.Key()
	}
	return dto
}

func toBalanceDTO(s ledger.Summary) BalanceDTO {
	dto := BalanceDTO{
		TenantID:      string(s.TenantID),
		AsOf:          s.AsOf.Format(time.DateOnly),
		TotalCharges:  s.TotalCharges.String(),
		TotalPayments: s.TotalPayments.String(),
		Balance:       s.Balance.String(),
		Display:       ledger.FormatMoney(s.Balance),
		EntryCount:    s.EntryCount,
		Overdue:       s.Overdue,
		DaysOverdue:   s.DaysOverdue,
	}
	if s.OldestCharge != nil {
		dto.OldestCharge = datePtr(&s.OldestCharge.TransactionDate)
	}
	if s.LatestCharge != nil {
		dto.LatestCharge = datePtr(&s.LatestCharge.TransactionDate)
	}
	return dto
}

func toStatementDTO(s *statement.Statement) StatementDTO {
	lines := make([]StatementLineDTO, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = StatementLineDTO{
			EntryID:     string(l.EntryID),
			Date:        l.Date.Format(time.DateOnly),
			Kind:        string(l.Kind),
			Category:    string(l.Category),
			Description: l.Description,
			Amount:      l.Amount.String(),
			Balance:     l.Balance.String(),
		}
	}
	return StatementDTO{
		TenantID:      string(s.Party.TenantID),
		Name:          s.Party.Name,
		Building:      s.Party.Building,
		Unit:          s.Party.Unit,
		Lines:         lines,
		TotalCharges:  s.TotalCharges.String(),
		TotalPayments: s.TotalPayments.String(),
		Balance:       s.Balance.String(),
		GeneratedAt:   s.GeneratedAt.Format(time.RFC3339),
	}
}

type InvoiceDTO struct {
	Number       string   `json:"number"`
	IssuedOn     string   `json:"issued_on"`
	Period       string   `json:"period"`
	TenantID     string   `json:"tenant_id"`
	BillTo       string   `json:"bill_to"`
	Unit         string   `json:"unit"`
	Items        []string `json:"items"`
	Total        string   `json:"total"`
	Instructions []string `json:"instructions"`
}

func toInvoiceDTO(inv *statement.Invoice) InvoiceDTO {
	items := make([]string, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = it.Description + ": " + it.Amount.String()
	}
	return InvoiceDTO{
		Number:       inv.Number,
		IssuedOn:     inv.IssuedOn.Format(time.DateOnly),
		Period:       inv.Period,
		TenantID:     string(inv.BillTo.TenantID),
		BillTo:       inv.BillTo.Name,
		Unit:         inv.BillTo.Unit,
		Items:        items,
		Total:        inv.Total.String(),
		Instructions: inv.Instructions,
	}
}

package property

import (
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// MAINTENANCE REQUEST
// =============================================================================

type MaintenanceStatus string

const (
	MaintenancePending    MaintenanceStatus = "PENDING"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceCancelled  MaintenanceStatus = "CANCELLED"
)

// COMPLETED and CANCELLED are terminal.
var maintenanceTransitions = map[MaintenanceStatus][]MaintenanceStatus{
	MaintenancePending:    {MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled},
	MaintenanceInProgress: {MaintenanceCompleted, MaintenanceCancelled},
}

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenancePending, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

func (s MaintenanceStatus) CanTransitionTo(to MaintenanceStatus) bool {
	for _, allowed := range maintenanceTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type MaintenanceCategory string

const (
	MaintenancePlumbing   MaintenanceCategory = "PLUMBING"
	MaintenanceElectrical MaintenanceCategory = "ELECTRICAL"
	MaintenanceHVAC       MaintenanceCategory = "HVAC"
	MaintenanceAppliance  MaintenanceCategory = "APPLIANCE"
	MaintenanceStructural MaintenanceCategory = "STRUCTURAL"
	MaintenancePest       MaintenanceCategory = "PEST"
	MaintenanceOther      MaintenanceCategory = "OTHER"
)

type MaintenanceRequest struct {
	ID              MaintenanceID
	TenantID        ledger.TenantID
	UnitID          UnitID
	Title           string
	Description     string
	Priority        Priority
	Category        MaintenanceCategory
	Status          MaintenanceStatus
	ReportedAt      time.Time
	ScheduledDate   *time.Time
	CompletedAt     *time.Time
	AssignedTo      string
	EstimatedCost   ledger.Money
	ActualCost      ledger.Money
	ResolutionNotes string
	UpdatedAt       time.Time
}

// UpdateStatus applies a status change. Completing a request stamps
// CompletedAt and, when notes are given, records them as the resolution.
func (m *MaintenanceRequest) UpdateStatus(to MaintenanceStatus, notes string, now time.Time) error {
	if !to.Valid() || !m.Status.CanTransitionTo(to) {
		return &TransitionError{Record: "maintenance request", ID: string(m.ID), From: string(m.Status), To: string(to)}
	}
	m.Status = to
	m.UpdatedAt = now
	if to == MaintenanceCompleted {
		completed := now
		m.CompletedAt = &completed
		if notes != "" {
			m.ResolutionNotes = notes
		}
	}
	return nil
}

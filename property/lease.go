package property

import (
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// LEASE
// =============================================================================

type LeaseStatus string

const (
	LeaseDraft      LeaseStatus = "DRAFT"
	LeaseActive     LeaseStatus = "ACTIVE"
	LeaseExpired    LeaseStatus = "EXPIRED"
	LeaseTerminated LeaseStatus = "TERMINATED"
)

// ExpiringSoonWindow is how far ahead IsExpiringSoon looks.
const ExpiringSoonWindow = 60 * 24 * time.Hour

var leaseTransitions = map[LeaseStatus][]LeaseStatus{
	LeaseDraft:  {LeaseActive, LeaseTerminated},
	LeaseActive: {LeaseExpired, LeaseTerminated},
}

func (s LeaseStatus) Valid() bool {
	switch s {
	case LeaseDraft, LeaseActive, LeaseExpired, LeaseTerminated:
		return true
	}
	return false
}

func (s LeaseStatus) CanTransitionTo(to LeaseStatus) bool {
	for _, allowed := range leaseTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Lease struct {
	ID              LeaseID
	TenantID        ledger.TenantID
	UnitID          UnitID
	StartDate       time.Time
	EndDate         time.Time
	MonthlyRent     ledger.Money
	SecurityDeposit ledger.Money
	Status          LeaseStatus
	Terms           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpiringSoon reports whether an ACTIVE lease ends within
// [today, today+60 days].
func (l Lease) IsExpiringSoon(today time.Time) bool {
	if l.Status != LeaseActive {
		return false
	}
	end := ledger.DateOf(l.EndDate)
	start := ledger.DateOf(today)
	return !end.Before(start) && !end.After(start.Add(ExpiringSoonWindow))
}

// Transition moves the lease to a new status.
func (l *Lease) Transition(to LeaseStatus) error {
	if !l.Status.CanTransitionTo(to) {
		return &TransitionError{Record: "lease", ID: string(l.ID), From: string(l.Status), To: string(to)}
	}
	l.Status = to
	return nil
}

// Terminate ends an ACTIVE or DRAFT lease on the given date.
func (l *Lease) Terminate(on time.Time) error {
	if err := l.Transition(LeaseTerminated); err != nil {
		return err
	}
	l.EndDate = ledger.DateOf(on)
	return nil
}

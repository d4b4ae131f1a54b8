package property

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrBuildingNotFound    = errors.New("building not found")
	ErrUnitNotFound        = errors.New("unit not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrLeaseNotFound       = errors.New("lease not found")
	ErrMaintenanceNotFound = errors.New("maintenance request not found")

	// ErrAlreadyMovedOut is returned when move-out is attempted twice.
	ErrAlreadyMovedOut = errors.New("tenant already moved out")

	// ErrInvalidTransition is returned for a status change the record's
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRecord is returned when a record fails basic validation.
	ErrInvalidRecord = errors.New("invalid record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type AlreadyMovedOutError struct {
	TenantID    ledger.TenantID
	MoveOutDate time.Time
}

func (e *AlreadyMovedOutError) Error() string {
	return fmt.Sprintf("tenant %s already moved out on %s", e.TenantID, e.MoveOutDate.Format(time.DateOnly))
}

func (e *AlreadyMovedOutError) Unwrap() error { return ErrAlreadyMovedOut }

type TransitionError struct {
	Record string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot go from %s to %s", e.Record, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyMovedOut) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidRecord)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBuildingNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrLeaseNotFound) ||
		errors.Is(err, ErrMaintenanceNotFound)
}

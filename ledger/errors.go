/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger error kinds in one place. Callers branch with errors.Is on the
  sentinels; the structured types carry the detail for logs and API bodies.

ERROR CATEGORIES:
  1. Integrity errors - InvalidAmount. Surfaced synchronously to the caller,
     nothing is written.
  2. Idempotency - DuplicatePeriodCharge. A skip, not a failure: batch jobs
     count it separately and move on.
  3. Batch errors - PartialBatchFailure. Some tenants in a batch failed;
     the rest were processed.
  4. Side-effect errors - NotificationFailure. Logged by whoever delivers
     notifications, never returned from a ledger write.

SEE ALSO:
  - ledger.go: returns InvalidAmountError and DuplicatePeriodChargeError
  - billing/: wraps per-tenant failures into PartialBatchError
  - notify/dispatcher.go: logs NotificationFailure
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount is <= 0 or finer than 0.01.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidEntry is returned when an entry is missing its tenant, kind
	// or date.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrDuplicatePeriodCharge is returned when a charge for the same
	// (tenant, period, category) already exists.
	ErrDuplicatePeriodCharge = errors.New("duplicate period charge")

	// ErrEntryNotFound is returned when an entry ID is unknown.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidPeriod is returned when a billing period label can't be parsed.
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrPartialBatchFailure is returned alongside a batch result when at
	// least one tenant failed.
	ErrPartialBatchFailure = errors.New("partial batch failure")

	// ErrNotificationFailure marks a failed tenant notification.
	ErrNotificationFailure = errors.New("notification failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type InvalidAmountError struct {
	Amount Money
	Raw    string // set when the input never parsed
	Reason string
}

func (e *InvalidAmountError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("invalid amount %q: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("invalid amount %s: %s", e.Amount.Value.String(), e.Reason)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// DuplicatePeriodChargeError names the key that was already charged.
// Legacy is true when the match came from the description of an entry
// written before period keys existed.
type DuplicatePeriodChargeError struct {
	Key         ChargeKey
	Legacy      bool
	Description string
}

func (e *DuplicatePeriodChargeError) Error() string {
	if e.Legacy {
		return fmt.Sprintf("already charged: %s (matched description %q)", e.Key, e.Description)
	}
	return fmt.Sprintf("already charged: %s", e.Key)
}

func (e *DuplicatePeriodChargeError) Unwrap() error { return ErrDuplicatePeriodCharge }

// TenantFailure is one tenant's failure inside a batch.
type TenantFailure struct {
	TenantID TenantID
	Name     string
	Err      error
}

// PartialBatchError lists the tenants a batch could not process.
type PartialBatchError struct {
	Operation string
	Failures  []TenantFailure
	Processed int
}

func (e *PartialBatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.TenantID, f.Err))
	}
	return fmt.Sprintf("%s: %d of %d tenants failed (%s)",
		e.Operation, len(e.Failures), e.Processed, strings.Join(parts, "; "))
}

func (e *PartialBatchError) Unwrap() error { return ErrPartialBatchFailure }

// NotificationError records which notification failed for which tenant.
type NotificationError struct {
	Kind     string
	TenantID TenantID
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s for tenant %s: %v", e.Kind, e.TenantID, e.Err)
}

func (e *NotificationError) Unwrap() []error { return []error{ErrNotificationFailure, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the write was refused because it already happened.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePeriodCharge)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}

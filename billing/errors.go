/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All sentinel errors in one place. The API layer maps these onto HTTP
  statuses; everything else wraps them with context via fmt.Errorf("%w").

ERROR TAXONOMY:
  Unauthenticated   - no caller identity
  PermissionDenied  - caller is not in the admin allowlist
  Validation        - missing or malformed required input
  NotFound          - referenced member / entry / configuration absent
  Conflict          - duplicate entry, concurrent balance update
  PartialBatchFailure is NOT an error: bulk generation returns per-member
  failures as data (GenerateResult.Errors) and never aborts the batch.

USAGE:
  if errors.Is(err, billing.ErrLedgerEntryNotFound) { ... }
  if billing.IsNotFound(err) { http.StatusNotFound }
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthenticated is returned when no caller identity was resolved.
	ErrUnauthenticated = errors.New("caller identity missing")

	// ErrPermissionDenied is returned when the caller is not an admin.
	ErrPermissionDenied = errors.New("caller is not an administrator")

	// ErrValidation is the base error for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrMemberInactive is returned when an operation requires an active member.
	ErrMemberInactive = errors.New("member is not active")

	// ErrLedgerEntryNotFound is returned when no entry exists at (member, month).
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrSettingsNotFound is returned when the singleton configuration is absent.
	ErrSettingsNotFound = errors.New("global settings not found")

	// ErrElectricBillNotFound is returned when no electric bill exists for a month.
	ErrElectricBillNotFound = errors.New("electric bill not found")

	// ErrNoActiveMembers aborts bulk generation before any writes.
	ErrNoActiveMembers = errors.New("no active members")

	// ErrDuplicateEntry is returned when a ledger entry already exists at
	// (member, month). The generator treats this as "skipped", never fatal.
	ErrDuplicateEntry = errors.New("ledger entry already exists")

	// ErrConcurrentModification is returned when the compare-and-swap
	// balance update detects a conflicting write.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific bad or missing field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BalanceConflictError reports a failed compare-and-swap on a member's
// outstanding balance.
type BalanceConflictError struct {
	MemberID MemberID
	Expected decimal.Decimal
	Found    decimal.Decimal
}

func (e *BalanceConflictError) Error() string {
	return fmt.Sprintf("balance conflict for member %s: expected %s, found %s",
		e.MemberID, e.Expected, e.Found)
}

func (e *BalanceConflictError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrLedgerEntryNotFound) ||
		errors.Is(err, ErrSettingsNotFound) ||
		errors.Is(err, ErrElectricBillNotFound)
}

// IsAuthError returns true for authentication/authorization failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrPermissionDenied)
}

// IsClientError returns true if the error is due to invalid client input
// or a conflict the client can resolve by retrying with fresh state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrMemberInactive) ||
		errors.Is(err, ErrNoActiveMembers) ||
		errors.Is(err, ErrConcurrentModification)
}

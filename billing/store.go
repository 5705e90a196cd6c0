/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  engine only requires keyed get/put/update plus an existence check; any
  document-style store can implement these.

KEY INTERFACES:
  MemberStore:       Member records + compare-and-swap balance update
  LedgerStore:       (member, month)-keyed ledger entries
  ElectricBillStore: month-keyed electric bill audit records
  SettingsStore:     singleton configuration
  AllowlistStore:    singleton admin allowlist

BALANCE UPDATES:
  Member.OutstandingBalance is read-modify-write shared state. UpdateBalance
  is compare-and-swap: the write only happens if the stored balance still
  equals the value the caller read. A mismatch returns
  ErrConcurrentModification and the caller decides whether to retry or to
  flag the entry for reconciliation.

NON-TRANSACTIONAL WRITES:
  Creating a ledger entry and updating the member balance are two separate
  writes. The engine compensates (MarkReconciliation) rather than assuming
  all-or-nothing semantics.

IMPLEMENTATIONS:
  - store/sqlite:        production SQLite store
  - billing/store (memory): in-memory store for tests

SEE ALSO:
  - generator.go, payment.go, settlement.go: consumers
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMBER STORE
// =============================================================================

type MemberStore interface {
	// SaveMember inserts or replaces a member record.
	SaveMember(ctx context.Context, m Member) error

	// GetMember returns the member or (nil, nil) when absent.
	GetMember(ctx context.Context, id MemberID) (*Member, error)

	// ListMembers returns members ordered by name. activeOnly filters out
	// deactivated members.
	ListMembers(ctx context.Context, activeOnly bool) ([]Member, error)

	// UpdateBalance sets the member's outstanding balance to next, but only
	// if the stored balance still equals expected. Returns
	// ErrConcurrentModification (wrapped in BalanceConflictError) otherwise.
	UpdateBalance(ctx context.Context, id MemberID, expected, next decimal.Decimal) error

	// Deactivate marks the member inactive and records the leave date.
	Deactivate(ctx context.Context, id MemberID, leaveDate time.Time) error
}

// =============================================================================
// LEDGER STORE
// =============================================================================

type LedgerStore interface {
	// CreateEntry persists a new ledger entry. Returns ErrDuplicateEntry if
	// one already exists at (member, month); charge components are never
	// overwritten.
	CreateEntry(ctx context.Context, e LedgerEntry) error

	// GetEntry returns the entry or (nil, nil) when absent.
	GetEntry(ctx context.Context, id MemberID, month Month) (*LedgerEntry, error)

	// EntryExists checks (member, month) without loading the record.
	EntryExists(ctx context.Context, id MemberID, month Month) (bool, error)

	// UpdatePayment rewrites the payment fields of an existing entry.
	// Charge components are untouched.
	UpdatePayment(ctx context.Context, id MemberID, month Month, p PaymentUpdate) error

	// MarkReconciliation flags an entry whose balance write failed.
	MarkReconciliation(ctx context.Context, id MemberID, month Month) error

	// EntriesForMonth returns all entries for one billing month.
	EntriesForMonth(ctx context.Context, month Month) ([]LedgerEntry, error)

	// EntriesForMember returns a member's entries, most recent month first.
	EntriesForMember(ctx context.Context, id MemberID) ([]LedgerEntry, error)
}

// PaymentUpdate carries the mutable payment fields of a ledger entry.
type PaymentUpdate struct {
	AmountPaid         decimal.Decimal
	CurrentOutstanding decimal.Decimal
	Status             PaymentStatus
	Note               string
	PaidAt             time.Time
}

// =============================================================================
// ELECTRIC BILL STORE
// =============================================================================

type ElectricBillStore interface {
	// UpsertElectricBill inserts or replaces the month's audit record,
	// preserving GeneratedAt on replace.
	UpsertElectricBill(ctx context.Context, b ElectricBill) error

	// GetElectricBill returns the record or (nil, nil) when absent.
	GetElectricBill(ctx context.Context, month Month) (*ElectricBill, error)

	// LatestElectricBill returns the most recent record by month, or
	// (nil, nil) when none exist.
	LatestElectricBill(ctx context.Context) (*ElectricBill, error)
}

// =============================================================================
// SETTINGS + ALLOWLIST (singletons)
// =============================================================================

type SettingsStore interface {
	// GetSettings returns the singleton configuration or (nil, nil).
	GetSettings(ctx context.Context) (*Settings, error)

	// SaveSettings replaces the singleton. Callers bump Version.
	SaveSettings(ctx context.Context, s Settings) error
}

type AllowlistStore interface {
	// IsAdmin checks membership in the admin allowlist.
	IsAdmin(ctx context.Context, callerID string) (bool, error)

	// SaveAdmins replaces the allowlist.
	SaveAdmins(ctx context.Context, callerIDs []string) error
}

// Store aggregates every persistence interface the engine consumes.
type Store interface {
	MemberStore
	LedgerStore
	ElectricBillStore
	SettingsStore
	AllowlistStore
}

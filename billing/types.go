/*
Package billing is the hostel billing ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for residential
  (hostel/mess) billing: monthly ledger-entry generation from floor-level
  electricity costs, rent, WiFi and ad-hoc expenses; payment recording with
  status derivation; and move-out settlement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member:      An occupant with a running outstanding balance
  - LedgerEntry: One immutable charge record per (member, month)
  - ElectricBill: Per-month audit record of floor costs and bulk expenses
  - Settings:    Singleton rent table / charges / current billing month
  - PaymentStatus: Due / PartiallyPaid / Paid / Overpaid

DESIGN PRINCIPLES:
  1. Single source of truth: Member.OutstandingBalance is only ever
     rewritten by the generator, the payment recorder, and settlement.
  2. Precision: all currency amounts are decimal.Decimal, never float64.
  3. Immutability: a LedgerEntry's charge components never change after
     creation; only payment fields are mutated afterwards.
  4. Idempotency: at most one LedgerEntry exists per (member, month).

SEE ALSO:
  - generator.go:  monthly bulk generation
  - payment.go:    payment recording
  - settlement.go: move-out settlement
  - store.go:      persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

// RoundMoney applies the engine's single rounding policy: half-up to the
// smallest currency unit (two decimal places). It is applied once, at
// ledger-entry creation, never at display time.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberID string

// Member is one occupant. OutstandingBalance is signed: positive means the
// member owes money, negative means the member is in credit.
type Member struct {
	ID         MemberID
	Name       string
	Phone      string
	Floor      string
	BedType    string
	MoveInDate time.Time

	// Financial baseline, fixed at admission.
	SecurityDeposit decimal.Decimal
	RentAtJoining   decimal.Decimal
	AdvanceDeposit  decimal.Decimal

	// TotalAgreedDeposit = SecurityDeposit + AdvanceDeposit + RentAtJoining.
	// Set once at admission, never recomputed.
	TotalAgreedDeposit decimal.Decimal

	// CurrentRent may change when the member is reassigned.
	CurrentRent decimal.Decimal

	// OutstandingBalance is the single source of truth for debt. Mutated
	// only by Generator, Recorder, and Calculator, always via the store's
	// compare-and-swap update.
	OutstandingBalance decimal.Decimal

	IsActive     bool
	OptedForWifi bool
	LeaveDate    *time.Time

	CreatedAt time.Time
}

// =============================================================================
// LEDGER ENTRY ("rent history")
// =============================================================================

// ExpenseLine is one ad-hoc charge on a ledger entry. The amount is recorded
// verbatim as assigned; the engine never divides it (see SplitEvenly).
type ExpenseLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// LedgerEntry is the charge record for one member and one billing month.
// Charge components (Rent, Electricity, Wifi, Expenses, TotalCharges,
// PreviousOutstanding) are immutable after creation. Payment fields
// (AmountPaid, CurrentOutstanding, Status, Note, PaidAt) are rewritten by
// the payment recorder.
type LedgerEntry struct {
	MemberID    MemberID
	Month       Month
	GeneratedAt time.Time

	Rent        decimal.Decimal
	Electricity decimal.Decimal
	Wifi        decimal.Decimal
	Expenses    []ExpenseLine

	// PreviousOutstanding snapshots the member's balance immediately before
	// this entry's charges were applied.
	PreviousOutstanding decimal.Decimal

	// TotalCharges = Rent + Electricity + Wifi + sum(Expenses).
	TotalCharges decimal.Decimal

	// AmountPaid is the cumulative total paid against this entry so far,
	// not an appended payment event. Recording a payment overwrites it.
	AmountPaid decimal.Decimal

	// CurrentOutstanding = PreviousOutstanding + TotalCharges - AmountPaid.
	CurrentOutstanding decimal.Decimal

	Status PaymentStatus
	Note   string
	PaidAt *time.Time

	// NeedsReconciliation flags an entry whose balance write failed after
	// the entry itself was persisted. Cleared out-of-band.
	NeedsReconciliation bool
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusDue           PaymentStatus = "due"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusPaid          PaymentStatus = "paid"
	StatusOverpaid      PaymentStatus = "overpaid"
)

// DeriveStatus maps a cumulative paid amount against the entry's total
// charges. amountPaid is assumed non-negative (the recorder clamps it).
//
// Tie-breaks are exact:
//
//	paid == 0            -> Due
//	paid <  totalCharges -> PartiallyPaid
//	paid == totalCharges -> Paid
//	paid >  totalCharges -> Overpaid
func DeriveStatus(amountPaid, totalCharges decimal.Decimal) PaymentStatus {
	switch {
	case amountPaid.IsZero():
		return StatusDue
	case amountPaid.LessThan(totalCharges):
		return StatusPartiallyPaid
	case amountPaid.Equal(totalCharges):
		return StatusPaid
	default:
		return StatusOverpaid
	}
}

// =============================================================================
// ELECTRIC BILL - Per-month audit record (not per member)
// =============================================================================

// FloorUsage records one floor's electricity total and headcount used for
// the per-member division.
type FloorUsage struct {
	Bill         decimal.Decimal `json:"bill"`
	TotalMembers int             `json:"total_members"`
}

// BulkExpense assigns one ad-hoc amount to a set of members. The amount is
// applied verbatim per assigned member; callers that want an even split
// divide before constructing the assignment (see SplitEvenly).
type BulkExpense struct {
	ID          string          `json:"id"`
	MemberIDs   []MemberID      `json:"member_ids"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Contains reports whether the expense is assigned to the given member.
func (e BulkExpense) Contains(id MemberID) bool {
	for _, m := range e.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// ElectricBill is the reporting/audit record for one billing month. It does
// not drive member balances.
type ElectricBill struct {
	Month       Month
	GeneratedAt time.Time
	LastUpdated time.Time
	Floors      map[string]FloorUsage
	Expenses    []BulkExpense
}

// =============================================================================
// SETTINGS - Singleton configuration
// =============================================================================

// MemberCounts is a denormalized convenience cache of active-member
// aggregates, refreshed on every member mutation.
type MemberCounts struct {
	Total       int            `json:"total"`
	ByFloor     map[string]int `json:"by_floor"`
	WifiOptedIn int            `json:"wifi_opted_in"`
}

// Settings is the singleton configuration record. Version increments on
// every save so stale snapshots are detectable.
type Settings struct {
	// RentTable maps floor -> bed type -> monthly rent.
	RentTable map[string]map[string]decimal.Decimal

	DefaultSecurityDeposit decimal.Decimal
	WifiMonthlyCharge      decimal.Decimal

	CurrentBillingMonth Month
	NextBillingMonth    Month

	MemberCounts MemberCounts
	Version      int64
}

// RentFor looks up the configured rent for a floor and bed type.
func (s *Settings) RentFor(floor, bedType string) (decimal.Decimal, bool) {
	beds, ok := s.RentTable[floor]
	if !ok {
		return decimal.Zero, false
	}
	rent, ok := beds[bedType]
	return rent, ok
}

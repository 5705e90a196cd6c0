/*
generator.go - Monthly bulk bill generation

PURPOSE:
  Produces one LedgerEntry per active member for a target billing month,
  plus one ElectricBill audit record for the month.

ALGORITHM (per active member):
  1. Skip if an entry already exists at (member, month) - idempotent by
     construction, not by locking.
  2. electricity = floor total / floor member count (0 if count is 0),
     rounded half-up to 2 places.
  3. expenses = bulk assignments containing this member, amounts verbatim.
  4. wifi = override amount if listed, else settings charge if opted in,
     else 0.
  5. totalCharges = currentRent + electricity + wifi + sum(expenses).
  6. currentOutstanding = previousOutstanding + totalCharges; status Due.
  7. Persist entry, then compare-and-swap the member balance.

FAILURE ISOLATION:
  One member's failure (including a panic) is recorded as an error string
  tagged with the member and the loop continues. The batch never aborts
  for per-member failures; only pre-flight problems (missing month,
  missing settings, empty active set) abort the request.

COMPENSATION:
  The entry write and the balance write are not atomic. If the balance
  CAS fails after the entry was persisted, the entry is flagged
  NeedsReconciliation and the failure is reported in the result's error
  list; nothing is rolled back.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUT / RESULT
// =============================================================================

// WifiOverride replaces the settings WiFi charge with a flat amount for the
// listed members, regardless of their opt-in flag.
type WifiOverride struct {
	MemberIDs []MemberID      `json:"member_ids"`
	Amount    decimal.Decimal `json:"amount"`
}

func (o *WifiOverride) contains(id MemberID) bool {
	if o == nil {
		return false
	}
	for _, m := range o.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// GenerateInput describes one bulk generation run.
type GenerateInput struct {
	Month Month

	// FloorElectricity maps floor -> total electricity cost for the month.
	FloorElectricity map[string]decimal.Decimal

	// FloorMemberCounts maps floor -> headcount used for the division.
	// Floors with a zero or missing count bill zero electricity.
	FloorMemberCounts map[string]int

	// BulkExpenses are applied verbatim to each assigned member.
	BulkExpenses []BulkExpense

	WifiOverride *WifiOverride
}

// GenerateResult reports what a run did. Per-member failures are data, not
// errors; a non-empty Errors list with a nil error means the batch
// completed with exceptions.
type GenerateResult struct {
	GeneratedCount int      `json:"generated_count"`
	SkippedCount   int      `json:"skipped_count"`
	Errors         []string `json:"errors"`
}

// SplitEvenly divides a total evenly across members and returns an
// assignment carrying the rounded per-member share. This is the one place
// division happens; the generator itself records assignment amounts
// verbatim.
func SplitEvenly(total decimal.Decimal, memberIDs []MemberID, description string) BulkExpense {
	share := total
	if n := len(memberIDs); n > 0 {
		share = RoundMoney(total.Div(decimal.NewFromInt(int64(n))))
	}
	return BulkExpense{
		MemberIDs:   memberIDs,
		Amount:      share,
		Description: description,
	}
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator produces the monthly billing cycle.
type Generator struct {
	Members  MemberStore
	Ledger   LedgerStore
	Bills    ElectricBillStore
	Settings SettingsStore

	// clock is injectable for tests.
	clock func() time.Time
}

func NewGenerator(store Store) *Generator {
	return &Generator{
		Members:  store,
		Ledger:   store,
		Bills:    store,
		Settings: store,
		clock:    time.Now,
	}
}

// Generate runs one billing cycle. It returns an error only for
// request-level failures; per-member failures land in the result.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	var result GenerateResult

	if in.Month.IsZero() {
		return result, &ValidationError{Field: "month", Message: "billing month is required"}
	}

	settings, err := g.Settings.GetSettings(ctx)
	if err != nil {
		return result, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		return result, ErrSettingsNotFound
	}

	members, err := g.Members.ListMembers(ctx, true)
	if err != nil {
		return result, fmt.Errorf("list active members: %w", err)
	}
	if len(members) == 0 {
		return result, ErrNoActiveMembers
	}

	for i := range members {
		outcome, err := g.generateOne(ctx, &members[i], settings, in)
		switch {
		case err != nil:
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s (%s): %v", members[i].Name, members[i].ID, err))
		case outcome == outcomeSkipped:
			result.SkippedCount++
		default:
			result.GeneratedCount++
		}
	}

	// The audit record is independent of the member loop: entries already
	// written stay written even if this upsert fails.
	if err := g.upsertElectricBill(ctx, in); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("electric bill record: %v", err))
	}

	return result, nil
}

type generateOutcome int

const (
	outcomeGenerated generateOutcome = iota
	outcomeSkipped
)

// generateOne computes and persists one member's entry. Panics from faulty
// inputs are converted to errors so they stay isolated to this member.
func (g *Generator) generateOne(ctx context.Context, m *Member, settings *Settings, in GenerateInput) (outcome generateOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal fault: %v", r)
		}
	}()

	exists, err := g.Ledger.EntryExists(ctx, m.ID, in.Month)
	if err != nil {
		return outcomeGenerated, fmt.Errorf("check existing entry: %w", err)
	}
	if exists {
		return outcomeSkipped, nil
	}

	electricity := decimal.Zero
	if count := in.FloorMemberCounts[m.Floor]; count > 0 {
		total := in.FloorElectricity[m.Floor]
		electricity = RoundMoney(total.Div(decimal.NewFromInt(int64(count))))
	}

	var expenses []ExpenseLine
	expenseTotal := decimal.Zero
	for _, be := range in.BulkExpenses {
		if !be.Contains(m.ID) {
			continue
		}
		expenses = append(expenses, ExpenseLine{Description: be.Description, Amount: be.Amount})
		expenseTotal = expenseTotal.Add(be.Amount)
	}

	wifi := decimal.Zero
	switch {
	case in.WifiOverride.contains(m.ID):
		wifi = in.WifiOverride.Amount
	case m.OptedForWifi:
		wifi = settings.WifiMonthlyCharge
	}

	totalCharges := m.CurrentRent.Add(electricity).Add(wifi).Add(expenseTotal)
	previous := m.OutstandingBalance
	current := previous.Add(totalCharges)

	entry := LedgerEntry{
		MemberID:            m.ID,
		Month:               in.Month,
		GeneratedAt:         g.clock(),
		Rent:                m.CurrentRent,
		Electricity:         electricity,
		Wifi:                wifi,
		Expenses:            expenses,
		PreviousOutstanding: previous,
		TotalCharges:        totalCharges,
		AmountPaid:          decimal.Zero,
		CurrentOutstanding:  current,
		Status:              StatusDue,
	}

	if err := g.Ledger.CreateEntry(ctx, entry); err != nil {
		if err == ErrDuplicateEntry {
			// Lost the race to another run; same as the pre-check hit.
			return outcomeSkipped, nil
		}
		return outcomeGenerated, fmt.Errorf("persist entry: %w", err)
	}

	if err := g.Members.UpdateBalance(ctx, m.ID, previous, current); err != nil {
		// Entry is already written; flag it instead of rolling back.
		if markErr := g.Ledger.MarkReconciliation(ctx, m.ID, in.Month); markErr != nil {
			return outcomeGenerated, fmt.Errorf("update balance: %v (flagging entry also failed: %w)", err, markErr)
		}
		return outcomeGenerated, fmt.Errorf("update balance (entry flagged for reconciliation): %w", err)
	}

	return outcomeGenerated, nil
}

func (g *Generator) upsertElectricBill(ctx context.Context, in GenerateInput) error {
	floors := make(map[string]FloorUsage, len(in.FloorElectricity))
	for floor, total := range in.FloorElectricity {
		floors[floor] = FloorUsage{Bill: total, TotalMembers: in.FloorMemberCounts[floor]}
	}
	now := g.clock()
	return g.Bills.UpsertElectricBill(ctx, ElectricBill{
		Month:       in.Month,
		GeneratedAt: now,
		LastUpdated: now,
		Floors:      floors,
		Expenses:    in.BulkExpenses,
	})
}

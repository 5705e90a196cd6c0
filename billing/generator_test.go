package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosteldesk/billing-engine/billing"
	"github.com/hosteldesk/billing-engine/billing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func month(s string) billing.Month {
	m, err := billing.ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func newSeededStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveSettings(context.Background(), billing.Settings{
		RentTable: map[string]map[string]decimal.Decimal{
			"2nd": {"single": money(3000), "shared": money(2000)},
			"3rd": {"single": money(2800), "shared": money(1800)},
		},
		DefaultSecurityDeposit: money(1000),
		WifiMonthlyCharge:      money(250),
		CurrentBillingMonth:    month("2025-03"),
		NextBillingMonth:       month("2025-04"),
		Version:                1,
	}))
	return mem
}

func seedMember(t *testing.T, mem *store.Memory, id, name, floor string, rent, outstanding decimal.Decimal, wifi bool) billing.Member {
	t.Helper()
	m := billing.Member{
		ID:                 billing.MemberID(id),
		Name:               name,
		Floor:              floor,
		BedType:            "shared",
		MoveInDate:         time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		SecurityDeposit:    money(1000),
		RentAtJoining:      rent,
		AdvanceDeposit:     money(500),
		TotalAgreedDeposit: money(1000).Add(money(500)).Add(rent),
		CurrentRent:        rent,
		OutstandingBalance: outstanding,
		IsActive:           true,
		OptedForWifi:       wifi,
	}
	require.NoError(t, mem.SaveMember(context.Background(), m))
	return m
}

// faultyStore wraps the memory store to force failures for chosen members.
type faultyStore struct {
	*store.Memory
	panicOnCreate   billing.MemberID
	conflictBalance billing.MemberID
}

func (f *faultyStore) CreateEntry(ctx context.Context, e billing.LedgerEntry) error {
	if e.MemberID == f.panicOnCreate {
		panic("injected fault")
	}
	return f.Memory.CreateEntry(ctx, e)
}

func (f *faultyStore) UpdateBalance(ctx context.Context, id billing.MemberID, expected, next decimal.Decimal) error {
	if id == f.conflictBalance {
		return &billing.BalanceConflictError{MemberID: id, Expected: expected, Found: next}
	}
	return f.Memory.UpdateBalance(ctx, id, expected, next)
}

// =============================================================================
// CHARGE COMPUTATION
// =============================================================================

func TestGenerate_ChargeComputation_WorkedExample(t *testing.T) {
	// GIVEN: rent 2000, floor electricity 1200 over 6 floor-mates (=200),
	//        no wifi, one bulk expense of 300, previous outstanding 150
	// WHEN:  generating the month
	// THEN:  totalCharges 2500, currentOutstanding 2650, status Due

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), money(150), false)

	gen := billing.NewGenerator(mem)
	result, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorElectricity:  map[string]decimal.Decimal{"2nd": money(1200)},
		FloorMemberCounts: map[string]int{"2nd": 6},
		BulkExpenses: []billing.BulkExpense{
			{MemberIDs: []billing.MemberID{"m-1"}, Amount: money(300), Description: "plumber"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.GeneratedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Empty(t, result.Errors)

	entry, err := mem.GetEntry(ctx, "m-1", month("2025-03"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Rent.Equal(money(2000)), "rent %s", entry.Rent)
	assert.True(t, entry.Electricity.Equal(money(200)), "electricity %s", entry.Electricity)
	assert.True(t, entry.Wifi.IsZero(), "wifi %s", entry.Wifi)
	assert.True(t, entry.TotalCharges.Equal(money(2500)), "total %s", entry.TotalCharges)
	assert.True(t, entry.PreviousOutstanding.Equal(money(150)))
	assert.True(t, entry.CurrentOutstanding.Equal(money(2650)))
	assert.Equal(t, billing.StatusDue, entry.Status)

	member, err := mem.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, member.OutstandingBalance.Equal(money(2650)),
		"member balance must match entry outstanding, got %s", member.OutstandingBalance)
}

func TestGenerate_ElectricityRounding_HalfUpTwoPlaces(t *testing.T) {
	// GIVEN: 1000 split across 3 members (333.333...)
	// WHEN:  generating
	// THEN:  each entry carries 333.33, rounded once at creation

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), decimal.Zero, false)

	gen := billing.NewGenerator(mem)
	_, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorElectricity:  map[string]decimal.Decimal{"2nd": money(1000)},
		FloorMemberCounts: map[string]int{"2nd": 3},
	})
	require.NoError(t, err)

	entry, err := mem.GetEntry(ctx, "m-1", month("2025-03"))
	require.NoError(t, err)
	assert.True(t, entry.Electricity.Equal(money(333.33)), "got %s", entry.Electricity)
}

func TestGenerate_ZeroFloorCount_BillsZeroElectricity(t *testing.T) {
	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "3rd", money(1800), decimal.Zero, false)

	gen := billing.NewGenerator(mem)
	_, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorElectricity:  map[string]decimal.Decimal{"3rd": money(900)},
		FloorMemberCounts: map[string]int{"3rd": 0},
	})
	require.NoError(t, err)

	entry, err := mem.GetEntry(ctx, "m-1", month("2025-03"))
	require.NoError(t, err)
	assert.True(t, entry.Electricity.IsZero())
	assert.True(t, entry.TotalCharges.Equal(money(1800)))
}

func TestGenerate_WifiCharges(t *testing.T) {
	// GIVEN: one opted-in member, one opted-out, one with an override
	// THEN:  settings charge / zero / override amount respectively

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-in", "Asha", "2nd", money(2000), decimal.Zero, true)
	seedMember(t, mem, "m-out", "Binu", "2nd", money(2000), decimal.Zero, false)
	seedMember(t, mem, "m-ovr", "Chitra", "2nd", money(2000), decimal.Zero, false)

	gen := billing.NewGenerator(mem)
	_, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorMemberCounts: map[string]int{"2nd": 3},
		WifiOverride: &billing.WifiOverride{
			MemberIDs: []billing.MemberID{"m-ovr"},
			Amount:    money(100),
		},
	})
	require.NoError(t, err)

	optedIn, _ := mem.GetEntry(ctx, "m-in", month("2025-03"))
	optedOut, _ := mem.GetEntry(ctx, "m-out", month("2025-03"))
	overridden, _ := mem.GetEntry(ctx, "m-ovr", month("2025-03"))

	assert.True(t, optedIn.Wifi.Equal(money(250)), "opted-in gets settings charge")
	assert.True(t, optedOut.Wifi.IsZero(), "opted-out pays nothing")
	assert.True(t, overridden.Wifi.Equal(money(100)), "override wins over opt-in flag")
}

func TestGenerate_BulkExpense_PassThrough_NoDivision(t *testing.T) {
	// The engine records assignment amounts verbatim; SplitEvenly is the
	// caller-side division policy.

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), decimal.Zero, false)
	seedMember(t, mem, "m-2", "Binu", "2nd", money(2000), decimal.Zero, false)

	gen := billing.NewGenerator(mem)
	_, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorMemberCounts: map[string]int{"2nd": 2},
		BulkExpenses: []billing.BulkExpense{
			{MemberIDs: []billing.MemberID{"m-1", "m-2"}, Amount: money(400), Description: "water tank"},
		},
	})
	require.NoError(t, err)

	for _, id := range []billing.MemberID{"m-1", "m-2"} {
		entry, _ := mem.GetEntry(ctx, id, month("2025-03"))
		require.Len(t, entry.Expenses, 1)
		assert.True(t, entry.Expenses[0].Amount.Equal(money(400)), "amount recorded verbatim")
	}
}

func TestSplitEvenly(t *testing.T) {
	ids := []billing.MemberID{"a", "b", "c"}
	be := billing.SplitEvenly(money(100), ids, "groceries")
	assert.True(t, be.Amount.Equal(money(33.33)), "got %s", be.Amount)
	assert.Equal(t, ids, be.MemberIDs)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestGenerate_SecondRun_SkipsEverything(t *testing.T) {
	// GIVEN: a completed run for 2025-03
	// WHEN:  running again with the same inputs
	// THEN:  generated=0, skipped=N, and no balance changes

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), money(150), false)
	seedMember(t, mem, "m-2", "Binu", "3rd", money(1800), decimal.Zero, true)

	in := billing.GenerateInput{
		Month:             month("2025-03"),
		FloorElectricity:  map[string]decimal.Decimal{"2nd": money(600), "3rd": money(900)},
		FloorMemberCounts: map[string]int{"2nd": 1, "3rd": 1},
	}

	gen := billing.NewGenerator(mem)
	first, err := gen.Generate(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 2, first.GeneratedCount)

	balancesAfterFirst := map[billing.MemberID]decimal.Decimal{}
	for _, id := range []billing.MemberID{"m-1", "m-2"} {
		m, _ := mem.GetMember(ctx, id)
		balancesAfterFirst[id] = m.OutstandingBalance
	}

	second, err := gen.Generate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0, second.GeneratedCount)
	assert.Equal(t, 2, second.SkippedCount)
	assert.Empty(t, second.Errors)

	for id, want := range balancesAfterFirst {
		m, _ := mem.GetMember(ctx, id)
		assert.True(t, m.OutstandingBalance.Equal(want),
			"balance for %s changed between idempotent runs", id)
	}
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestGenerate_PerMemberFailure_DoesNotAbortBatch(t *testing.T) {
	// GIVEN: 5 active members, member #3's write panics
	// WHEN:  generating
	// THEN:  generated=4, errors has 1 entry, others' balances updated

	ctx := context.Background()
	mem := newSeededStore(t)
	ids := []string{"m-1", "m-2", "m-3", "m-4", "m-5"}
	names := []string{"Asha", "Binu", "Chitra", "Deep", "Esha"}
	for i, id := range ids {
		seedMember(t, mem, id, names[i], "2nd", money(2000), decimal.Zero, false)
	}

	faulty := &faultyStore{Memory: mem, panicOnCreate: "m-3"}
	gen := billing.NewGenerator(faulty)

	result, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorMemberCounts: map[string]int{"2nd": 5},
		FloorElectricity:  map[string]decimal.Decimal{"2nd": money(1000)},
	})
	require.NoError(t, err, "per-member failures must not abort the batch")
	assert.Equal(t, 4, result.GeneratedCount)
	assert.Equal(t, 0, result.SkippedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "m-3")
	assert.Contains(t, result.Errors[0], "Chitra")

	for _, id := range []billing.MemberID{"m-1", "m-2", "m-4", "m-5"} {
		m, _ := mem.GetMember(ctx, id)
		assert.True(t, m.OutstandingBalance.Equal(money(2200)),
			"member %s should be billed rent+electricity, got %s", id, m.OutstandingBalance)
	}
	unbilled, _ := mem.GetMember(ctx, "m-3")
	assert.True(t, unbilled.OutstandingBalance.IsZero(), "failed member keeps its balance")
}

func TestGenerate_BalanceConflict_FlagsEntryForReconciliation(t *testing.T) {
	// GIVEN: the balance CAS fails after the entry was written
	// THEN:  the entry stays, flagged, and the failure is reported as data

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), decimal.Zero, false)

	faulty := &faultyStore{Memory: mem, conflictBalance: "m-1"}
	gen := billing.NewGenerator(faulty)

	result, err := gen.Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorMemberCounts: map[string]int{"2nd": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.GeneratedCount+result.SkippedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "reconciliation")

	entry, _ := mem.GetEntry(ctx, "m-1", month("2025-03"))
	require.NotNil(t, entry, "entry is not rolled back")
	assert.True(t, entry.NeedsReconciliation)
}

// =============================================================================
// PRE-FLIGHT FAILURES
// =============================================================================

func TestGenerate_PreflightFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing month", func(t *testing.T) {
		mem := newSeededStore(t)
		seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), decimal.Zero, false)
		_, err := billing.NewGenerator(mem).Generate(ctx, billing.GenerateInput{})
		assert.ErrorIs(t, err, billing.ErrValidation)
	})

	t.Run("missing settings", func(t *testing.T) {
		mem := store.NewMemory()
		_, err := billing.NewGenerator(mem).Generate(ctx, billing.GenerateInput{Month: month("2025-03")})
		assert.ErrorIs(t, err, billing.ErrSettingsNotFound)
	})

	t.Run("no active members", func(t *testing.T) {
		mem := newSeededStore(t)
		_, err := billing.NewGenerator(mem).Generate(ctx, billing.GenerateInput{Month: month("2025-03")})
		assert.ErrorIs(t, err, billing.ErrNoActiveMembers)
	})
}

// =============================================================================
// ELECTRIC BILL RECORD
// =============================================================================

func TestGenerate_WritesElectricBillRecord(t *testing.T) {
	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(2000), decimal.Zero, false)

	expenses := []billing.BulkExpense{
		{MemberIDs: []billing.MemberID{"m-1"}, Amount: money(120), Description: "gas"},
	}
	_, err := billing.NewGenerator(mem).Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorElectricity:  map[string]decimal.Decimal{"2nd": money(1200), "3rd": money(800)},
		FloorMemberCounts: map[string]int{"2nd": 1, "3rd": 4},
		BulkExpenses:      expenses,
	})
	require.NoError(t, err)

	bill, err := mem.GetElectricBill(ctx, month("2025-03"))
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.True(t, bill.Floors["2nd"].Bill.Equal(money(1200)))
	assert.Equal(t, 4, bill.Floors["3rd"].TotalMembers)
	require.Len(t, bill.Expenses, 1)
	assert.Equal(t, "gas", bill.Expenses[0].Description)

	latest, err := mem.LatestElectricBill(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Month.Equal(month("2025-03")))
}

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosteldesk/billing-engine/billing"
	"github.com/hosteldesk/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testMember(id string) billing.Member {
	return billing.Member{
		ID:                 billing.MemberID(id),
		Name:               "Asha",
		Phone:              "9800000000",
		Floor:              "2nd",
		BedType:            "shared",
		MoveInDate:         time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		SecurityDeposit:    decimal.NewFromInt(1000),
		RentAtJoining:      decimal.NewFromInt(2000),
		AdvanceDeposit:     decimal.NewFromInt(500),
		TotalAgreedDeposit: decimal.NewFromInt(3500),
		CurrentRent:        decimal.NewFromInt(2000),
		OutstandingBalance: decimal.NewFromInt(150),
		IsActive:           true,
		OptedForWifi:       true,
		CreatedAt:          time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testMonth(t *testing.T, s string) billing.Month {
	t.Helper()
	m, err := billing.ParseMonth(s)
	require.NoError(t, err)
	return m
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestSQLite_Member_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))

	got, err := store.GetMember(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, "2nd", got.Floor)
	assert.True(t, got.OutstandingBalance.Equal(decimal.NewFromInt(150)))
	assert.True(t, got.TotalAgreedDeposit.Equal(decimal.NewFromInt(3500)))
	assert.True(t, got.IsActive)
	assert.True(t, got.OptedForWifi)
	assert.Nil(t, got.LeaveDate)

	missing, err := store.GetMember(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ListMembers_ActiveFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := testMember("m-1")
	b := testMember("m-2")
	b.Name = "Binu"
	require.NoError(t, store.SaveMember(ctx, a))
	require.NoError(t, store.SaveMember(ctx, b))
	require.NoError(t, store.Deactivate(ctx, "m-2", time.Now()))

	active, err := store.ListMembers(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, billing.MemberID("m-1"), active[0].ID)

	all, err := store.ListMembers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_UpdateBalance_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))

	// Matching expected value succeeds.
	err := store.UpdateBalance(ctx, "m-1",
		decimal.NewFromInt(150), decimal.NewFromInt(2650))
	require.NoError(t, err)

	// Stale expected value is a conflict, and the balance stays put.
	err = store.UpdateBalance(ctx, "m-1",
		decimal.NewFromInt(150), decimal.NewFromInt(9999))
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	var conflict *billing.BalanceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Found.Equal(decimal.NewFromInt(2650)))

	got, _ := store.GetMember(ctx, "m-1")
	assert.True(t, got.OutstandingBalance.Equal(decimal.NewFromInt(2650)))
}

func TestSQLite_UpdateBalance_MissingMember(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	err := store.UpdateBalance(ctx, "nobody", decimal.Zero, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, billing.ErrMemberNotFound)
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func testEntry(t *testing.T, id string, month string) billing.LedgerEntry {
	t.Helper()
	return billing.LedgerEntry{
		MemberID:            billing.MemberID(id),
		Month:               testMonth(t, month),
		GeneratedAt:         time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
		Rent:                decimal.NewFromInt(2000),
		Electricity:         decimal.NewFromFloat(333.33),
		Wifi:                decimal.NewFromInt(250),
		Expenses:            []billing.ExpenseLine{{Description: "plumber", Amount: decimal.NewFromInt(300)}},
		PreviousOutstanding: decimal.NewFromInt(150),
		TotalCharges:        decimal.NewFromFloat(2883.33),
		AmountPaid:          decimal.Zero,
		CurrentOutstanding:  decimal.NewFromFloat(3033.33),
		Status:              billing.StatusDue,
	}
}

func TestSQLite_Entry_RoundTripAndDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))

	entry := testEntry(t, "m-1", "2025-03")
	require.NoError(t, store.CreateEntry(ctx, entry))

	err := store.CreateEntry(ctx, entry)
	assert.ErrorIs(t, err, billing.ErrDuplicateEntry, "second insert at same key")

	got, err := store.GetEntry(ctx, "m-1", testMonth(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Electricity.Equal(decimal.NewFromFloat(333.33)))
	assert.True(t, got.TotalCharges.Equal(decimal.NewFromFloat(2883.33)))
	require.Len(t, got.Expenses, 1)
	assert.Equal(t, "plumber", got.Expenses[0].Description)
	assert.Equal(t, billing.StatusDue, got.Status)
	assert.Nil(t, got.PaidAt)

	exists, err := store.EntryExists(ctx, "m-1", testMonth(t, "2025-03"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.EntryExists(ctx, "m-1", testMonth(t, "2025-04"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_UpdatePayment(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))
	require.NoError(t, store.CreateEntry(ctx, testEntry(t, "m-1", "2025-03")))

	paidAt := time.Date(2025, time.March, 12, 14, 0, 0, 0, time.UTC)
	err := store.UpdatePayment(ctx, "m-1", testMonth(t, "2025-03"), billing.PaymentUpdate{
		AmountPaid:         decimal.NewFromInt(1500),
		CurrentOutstanding: decimal.NewFromFloat(1533.33),
		Status:             billing.StatusPartiallyPaid,
		Note:               "upi",
		PaidAt:             paidAt,
	})
	require.NoError(t, err)

	got, _ := store.GetEntry(ctx, "m-1", testMonth(t, "2025-03"))
	assert.True(t, got.AmountPaid.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, billing.StatusPartiallyPaid, got.Status)
	assert.Equal(t, "upi", got.Note)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
	// Charge components untouched by a payment update.
	assert.True(t, got.Rent.Equal(decimal.NewFromInt(2000)))

	err = store.UpdatePayment(ctx, "m-1", testMonth(t, "2025-09"), billing.PaymentUpdate{
		AmountPaid: decimal.Zero, CurrentOutstanding: decimal.Zero,
		Status: billing.StatusDue, PaidAt: paidAt,
	})
	assert.ErrorIs(t, err, billing.ErrLedgerEntryNotFound)
}

func TestSQLite_MarkReconciliation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))
	require.NoError(t, store.CreateEntry(ctx, testEntry(t, "m-1", "2025-03")))

	require.NoError(t, store.MarkReconciliation(ctx, "m-1", testMonth(t, "2025-03")))
	got, _ := store.GetEntry(ctx, "m-1", testMonth(t, "2025-03"))
	assert.True(t, got.NeedsReconciliation)
}

func TestSQLite_EntriesForMember_DescendingMonth(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveMember(ctx, testMember("m-1")))
	for _, m := range []string{"2024-11", "2025-01", "2024-12"} {
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "m-1", m)))
	}

	entries, err := store.EntriesForMember(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2025-01", entries[0].Month.String())
	assert.Equal(t, "2024-12", entries[1].Month.String())
	assert.Equal(t, "2024-11", entries[2].Month.String())
}

// =============================================================================
// ELECTRIC BILLS, SETTINGS, ADMINS
// =============================================================================

func TestSQLite_ElectricBill_UpsertAndLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	bill := billing.ElectricBill{
		Month:       testMonth(t, "2025-02"),
		GeneratedAt: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		LastUpdated: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		Floors: map[string]billing.FloorUsage{
			"2nd": {Bill: decimal.NewFromInt(1200), TotalMembers: 6},
		},
	}
	require.NoError(t, store.UpsertElectricBill(ctx, bill))

	later := bill
	later.Month = testMonth(t, "2025-03")
	require.NoError(t, store.UpsertElectricBill(ctx, later))

	latest, err := store.LatestElectricBill(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-03", latest.Month.String())

	got, err := store.GetElectricBill(ctx, testMonth(t, "2025-02"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Floors["2nd"].Bill.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, 6, got.Floors["2nd"].TotalMembers)

	missing, err := store.GetElectricBill(ctx, testMonth(t, "2020-01"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Settings_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	none, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	settings := billing.Settings{
		RentTable: map[string]map[string]decimal.Decimal{
			"2nd": {"shared": decimal.NewFromInt(2000)},
		},
		DefaultSecurityDeposit: decimal.NewFromInt(1000),
		WifiMonthlyCharge:      decimal.NewFromInt(250),
		CurrentBillingMonth:    testMonth(t, "2025-03"),
		NextBillingMonth:       testMonth(t, "2025-04"),
		Version:                3,
	}
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "2025-03", got.CurrentBillingMonth.String())
	rent, ok := got.RentFor("2nd", "shared")
	require.True(t, ok)
	assert.True(t, rent.Equal(decimal.NewFromInt(2000)))
}

func TestSQLite_Admins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveAdmins(ctx, []string{"admin-1", "admin-2"}))

	ok, err := store.IsAdmin(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsAdmin(ctx, "visitor")
	require.NoError(t, err)
	assert.False(t, ok)

	// Replacing the allowlist drops previous entries.
	require.NoError(t, store.SaveAdmins(ctx, []string{"admin-3"}))
	ok, _ = store.IsAdmin(ctx, "admin-1")
	assert.False(t, ok)
}

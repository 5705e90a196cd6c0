package billing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosteldesk/billing-engine/billing"
)

func TestSummarize_AggregatesCurrentMonth(t *testing.T) {
	// GIVEN: three billed members; one fully paid, one partial, one due
	// THEN:  totals, payment rate, dues and payments line up

	ctx := context.Background()
	mem := newSeededStore(t)
	seedMember(t, mem, "m-1", "Asha", "2nd", money(1000), decimal.Zero, false)
	seedMember(t, mem, "m-2", "Binu", "2nd", money(2000), decimal.Zero, false)
	seedMember(t, mem, "m-3", "Chitra", "2nd", money(3000), decimal.Zero, false)

	_, err := billing.NewGenerator(mem).Generate(ctx, billing.GenerateInput{
		Month:             month("2025-03"),
		FloorMemberCounts: map[string]int{"2nd": 3},
	})
	require.NoError(t, err)

	rec := billing.NewRecorder(mem)
	_, err = rec.Record(ctx, billing.PaymentInput{MemberID: "m-1", Month: month("2025-03"), Amount: money(1000)})
	require.NoError(t, err)
	_, err = rec.Record(ctx, billing.PaymentInput{MemberID: "m-2", Month: month("2025-03"), Amount: money(500)})
	require.NoError(t, err)

	summary, err := billing.NewReporter(mem).Summarize(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Month.Equal(month("2025-03")))
	assert.True(t, summary.TotalGenerated.Equal(money(6000)), "got %s", summary.TotalGenerated)
	assert.True(t, summary.TotalCollected.Equal(money(1500)), "got %s", summary.TotalCollected)
	assert.True(t, summary.TotalOutstanding.Equal(money(4500)), "got %s", summary.TotalOutstanding)
	assert.True(t, summary.PaymentRate.Equal(money(25)), "1500/6000 = 25%%, got %s", summary.PaymentRate)

	assert.Len(t, summary.RecentPayments, 2)
	require.Len(t, summary.UpcomingDues, 2, "partial and due entries")
	assert.Equal(t, billing.MemberID("m-3"), summary.UpcomingDues[0].MemberID,
		"largest outstanding first")
}

func TestSummarize_EmptyMonth(t *testing.T) {
	ctx := context.Background()
	mem := newSeededStore(t)

	summary, err := billing.NewReporter(mem).Summarize(ctx)
	require.NoError(t, err)
	assert.True(t, summary.TotalGenerated.IsZero())
	assert.True(t, summary.PaymentRate.IsZero(), "no division by zero")
	assert.Empty(t, summary.RecentPayments)
	assert.Empty(t, summary.UpcomingDues)
}

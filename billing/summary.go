/*
summary.go - Current-period billing summary

PURPOSE:
  Pure aggregation over the current billing month's ledger entries:
  totals, payment rate, recent payments, and upcoming dues. No mutation.
*/
package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	recentPaymentsLimit = 10
	upcomingDuesLimit   = 10
)

// PaymentSnapshot is one row of the recent-payments list.
type PaymentSnapshot struct {
	MemberID   MemberID        `json:"member_id"`
	Month      Month           `json:"month"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     PaymentStatus   `json:"status"`
	PaidAt     string          `json:"paid_at,omitempty"`
}

// DueSnapshot is one row of the upcoming-dues list.
type DueSnapshot struct {
	MemberID    MemberID        `json:"member_id"`
	Month       Month           `json:"month"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      PaymentStatus   `json:"status"`
}

// Summary aggregates the current month. PaymentRate is collected/generated
// as a percentage, 0 when nothing was generated.
type Summary struct {
	Month            Month             `json:"month"`
	TotalGenerated   decimal.Decimal   `json:"total_generated"`
	TotalCollected   decimal.Decimal   `json:"total_collected"`
	TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	PaymentRate      decimal.Decimal   `json:"payment_rate"`
	RecentPayments   []PaymentSnapshot `json:"recent_payments"`
	UpcomingDues     []DueSnapshot     `json:"upcoming_dues"`
}

// Reporter builds summaries.
type Reporter struct {
	Ledger   LedgerStore
	Settings SettingsStore
}

func NewReporter(store Store) *Reporter {
	return &Reporter{Ledger: store, Settings: store}
}

// Summarize aggregates the configured current billing month.
func (r *Reporter) Summarize(ctx context.Context) (*Summary, error) {
	settings, err := r.Settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		return nil, ErrSettingsNotFound
	}
	return r.SummarizeMonth(ctx, settings.CurrentBillingMonth)
}

// SummarizeMonth aggregates one billing month's entries.
func (r *Reporter) SummarizeMonth(ctx context.Context, month Month) (*Summary, error) {
	if month.IsZero() {
		return nil, &ValidationError{Field: "month", Message: "billing month is required"}
	}

	entries, err := r.Ledger.EntriesForMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	s := &Summary{
		Month:            month,
		TotalGenerated:   decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		PaymentRate:      decimal.Zero,
		RecentPayments:   []PaymentSnapshot{},
		UpcomingDues:     []DueSnapshot{},
	}

	for _, e := range entries {
		s.TotalGenerated = s.TotalGenerated.Add(e.TotalCharges)
		s.TotalCollected = s.TotalCollected.Add(e.AmountPaid)
		s.TotalOutstanding = s.TotalOutstanding.Add(e.CurrentOutstanding)

		if e.AmountPaid.IsPositive() {
			snap := PaymentSnapshot{
				MemberID:   e.MemberID,
				Month:      e.Month,
				AmountPaid: e.AmountPaid,
				Status:     e.Status,
			}
			if e.PaidAt != nil {
				snap.PaidAt = e.PaidAt.UTC().Format("2006-01-02T15:04:05Z07:00")
			}
			s.RecentPayments = append(s.RecentPayments, snap)
		}
		if e.Status == StatusDue || e.Status == StatusPartiallyPaid {
			s.UpcomingDues = append(s.UpcomingDues, DueSnapshot{
				MemberID:    e.MemberID,
				Month:       e.Month,
				Outstanding: e.CurrentOutstanding,
				Status:      e.Status,
			})
		}
	}

	if s.TotalGenerated.IsPositive() {
		hundred := decimal.NewFromInt(100)
		s.PaymentRate = s.TotalCollected.Div(s.TotalGenerated).Mul(hundred).Round(2)
	}

	// Most recent payments first, largest dues first.
	sort.Slice(s.RecentPayments, func(i, j int) bool {
		return s.RecentPayments[i].PaidAt > s.RecentPayments[j].PaidAt
	})
	sort.Slice(s.UpcomingDues, func(i, j int) bool {
		return s.UpcomingDues[i].Outstanding.GreaterThan(s.UpcomingDues[j].Outstanding)
	})
	if len(s.RecentPayments) > recentPaymentsLimit {
		s.RecentPayments = s.RecentPayments[:recentPaymentsLimit]
	}
	if len(s.UpcomingDues) > upcomingDuesLimit {
		s.UpcomingDues = s.UpcomingDues[:upcomingDuesLimit]
	}

	return s, nil
}

/*
payment.go - Payment recording against a ledger entry

PURPOSE:
  Applies a payment to an existing ledger entry and re-derives payment
  status and the member's outstanding balance.

SEMANTICS:
  AmountPaid models "total paid so far against this bill", not a payment
  event to append. Recording twice with different amounts overwrites the
  previous figure - the operation is deliberately not idempotent.
  Negative amounts are clamped to zero, not rejected.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentInput identifies the entry and the cumulative amount paid.
type PaymentInput struct {
	MemberID MemberID
	Month    Month
	Amount   decimal.Decimal
	Note     string
}

// Recorder applies payments.
type Recorder struct {
	Members MemberStore
	Ledger  LedgerStore

	clock func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{Members: store, Ledger: store, clock: time.Now}
}

// Record updates the entry at (member, month) and rewrites the member's
// outstanding balance. Returns the updated entry.
func (r *Recorder) Record(ctx context.Context, in PaymentInput) (*LedgerEntry, error) {
	if in.Month.IsZero() {
		return nil, &ValidationError{Field: "month", Message: "billing month is required"}
	}
	if in.MemberID == "" {
		return nil, &ValidationError{Field: "member_id", Message: "member id is required"}
	}

	entry, err := r.Ledger.GetEntry(ctx, in.MemberID, in.Month)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: member %s, month %s", ErrLedgerEntryNotFound, in.MemberID, in.Month)
	}

	member, err := r.Members.GetMember(ctx, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, in.MemberID)
	}

	paid := in.Amount
	if paid.IsNegative() {
		paid = decimal.Zero
	}

	outstanding := entry.PreviousOutstanding.Add(entry.TotalCharges).Sub(paid)
	status := DeriveStatus(paid, entry.TotalCharges)
	now := r.clock()

	update := PaymentUpdate{
		AmountPaid:         paid,
		CurrentOutstanding: outstanding,
		Status:             status,
		Note:               in.Note,
		PaidAt:             now,
	}
	if err := r.Ledger.UpdatePayment(ctx, in.MemberID, in.Month, update); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	if err := r.Members.UpdateBalance(ctx, in.MemberID, member.OutstandingBalance, outstanding); err != nil {
		if markErr := r.Ledger.MarkReconciliation(ctx, in.MemberID, in.Month); markErr != nil {
			return nil, fmt.Errorf("update balance: %v (flagging entry also failed: %w)", err, markErr)
		}
		return nil, fmt.Errorf("update balance (entry flagged for reconciliation): %w", err)
	}

	entry.AmountPaid = paid
	entry.CurrentOutstanding = outstanding
	entry.Status = status
	entry.Note = in.Note
	entry.PaidAt = &now
	return entry, nil
}

/*
settlement.go - Move-out settlement

PURPOSE:
  Computes the refund or amount owed when a member leaves, and applies the
  deactivation on confirmation.

FORMULA:
  refundAmount = totalAgreedDeposit - outstandingBalance
  refundAmount > 0 -> "Refund Due"
  refundAmount < 0 -> "Payment Due"
  refundAmount = 0 -> "Settled"

  Finalizing deactivates the member and records the leave date; the
  outstanding balance is left as the amount to settle out-of-band. The
  engine never transfers money.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementRefundDue  SettlementStatus = "Refund Due"
	SettlementPaymentDue SettlementStatus = "Payment Due"
	SettlementSettled    SettlementStatus = "Settled"
)

// SettlementPreview is the computed settlement for one member. Preview is
// read-only; Finalize applies it.
type SettlementPreview struct {
	MemberID           MemberID         `json:"member_id"`
	MemberName         string           `json:"member_name"`
	TotalAgreedDeposit decimal.Decimal  `json:"total_agreed_deposit"`
	OutstandingBalance decimal.Decimal  `json:"outstanding_balance"`
	RefundAmount       decimal.Decimal  `json:"refund_amount"`
	Status             SettlementStatus `json:"status"`
	LeaveDate          time.Time        `json:"leave_date"`
}

// Calculator computes and applies settlements.
type Calculator struct {
	Members MemberStore
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{Members: store}
}

// Preview computes the settlement without mutating state.
func (c *Calculator) Preview(ctx context.Context, id MemberID, leaveDate time.Time) (*SettlementPreview, error) {
	member, err := c.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return settle(member, leaveDate), nil
}

// Finalize deactivates the member and returns the applied settlement.
func (c *Calculator) Finalize(ctx context.Context, id MemberID, leaveDate time.Time) (*SettlementPreview, error) {
	member, err := c.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Members.Deactivate(ctx, id, leaveDate); err != nil {
		return nil, fmt.Errorf("deactivate member: %w", err)
	}
	return settle(member, leaveDate), nil
}

func (c *Calculator) loadActive(ctx context.Context, id MemberID) (*Member, error) {
	if id == "" {
		return nil, &ValidationError{Field: "member_id", Message: "member id is required"}
	}
	member, err := c.Members.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	if !member.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrMemberInactive, id)
	}
	return member, nil
}

func settle(m *Member, leaveDate time.Time) *SettlementPreview {
	refund := m.TotalAgreedDeposit.Sub(m.OutstandingBalance)

	status := SettlementSettled
	switch {
	case refund.IsPositive():
		status = SettlementRefundDue
	case refund.IsNegative():
		status = SettlementPaymentDue
	}

	return &SettlementPreview{
		MemberID:           m.ID,
		MemberName:         m.Name,
		TotalAgreedDeposit: m.TotalAgreedDeposit,
		OutstandingBalance: m.OutstandingBalance,
		RefundAmount:       refund,
		Status:             status,
		LeaveDate:          leaveDate,
	}
}

/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Wire representations of domain types. Money travels as decimal strings
  (shopspring's JSON form); months travel as "YYYY-MM"; dates as
  "YYYY-MM-DD". Decoding accepts both quoted and bare numbers for
  amounts.

SEE ALSO:
  - handlers.go: producers and consumers of these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hosteldesk/billing-engine/billing"
)

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MEMBERS
// =============================================================================

type AdmitMemberRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Floor      string `json:"floor"`
	BedType    string `json:"bed_type"`
	MoveInDate string `json:"move_in_date"`

	SecurityDeposit *decimal.Decimal `json:"security_deposit,omitempty"`
	AdvanceDeposit  *decimal.Decimal `json:"advance_deposit,omitempty"`
	RentAtJoining   *decimal.Decimal `json:"rent_at_joining,omitempty"`

	OptedForWifi bool `json:"opted_for_wifi"`
}

type AmendMemberRequest struct {
	Floor        *string          `json:"floor,omitempty"`
	BedType      *string          `json:"bed_type,omitempty"`
	CurrentRent  *decimal.Decimal `json:"current_rent,omitempty"`
	OptedForWifi *bool            `json:"opted_for_wifi,omitempty"`
}

type MemberDTO struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Phone              string          `json:"phone,omitempty"`
	Floor              string          `json:"floor"`
	BedType            string          `json:"bed_type"`
	MoveInDate         string          `json:"move_in_date"`
	SecurityDeposit    decimal.Decimal `json:"security_deposit"`
	RentAtJoining      decimal.Decimal `json:"rent_at_joining"`
	AdvanceDeposit     decimal.Decimal `json:"advance_deposit"`
	TotalAgreedDeposit decimal.Decimal `json:"total_agreed_deposit"`
	CurrentRent        decimal.Decimal `json:"current_rent"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	IsActive           bool            `json:"is_active"`
	OptedForWifi       bool            `json:"opted_for_wifi"`
	LeaveDate          *string         `json:"leave_date,omitempty"`
}

func toMemberDTO(m *billing.Member) MemberDTO {
	dto := MemberDTO{
		ID:                 string(m.ID),
		Name:               m.Name,
		Phone:              m.Phone,
		Floor:              m.Floor,
		BedType:            m.BedType,
		MoveInDate:         m.MoveInDate.Format("2006-01-02"),
		SecurityDeposit:    m.SecurityDeposit,
		RentAtJoining:      m.RentAtJoining,
		AdvanceDeposit:     m.AdvanceDeposit,
		TotalAgreedDeposit: m.TotalAgreedDeposit,
		CurrentRent:        m.CurrentRent,
		OutstandingBalance: m.OutstandingBalance,
		IsActive:           m.IsActive,
		OptedForWifi:       m.OptedForWifi,
	}
	if m.LeaveDate != nil {
		s := m.LeaveDate.Format("2006-01-02")
		dto.LeaveDate = &s
	}
	return dto
}

// =============================================================================
// GENERATION
// =============================================================================

// BulkExpenseDTO assigns an amount to a set of members. With split_evenly
// set, amount is the total to divide; otherwise it is charged verbatim to
// each assigned member.
type BulkExpenseDTO struct {
	MemberIDs   []string        `json:"member_ids"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	SplitEvenly bool            `json:"split_evenly,omitempty"`
}

type WifiOverrideDTO struct {
	MemberIDs []string        `json:"member_ids"`
	Amount    decimal.Decimal `json:"amount"`
}

type GenerateRequest struct {
	Month             string                     `json:"month"`
	FloorElectricity  map[string]decimal.Decimal `json:"floor_electricity"`
	FloorMemberCounts map[string]int             `json:"floor_member_counts"`
	BulkExpenses      []BulkExpenseDTO           `json:"bulk_expenses,omitempty"`
	WifiOverride      *WifiOverrideDTO           `json:"wifi_override,omitempty"`
}

// =============================================================================
// LEDGER / PAYMENTS
// =============================================================================

type LedgerEntryDTO struct {
	MemberID            string                `json:"member_id"`
	Month               string                `json:"month"`
	GeneratedAt         string                `json:"generated_at"`
	Rent                decimal.Decimal       `json:"rent"`
	Electricity         decimal.Decimal       `json:"electricity"`
	Wifi                decimal.Decimal       `json:"wifi"`
	Expenses            []billing.ExpenseLine `json:"expenses,omitempty"`
	PreviousOutstanding decimal.Decimal       `json:"previous_outstanding"`
	TotalCharges        decimal.Decimal       `json:"total_charges"`
	AmountPaid          decimal.Decimal       `json:"amount_paid"`
	CurrentOutstanding  decimal.Decimal       `json:"current_outstanding"`
	Status              string                `json:"status"`
	Note                string                `json:"note,omitempty"`
	PaidAt              *string               `json:"paid_at,omitempty"`
	NeedsReconciliation bool                  `json:"needs_reconciliation,omitempty"`
}

func toLedgerEntryDTO(e *billing.LedgerEntry) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		MemberID:            string(e.MemberID),
		Month:               e.Month.String(),
		GeneratedAt:         e.GeneratedAt.UTC().Format(time.RFC3339),
		Rent:                e.Rent,
		Electricity:         e.Electricity,
		Wifi:                e.Wifi,
		Expenses:            e.Expenses,
		PreviousOutstanding: e.PreviousOutstanding,
		TotalCharges:        e.TotalCharges,
		AmountPaid:          e.AmountPaid,
		CurrentOutstanding:  e.CurrentOutstanding,
		Status:              string(e.Status),
		Note:                e.Note,
		NeedsReconciliation: e.NeedsReconciliation,
	}
	if e.PaidAt != nil {
		s := e.PaidAt.UTC().Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

type FinalizeSettlementRequest struct {
	LeaveDate string `json:"leave_date"`
}

type SettlementDTO struct {
	MemberID           string          `json:"member_id"`
	MemberName         string          `json:"member_name"`
	TotalAgreedDeposit decimal.Decimal `json:"total_agreed_deposit"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	RefundAmount       decimal.Decimal `json:"refund_amount"`
	Status             string          `json:"status"`
	LeaveDate          string          `json:"leave_date"`
}

func toSettlementDTO(p *billing.SettlementPreview) SettlementDTO {
	return SettlementDTO{
		MemberID:           string(p.MemberID),
		MemberName:         p.MemberName,
		TotalAgreedDeposit: p.TotalAgreedDeposit,
		OutstandingBalance: p.OutstandingBalance,
		RefundAmount:       p.RefundAmount,
		Status:             string(p.Status),
		LeaveDate:          p.LeaveDate.Format("2006-01-02"),
	}
}

// =============================================================================
// ELECTRIC BILLS
// =============================================================================

type ElectricBillDTO struct {
	Month       string                        `json:"month"`
	GeneratedAt string                        `json:"generated_at"`
	LastUpdated string                        `json:"last_updated"`
	Floors      map[string]billing.FloorUsage `json:"floors"`
	Expenses    []billing.BulkExpense         `json:"expenses,omitempty"`
}

func toElectricBillDTO(b *billing.ElectricBill) ElectricBillDTO {
	return ElectricBillDTO{
		Month:       b.Month.String(),
		GeneratedAt: b.GeneratedAt.UTC().Format(time.RFC3339),
		LastUpdated: b.LastUpdated.UTC().Format(time.RFC3339),
		Floors:      b.Floors,
		Expenses:    b.Expenses,
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

type UpdateSettingsRequest struct {
	RentTable              map[string]map[string]decimal.Decimal `json:"rent_table,omitempty"`
	DefaultSecurityDeposit *decimal.Decimal                      `json:"default_security_deposit,omitempty"`
	WifiMonthlyCharge      *decimal.Decimal                      `json:"wifi_monthly_charge,omitempty"`
}

type SettingsDTO struct {
	RentTable              map[string]map[string]decimal.Decimal `json:"rent_table"`
	DefaultSecurityDeposit decimal.Decimal                       `json:"default_security_deposit"`
	WifiMonthlyCharge      decimal.Decimal                       `json:"wifi_monthly_charge"`
	CurrentBillingMonth    string                                `json:"current_billing_month"`
	NextBillingMonth       string                                `json:"next_billing_month"`
	MemberCounts           billing.MemberCounts                  `json:"member_counts"`
	Version                int64                                 `json:"version"`
}

func toSettingsDTO(s *billing.Settings) SettingsDTO {
	return SettingsDTO{
		RentTable:              s.RentTable,
		DefaultSecurityDeposit: s.DefaultSecurityDeposit,
		WifiMonthlyCharge:      s.WifiMonthlyCharge,
		CurrentBillingMonth:    s.CurrentBillingMonth.String(),
		NextBillingMonth:       s.NextBillingMonth.String(),
		MemberCounts:           s.MemberCounts,
		Version:                s.Version,
	}
}

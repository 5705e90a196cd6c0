/*
Package reports renders downloadable documents from billing data.

PURPOSE:
  Two document kinds: a settlement statement as PDF (handed to the member
  on move-out) and the current-period billing summary as an XLSX workbook
  (for the operator's bookkeeping). Both render from already-computed
  domain values and never touch the store.

SEE ALSO:
  - billing/settlement.go: SettlementPreview
  - billing/summary.go:    Summary
*/
package reports

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/hosteldesk/billing-engine/billing"
)

// =============================================================================
// SETTLEMENT STATEMENT (PDF)
// =============================================================================

// SettlementPDF renders a settlement statement with the member's recent
// ledger history attached. entries are expected most recent month first.
func SettlementPDF(preview *billing.SettlementPreview, entries []billing.LedgerEntry) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, "Move-Out Settlement Statement")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Member: %s (%s)", preview.MemberName, preview.MemberID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Leave Date: %s", preview.LeaveDate.Format("2006-01-02")))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Total Agreed Deposit: %s", preview.TotalAgreedDeposit.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Outstanding Balance: %s", preview.OutstandingBalance.StringFixed(2)))
	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("%s: %s", preview.Status, preview.RefundAmount.Abs().StringFixed(2)))
	pdf.Ln(10)

	// Ledger history table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Month", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Charges", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Paid", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Outstanding", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, e := range entries {
		pdf.CellFormat(25, 6, e.Month.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, e.TotalCharges.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, e.AmountPaid.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, e.CurrentOutstanding.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, string(e.Status), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render settlement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// BILLING SUMMARY (XLSX)
// =============================================================================

// SummaryXLSX renders the month's summary plus the full entry list as a
// two-sheet workbook.
func SummaryXLSX(summary *billing.Summary, entries []billing.LedgerEntry) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	entriesSheet := "entries"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, fmt.Errorf("create entries sheet: %w", err)
	}

	_ = f.SetCellValue(summarySheet, "A1", "Billing Summary")
	_ = f.SetCellValue(summarySheet, "A3", "Month")
	_ = f.SetCellValue(summarySheet, "B3", summary.Month.String())
	_ = f.SetCellValue(summarySheet, "A4", "Total Generated")
	_ = f.SetCellValue(summarySheet, "B4", summary.TotalGenerated.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A5", "Total Collected")
	_ = f.SetCellValue(summarySheet, "B5", summary.TotalCollected.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A6", "Total Outstanding")
	_ = f.SetCellValue(summarySheet, "B6", summary.TotalOutstanding.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A7", "Payment Rate (%)")
	_ = f.SetCellValue(summarySheet, "B7", summary.PaymentRate.StringFixed(2))

	headers := []string{"Member", "Month", "Rent", "Electricity", "WiFi",
		"Expenses", "Previous", "Total Charges", "Paid", "Outstanding", "Status"}
	for i, hdr := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(entriesSheet, cell, hdr)
	}
	for row, e := range entries {
		expenses := decimalSum(e.Expenses)
		values := []any{
			string(e.MemberID), e.Month.String(),
			e.Rent.StringFixed(2), e.Electricity.StringFixed(2), e.Wifi.StringFixed(2),
			expenses.StringFixed(2), e.PreviousOutstanding.StringFixed(2),
			e.TotalCharges.StringFixed(2), e.AmountPaid.StringFixed(2),
			e.CurrentOutstanding.StringFixed(2), string(e.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(entriesSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render summary workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func decimalSum(lines []billing.ExpenseLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

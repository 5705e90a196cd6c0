/*
handlers.go - HTTP API handlers for the billing ledger engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Billing:
    POST   /api/billing/generate        Bulk monthly generation
    POST   /api/billing/rollover        Advance the billing period
    GET    /api/billing/summary         Current-period summary (?month=)
    GET    /api/billing/summary/export.xlsx

  Electric bills:
    GET    /api/electric-bills/current  Latest audit record
    GET    /api/electric-bills/{month}

  Members:
    GET    /api/members                 List (?active=true)
    POST   /api/members                 Admit member
    GET    /api/members/{id}
    PUT    /api/members/{id}            Amend accommodation/rent/wifi
    GET    /api/members/{id}/ledger     Ledger history, newest first
    GET    /api/members/{id}/ledger/{month}
    POST   /api/members/{id}/ledger/{month}/payment
    GET    /api/members/{id}/settlement (?leave_date=)
    POST   /api/members/{id}/settlement Finalize move-out
    GET    /api/members/{id}/settlement/statement.pdf

  Settings (admin):
    GET    /api/settings
    PUT    /api/settings

ERROR HANDLING:
  Domain errors map onto HTTP statuses through the billing package's
  classification helpers:
  - 400: validation failures
  - 401: no/invalid caller identity
  - 403: caller not in the admin allowlist
  - 404: member / entry / configuration not found
  - 409: duplicate entry, concurrent balance update
  - 500: everything else

AUTHORIZATION:
  Every mutating handler calls the admin gate first; nothing is written
  for unauthorized callers. Read endpoints are open.

SEE ALSO:
  - dto.go:       Request/response data structures
  - server.go:    Router setup and middleware
  - scenarios.go: Demo data seeding
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hosteldesk/billing-engine/auth"
	"github.com/hosteldesk/billing-engine/billing"
	"github.com/hosteldesk/billing-engine/reports"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store billing.Store
	Gate  *auth.Gate

	Generator  *billing.Generator
	Recorder   *billing.Recorder
	Calculator *billing.Calculator
	Members    *billing.MemberService
	Settings   *billing.SettingsService
	Reporter   *billing.Reporter

	Metrics *Metrics
}

// NewHandler wires the domain services around one store.
func NewHandler(store billing.Store, gate *auth.Gate, metrics *Metrics) *Handler {
	return &Handler{
		Store:      store,
		Gate:       gate,
		Generator:  billing.NewGenerator(store),
		Recorder:   billing.NewRecorder(store),
		Calculator: billing.NewCalculator(store),
		Members:    billing.NewMemberService(store),
		Settings:   billing.NewSettingsService(store),
		Reporter:   billing.NewReporter(store),
		Metrics:    metrics,
	}
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// GenerateBills runs one bulk generation cycle.
func (h *Handler) GenerateBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	month, err := billing.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	in := billing.GenerateInput{
		Month:             month,
		FloorElectricity:  req.FloorElectricity,
		FloorMemberCounts: req.FloorMemberCounts,
	}
	for _, e := range req.BulkExpenses {
		ids := toMemberIDs(e.MemberIDs)
		if e.SplitEvenly {
			in.BulkExpenses = append(in.BulkExpenses, billing.SplitEvenly(e.Amount, ids, e.Description))
			continue
		}
		in.BulkExpenses = append(in.BulkExpenses, billing.BulkExpense{
			MemberIDs:   ids,
			Amount:      e.Amount,
			Description: e.Description,
		})
	}
	if req.WifiOverride != nil {
		in.WifiOverride = &billing.WifiOverride{
			MemberIDs: toMemberIDs(req.WifiOverride.MemberIDs),
			Amount:    req.WifiOverride.Amount,
		}
	}

	result, err := h.Generator.Generate(ctx, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Metrics.BillsGenerated.Add(float64(result.GeneratedCount))
	h.Metrics.BillsSkipped.Add(float64(result.SkippedCount))
	h.Metrics.GenerationErrors.Add(float64(len(result.Errors)))

	writeJSON(w, http.StatusOK, result)
}

// AdvanceBillingPeriod rolls the configured billing window forward.
func (h *Handler) AdvanceBillingPeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	settings, err := h.Settings.AdvanceBillingPeriod(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// GetSummary aggregates the current month, or ?month=YYYY-MM.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summarize(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ExportSummary renders the month's summary as an XLSX workbook.
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summarize(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Store.EntriesForMonth(r.Context(), summary.Month)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := reports.SummaryXLSX(summary, entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render workbook", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="billing-summary-%s.xlsx"`, summary.Month))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) summarize(r *http.Request) (*billing.Summary, error) {
	ctx := r.Context()
	if raw := r.URL.Query().Get("month"); raw != "" {
		month, err := billing.ParseMonth(raw)
		if err != nil {
			return nil, &billing.ValidationError{Field: "month", Message: err.Error()}
		}
		return h.Reporter.SummarizeMonth(ctx, month)
	}
	return h.Reporter.Summarize(ctx)
}

// =============================================================================
// ELECTRIC BILL HANDLERS
// =============================================================================

// GetCurrentElectricBill returns the latest audit record.
func (h *Handler) GetCurrentElectricBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Store.LatestElectricBill(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bill == nil {
		writeDomainError(w, billing.ErrElectricBillNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toElectricBillDTO(bill))
}

// GetElectricBill returns the audit record for one month.
func (h *Handler) GetElectricBill(w http.ResponseWriter, r *http.Request) {
	month, err := billing.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	bill, err := h.Store.GetElectricBill(r.Context(), month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bill == nil {
		writeDomainError(w, fmt.Errorf("%w: %s", billing.ErrElectricBillNotFound, month))
		return
	}
	writeJSON(w, http.StatusOK, toElectricBillDTO(bill))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns members, optionally filtered with ?active=true.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	members, err := h.Store.ListMembers(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i := range members {
		dtos[i] = toMemberDTO(&members[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.Store.GetMember(r.Context(), billing.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if member == nil {
		writeDomainError(w, billing.ErrMemberNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// AdmitMember creates a member with the financial baseline fixed.
func (h *Handler) AdmitMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req AdmitMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := billing.AdmitInput{
		Name:            req.Name,
		Phone:           req.Phone,
		Floor:           req.Floor,
		BedType:         req.BedType,
		SecurityDeposit: req.SecurityDeposit,
		AdvanceDeposit:  req.AdvanceDeposit,
		RentAtJoining:   req.RentAtJoining,
		OptedForWifi:    req.OptedForWifi,
	}
	if req.MoveInDate != "" {
		moveIn, err := time.Parse("2006-01-02", req.MoveInDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid move_in_date (use YYYY-MM-DD)", err)
			return
		}
		in.MoveInDate = moveIn
	}

	member, err := h.Members.Admit(ctx, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// AmendMember changes accommodation fields on an active member.
func (h *Handler) AmendMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req AmendMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.Members.Amend(ctx, billing.MemberID(chi.URLParam(r, "id")), billing.AmendInput{
		Floor:        req.Floor,
		BedType:      req.BedType,
		CurrentRent:  req.CurrentRent,
		OptedForWifi: req.OptedForWifi,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetMemberLedger returns a member's entries, most recent month first.
func (h *Handler) GetMemberLedger(w http.ResponseWriter, r *http.Request) {
	id := billing.MemberID(chi.URLParam(r, "id"))

	member, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if member == nil {
		writeDomainError(w, billing.ErrMemberNotFound)
		return
	}

	entries, err := h.Store.EntriesForMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toLedgerEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLedgerEntry returns one entry at (member, month).
func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	month, err := billing.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	entry, err := h.Store.GetEntry(r.Context(), billing.MemberID(chi.URLParam(r, "id")), month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entry == nil {
		writeDomainError(w, billing.ErrLedgerEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTO(entry))
}

// RecordPayment applies a cumulative payment to an entry.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	month, err := billing.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Recorder.Record(ctx, billing.PaymentInput{
		MemberID: billing.MemberID(chi.URLParam(r, "id")),
		Month:    month,
		Amount:   req.Amount,
		Note:     req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Metrics.PaymentsRecorded.Inc()
	writeJSON(w, http.StatusOK, toLedgerEntryDTO(entry))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// PreviewSettlement computes the settlement without mutating state.
// ?leave_date=YYYY-MM-DD defaults to today.
func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	leaveDate, err := parseLeaveDate(r.URL.Query().Get("leave_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave_date (use YYYY-MM-DD)", err)
		return
	}

	preview, err := h.Calculator.Preview(r.Context(), billing.MemberID(chi.URLParam(r, "id")), leaveDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(preview))
}

// FinalizeSettlement deactivates the member and returns the settlement.
func (h *Handler) FinalizeSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req FinalizeSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	leaveDate, err := parseLeaveDate(req.LeaveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave_date (use YYYY-MM-DD)", err)
		return
	}

	settlement, err := h.Calculator.Finalize(ctx, billing.MemberID(chi.URLParam(r, "id")), leaveDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Metrics.SettlementsFinalized.Inc()
	writeJSON(w, http.StatusOK, toSettlementDTO(settlement))
}

// SettlementStatementPDF renders the settlement preview with the member's
// ledger history as a downloadable statement.
func (h *Handler) SettlementStatementPDF(w http.ResponseWriter, r *http.Request) {
	leaveDate, err := parseLeaveDate(r.URL.Query().Get("leave_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave_date (use YYYY-MM-DD)", err)
		return
	}

	id := billing.MemberID(chi.URLParam(r, "id"))
	preview, err := h.Calculator.Preview(r.Context(), id, leaveDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Store.EntriesForMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := reports.SettlementPDF(preview, entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render statement", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="settlement-%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the singleton configuration. Admin-only: the rent
// table and deposit defaults are not public.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	settings, err := h.Settings.Get(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// UpdateSettings changes configuration values. Billing months roll over
// only via the rollover endpoint.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings, err := h.Settings.Update(ctx, billing.SettingsUpdate{
		RentTable:              req.RentTable,
		DefaultSecurityDeposit: req.DefaultSecurityDeposit,
		WifiMonthlyCharge:      req.WifiMonthlyCharge,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error onto an HTTP status. Conflicts are
// classified before the generic client-error bucket because
// IsClientError also covers them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required", err)
	case errors.Is(err, billing.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Administrator access required", err)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, billing.ErrDuplicateEntry),
		errors.Is(err, billing.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Conflict", err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseLeaveDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", raw)
}

func toMemberIDs(ids []string) []billing.MemberID {
	out := make([]billing.MemberID, len(ids))
	for i, id := range ids {
		out[i] = billing.MemberID(id)
	}
	return out
}

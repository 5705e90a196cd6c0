// Package store provides an in-memory billing.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hosteldesk/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	members  map[billing.MemberID]billing.Member
	entries  map[entryKey]billing.LedgerEntry
	bills    map[billing.Month]billing.ElectricBill
	settings *billing.Settings
	admins   map[string]bool
}

type entryKey struct {
	MemberID billing.MemberID
	Month    billing.Month
}

func NewMemory() *Memory {
	return &Memory{
		members: make(map[billing.MemberID]billing.Member),
		entries: make(map[entryKey]billing.LedgerEntry),
		bills:   make(map[billing.Month]billing.ElectricBill),
		admins:  make(map[string]bool),
	}
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (m *Memory) SaveMember(_ context.Context, member billing.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.ID] = member
	return nil
}

func (m *Memory) GetMember(_ context.Context, id billing.MemberID) (*billing.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	cp := member
	return &cp, nil
}

func (m *Memory) ListMembers(_ context.Context, activeOnly bool) ([]billing.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Member, 0, len(m.members))
	for _, member := range m.members {
		if activeOnly && !member.IsActive {
			continue
		}
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) UpdateBalance(_ context.Context, id billing.MemberID, expected, next decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return billing.ErrMemberNotFound
	}
	if !member.OutstandingBalance.Equal(expected) {
		return &billing.BalanceConflictError{
			MemberID: id,
			Expected: expected,
			Found:    member.OutstandingBalance,
		}
	}
	member.OutstandingBalance = next
	m.members[id] = member
	return nil
}

func (m *Memory) Deactivate(_ context.Context, id billing.MemberID, leaveDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return billing.ErrMemberNotFound
	}
	member.IsActive = false
	member.LeaveDate = &leaveDate
	m.members[id] = member
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) CreateEntry(_ context.Context, e billing.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{MemberID: e.MemberID, Month: e.Month}
	if _, exists := m.entries[k]; exists {
		return billing.ErrDuplicateEntry
	}
	m.entries[k] = e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id billing.MemberID, month billing.Month) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryKey{MemberID: id, Month: month}]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (m *Memory) EntryExists(_ context.Context, id billing.MemberID, month billing.Month) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[entryKey{MemberID: id, Month: month}]
	return ok, nil
}

func (m *Memory) UpdatePayment(_ context.Context, id billing.MemberID, month billing.Month, p billing.PaymentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{MemberID: id, Month: month}
	e, ok := m.entries[k]
	if !ok {
		return billing.ErrLedgerEntryNotFound
	}
	e.AmountPaid = p.AmountPaid
	e.CurrentOutstanding = p.CurrentOutstanding
	e.Status = p.Status
	e.Note = p.Note
	paidAt := p.PaidAt
	e.PaidAt = &paidAt
	m.entries[k] = e
	return nil
}

func (m *Memory) MarkReconciliation(_ context.Context, id billing.MemberID, month billing.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{MemberID: id, Month: month}
	e, ok := m.entries[k]
	if !ok {
		return billing.ErrLedgerEntryNotFound
	}
	e.NeedsReconciliation = true
	m.entries[k] = e
	return nil
}

func (m *Memory) EntriesForMonth(_ context.Context, month billing.Month) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.LedgerEntry
	for k, e := range m.entries {
		if k.Month.Equal(month) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MemberID < result[j].MemberID })
	return result, nil
}

func (m *Memory) EntriesForMember(_ context.Context, id billing.MemberID) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.LedgerEntry
	for k, e := range m.entries {
		if k.MemberID == id {
			result = append(result, e)
		}
	}
	// Most recent month first.
	sort.Slice(result, func(i, j int) bool { return result[j].Month.Before(result[i].Month) })
	return result, nil
}

// =============================================================================
// ELECTRIC BILL STORE
// =============================================================================

func (m *Memory) UpsertElectricBill(_ context.Context, b billing.ElectricBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bills[b.Month]; ok {
		b.GeneratedAt = existing.GeneratedAt
	}
	m.bills[b.Month] = b
	return nil
}

func (m *Memory) GetElectricBill(_ context.Context, month billing.Month) (*billing.ElectricBill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bills[month]
	if !ok {
		return nil, nil
	}
	cp := b
	return &cp, nil
}

func (m *Memory) LatestElectricBill(_ context.Context) (*billing.ElectricBill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *billing.ElectricBill
	for month := range m.bills {
		if latest == nil || latest.Month.Before(month) {
			b := m.bills[month]
			latest = &b
		}
	}
	return latest, nil
}

// =============================================================================
// SETTINGS + ALLOWLIST
// =============================================================================

func (m *Memory) GetSettings(_ context.Context) (*billing.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	cp := *m.settings
	return &cp, nil
}

func (m *Memory) SaveSettings(_ context.Context, s billing.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *Memory) IsAdmin(_ context.Context, callerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[callerID], nil
}

func (m *Memory) SaveAdmins(_ context.Context, callerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins = make(map[string]bool, len(callerIDs))
	for _, id := range callerIDs {
		m.admins[id] = true
	}
	return nil
}

var _ billing.Store = (*Memory)(nil)

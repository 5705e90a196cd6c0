/*
Package sqlite provides a SQLite-backed implementation of billing.Store.

PURPOSE:
  Implements every persistence interface the billing engine consumes
  (members, ledger entries, electric bills, settings, admin allowlist)
  using SQLite. The same patterns apply to PostgreSQL with minor dialect
  changes.

KEY TABLES:
  members:        one row per occupant, balance as canonical decimal text
  ledger_entries: one row per (member_id, month), month in "YYYY-MM" form
  electric_bills: one row per month (floors and expenses as JSON)
  settings:       singleton configuration row (JSON blob + version)
  admins:         allowlist of caller ids

DECIMALS:
  Currency amounts are stored as decimal.Decimal.String() text and parsed
  on read. The compare-and-swap balance update relies on this canonical
  form: the guarded UPDATE compares the stored text against the text of
  the balance the caller read, so both sides always come from the same
  String() round-trip.

IMMUTABILITY:
  Ledger charge components are written once by CreateEntry (INSERT only,
  duplicate key reported as ErrDuplicateEntry). UpdatePayment touches only
  the payment columns.

WAL MODE:
  The database is opened with WAL for better concurrency and crash
  recovery; foreign keys are enforced.

SEE ALSO:
  - billing/store.go:        interface definitions
  - billing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/hosteldesk/billing-engine/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		floor TEXT NOT NULL,
		bed_type TEXT NOT NULL DEFAULT '',
		move_in_date TEXT NOT NULL,
		security_deposit TEXT NOT NULL,
		rent_at_joining TEXT NOT NULL,
		advance_deposit TEXT NOT NULL,
		total_agreed_deposit TEXT NOT NULL,
		current_rent TEXT NOT NULL,
		outstanding_balance TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		opted_for_wifi INTEGER NOT NULL DEFAULT 0,
		leave_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_active ON members(is_active);
	CREATE INDEX IF NOT EXISTS idx_members_floor ON members(floor) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS ledger_entries (
		member_id TEXT NOT NULL REFERENCES members(id),
		month TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		rent TEXT NOT NULL,
		electricity TEXT NOT NULL,
		wifi TEXT NOT NULL,
		expenses_json TEXT NOT NULL DEFAULT '[]',
		previous_outstanding TEXT NOT NULL,
		total_charges TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		current_outstanding TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		paid_at TEXT,
		needs_reconciliation INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (member_id, month)
	);

	-- "YYYY-MM" sorts chronologically, so ORDER BY month works directly.
	CREATE INDEX IF NOT EXISTS idx_ledger_month ON ledger_entries(month);
	CREATE INDEX IF NOT EXISTS idx_ledger_reconciliation
		ON ledger_entries(needs_reconciliation) WHERE needs_reconciliation = 1;

	CREATE TABLE IF NOT EXISTS electric_bills (
		month TEXT PRIMARY KEY,
		generated_at TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		floors_json TEXT NOT NULL DEFAULT '{}',
		expenses_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admins (
		caller_id TEXT PRIMARY KEY
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (s *Store) SaveMember(ctx context.Context, m billing.Member) error {
	var leaveDate any
	if m.LeaveDate != nil {
		leaveDate = m.LeaveDate.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, phone, floor, bed_type, move_in_date,
			security_deposit, rent_at_joining, advance_deposit, total_agreed_deposit,
			current_rent, outstanding_balance, is_active, opted_for_wifi, leave_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			floor = excluded.floor,
			bed_type = excluded.bed_type,
			move_in_date = excluded.move_in_date,
			security_deposit = excluded.security_deposit,
			rent_at_joining = excluded.rent_at_joining,
			advance_deposit = excluded.advance_deposit,
			total_agreed_deposit = excluded.total_agreed_deposit,
			current_rent = excluded.current_rent,
			outstanding_balance = excluded.outstanding_balance,
			is_active = excluded.is_active,
			opted_for_wifi = excluded.opted_for_wifi,
			leave_date = excluded.leave_date`,
		string(m.ID), m.Name, m.Phone, m.Floor, m.BedType,
		m.MoveInDate.UTC().Format(time.RFC3339),
		m.SecurityDeposit.String(), m.RentAtJoining.String(), m.AdvanceDeposit.String(),
		m.TotalAgreedDeposit.String(), m.CurrentRent.String(), m.OutstandingBalance.String(),
		boolToInt(m.IsActive), boolToInt(m.OptedForWifi), leaveDate,
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetMember(ctx context.Context, id billing.MemberID) (*billing.Member, error) {
	members, err := s.queryMembers(ctx, memberColumns+` FROM members WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

func (s *Store) ListMembers(ctx context.Context, activeOnly bool) ([]billing.Member, error) {
	query := memberColumns + ` FROM members`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`
	return s.queryMembers(ctx, query)
}

func (s *Store) UpdateBalance(ctx context.Context, id billing.MemberID, expected, next decimal.Decimal) error {
	// Single guarded UPDATE: the compare and the write happen as one unit
	// at the database, so two concurrent writers cannot both succeed.
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET outstanding_balance = ?
		WHERE id = ? AND outstanding_balance = ?`,
		next.String(), string(id), expected.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	current, err := s.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return billing.ErrMemberNotFound
	}
	return &billing.BalanceConflictError{
		MemberID: id,
		Expected: expected,
		Found:    current.OutstandingBalance,
	}
}

func (s *Store) Deactivate(ctx context.Context, id billing.MemberID, leaveDate time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET is_active = 0, leave_date = ? WHERE id = ?`,
		leaveDate.UTC().Format(time.RFC3339), string(id))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrMemberNotFound
	}
	return nil
}

const memberColumns = `SELECT id, name, phone, floor, bed_type, move_in_date,
	security_deposit, rent_at_joining, advance_deposit, total_agreed_deposit,
	current_rent, outstanding_balance, is_active, opted_for_wifi, leave_date, created_at`

func (s *Store) queryMembers(ctx context.Context, query string, args ...any) ([]billing.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []billing.Member
	for rows.Next() {
		var (
			m                     billing.Member
			id, moveIn, createdAt string

			security, rentJoin, advance, agreed, currentRent, balance string

			isActive, optedWifi int
			leaveDate           sql.NullString
		)
		if err := rows.Scan(&id, &m.Name, &m.Phone, &m.Floor, &m.BedType, &moveIn,
			&security, &rentJoin, &advance, &agreed, &currentRent, &balance,
			&isActive, &optedWifi, &leaveDate, &createdAt); err != nil {
			return nil, err
		}
		m.ID = billing.MemberID(id)
		if m.MoveInDate, err = time.Parse(time.RFC3339, moveIn); err != nil {
			return nil, fmt.Errorf("parse move_in_date: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if m.SecurityDeposit, err = decimal.NewFromString(security); err != nil {
			return nil, fmt.Errorf("parse security_deposit: %w", err)
		}
		if m.RentAtJoining, err = decimal.NewFromString(rentJoin); err != nil {
			return nil, fmt.Errorf("parse rent_at_joining: %w", err)
		}
		if m.AdvanceDeposit, err = decimal.NewFromString(advance); err != nil {
			return nil, fmt.Errorf("parse advance_deposit: %w", err)
		}
		if m.TotalAgreedDeposit, err = decimal.NewFromString(agreed); err != nil {
			return nil, fmt.Errorf("parse total_agreed_deposit: %w", err)
		}
		if m.CurrentRent, err = decimal.NewFromString(currentRent); err != nil {
			return nil, fmt.Errorf("parse current_rent: %w", err)
		}
		if m.OutstandingBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse outstanding_balance: %w", err)
		}
		m.IsActive = isActive == 1
		m.OptedForWifi = optedWifi == 1
		if leaveDate.Valid {
			t, err := time.Parse(time.RFC3339, leaveDate.String)
			if err != nil {
				return nil, fmt.Errorf("parse leave_date: %w", err)
			}
			m.LeaveDate = &t
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) CreateEntry(ctx context.Context, e billing.LedgerEntry) error {
	expenses, err := json.Marshal(e.Expenses)
	if err != nil {
		return fmt.Errorf("marshal expenses: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (member_id, month, generated_at, rent, electricity,
			wifi, expenses_json, previous_outstanding, total_charges, amount_paid,
			current_outstanding, status, note, needs_reconciliation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.MemberID), e.Month.String(), e.GeneratedAt.UTC().Format(time.RFC3339),
		e.Rent.String(), e.Electricity.String(), e.Wifi.String(), string(expenses),
		e.PreviousOutstanding.String(), e.TotalCharges.String(), e.AmountPaid.String(),
		e.CurrentOutstanding.String(), string(e.Status), e.Note,
		boolToInt(e.NeedsReconciliation))
	if err != nil && isUniqueViolation(err) {
		return billing.ErrDuplicateEntry
	}
	return err
}

func (s *Store) GetEntry(ctx context.Context, id billing.MemberID, month billing.Month) (*billing.LedgerEntry, error) {
	entries, err := s.queryEntries(ctx,
		entryColumns+` FROM ledger_entries WHERE member_id = ? AND month = ?`,
		string(id), month.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) EntryExists(ctx context.Context, id billing.MemberID, month billing.Month) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_entries WHERE member_id = ? AND month = ?`,
		string(id), month.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpdatePayment(ctx context.Context, id billing.MemberID, month billing.Month, p billing.PaymentUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET amount_paid = ?, current_outstanding = ?, status = ?, note = ?, paid_at = ?
		WHERE member_id = ? AND month = ?`,
		p.AmountPaid.String(), p.CurrentOutstanding.String(), string(p.Status),
		p.Note, p.PaidAt.UTC().Format(time.RFC3339),
		string(id), month.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrLedgerEntryNotFound
	}
	return nil
}

func (s *Store) MarkReconciliation(ctx context.Context, id billing.MemberID, month billing.Month) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET needs_reconciliation = 1
		WHERE member_id = ? AND month = ?`,
		string(id), month.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrLedgerEntryNotFound
	}
	return nil
}

func (s *Store) EntriesForMonth(ctx context.Context, month billing.Month) ([]billing.LedgerEntry, error) {
	return s.queryEntries(ctx,
		entryColumns+` FROM ledger_entries WHERE month = ? ORDER BY member_id`,
		month.String())
}

func (s *Store) EntriesForMember(ctx context.Context, id billing.MemberID) ([]billing.LedgerEntry, error) {
	return s.queryEntries(ctx,
		entryColumns+` FROM ledger_entries WHERE member_id = ? ORDER BY month DESC`,
		string(id))
}

const entryColumns = `SELECT member_id, month, generated_at, rent, electricity, wifi,
	expenses_json, previous_outstanding, total_charges, amount_paid,
	current_outstanding, status, note, paid_at, needs_reconciliation`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]billing.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []billing.LedgerEntry
	for rows.Next() {
		var (
			e                                             billing.LedgerEntry
			memberID, monthStr, generatedAt, expensesJSON string

			rent, elec, wifi, prev, total, paid, current string

			status   string
			paidAt   sql.NullString
			needsRec int
		)
		if err := rows.Scan(&memberID, &monthStr, &generatedAt, &rent, &elec, &wifi,
			&expensesJSON, &prev, &total, &paid, &current, &status, &e.Note,
			&paidAt, &needsRec); err != nil {
			return nil, err
		}
		e.MemberID = billing.MemberID(memberID)
		if e.Month, err = billing.ParseMonth(monthStr); err != nil {
			return nil, err
		}
		if e.GeneratedAt, err = time.Parse(time.RFC3339, generatedAt); err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		if err := json.Unmarshal([]byte(expensesJSON), &e.Expenses); err != nil {
			return nil, fmt.Errorf("unmarshal expenses: %w", err)
		}
		if e.Rent, err = decimal.NewFromString(rent); err != nil {
			return nil, fmt.Errorf("parse rent: %w", err)
		}
		if e.Electricity, err = decimal.NewFromString(elec); err != nil {
			return nil, fmt.Errorf("parse electricity: %w", err)
		}
		if e.Wifi, err = decimal.NewFromString(wifi); err != nil {
			return nil, fmt.Errorf("parse wifi: %w", err)
		}
		if e.PreviousOutstanding, err = decimal.NewFromString(prev); err != nil {
			return nil, fmt.Errorf("parse previous_outstanding: %w", err)
		}
		if e.TotalCharges, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total_charges: %w", err)
		}
		if e.AmountPaid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("parse amount_paid: %w", err)
		}
		if e.CurrentOutstanding, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("parse current_outstanding: %w", err)
		}
		e.Status = billing.PaymentStatus(status)
		if paidAt.Valid {
			t, err := time.Parse(time.RFC3339, paidAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse paid_at: %w", err)
			}
			e.PaidAt = &t
		}
		e.NeedsReconciliation = needsRec == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// ELECTRIC BILL STORE
// =============================================================================

func (s *Store) UpsertElectricBill(ctx context.Context, b billing.ElectricBill) error {
	floors, err := json.Marshal(b.Floors)
	if err != nil {
		return fmt.Errorf("marshal floors: %w", err)
	}
	expenses, err := json.Marshal(b.Expenses)
	if err != nil {
		return fmt.Errorf("marshal expenses: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO electric_bills (month, generated_at, last_updated, floors_json, expenses_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			last_updated = excluded.last_updated,
			floors_json = excluded.floors_json,
			expenses_json = excluded.expenses_json`,
		b.Month.String(), b.GeneratedAt.UTC().Format(time.RFC3339),
		b.LastUpdated.UTC().Format(time.RFC3339), string(floors), string(expenses))
	return err
}

func (s *Store) GetElectricBill(ctx context.Context, month billing.Month) (*billing.ElectricBill, error) {
	return s.queryOneBill(ctx, `
		SELECT month, generated_at, last_updated, floors_json, expenses_json
		FROM electric_bills WHERE month = ?`, month.String())
}

func (s *Store) LatestElectricBill(ctx context.Context) (*billing.ElectricBill, error) {
	return s.queryOneBill(ctx, `
		SELECT month, generated_at, last_updated, floors_json, expenses_json
		FROM electric_bills ORDER BY month DESC LIMIT 1`)
}

func (s *Store) queryOneBill(ctx context.Context, query string, args ...any) (*billing.ElectricBill, error) {
	var (
		b                              billing.ElectricBill
		monthStr, genAt, updAt, fl, ex string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&monthStr, &genAt, &updAt, &fl, &ex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.Month, err = billing.ParseMonth(monthStr); err != nil {
		return nil, err
	}
	if b.GeneratedAt, err = time.Parse(time.RFC3339, genAt); err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	if b.LastUpdated, err = time.Parse(time.RFC3339, updAt); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	if err := json.Unmarshal([]byte(fl), &b.Floors); err != nil {
		return nil, fmt.Errorf("unmarshal floors: %w", err)
	}
	if err := json.Unmarshal([]byte(ex), &b.Expenses); err != nil {
		return nil, fmt.Errorf("unmarshal expenses: %w", err)
	}
	return &b, nil
}

// =============================================================================
// SETTINGS + ALLOWLIST
// =============================================================================

func (s *Store) GetSettings(ctx context.Context) (*billing.Settings, error) {
	var configJSON string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT config_json, version FROM settings WHERE id = 1`).Scan(&configJSON, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var settings billing.Settings
	if err := json.Unmarshal([]byte(configJSON), &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	settings.Version = version
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings billing.Settings) error {
	configJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, config_json, version) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			version = excluded.version`,
		string(configJSON), settings.Version)
	return err
}

func (s *Store) IsAdmin(ctx context.Context, callerID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM admins WHERE caller_id = ?`, callerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SaveAdmins(ctx context.Context, callerIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM admins`); err != nil {
		return err
	}
	for _, id := range callerIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO admins (caller_id) VALUES (?)`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports primary-key violations with this message;
	// matching text avoids depending on the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ billing.Store = (*Store)(nil)

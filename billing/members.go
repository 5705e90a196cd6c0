/*
members.go - Member admission and amendment

PURPOSE:
  Creates and amends member records, and keeps the denormalized
  active-member counts on the settings record fresh.

ADMISSION:
  totalAgreedDeposit = securityDeposit + advanceDeposit + rentAtJoining,
  computed once at creation and never recomputed. Rent defaults from the
  settings rent table by floor and bed type; the security deposit defaults
  from settings. Explicit values in the input win over defaults.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdmitInput describes a new occupant. Deposit and rent fields are
// optional; nil means "use the configured default".
type AdmitInput struct {
	Name       string
	Phone      string
	Floor      string
	BedType    string
	MoveInDate time.Time

	SecurityDeposit *decimal.Decimal
	AdvanceDeposit  *decimal.Decimal
	RentAtJoining   *decimal.Decimal

	OptedForWifi bool
}

// AmendInput changes a member's accommodation while active. Nil fields are
// left unchanged.
type AmendInput struct {
	Floor        *string
	BedType      *string
	CurrentRent  *decimal.Decimal
	OptedForWifi *bool
}

// MemberService manages member records.
type MemberService struct {
	Members  MemberStore
	Settings SettingsStore

	clock func() time.Time
}

func NewMemberService(store Store) *MemberService {
	return &MemberService{Members: store, Settings: store, clock: time.Now}
}

// Admit creates a member. The financial baseline is fixed here; only
// CurrentRent may change later.
func (s *MemberService) Admit(ctx context.Context, in AdmitInput) (*Member, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.Floor == "" {
		return nil, &ValidationError{Field: "floor", Message: "floor is required"}
	}

	settings, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		return nil, ErrSettingsNotFound
	}

	rent := decimal.Zero
	if in.RentAtJoining != nil {
		rent = *in.RentAtJoining
	} else if tableRent, ok := settings.RentFor(in.Floor, in.BedType); ok {
		rent = tableRent
	} else {
		return nil, &ValidationError{
			Field:   "floor/bed_type",
			Message: fmt.Sprintf("no configured rent for floor %q bed type %q", in.Floor, in.BedType),
		}
	}

	security := settings.DefaultSecurityDeposit
	if in.SecurityDeposit != nil {
		security = *in.SecurityDeposit
	}
	advance := decimal.Zero
	if in.AdvanceDeposit != nil {
		advance = *in.AdvanceDeposit
	}

	moveIn := in.MoveInDate
	if moveIn.IsZero() {
		moveIn = s.clock()
	}

	m := Member{
		ID:                 MemberID(uuid.NewString()),
		Name:               in.Name,
		Phone:              in.Phone,
		Floor:              in.Floor,
		BedType:            in.BedType,
		MoveInDate:         moveIn,
		SecurityDeposit:    security,
		RentAtJoining:      rent,
		AdvanceDeposit:     advance,
		TotalAgreedDeposit: security.Add(advance).Add(rent),
		CurrentRent:        rent,
		OutstandingBalance: decimal.Zero,
		IsActive:           true,
		OptedForWifi:       in.OptedForWifi,
		CreatedAt:          s.clock(),
	}

	if err := s.Members.SaveMember(ctx, m); err != nil {
		return nil, fmt.Errorf("save member: %w", err)
	}
	if err := s.RefreshCounts(ctx); err != nil {
		return nil, fmt.Errorf("refresh member counts: %w", err)
	}
	return &m, nil
}

// Amend changes accommodation fields on an active member.
func (s *MemberService) Amend(ctx context.Context, id MemberID, in AmendInput) (*Member, error) {
	member, err := s.Members.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	if !member.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrMemberInactive, id)
	}

	if in.Floor != nil {
		member.Floor = *in.Floor
	}
	if in.BedType != nil {
		member.BedType = *in.BedType
	}
	if in.CurrentRent != nil {
		member.CurrentRent = *in.CurrentRent
	}
	if in.OptedForWifi != nil {
		member.OptedForWifi = *in.OptedForWifi
	}

	if err := s.Members.SaveMember(ctx, *member); err != nil {
		return nil, fmt.Errorf("save member: %w", err)
	}
	if err := s.RefreshCounts(ctx); err != nil {
		return nil, fmt.Errorf("refresh member counts: %w", err)
	}
	return member, nil
}

// RefreshCounts recomputes the denormalized active-member aggregates on the
// settings record.
func (s *MemberService) RefreshCounts(ctx context.Context) error {
	settings, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings == nil {
		return ErrSettingsNotFound
	}

	active, err := s.Members.ListMembers(ctx, true)
	if err != nil {
		return err
	}

	counts := MemberCounts{ByFloor: make(map[string]int)}
	for _, m := range active {
		counts.Total++
		counts.ByFloor[m.Floor]++
		if m.OptedForWifi {
			counts.WifiOptedIn++
		}
	}

	settings.MemberCounts = counts
	settings.Version++
	return s.Settings.SaveSettings(ctx, *settings)
}

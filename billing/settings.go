package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTINGS SERVICE - Rent table edits and billing period rollover
// =============================================================================

// SettingsUpdate changes configuration values. Nil fields are left
// unchanged; billing months roll over only via AdvanceBillingPeriod.
type SettingsUpdate struct {
	RentTable              map[string]map[string]decimal.Decimal
	DefaultSecurityDeposit *decimal.Decimal
	WifiMonthlyCharge      *decimal.Decimal
}

type SettingsService struct {
	Settings SettingsStore
}

func NewSettingsService(store Store) *SettingsService {
	return &SettingsService{Settings: store}
}

func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	settings, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, ErrSettingsNotFound
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, in SettingsUpdate) (*Settings, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if in.RentTable != nil {
		settings.RentTable = in.RentTable
	}
	if in.DefaultSecurityDeposit != nil {
		settings.DefaultSecurityDeposit = *in.DefaultSecurityDeposit
	}
	if in.WifiMonthlyCharge != nil {
		settings.WifiMonthlyCharge = *in.WifiMonthlyCharge
	}

	settings.Version++
	if err := s.Settings.SaveSettings(ctx, *settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// AdvanceBillingPeriod rolls the billing window forward: current becomes
// next, next advances one month. Invoked explicitly by an administrator
// after a cycle has been generated; never scheduled.
func (s *SettingsService) AdvanceBillingPeriod(ctx context.Context) (*Settings, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	settings.CurrentBillingMonth = settings.NextBillingMonth
	settings.NextBillingMonth = settings.NextBillingMonth.Next()
	settings.Version++

	if err := s.Settings.SaveSettings(ctx, *settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

/*
scenarios.go - Demo data seeding for development and demos

PURPOSE:
  Populates the store with a realistic small hostel: settings with a rent
  table, an admin allowlist, a handful of members across two floors, and
  one generated billing month with a couple of payments. Gives the
  frontend something to render without manual setup.

USAGE VIA API:
  POST /api/scenarios/seed
  {"admin_ids": ["admin-1"]}

NOTE:
  Seeding writes over the settings singleton and the allowlist. Only
  enabled in development (see RouterConfig.EnableScenarios).

SEE ALSO:
  - server.go: route registration behind EnableScenarios
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hosteldesk/billing-engine/billing"
)

type SeedRequest struct {
	// AdminIDs replaces the admin allowlist. Defaults to the caller.
	AdminIDs []string `json:"admin_ids,omitempty"`
}

type SeedResult struct {
	Members   []string               `json:"members"`
	Month     string                 `json:"month"`
	Generated billing.GenerateResult `json:"generated"`
}

// SeedScenario loads the demo hostel.
func (h *Handler) SeedScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Gate.Authorize(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var req SeedRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if len(req.AdminIDs) > 0 {
		if err := h.Store.SaveAdmins(ctx, req.AdminIDs); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save admins", err)
			return
		}
	}

	result, err := h.seedDemoHostel(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) seedDemoHostel(ctx context.Context) (*SeedResult, error) {
	now := time.Now()
	current := billing.MonthOf(now)

	settings := billing.Settings{
		RentTable: map[string]map[string]decimal.Decimal{
			"2nd": {
				"single": decimal.NewFromInt(2400),
				"shared": decimal.NewFromInt(2000),
			},
			"3rd": {
				"single": decimal.NewFromInt(2600),
				"shared": decimal.NewFromInt(2200),
			},
		},
		DefaultSecurityDeposit: decimal.NewFromInt(1000),
		WifiMonthlyCharge:      decimal.NewFromInt(250),
		CurrentBillingMonth:    current,
		NextBillingMonth:       current.Next(),
		Version:                1,
	}
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	seedMembers := []struct {
		name    string
		floor   string
		bedType string
		wifi    bool
	}{
		{"Asha Rao", "2nd", "shared", true},
		{"Binu Thomas", "2nd", "single", false},
		{"Chitra Nair", "3rd", "shared", true},
		{"Deepak Menon", "3rd", "shared", false},
	}

	result := &SeedResult{Month: current.String()}
	for _, sm := range seedMembers {
		member, err := h.Members.Admit(ctx, billing.AdmitInput{
			Name:         sm.name,
			Floor:        sm.floor,
			BedType:      sm.bedType,
			MoveInDate:   now.AddDate(0, -3, 0),
			OptedForWifi: sm.wifi,
		})
		if err != nil {
			return nil, fmt.Errorf("admit %s: %w", sm.name, err)
		}
		result.Members = append(result.Members, string(member.ID))
	}

	counts, err := h.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	generated, err := h.Generator.Generate(ctx, billing.GenerateInput{
		Month: current,
		FloorElectricity: map[string]decimal.Decimal{
			"2nd": decimal.NewFromInt(1800),
			"3rd": decimal.NewFromInt(1500),
		},
		FloorMemberCounts: counts.MemberCounts.ByFloor,
	})
	if err != nil {
		return nil, fmt.Errorf("generate demo month: %w", err)
	}
	result.Generated = generated

	// A paid and a partially paid entry make the summary non-trivial.
	if len(result.Members) >= 2 {
		for i, amount := range []int64{2650, 1000} {
			id := billing.MemberID(result.Members[i])
			entry, err := h.Store.GetEntry(ctx, id, current)
			if err != nil || entry == nil {
				continue
			}
			pay := decimal.NewFromInt(amount)
			if i == 0 {
				pay = entry.TotalCharges
			}
			if _, err := h.Recorder.Record(ctx, billing.PaymentInput{
				MemberID: id,
				Month:    current,
				Amount:   pay,
				Note:     "seed payment",
			}); err != nil {
				return nil, fmt.Errorf("seed payment: %w", err)
			}
		}
	}

	return result, nil
}

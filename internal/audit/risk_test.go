package audit

import (
	"testing"
	"time"
)

// businessHours is a write timestamp inside the allowed window so tests only
// trigger the after-hours bump when they mean to.
var businessHours = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func TestRiskScoreLargeFinancialApproval(t *testing.T) {
	cfg := DefaultRiskConfig()
	score := RiskScore(cfg, Event{
		Severity:  SeverityHigh,
		Financial: true,
		Amount:    75000,
	}, businessHours)
	if score != 85 {
		t.Fatalf("expected 60+25=85, got %d", score)
	}
}

func TestRiskScoreAmountTiers(t *testing.T) {
	cfg := DefaultRiskConfig()
	cases := []struct {
		amount float64
		want   int
	}{
		{0, 10},
		{1000, 10},
		{1001, 15},
		{10001, 25},
		{50001, 35},
	}
	for _, tc := range cases {
		got := RiskScore(cfg, Event{Severity: SeverityLow, Amount: tc.amount}, businessHours)
		if got != tc.want {
			t.Fatalf("amount %.0f: expected %d, got %d", tc.amount, tc.want, got)
		}
	}
}

func TestRiskScoreOperationBumps(t *testing.T) {
	cfg := DefaultRiskConfig()

	del := RiskScore(cfg, Event{Severity: SeverityLow, Operation: OperationDelete}, businessHours)
	if del != 25 {
		t.Fatalf("delete: expected 10+15=25, got %d", del)
	}

	vendorApprove := RiskScore(cfg, Event{
		Severity:   SeverityLow,
		Operation:  OperationApprove,
		EntityType: "vendor",
	}, businessHours)
	if vendorApprove != 20 {
		t.Fatalf("vendor approve: expected 10+10=20, got %d", vendorApprove)
	}

	otherApprove := RiskScore(cfg, Event{
		Severity:   SeverityLow,
		Operation:  OperationApprove,
		EntityType: "product",
	}, businessHours)
	if otherApprove != 10 {
		t.Fatalf("non-vendor approve should not bump, got %d", otherApprove)
	}
}

func TestRiskScoreActorType(t *testing.T) {
	cfg := DefaultRiskConfig()

	api := RiskScore(cfg, Event{Severity: SeverityLow, ActorType: ActorAPIClient}, businessHours)
	if api != 20 {
		t.Fatalf("api client: expected 10+10=20, got %d", api)
	}

	bulk := RiskScore(cfg, Event{
		Severity:  SeverityLow,
		ActorType: ActorSystem,
		Action:    "catalog.bulk_import",
	}, businessHours)
	if bulk != 18 {
		t.Fatalf("system bulk: expected 10+8=18, got %d", bulk)
	}

	system := RiskScore(cfg, Event{
		Severity:  SeverityLow,
		ActorType: ActorSystem,
		Action:    "catalog.import",
	}, businessHours)
	if system != 10 {
		t.Fatalf("system non-bulk should not bump, got %d", system)
	}
}

func TestRiskScoreCountryAndAfterHours(t *testing.T) {
	cfg := DefaultRiskConfig()

	offshore := RiskScore(cfg, Event{Severity: SeverityLow, Country: "US"}, businessHours)
	if offshore != 15 {
		t.Fatalf("unlisted country: expected 10+5=15, got %d", offshore)
	}

	local := RiskScore(cfg, Event{Severity: SeverityLow, Country: "sg"}, businessHours)
	if local != 10 {
		t.Fatalf("allowed country (case-insensitive) should not bump, got %d", local)
	}

	night := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	late := RiskScore(cfg, Event{Severity: SeverityLow}, night)
	if late != 15 {
		t.Fatalf("after-hours: expected 10+5=15, got %d", late)
	}
}

func TestRiskScoreClamped(t *testing.T) {
	cfg := DefaultRiskConfig()
	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	score := RiskScore(cfg, Event{
		Severity:   SeverityCritical,
		Security:   true,
		Financial:  true,
		Amount:     200000,
		Operation:  OperationDelete,
		ActorType:  ActorAPIClient,
		Country:    "RU",
		EntityType: "vendor",
	}, night)
	if score != 100 {
		t.Fatalf("expected clamp to 100, got %d", score)
	}
}

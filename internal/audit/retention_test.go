package audit

import (
	"testing"
	"time"
)

func TestRetentionDateDefault(t *testing.T) {
	cfg := DefaultRetentionConfig()
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	got := RetentionDate(cfg, Event{}, created)
	if want := created.AddDate(2, 0, 0); !got.Equal(want) {
		t.Fatalf("expected default %s, got %s", want, got)
	}
}

func TestRetentionDateComplianceCategories(t *testing.T) {
	cfg := DefaultRetentionConfig()
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		category Category
		years    int
	}{
		{CategoryGDPR, 7},
		{CategoryPCI, 12},
		{CategoryCommerce, 5},
		{CategoryOther, 7},
	}
	for _, tc := range cases {
		got := RetentionDate(cfg, Event{Compliance: true, Category: tc.category}, created)
		if want := created.AddDate(tc.years, 0, 0); !got.Equal(want) {
			t.Fatalf("category %s: expected %s, got %s", tc.category, want, got)
		}
	}
}

func TestRetentionDateStrictestWins(t *testing.T) {
	cfg := DefaultRetentionConfig()
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// GDPR (7y) combined with a large B2B financial amount (15y): the
	// financial rule dominates.
	got := RetentionDate(cfg, Event{
		Compliance: true,
		Category:   CategoryGDPR,
		Financial:  true,
		Amount:     150000,
		B2B:        true,
	}, created)
	if want := created.AddDate(15, 0, 0); !got.Equal(want) {
		t.Fatalf("expected 15y from large financial, got %s", got)
	}

	// PCI (12y) must not be undercut by plain financial (10y).
	got = RetentionDate(cfg, Event{
		Compliance: true,
		Category:   CategoryPCI,
		Financial:  true,
		Amount:     500,
	}, created)
	if want := created.AddDate(12, 0, 0); !got.Equal(want) {
		t.Fatalf("expected 12y from PCI, got %s", got)
	}
}

func TestRetentionDateSecurity(t *testing.T) {
	cfg := DefaultRetentionConfig()
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	got := RetentionDate(cfg, Event{Security: true}, created)
	if want := created.AddDate(5, 0, 0); !got.Equal(want) {
		t.Fatalf("security: expected 5y, got %s", got)
	}

	got = RetentionDate(cfg, Event{Security: true, Severity: SeverityCritical}, created)
	if want := created.AddDate(7, 0, 0); !got.Equal(want) {
		t.Fatalf("critical security: expected 7y, got %s", got)
	}
}

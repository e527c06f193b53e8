package audit

import "time"

// RetentionConfig holds the retention spans, in years, per rule. Like the
// risk thresholds these are reference values surfaced as configuration.
type RetentionConfig struct {
	DefaultYears int

	GDPRYears       int
	PCIYears        int
	CommerceYears   int
	ComplianceYears int

	FinancialYears       int
	LargeFinancialYears  int
	LargeFinancialAmount float64
	B2BFinancialYears    int

	SecurityYears         int
	CriticalSecurityYears int
}

// DefaultRetentionConfig returns the reference retention spans.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		DefaultYears:          2,
		GDPRYears:             7,
		PCIYears:              12,
		CommerceYears:         5,
		ComplianceYears:       7,
		FinancialYears:        10,
		LargeFinancialYears:   15,
		LargeFinancialAmount:  100000,
		B2BFinancialYears:     12,
		SecurityYears:         5,
		CriticalSecurityYears: 7,
	}
}

// RetentionDate applies every rule that matches the event and keeps the
// strictest (latest) result. The returned date is never before createdAt and
// a stricter rule is never undercut by a weaker one evaluated later.
func RetentionDate(cfg RetentionConfig, ev Event, createdAt time.Time) time.Time {
	keep := createdAt.AddDate(cfg.DefaultYears, 0, 0)
	extend := func(years int) {
		if d := createdAt.AddDate(years, 0, 0); d.After(keep) {
			keep = d
		}
	}

	if ev.Compliance {
		switch ev.Category {
		case CategoryGDPR:
			extend(cfg.GDPRYears)
		case CategoryPCI:
			extend(cfg.PCIYears)
		case CategoryCommerce:
			extend(cfg.CommerceYears)
		default:
			extend(cfg.ComplianceYears)
		}
	}

	if ev.Financial {
		extend(cfg.FinancialYears)
		if ev.Amount > cfg.LargeFinancialAmount {
			extend(cfg.LargeFinancialYears)
		}
		if ev.B2B {
			extend(cfg.B2BFinancialYears)
		}
	}

	if ev.Security {
		extend(cfg.SecurityYears)
		if ev.Severity == SeverityCritical {
			extend(cfg.CriticalSecurityYears)
		}
	}

	return keep
}

package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var exportHeader = []string{
	"id", "created_at", "action", "module", "actor_id", "actor_type",
	"entity_type", "entity_id", "severity", "operation",
	"compliance", "security", "financial", "category",
	"amount", "currency", "country", "anomaly",
	"checksum", "risk_score", "retention_date", "critical",
}

// WriteCSV streams entries as CSV for compliance tooling. Monetary amounts
// are grouped for human review (1,250,000.00).
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	printer := message.NewPrinter(language.English)
	for _, e := range entries {
		amount := ""
		if e.MonetaryAmount != 0 {
			amount = printer.Sprint(number.Decimal(e.MonetaryAmount, number.Scale(2)))
		}
		record := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			e.Module,
			e.ActorID,
			string(e.ActorType),
			e.EntityType,
			e.EntityID,
			string(e.Severity),
			e.Operation,
			strconv.FormatBool(e.IsComplianceEvent),
			strconv.FormatBool(e.IsSecurityEvent),
			strconv.FormatBool(e.IsFinancialEvent),
			string(e.Category),
			amount,
			e.Currency,
			e.Country,
			strconv.FormatBool(e.IsAnomaly),
			e.Checksum,
			strconv.Itoa(e.RiskScore),
			e.RetentionDate.UTC().Format(time.RFC3339),
			strconv.FormatBool(e.IsCritical()),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies the impact of an audited action.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActorType identifies the kind of actor behind an event.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorAPIClient ActorType = "api_client"
	ActorSystem    ActorType = "system"
)

// Category narrows a compliance event to the regulation that governs its
// retention.
type Category string

const (
	CategoryGDPR     Category = "gdpr"
	CategoryPCI      Category = "pci"
	CategoryCommerce Category = "commerce"
	CategoryOther    Category = "other"
)

// Event is the caller-supplied description of something worth recording.
// Derived fields (checksum, risk score, retention) are computed by the
// recorder at write time, never by callers.
type Event struct {
	Action     string
	Module     string
	ActorID    string
	ActorType  ActorType
	EntityType string
	EntityID   string
	Severity   Severity
	Operation  string

	Compliance bool
	Security   bool
	Financial  bool
	Category   Category

	Amount   float64
	Currency string
	B2B      bool

	Country string
	Anomaly bool

	Meta map[string]any

	OccurredAt time.Time
}

// Entry is an immutable audit record. Rows are written once and never
// updated or deleted by this service.
type Entry struct {
	ID         uuid.UUID
	Action     string
	Module     string
	ActorID    string
	ActorType  ActorType
	EntityType string
	EntityID   string
	Severity   Severity
	Operation  string

	IsComplianceEvent bool
	IsSecurityEvent   bool
	IsFinancialEvent  bool
	Category          Category

	MonetaryAmount float64
	Currency       string
	IsB2B          bool

	Country   string
	IsAnomaly bool

	Meta map[string]any

	Checksum      string
	RiskScore     int
	RetentionDate time.Time
	CreatedAt     time.Time
}

// Flagged reports whether any of the three event flags is set. Checksums are
// present exactly when this holds.
func (e Entry) Flagged() bool {
	return e.IsComplianceEvent || e.IsSecurityEvent || e.IsFinancialEvent
}

// IsCritical reports whether the entry demands operator attention.
func (e Entry) IsCritical() bool {
	if e.Severity == SeverityCritical || e.RiskScore > 80 {
		return true
	}
	if e.IsFinancialEvent && e.MonetaryAmount > criticalAmountThreshold {
		return true
	}
	if e.IsSecurityEvent && e.IsAnomaly {
		return true
	}
	if e.Operation == OperationDelete {
		switch e.EntityType {
		case "user", "vendor", "order":
			return true
		}
	}
	return false
}

// Operations recognised by the risk model.
const (
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationDelete  = "delete"
	OperationApprove = "approve"
)

// criticalAmountThreshold is the reference monetary bound above which a
// financial event is critical regardless of its score.
const criticalAmountThreshold = 50000

package vendors

import "time"

// VendorStatus is the onboarding lifecycle state.
type VendorStatus string

const (
	VendorPending   VendorStatus = "pending"
	VendorApproved  VendorStatus = "approved"
	VendorSuspended VendorStatus = "suspended"
)

// Vendor is a merchant selling through the marketplace.
type Vendor struct {
	ID          int64
	Name        string
	LegalName   string
	Country     string
	Status      VendorStatus
	IsB2B       bool
	CreditLimit float64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package catalog

import "time"

// ProductStatus is the listing lifecycle state.
type ProductStatus string

const (
	ProductDraft    ProductStatus = "draft"
	ProductActive   ProductStatus = "active"
	ProductArchived ProductStatus = "archived"
)

// Product is a vendor listing in the marketplace catalog.
type Product struct {
	ID          int64
	VendorID    int64
	SKU         string
	Name        string
	Description string
	Price       float64
	Currency    string
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package models

import "time"

const (
	MasterProductStatusActive        = "active"
	MasterProductStatusInactive      = "inactive"
	MasterProductStatusPendingReview = "pending_review"
	MasterProductStatusMerged        = "merged"
)

// MasterProduct is the canonical representation of one real-world product.
// Retired products move to inactive/merged instead of being deleted so
// mappings and history stay resolvable.
type MasterProduct struct {
	ID                string       `json:"id" db:"id"`
	CanonicalName     string       `json:"canonical_name" db:"canonical_name"`
	CanonicalBrand    string       `json:"canonical_brand" db:"canonical_brand"`
	CanonicalCategory string       `json:"canonical_category" db:"canonical_category"`
	Description       string       `json:"description" db:"description"`
	Attributes        AttributeSet `json:"attributes" db:"attributes"`
	Barcode           *string      `json:"barcode,omitempty" db:"barcode"`
	Status            string       `json:"status" db:"status"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

func (m *MasterProduct) IsActive() bool {
	return m.Status == MasterProductStatusActive
}

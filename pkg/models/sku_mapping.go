package models

import "time"

const (
	VerificationStatusPending  = "pending"
	VerificationStatusAuto     = "auto"
	VerificationStatusManual   = "manual"
	VerificationStatusRejected = "rejected"
)

const (
	MatchMethodExact  = "exact"
	MatchMethodFuzzy  = "fuzzy"
	MatchMethodManual = "manual"
)

// SkuMapping links one source's external identifier to a master product.
// Exactly one live mapping exists per (source, external_sku) pair. The
// source_* columns keep the record as received, pre-normalization, for audit.
type SkuMapping struct {
	ID                 string     `json:"id" db:"id"`
	MasterID           string     `json:"master_id" db:"master_id"`
	Source             string     `json:"source" db:"source"`
	ExternalSKU        string     `json:"external_sku" db:"external_sku"`
	SourceName         string     `json:"source_name" db:"source_name"`
	SourceBrand        string     `json:"source_brand" db:"source_brand"`
	SourceCategory     string     `json:"source_category" db:"source_category"`
	ConfidenceScore    *float64   `json:"confidence_score,omitempty" db:"confidence_score"`
	VerificationStatus string     `json:"verification_status" db:"verification_status"`
	MatchMethod        string     `json:"match_method" db:"match_method"`
	VerifiedBy         *string    `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IsResolved reports whether the mapping reached a terminal-success status.
func (m *SkuMapping) IsResolved() bool {
	return m.VerificationStatus == VerificationStatusAuto || m.VerificationStatus == VerificationStatusManual
}

func (m *SkuMapping) IsPending() bool {
	return m.VerificationStatus == VerificationStatusPending
}

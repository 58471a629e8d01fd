package models

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// SourceRecord is one product row as delivered by a marketplace extractor.
type SourceRecord struct {
	Source        string         `json:"source" validate:"required"`
	ExternalSKU   string         `json:"external_sku" validate:"required"`
	Name          string         `json:"name" validate:"required"`
	Brand         string         `json:"brand,omitempty"`
	Category      string         `json:"category,omitempty"`
	Price         *float64       `json:"price,omitempty"`
	RawAttributes map[string]any `json:"raw_attributes,omitempty"`
}

func (r *SourceRecord) Validate() error {
	return validate.Struct(r)
}

package models

import "time"

const (
	MetricCompleteness = "completeness"
	MetricCoverage     = "coverage"
	MetricAccuracy     = "accuracy"
)

// DataQualityMetric is one timestamped snapshot of a quality ratio together
// with the counts that produced it. Rows form a time series and are never
// overwritten.
type DataQualityMetric struct {
	ID           int64     `json:"id" db:"id"`
	MetricName   string    `json:"metric_name" db:"metric_name"`
	Source       *string   `json:"source,omitempty" db:"source"`
	Value        float64   `json:"value" db:"value"`
	Numerator    int64     `json:"numerator" db:"numerator"`
	Denominator  int64     `json:"denominator" db:"denominator"`
	CalculatedAt time.Time `json:"calculated_at" db:"calculated_at"`
}

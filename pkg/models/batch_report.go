package models

import "time"

const (
	BatchStatusSuccess        = "success"
	BatchStatusPartialSuccess = "partial_success"
)

// BatchReport summarizes one worker-pool run over a batch of source records.
// Failed counts records whose transaction rolled back and that stay eligible
// for the next run; Skipped counts records rejected by validation.
type BatchReport struct {
	Total           int           `json:"total"`
	AutoMatched     int           `json:"auto_matched"`
	ManualPending   int           `json:"manual_pending"`
	NewMasters      int           `json:"new_masters"`
	AlreadyResolved int           `json:"already_resolved"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	Status          string        `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

func (r *BatchReport) Finish(startedAt time.Time) {
	r.StartedAt = startedAt
	r.Duration = time.Since(startedAt)
	if r.Failed > 0 {
		r.Status = BatchStatusPartialSuccess
	} else {
		r.Status = BatchStatusSuccess
	}
}

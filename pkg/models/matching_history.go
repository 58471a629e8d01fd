package models

import (
	"time"

	"github.com/sellerdesk/peony/pkg/database"
)

const (
	DecisionAutoMatched   = "auto_matched"
	DecisionManualPending = "manual_pending"
	DecisionNewMaster     = "new_master"
	DecisionRejected      = "rejected"
)

// CandidateScore is one entry of the ranked candidate list captured on a
// history row.
type CandidateScore struct {
	MasterID       string  `json:"master_id"`
	CanonicalName  string  `json:"canonical_name"`
	CanonicalBrand string  `json:"canonical_brand"`
	NameSimilarity float64 `json:"name_similarity"`
	Score          float64 `json:"score"`
	ExactMatch     bool    `json:"exact_match"`
}

// MatchingHistory is the append-only audit row for one resolution attempt.
// Rows are written once and never mutated.
type MatchingHistory struct {
	ID            int64                            `json:"id" db:"id"`
	Source        string                           `json:"source" db:"source"`
	ExternalSKU   string                           `json:"external_sku" db:"external_sku"`
	InputName     string                           `json:"input_name" db:"input_name"`
	InputBrand    string                           `json:"input_brand" db:"input_brand"`
	InputCategory string                           `json:"input_category" db:"input_category"`
	Candidates    database.JSONB[[]CandidateScore] `json:"candidates" db:"candidates"`
	Decision      string                           `json:"decision" db:"decision"`
	MatchMethod   *string                          `json:"match_method,omitempty" db:"match_method"`
	Score         *float64                         `json:"score,omitempty" db:"score"`
	MasterID      *string                          `json:"master_id,omitempty" db:"master_id"`
	Reason        *string                          `json:"reason,omitempty" db:"reason"`
	DurationMs    int64                            `json:"duration_ms" db:"duration_ms"`
	CreatedAt     time.Time                        `json:"created_at" db:"created_at"`
}

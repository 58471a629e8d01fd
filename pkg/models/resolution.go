package models

// Resolution is the outcome of resolving one source record against the
// master catalog.
type Resolution struct {
	Decision        string           `json:"decision"`
	MatchMethod     string           `json:"match_method"`
	Score           float64          `json:"score"`
	Master          *MasterProduct   `json:"master,omitempty"`
	Mapping         *SkuMapping      `json:"mapping,omitempty"`
	Candidates      []CandidateScore `json:"candidates,omitempty"`
	CreatedMaster   bool             `json:"created_master"`
	AlreadyResolved bool             `json:"already_resolved"`
}

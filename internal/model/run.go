package model

import "time"

// LeadFailure records a single lead the scoring engine rejected, with the
// identity needed to trace it back to the provider record.
type LeadFailure struct {
	ContactID   string `json:"contact_id"`
	CompanyName string `json:"company_name"`
	Reason      string `json:"reason"`
}

// Diagnostics accounts for every lead that entered a pipeline run: each
// input is either kept, excluded by a filter, collapsed as a duplicate, or
// failed scoring, and each outcome carries a reason.
type Diagnostics struct {
	InputCount        int              `json:"input_count"`
	ICPExcluded       int              `json:"icp_excluded"`
	StaleExcluded     int              `json:"stale_excluded"`
	ScoredCount       int              `json:"scored_count"`
	ScoringFailures   []LeadFailure    `json:"scoring_failures,omitempty"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
	DuplicateGroups   []DuplicateGroup `json:"duplicate_groups,omitempty"`
	ExportFlagged     int              `json:"export_flagged"`
	ExportExcluded    int              `json:"export_excluded"`
	Budget            Authorization    `json:"budget"`
	KeptCount         int              `json:"kept_count"`
}

// Result is the output of one pipeline run: the kept leads in descending
// score order plus the diagnostics the UI and export layers consume.
type Result struct {
	Kept        []*Lead     `json:"kept"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Workflows   []Workflow  `json:"workflows"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}

// Run is a persisted record of a completed pipeline run.
type Run struct {
	ID          string      `json:"id"`
	Workflows   []Workflow  `json:"workflows"`
	Diagnostics Diagnostics `json:"diagnostics"`
	CreatedAt   time.Time   `json:"created_at"`
}

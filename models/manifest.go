package models

import "time"

// CategoryStatus tracks one category through a run.
type CategoryStatus string

const (
	CategoryPending    CategoryStatus = "PENDING"
	CategoryInProgress CategoryStatus = "IN_PROGRESS"
	CategoryDone       CategoryStatus = "DONE"
	CategoryFailed     CategoryStatus = "FAILED"
)

// RunStatus tracks the run state machine. A manifest is only ever written
// with a terminal status.
type RunStatus string

const (
	RunInit                RunStatus = "INIT"
	RunBootstrapped        RunStatus = "BOOTSTRAPPED"
	RunCollecting          RunStatus = "COLLECTING"
	RunFinalizing          RunStatus = "FINALIZING"
	RunCompleted           RunStatus = "COMPLETED"
	RunCompletedWithErrors RunStatus = "COMPLETED_WITH_ERRORS"
	RunFailed              RunStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunCompletedWithErrors, RunFailed:
		return true
	}
	return false
}

// CategoryResult summarizes one category's outcome in the manifest.
// The reported totals echo the upstream paging envelope for auditing.
type CategoryResult struct {
	Status               CategoryStatus `json:"status"`
	Pages                int            `json:"pages"`
	Records              int            `json:"records"`
	TotalPagesReported   int            `json:"totalPaginas_reported,omitempty"`
	TotalRecordsReported int            `json:"totalRegistros_reported,omitempty"`
}

// RunError is one recorded failure: a taxonomy kind, the category it hit
// (empty for run-level failures), and the underlying message.
type RunError struct {
	Kind     string   `json:"kind"`
	Category Category `json:"category,omitempty"`
	Message  string   `json:"message"`
}

// RunManifest is the terminal record of one collection run. The sum of
// per-category record counts equals the line count of the JSONL artifact.
type RunManifest struct {
	RunID        string                      `json:"run_id"`
	Source       string                      `json:"source"`
	BaseURL      string                      `json:"base_url"`
	DataFile     string                      `json:"data_file"`
	StartedAt    time.Time                   `json:"started_at_utc"`
	FinishedAt   time.Time                   `json:"finished_at_utc"`
	Status       RunStatus                   `json:"status"`
	Query        QueryParams                 `json:"query"`
	Categories   map[Category]CategoryResult `json:"categories"`
	TotalRecords int64                       `json:"total_records"`
	Errors       []RunError                  `json:"errors"`
}

package domain

import "time"

// RunStatus is the outcome of one refresh.
type RunStatus string

const (
	RunSucceeded        RunStatus = "succeeded"
	RunFetchFailed      RunStatus = "fetch_failed"
	RunInsufficientData RunStatus = "insufficient_data"
	RunFailed           RunStatus = "failed"
)

// RefreshRun records one fetch-compute-persist cycle for an instrument.
type RefreshRun struct {
	RunID         string    `json:"runId"`
	InstrumentID  string    `json:"instrumentId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Status        RunStatus `json:"status"`
	YieldsFetched int       `json:"yieldsFetched"`
	PricesFetched int       `json:"pricesFetched"`
	Points        int       `json:"points"`
	Error         string    `json:"error,omitempty"`
}

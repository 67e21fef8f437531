package model

import "time"

type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "PENDING"
	SyncJobStatusRunning   SyncJobStatus = "RUNNING"
	SyncJobStatusCompleted SyncJobStatus = "COMPLETED"
	SyncJobStatusFailed    SyncJobStatus = "FAILED"
)

// SyncJob tracks one background bulk synchronization. It lives only in the
// process that started it and is swept one hour after completion.
type SyncJob struct {
	ID           string        `json:"id"`
	Status       SyncJobStatus `json:"status"`
	Total        int           `json:"total"`
	Processed    int           `json:"processed"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	CurrentBatch int           `json:"current_batch"`
	TotalBatches int           `json:"total_batches"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

func (j *SyncJob) Terminal() bool {
	return j.Status == SyncJobStatusCompleted || j.Status == SyncJobStatusFailed
}

// MassSyncResult is the aggregate outcome of a synchronous bulk sync run.
type MassSyncResult struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncFilters narrows the external record set pulled by a bulk sync.
type SyncFilters struct {
	GroupCode  *int   `json:"group_code,omitempty"`
	OnlyActive bool   `json:"only_active,omitempty"`
	CardCode   string `json:"card_code,omitempty"`
	Background bool   `json:"background,omitempty"`
}

// internal/model/models.go
package model

import "time"

// Update statuses stored in project_updates.status.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Project is one entry in the community catalog. Star/fork counts and the
// language byte map are refreshed by the batch processor; everything else is
// set at submission time.
type Project struct {
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Stars       int            `json:"stars"`
	Forks       int            `json:"forks"`
	Tags        []string       `json:"tags"`
	URL         string         `json:"url"`
	Languages   map[string]int `json:"languages"`
	LastUpdated *time.Time     `json:"last_updated"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ProjectRefresh carries the fields the batch processor writes back to a
// project row after a successful fetch.
type ProjectRefresh struct {
	Name        string
	Description *string
	Stars       int
	Forks       int
	Languages   map[string]int
	RefreshedAt time.Time
}

// ProjectUpdate is the per-project refresh attempt record. At most one row
// exists per project name; each attempt overwrites it.
type ProjectUpdate struct {
	ProjectName    string     `json:"project_name"`
	Status         string     `json:"status"`
	LastAttempted  *time.Time `json:"last_attempted"`
	LastSuccessful *time.Time `json:"last_successful"`
	Error          *string    `json:"error"`
}

// RepoMetadata is what the fetcher extracts from the repository and
// languages endpoints.
type RepoMetadata struct {
	Owner       string
	Name        string
	Description *string
	Stars       int
	Forks       int
	Languages   map[string]int
}

// RateLimit mirrors GitHub's x-ratelimit-* response headers. The zero value
// means "never observed"; LastChecked distinguishes it from a live reading.
type RateLimit struct {
	Remaining   int       `json:"remaining"`
	ResetEpoch  int64     `json:"resetEpoch"`
	LastChecked time.Time `json:"lastChecked"`
}

// CoordinatorStatus is the process-local updater state exposed to pollers.
type CoordinatorStatus struct {
	IsProcessing     bool       `json:"isProcessing"`
	LastRun          *time.Time `json:"lastRun,omitempty"`
	CurrentBatchSize int        `json:"currentBatchSize"`
	RateLimit        RateLimit  `json:"rateLimit"`
}

// BatchResult is returned by every ProcessBatch invocation, including the
// rejected ones (already processing, rate limited).
type BatchResult struct {
	RunID              string `json:"runId"`
	Processed          int    `json:"processedCount"`
	Failed             int    `json:"failedCount"`
	Success            bool   `json:"success"`
	Reason             string `json:"reason,omitempty"`
	RateLimitRemaining int    `json:"rateLimitRemaining"`
	NextReset          int64  `json:"nextReset"`
}

// StatusReport combines coordinator state with datastore aggregates.
type StatusReport struct {
	Coordinator   CoordinatorStatus `json:"coordinator"`
	StatusCounts  map[string]int    `json:"statusCounts"`
	StaleProjects int               `json:"staleProjects"`
}

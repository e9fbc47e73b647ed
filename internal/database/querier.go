// internal/database/querier.go
package database

import (
	"context"
	"time"

	"code-gems/internal/model"
)

// Querier is the set of datastore operations the updater and the API layer
// depend on. *Store implements it against Postgres; tests substitute mocks.
type Querier interface {
	// Batch processor operations.
	StaleProjects(ctx context.Context, staleBefore time.Time, limit int) ([]model.Project, error)
	ApplyProjectRefresh(ctx context.Context, refresh model.ProjectRefresh) error
	MarkUpdateInProgress(ctx context.Context, projectName string, at time.Time) error
	MarkUpdateCompleted(ctx context.Context, projectName string, at time.Time) error
	MarkUpdateFailed(ctx context.Context, projectName string, at time.Time, errMsg string) error

	// Status reporter aggregates and per-project attempt records.
	UpdateStatusCounts(ctx context.Context) (map[string]int, error)
	CountStaleProjects(ctx context.Context, staleBefore time.Time) (int, error)
	GetProjectUpdate(ctx context.Context, projectName string) (model.ProjectUpdate, error)

	// Catalog API operations.
	ListProjects(ctx context.Context, limit, offset int) ([]model.Project, error)
	GetProjectByName(ctx context.Context, name string) (model.Project, error)
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
}

// internal/database/store.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"code-gems/internal/model"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres implementation of Querier.
type Store struct {
	db DBTX
}

// New creates a Store bound to a pool or transaction.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const staleProjectsSQL = `
SELECT name, description, stars, forks, tags, url, languages, last_updated, created_at
FROM projects
WHERE last_updated IS NULL OR last_updated < $1
ORDER BY last_updated ASC NULLS FIRST, name ASC
LIMIT $2`

// StaleProjects returns projects never refreshed or refreshed before
// staleBefore, oldest first with never-refreshed rows leading.
func (s *Store) StaleProjects(ctx context.Context, staleBefore time.Time, limit int) ([]model.Project, error) {
	rows, err := s.db.Query(ctx, staleProjectsSQL, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProjects(rows)
}

const applyProjectRefreshSQL = `
UPDATE projects
SET description = $2, stars = $3, forks = $4, languages = $5, last_updated = $6
WHERE name = $1`

// ApplyProjectRefresh writes the fetched metadata back to a project row.
func (s *Store) ApplyProjectRefresh(ctx context.Context, refresh model.ProjectRefresh) error {
	langs, err := marshalLanguages(refresh.Languages)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, applyProjectRefreshSQL,
		refresh.Name, refresh.Description, refresh.Stars, refresh.Forks, langs, refresh.RefreshedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %q not found", refresh.Name)
	}
	return nil
}

const markInProgressSQL = `
INSERT INTO project_updates (project_name, status, last_attempted, error)
VALUES ($1, $2, $3, NULL)
ON CONFLICT (project_name) DO UPDATE
SET status = EXCLUDED.status, last_attempted = EXCLUDED.last_attempted, error = NULL`

// MarkUpdateInProgress upserts the per-project attempt record at the start of
// an attempt. project_name is the upsert key, so at most one row per project.
func (s *Store) MarkUpdateInProgress(ctx context.Context, projectName string, at time.Time) error {
	_, err := s.db.Exec(ctx, markInProgressSQL, projectName, model.StatusInProgress, at)
	return err
}

const markCompletedSQL = `
INSERT INTO project_updates (project_name, status, last_attempted, last_successful, error)
VALUES ($1, $2, $3, $3, NULL)
ON CONFLICT (project_name) DO UPDATE
SET status = EXCLUDED.status, last_successful = EXCLUDED.last_successful, error = NULL`

// MarkUpdateCompleted records a successful attempt.
func (s *Store) MarkUpdateCompleted(ctx context.Context, projectName string, at time.Time) error {
	_, err := s.db.Exec(ctx, markCompletedSQL, projectName, model.StatusCompleted, at)
	return err
}

const markFailedSQL = `
INSERT INTO project_updates (project_name, status, last_attempted, error)
VALUES ($1, $2, $3, $4)
ON CONFLICT (project_name) DO UPDATE
SET status = EXCLUDED.status, error = EXCLUDED.error`

// MarkUpdateFailed records a failed attempt with its error message.
func (s *Store) MarkUpdateFailed(ctx context.Context, projectName string, at time.Time, errMsg string) error {
	_, err := s.db.Exec(ctx, markFailedSQL, projectName, model.StatusFailed, at, errMsg)
	return err
}

const updateStatusCountsSQL = `
SELECT status, COUNT(*)
FROM project_updates
GROUP BY status`

// UpdateStatusCounts returns the number of project_updates rows per status.
func (s *Store) UpdateStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, updateStatusCountsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

const countStaleProjectsSQL = `
SELECT COUNT(*)
FROM projects
WHERE last_updated IS NULL OR last_updated < $1`

// CountStaleProjects returns how many projects are currently overdue.
func (s *Store) CountStaleProjects(ctx context.Context, staleBefore time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, countStaleProjectsSQL, staleBefore).Scan(&count)
	return count, err
}

const getProjectUpdateSQL = `
SELECT project_name, status, last_attempted, last_successful, error
FROM project_updates
WHERE project_name = $1`

// GetProjectUpdate returns the attempt record for one project, or pgx.ErrNoRows.
func (s *Store) GetProjectUpdate(ctx context.Context, projectName string) (model.ProjectUpdate, error) {
	var u model.ProjectUpdate
	err := s.db.QueryRow(ctx, getProjectUpdateSQL, projectName).
		Scan(&u.ProjectName, &u.Status, &u.LastAttempted, &u.LastSuccessful, &u.Error)
	if err != nil {
		return model.ProjectUpdate{}, err
	}
	return u, nil
}

const listProjectsSQL = `
SELECT name, description, stars, forks, tags, url, languages, last_updated, created_at
FROM projects
ORDER BY stars DESC, name ASC
LIMIT $1 OFFSET $2`

// ListProjects returns a page of the catalog ordered by star count.
func (s *Store) ListProjects(ctx context.Context, limit, offset int) ([]model.Project, error) {
	rows, err := s.db.Query(ctx, listProjectsSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProjects(rows)
}

const getProjectByNameSQL = `
SELECT name, description, stars, forks, tags, url, languages, last_updated, created_at
FROM projects
WHERE name = $1`

// GetProjectByName returns a single project, or pgx.ErrNoRows.
func (s *Store) GetProjectByName(ctx context.Context, name string) (model.Project, error) {
	return scanProject(s.db.QueryRow(ctx, getProjectByNameSQL, name))
}

const createProjectSQL = `
WITH new_project AS (
    INSERT INTO projects (name, description, stars, forks, tags, url, languages)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING name, created_at
), seed_update AS (
    INSERT INTO project_updates (project_name, status)
    SELECT name, $8 FROM new_project
)
SELECT created_at FROM new_project`

// CreateProject inserts a new catalog entry and seeds its pending update
// record in the same statement. Duplicate names surface as a pgconn.PgError
// with the unique_violation code.
func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	langs, err := marshalLanguages(p.Languages)
	if err != nil {
		return model.Project{}, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	err = s.db.QueryRow(ctx, createProjectSQL,
		p.Name, p.Description, p.Stars, p.Forks, p.Tags, p.URL, langs, model.StatusPending).Scan(&p.CreatedAt)
	if err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (model.Project, error) {
	var p model.Project
	var langs []byte

	err := row.Scan(&p.Name, &p.Description, &p.Stars, &p.Forks, &p.Tags, &p.URL, &langs, &p.LastUpdated, &p.CreatedAt)
	if err != nil {
		return model.Project{}, err
	}

	if len(langs) > 0 {
		if err := json.Unmarshal(langs, &p.Languages); err != nil {
			return model.Project{}, fmt.Errorf("decoding languages for %q: %w", p.Name, err)
		}
	}
	return p, nil
}

func scanProjects(rows pgx.Rows) ([]model.Project, error) {
	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func marshalLanguages(langs map[string]int) ([]byte, error) {
	if langs == nil {
		langs = map[string]int{}
	}
	return json.Marshal(langs)
}

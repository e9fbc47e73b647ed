//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"code-gems/internal/database"
	"code-gems/internal/github"
	"code-gems/internal/model"
	"code-gems/internal/updater"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	// Start a postgres container
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	// Get the connection string
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	err = m.Up()
	require.NoError(t, err)

	// Create a connection pool
	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	// Teardown function to be called by the test
	teardown := func() {
		dbpool.Close()
		err := pgContainer.Terminate(ctx)
		require.NoError(t, err)
	}

	return dbpool, teardown
}

func TestProcessBatch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	// Setup a mock GitHub API server
	reset := time.Now().Add(time.Hour)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		switch r.URL.Path {
		case "/repos/test-owner/shiny-gem":
			w.Header().Set("X-RateLimit-Remaining", "58")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name": "shiny-gem", "owner": {"login": "test-owner"}, "description": "polished", "stargazers_count": 321, "forks_count": 12}`))
		case "/repos/test-owner/shiny-gem/languages":
			w.Header().Set("X-RateLimit-Remaining", "57")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"Go": 9000, "Shell": 300}`))
		case "/repos/test-owner/broken-gem":
			w.Header().Set("X-RateLimit-Remaining", "56")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	// Create a github client pointing to the mock server
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ghClient := github.NewClient("", logger)
	require.NoError(t, ghClient.OverrideBaseURL(server.URL))

	// Seed two stale projects (never refreshed) against the REAL database
	store := database.New(dbpool)
	desc := "pending refresh"
	_, err := store.CreateProject(ctx, model.Project{
		Name:        "shiny-gem",
		Description: &desc,
		URL:         "https://github.com/test-owner/shiny-gem",
		Tags:        []string{"go", "tools"},
	})
	require.NoError(t, err)
	_, err = store.CreateProject(ctx, model.Project{
		Name: "broken-gem",
		URL:  "https://github.com/test-owner/broken-gem",
	})
	require.NoError(t, err)

	// Both submissions start with a seeded pending record.
	seeded, err := store.GetProjectUpdate(ctx, "shiny-gem")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, seeded.Status)
	preCounts, err := store.UpdateStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, preCounts[model.StatusPending])

	coordinator := updater.NewCoordinator(10)
	processor := updater.NewProcessor(store, ghClient, coordinator, logger, 24*time.Hour)

	// --- ACT ---
	result, err := processor.ProcessBatch(ctx, 5)
	require.NoError(t, err)

	// --- ASSERT ---
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)

	refreshed, err := store.GetProjectByName(ctx, "shiny-gem")
	require.NoError(t, err)
	assert.Equal(t, 321, refreshed.Stars)
	assert.Equal(t, 12, refreshed.Forks)
	require.NotNil(t, refreshed.Description)
	assert.Equal(t, "polished", *refreshed.Description)
	assert.Equal(t, map[string]int{"Go": 9000, "Shell": 300}, refreshed.Languages)
	require.NotNil(t, refreshed.LastUpdated)
	assert.WithinDuration(t, time.Now(), *refreshed.LastUpdated, time.Minute)

	untouched, err := store.GetProjectByName(ctx, "broken-gem")
	require.NoError(t, err)
	assert.Equal(t, 0, untouched.Stars)
	assert.Nil(t, untouched.LastUpdated, "a failed fetch must not stamp the project row")

	counts, err := store.UpdateStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusCompleted])
	assert.Equal(t, 1, counts[model.StatusFailed])
	assert.Equal(t, 0, counts[model.StatusPending])

	failedRecord, err := store.GetProjectUpdate(ctx, "broken-gem")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failedRecord.Status)
	require.NotNil(t, failedRecord.Error)
	assert.Contains(t, *failedRecord.Error, "404")
	require.NotNil(t, failedRecord.LastAttempted)
	assert.Nil(t, failedRecord.LastSuccessful)

	// The failed project stays in the candidate window for the next batch.
	stale, err := store.CountStaleProjects(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stale)

	report, err := processor.Status(ctx)
	require.NoError(t, err)
	assert.False(t, report.Coordinator.IsProcessing)
	require.NotNil(t, report.Coordinator.LastRun)
	assert.Equal(t, 57, report.Coordinator.RateLimit.Remaining)
}

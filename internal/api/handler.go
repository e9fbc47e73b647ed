// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"code-gems/internal/database"
	custom_errors "code-gems/internal/errors"
	"code-gems/internal/github"
	"code-gems/internal/model"
)

// UpdateService is the part of the updater the API surfaces.
type UpdateService interface {
	ProcessBatch(ctx context.Context, batchSize int) (model.BatchResult, error)
	Status(ctx context.Context) (model.StatusReport, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db      database.Querier
	updates UpdateService
	logger  *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db database.Querier, updates UpdateService, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:      db,
		updates: updates,
		logger:  logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/projects", h.listProjects)
		r.Post("/projects", h.createProject)
		r.Get("/projects/{name}", h.getProject)
		r.Get("/projects/{name}/update", h.getProjectUpdate)
		r.Post("/updates/run", h.runUpdates)
		r.Get("/updates/status", h.updatesStatus)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listProjects returns a page of the catalog.
// GET /v1/projects?limit=N&offset=M
func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit <= 0 || limit > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'offset' parameter. Must be a non-negative integer.")
		return
	}

	projects, err := h.db.ListProjects(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list projects", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}

	respondWithJSON(w, http.StatusOK, projects)
}

// getProject returns a single catalog entry.
// GET /v1/projects/{name}
func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	project, err := h.db.GetProjectByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Project not found")
			return
		}
		h.logger.Error("Failed to get project", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, project)
}

// getProjectUpdate returns a project's refresh attempt record. New
// submissions start with a pending record; the batch processor overwrites it
// on every attempt.
// GET /v1/projects/{name}/update
func (h *Handler) getProjectUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	update, err := h.db.GetProjectUpdate(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "No update record for this project")
			return
		}
		h.logger.Error("Failed to get project update record", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, update)
}

type createProjectRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
}

// createProject inserts a new catalog entry (admin surface).
// POST /v1/projects
func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || req.URL == "" {
		respondWithError(w, http.StatusBadRequest, "Fields 'name' and 'url' are required")
		return
	}
	if _, _, err := github.ParseRepoURL(req.URL); err != nil {
		var urlErr *custom_errors.ErrInvalidProjectURL
		if errors.As(err, &urlErr) {
			respondWithError(w, http.StatusBadRequest, urlErr.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid 'url' field")
		return
	}

	project, err := h.db.CreateProject(r.Context(), model.Project{
		Name:        req.Name,
		Description: req.Description,
		URL:         req.URL,
		Tags:        req.Tags,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondWithError(w, http.StatusConflict, "A project with this name already exists")
			return
		}
		h.logger.Error("Failed to create project", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusCreated, project)
}

type runUpdatesRequest struct {
	BatchSize int `json:"batchSize"`
}

// runUpdates triggers one refresh batch. Rejected batches (already
// processing, rate limited) still answer 200 with the reason in the body so
// pollers can reschedule themselves.
// POST /v1/updates/run
func (h *Handler) runUpdates(w http.ResponseWriter, r *http.Request) {
	var req runUpdatesRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}
	if req.BatchSize < 0 {
		respondWithError(w, http.StatusBadRequest, "Field 'batchSize' must be non-negative")
		return
	}

	result, err := h.updates.ProcessBatch(r.Context(), req.BatchSize)
	if err != nil {
		h.logger.Error("Batch processing failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// updatesStatus reports coordinator state plus datastore aggregates.
// GET /v1/updates/status
func (h *Handler) updatesStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.updates.Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to build status report", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

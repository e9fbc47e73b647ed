// internal/updater/processor.go
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"code-gems/internal/database"
	"code-gems/internal/model"
)

// maxBatchSize caps how many candidates a single batch may touch, whatever
// the caller requested.
const maxBatchSize = 10

// Rejection reasons reported in BatchResult.Reason.
const (
	ReasonAlreadyProcessing = "already_processing"
	ReasonRateLimited       = "rate_limited"
)

// Fetcher retrieves repository metadata for a project URL, along with the
// rate info the responses carried.
type Fetcher interface {
	FetchRepository(ctx context.Context, url string) (*model.RepoMetadata, model.RateLimit, error)
}

// Processor selects stale projects and refreshes them from GitHub, one at a
// time. Per-project processing is strictly sequential: the quota bookkeeping
// is shared across all calls from this process, and parallel fetches would
// make it meaningless.
type Processor struct {
	db          database.Querier
	fetcher     Fetcher
	coord       *Coordinator
	logger      *slog.Logger
	staleWindow time.Duration
}

// NewProcessor creates a Processor. staleWindow defines how old a project's
// last_updated must be before it becomes a refresh candidate.
func NewProcessor(db database.Querier, fetcher Fetcher, coord *Coordinator, logger *slog.Logger, staleWindow time.Duration) *Processor {
	if staleWindow <= 0 {
		staleWindow = 24 * time.Hour
	}
	return &Processor{
		db:          db,
		fetcher:     fetcher,
		coord:       coord,
		logger:      logger,
		staleWindow: staleWindow,
	}
}

// ProcessBatch runs one refresh batch of up to min(batchSize, 10) stale
// projects. It returns a result on every path; the error is non-nil only
// when the candidate query itself fails, which aborts the whole batch.
// Individual project failures are recorded in project_updates and do not
// stop the batch.
func (p *Processor) ProcessBatch(ctx context.Context, batchSize int) (model.BatchResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	if !p.coord.TryAcquire() {
		logger.Info("Batch rejected, another batch is already in flight")
		rl := p.coord.RateLimit()
		return model.BatchResult{
			RunID:              runID,
			Reason:             ReasonAlreadyProcessing,
			RateLimitRemaining: rl.Remaining,
			NextReset:          rl.ResetEpoch,
		}, nil
	}
	defer p.coord.Release()

	rl := p.coord.RateLimit()
	if rl.Remaining <= 1 && rl.ResetEpoch > time.Now().Unix() {
		logger.Info("Batch rejected, quota exhausted", "remaining", rl.Remaining, "reset_epoch", rl.ResetEpoch)
		return model.BatchResult{
			RunID:              runID,
			Reason:             ReasonRateLimited,
			RateLimitRemaining: rl.Remaining,
			NextReset:          rl.ResetEpoch,
		}, nil
	}

	limit := batchSize
	if limit <= 0 {
		limit = p.coord.BatchSize()
	}
	if limit > maxBatchSize {
		limit = maxBatchSize
	}

	staleBefore := time.Now().Add(-p.staleWindow)
	candidates, err := p.db.StaleProjects(ctx, staleBefore, limit)
	if err != nil {
		logger.Error("Failed to select stale projects", "error", err)
		return model.BatchResult{RunID: runID}, fmt.Errorf("selecting stale projects: %w", err)
	}
	logger.Info("Starting batch", "candidates", len(candidates), "limit", limit)

	result := model.BatchResult{RunID: runID, Success: true}
	for _, project := range candidates {
		if err := p.refreshProject(ctx, logger, project); err != nil {
			result.Failed++
		} else {
			result.Processed++
		}

		rl = p.coord.RateLimit()
		if rl.Remaining <= 1 {
			logger.Warn("Quota nearly exhausted, halting batch early",
				"processed", result.Processed, "remaining", rl.Remaining)
			break
		}
	}

	p.coord.RecordRun(time.Now())
	result.RateLimitRemaining = rl.Remaining
	result.NextReset = rl.ResetEpoch

	logger.Info("Batch finished", "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

// refreshProject handles one candidate: record the attempt, fetch, persist.
// Any failure, including a panic, is confined to this project.
func (p *Processor) refreshProject(ctx context.Context, logger *slog.Logger, project model.Project) (err error) {
	logger = logger.With("project", project.Name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while refreshing project: %v", r)
			logger.Error("Recovered panic while refreshing project", "panic", r)
			if markErr := p.db.MarkUpdateFailed(ctx, project.Name, time.Now(), err.Error()); markErr != nil {
				logger.Error("Failed to record panic as failure", "error", markErr)
			}
		}
	}()

	if err := p.db.MarkUpdateInProgress(ctx, project.Name, time.Now()); err != nil {
		logger.Error("Failed to mark update in progress", "error", err)
		return err
	}

	meta, rate, err := p.fetcher.FetchRepository(ctx, project.URL)
	p.coord.UpdateRateLimit(rate)
	if err != nil || meta == nil {
		if err == nil {
			err = errors.New("github returned no repository metadata")
		}
		logger.Warn("Fetch failed", "error", err)
		p.markFailed(ctx, logger, project.Name, err.Error())
		return err
	}

	refresh := model.ProjectRefresh{
		Name:        project.Name,
		Description: meta.Description,
		Stars:       meta.Stars,
		Forks:       meta.Forks,
		Languages:   meta.Languages,
		RefreshedAt: time.Now(),
	}
	if err := p.db.ApplyProjectRefresh(ctx, refresh); err != nil {
		logger.Error("Failed to persist refreshed project", "error", err)
		p.markFailed(ctx, logger, project.Name, err.Error())
		return err
	}

	if err := p.db.MarkUpdateCompleted(ctx, project.Name, time.Now()); err != nil {
		logger.Error("Failed to mark update completed", "error", err)
		return err
	}

	logger.Info("Project refreshed", "stars", meta.Stars, "forks", meta.Forks)
	return nil
}

func (p *Processor) markFailed(ctx context.Context, logger *slog.Logger, projectName, errMsg string) {
	if err := p.db.MarkUpdateFailed(ctx, projectName, time.Now(), errMsg); err != nil {
		logger.Error("Failed to record project failure", "error", err)
	}
}

// Status combines the coordinator snapshot with datastore aggregates.
// Read-only; safe to poll.
func (p *Processor) Status(ctx context.Context) (model.StatusReport, error) {
	counts, err := p.db.UpdateStatusCounts(ctx)
	if err != nil {
		return model.StatusReport{}, fmt.Errorf("counting update statuses: %w", err)
	}

	stale, err := p.db.CountStaleProjects(ctx, time.Now().Add(-p.staleWindow))
	if err != nil {
		return model.StatusReport{}, fmt.Errorf("counting stale projects: %w", err)
	}

	return model.StatusReport{
		Coordinator:   p.coord.Status(),
		StatusCounts:  counts,
		StaleProjects: stale,
	}, nil
}

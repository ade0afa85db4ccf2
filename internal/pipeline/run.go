package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/folio-health/folio/internal/capability"
	"github.com/folio-health/folio/internal/extract"
	"github.com/folio-health/folio/internal/ingest"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/types"
)

// runJob executes one pipeline run. Cancellation is honored between
// stages; a cancelled run never persists a partial record.
func (s *Scheduler) runJob(ctx context.Context, logger *slog.Logger, job *types.Job) {
	logger = logger.With("job_id", job.ID, "document_id", job.DocumentID)
	start := time.Now().UTC()

	job.State = types.JobRunning
	job.Stage = types.StageDetect
	job.StartedAt = &start
	if err := s.store.UpdateJob(ctx, job); err != nil {
		// A job cancelled while still queued is already terminal; the
		// drained task is a no-op.
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("skipping drained job", "state", job.State)
		} else {
			logger.Error("failed to mark job running", "error", err)
		}
		return
	}
	if err := s.store.UpdateDocumentStatus(ctx, job.DocumentID, types.DocStatusProcessing); err != nil {
		logger.Warn("failed to mark document processing", "error", err)
	}

	version, flags, err := s.runStages(ctx, logger, job)
	switch {
	case errors.Is(err, context.Canceled):
		s.cancelJob(job)
		logger.Info("job cancelled", "stage", job.Stage)
	case err != nil:
		s.failJob(context.Background(), job, err)
		logger.Error("job failed", "stage", job.Stage, "error", err)
	default:
		now := time.Now().UTC()
		job.State = types.JobSucceeded
		job.Version = &version
		job.FinishedAt = &now
		if err := s.store.UpdateJob(context.Background(), job); err != nil {
			logger.Error("failed to mark job succeeded", "error", err)
		}
		if err := s.store.UpdateDocumentStatus(context.Background(), job.DocumentID, types.DocStatusProcessed); err != nil {
			logger.Warn("failed to mark document processed", "error", err)
		}
		logger.Info("job succeeded",
			"version", version,
			"flags", flags,
			"duration", time.Since(start))
	}

	event := types.CompletionEvent{
		JobID:           job.ID,
		DocumentID:      job.DocumentID,
		Status:          job.State,
		Version:         job.Version,
		ValidationFlags: flags,
		Error:           job.LastError,
	}
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

// runStages walks the pipeline stages and returns the persisted
// version and validation flags on success.
func (s *Scheduler) runStages(ctx context.Context, logger *slog.Logger, job *types.Job) (int, []types.FlagCode, error) {
	// Detect
	job.Stage = types.StageDetect
	regions, err := s.detectStage(ctx, logger, job)
	if err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	// Recognize
	job.Stage = types.StageRecognize
	s.store.UpdateJob(ctx, job)
	recognized, err := s.recognizeStage(ctx, logger, job, regions)
	if err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	// Map
	job.Stage = types.StageMap
	s.store.UpdateJob(ctx, job)
	fields, unmapped := s.mapper.MapFields(recognized)
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	// Validate
	job.Stage = types.StageValidate
	s.store.UpdateJob(ctx, job)
	flags, confidence := s.validator.Validate(fields)
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	// Persist
	job.Stage = types.StagePersist
	s.store.UpdateJob(ctx, job)
	rec := &types.StructuredRecord{
		DocumentID:        job.DocumentID,
		Version:           0, // assigned by the store
		Fields:            fields,
		OverallConfidence: confidence,
		ValidationFlags:   flags,
		UnmappedRegions:   unmapped,
		CreatedAt:         time.Now().UTC(),
	}
	version, err := s.store.AppendRecord(ctx, rec)
	if err != nil {
		return 0, nil, err
	}

	return version, flags, nil
}

// detectStage fans detection out over the document's pages.
func (s *Scheduler) detectStage(ctx context.Context, logger *slog.Logger, job *types.Job) ([]pageRegions, error) {
	detector, err := s.registry.Detector(s.cfg.DetectorName)
	if err != nil {
		return nil, err
	}

	pages, err := s.store.GetPages(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("document %s has no pages", job.DocumentID)
	}

	results := make([]pageRegions, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			image, err := readPage(page.Path)
			if err != nil {
				return err
			}

			detections, err := s.callDetector(gctx, detector, job, image, page.PageNo)
			if err != nil {
				return err
			}

			regions := make([]types.Region, 0, len(detections))
			for _, det := range detections {
				box := det.Box.Clamp(page.Width, page.Height)
				if box.Empty() {
					logger.Debug("dropping degenerate detection",
						"page", page.PageNo, "label", det.Label)
					continue
				}
				regions = append(regions, types.Region{
					ID:            uuid.NewString(),
					PageNo:        page.PageNo,
					Box:           box,
					DetectorLabel: det.Label,
					DetectorConf:  det.Confidence,
				})
			}
			results[i] = pageRegions{page: page, regions: regions}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, pr := range results {
		total += len(pr.regions)
	}
	logger.Info("detection complete", "pages", len(pages), "regions", total)
	return results, nil
}

// recognizeStage crops each region and reads its text.
func (s *Scheduler) recognizeStage(ctx context.Context, logger *slog.Logger, job *types.Job, pages []pageRegions) ([]extract.RegionText, error) {
	recognizer, err := s.registry.Recognizer(s.cfg.RecognizerName)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []extract.RegionText
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RegionConcurrency)
	for _, pr := range pages {
		for _, region := range pr.regions {
			g.Go(func() error {
				crop, err := ingest.CropRegion(pr.page.Path, region.Box)
				if err != nil {
					return fmt.Errorf("region %s: %w", region.ID, err)
				}

				rec, err := s.callRecognizer(gctx, recognizer, job, region, crop)
				if err != nil {
					return err
				}

				mu.Lock()
				out = append(out, extract.RegionText{Region: region, Recognition: *rec})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic order for mapping regardless of goroutine timing.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region.PageNo != out[j].Region.PageNo {
			return out[i].Region.PageNo < out[j].Region.PageNo
		}
		return out[i].Region.ID < out[j].Region.ID
	})

	logger.Info("recognition complete", "regions", len(out))
	return out, nil
}

// callDetector invokes the detector with rate limiting and backoff.
func (s *Scheduler) callDetector(ctx context.Context, detector capability.Detector, job *types.Job, image []byte, pageNo int) ([]capability.Detection, error) {
	var detections []capability.Detection
	err := retry.Do(
		func() error {
			if err := s.registry.Wait(ctx, detector.Name()); err != nil {
				return retry.Unrecoverable(err)
			}
			start := time.Now()
			result, err := detector.DetectRegions(ctx, image, pageNo)
			if s.metrics != nil {
				s.metrics.RecordCall(ctx, detector.Name(), "detect", job.DocumentID, err == nil, time.Since(start))
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			detections = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.RetryAttempts)),
		retry.Delay(s.cfg.RetryDelayBase),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(_ uint, cause error) { s.noteRetry(ctx, job, cause) }),
	)
	return detections, err
}

// callRecognizer invokes the recognizer with rate limiting and backoff.
func (s *Scheduler) callRecognizer(ctx context.Context, recognizer capability.Recognizer, job *types.Job, region types.Region, crop []byte) (*capability.Recognition, error) {
	var recognition *capability.Recognition
	err := retry.Do(
		func() error {
			if err := s.registry.Wait(ctx, recognizer.Name()); err != nil {
				return retry.Unrecoverable(err)
			}
			start := time.Now()
			result, err := recognizer.RecognizeText(ctx, crop, region.DetectorLabel)
			if s.metrics != nil {
				s.metrics.RecordCall(ctx, recognizer.Name(), "recognize", job.DocumentID, err == nil, time.Since(start))
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			recognition = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.RetryAttempts)),
		retry.Delay(s.cfg.RetryDelayBase),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(_ uint, cause error) { s.noteRetry(ctx, job, cause) }),
	)
	if err != nil {
		return nil, err
	}
	return recognition, nil
}

// noteRetry bumps the job's attempt count when a capability call is
// retried. Concurrent page and region calls share one job row, so
// updates are serialized.
func (s *Scheduler) noteRetry(ctx context.Context, job *types.Job, cause error) {
	s.attemptMu.Lock()
	job.AttemptCount++
	count := job.AttemptCount
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Warn("failed to record retry attempt", "job_id", job.ID, "error", err)
	}
	s.attemptMu.Unlock()
	s.logger.Debug("capability call retried", "job_id", job.ID, "attempt", count, "error", cause)
}

// failJob marks a job failed and the document with it.
func (s *Scheduler) failJob(ctx context.Context, job *types.Job, cause error) {
	now := time.Now().UTC()
	job.State = types.JobFailed
	job.LastError = cause.Error()
	job.FinishedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	if err := s.store.UpdateDocumentStatus(ctx, job.DocumentID, types.DocStatusFailed); err != nil {
		s.logger.Warn("failed to mark document failed", "document_id", job.DocumentID, "error", err)
	}
}

// cancelJob marks a job cancelled. The document keeps its prior status
// since no partial output was written.
func (s *Scheduler) cancelJob(job *types.Job) {
	now := time.Now().UTC()
	job.State = types.JobCancelled
	job.FinishedAt = &now
	if err := s.store.UpdateJob(context.Background(), job); err != nil {
		s.logger.Error("failed to mark job cancelled", "job_id", job.ID, "error", err)
	}
	if err := s.store.UpdateDocumentStatus(context.Background(), job.DocumentID, types.DocStatusIngested); err != nil {
		s.logger.Warn("failed to restore document status", "document_id", job.DocumentID, "error", err)
	}
}

type pageRegions struct {
	page    types.Page
	regions []types.Region
}

func readPage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page raster: %w", err)
	}
	return data, nil
}

// Package pipeline orchestrates document processing: detection,
// recognition, field mapping, validation, and persistence. Runs are
// executed by a fixed worker pool; at most one run is active per
// document at any time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/folio-health/folio/internal/capability"
	"github.com/folio-health/folio/internal/events"
	"github.com/folio-health/folio/internal/extract"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/metrics"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/taxonomy"
	"github.com/folio-health/folio/internal/types"
)

// ErrJobActive is returned when a document already has a run in flight.
var ErrJobActive = errors.New("document already has an active job")

// ErrQueueFull is returned when the scheduler cannot accept more work.
var ErrQueueFull = errors.New("job queue is full")

// ErrShuttingDown is returned after Stop has been called.
var ErrShuttingDown = errors.New("scheduler is shutting down")

// Config holds scheduler settings.
type Config struct {
	Workers           int
	QueueSize         int
	DetectorName      string
	RecognizerName    string
	PageConcurrency   int
	RegionConcurrency int
	RetryAttempts     int
	RetryDelayBase    time.Duration
	LowConfidence     float64
	Logger            *slog.Logger
}

// Scheduler runs the extraction pipeline over ingested documents.
type Scheduler struct {
	cfg       Config
	store     *store.Store
	registry  *capability.Registry
	taxonomy  *taxonomy.Taxonomy
	bus       *events.Bus
	metrics   *metrics.Recorder
	home      *home.Dir
	mapper    *extract.Mapper
	validator *extract.Validator
	logger    *slog.Logger

	queue chan *task
	locks *docLocks

	mu      sync.Mutex
	active  map[string]context.CancelFunc // job ID -> cancel
	stopped bool

	attemptMu sync.Mutex // serializes attempt count updates across capability calls

	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type task struct {
	job *types.Job
}

// NewScheduler creates a scheduler with defaults applied. Call Start
// to launch the worker pool.
func NewScheduler(cfg Config, st *store.Store, reg *capability.Registry, tax *taxonomy.Taxonomy,
	bus *events.Bus, rec *metrics.Recorder, homeDir *home.Dir) *Scheduler {

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 4
	}
	if cfg.RegionConcurrency <= 0 {
		cfg.RegionConcurrency = 8
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelayBase == 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:        cfg,
		store:      st,
		registry:   reg,
		taxonomy:   tax,
		bus:        bus,
		metrics:    rec,
		home:       homeDir,
		mapper:     extract.NewMapper(tax, cfg.Logger),
		validator:  extract.NewValidator(tax, cfg.LowConfidence),
		logger:     cfg.Logger.With("component", "scheduler"),
		queue:      make(chan *task, cfg.QueueSize),
		locks:      newDocLocks(),
		active:     make(map[string]context.CancelFunc),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("scheduler started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
}

// Stop drains the queue, cancels in-flight runs, and waits for workers
// to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	// Close under the mutex so Submit never sends on a closed queue.
	close(s.queue)
	s.mu.Unlock()

	s.rootCancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Submit queues a pipeline run for a document. Rejects the request if
// the document already has an active run, so concurrent submissions
// for the same document never race on record versions.
func (s *Scheduler) Submit(ctx context.Context, documentID string) (*types.Job, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	s.mu.Unlock()

	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	job := &types.Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Stage:      types.StageQueued,
		State:      types.JobPending,
		CreatedAt:  time.Now().UTC(),
	}

	if !s.locks.TryAcquire(documentID, job.ID) {
		return nil, ErrJobActive
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.locks.Release(documentID, job.ID)
		return nil, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.locks.Release(documentID, job.ID)
		s.failJob(context.Background(), job, ErrShuttingDown)
		s.publishCompletion(job)
		return nil, ErrShuttingDown
	}
	select {
	case s.queue <- &task{job: job}:
		s.mu.Unlock()
		s.logger.Info("job queued", "job_id", job.ID, "document_id", documentID)
		return job, nil
	default:
		s.mu.Unlock()
		s.locks.Release(documentID, job.ID)
		s.failJob(context.Background(), job, ErrQueueFull)
		s.publishCompletion(job)
		return nil, ErrQueueFull
	}
}

// Cancel requests cancellation of a job. Pending jobs are cancelled
// immediately; running jobs stop at the next stage boundary.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	cancel, running := s.active[jobID]
	s.mu.Unlock()

	if running {
		cancel()
		s.logger.Info("job cancellation requested", "job_id", jobID)
		return nil
	}

	// Not in flight: cancel it in the store if still pending.
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.State)
	}

	now := time.Now().UTC()
	job.State = types.JobCancelled
	job.FinishedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.locks.Release(job.DocumentID, job.ID)
	s.publishCompletion(job)
	return nil
}

// Status reports queue depth and active run count.
func (s *Scheduler) Status() (queued, running int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), len(s.active)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker", id)

	for t := range s.queue {
		jobCtx, cancel := context.WithCancel(s.rootCtx)

		s.mu.Lock()
		s.active[t.job.ID] = cancel
		s.mu.Unlock()

		s.runJob(jobCtx, logger, t.job)

		s.mu.Lock()
		delete(s.active, t.job.ID)
		s.mu.Unlock()
		cancel()
		s.locks.Release(t.job.DocumentID, t.job.ID)
	}
}

func (s *Scheduler) publishCompletion(job *types.Job) {
	if s.bus == nil {
		return
	}
	event := types.CompletionEvent{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.State,
		Version:    job.Version,
		Error:      job.LastError,
	}
	s.bus.Publish(event)
}

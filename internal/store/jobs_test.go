package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/folio-health/folio/internal/types"
)

func testJob(t *testing.T, s *Store, id, documentID string) *types.Job {
	t.Helper()
	job := &types.Job{
		ID:         id,
		DocumentID: documentID,
		Stage:      types.StageQueued,
		State:      types.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

func TestJobs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	t.Run("create and get", func(t *testing.T) {
		testJob(t, s, "job-1", "doc-1")

		got, err := s.GetJob(ctx, "job-1")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.State != types.JobPending || got.Stage != types.StageQueued {
			t.Errorf("unexpected job state: %s/%s", got.State, got.Stage)
		}
	})

	t.Run("missing job returns ErrNotFound", func(t *testing.T) {
		if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update progresses job", func(t *testing.T) {
		job, _ := s.GetJob(ctx, "job-1")
		now := time.Now().UTC()
		job.State = types.JobRunning
		job.Stage = types.StageDetect
		job.StartedAt = &now

		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob failed: %v", err)
		}

		got, _ := s.GetJob(ctx, "job-1")
		if got.State != types.JobRunning || got.StartedAt == nil {
			t.Errorf("update not persisted: %+v", got)
		}
	})

	t.Run("terminal jobs are write-once", func(t *testing.T) {
		job, _ := s.GetJob(ctx, "job-1")
		now := time.Now().UTC()
		v := 1
		job.State = types.JobSucceeded
		job.Stage = types.StagePersist
		job.Version = &v
		job.FinishedAt = &now
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob to terminal failed: %v", err)
		}

		job.State = types.JobRunning
		if err := s.UpdateJob(ctx, job); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected terminal job update to be rejected, got %v", err)
		}

		got, _ := s.GetJob(ctx, "job-1")
		if got.State != types.JobSucceeded {
			t.Errorf("terminal state mutated to %s", got.State)
		}
	})
}

func TestActiveJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	t.Run("no jobs returns ErrNotFound", func(t *testing.T) {
		if _, err := s.ActiveJob(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("finds pending job", func(t *testing.T) {
		testJob(t, s, "job-1", "doc-1")

		got, err := s.ActiveJob(ctx, "doc-1")
		if err != nil {
			t.Fatalf("ActiveJob failed: %v", err)
		}
		if got.ID != "job-1" {
			t.Errorf("expected job-1, got %s", got.ID)
		}
	})

	t.Run("terminal jobs are not active", func(t *testing.T) {
		job, _ := s.GetJob(ctx, "job-1")
		now := time.Now().UTC()
		job.State = types.JobCancelled
		job.FinishedAt = &now
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob failed: %v", err)
		}

		if _, err := s.ActiveJob(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after cancel, got %v", err)
		}
	})
}

func TestPruneJobs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	stale := testJob(t, s, "job-old", "doc-1")
	stale.State = types.JobSucceeded
	stale.FinishedAt = &old
	if err := s.UpdateJob(ctx, stale); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	fresh := testJob(t, s, "job-fresh", "doc-1")
	fresh.State = types.JobFailed
	fresh.FinishedAt = &recent
	if err := s.UpdateJob(ctx, fresh); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	testJob(t, s, "job-active", "doc-1")

	n, err := s.PruneJobs(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneJobs failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned job, got %d", n)
	}

	if _, err := s.GetJob(ctx, "job-old"); !errors.Is(err, ErrNotFound) {
		t.Error("expected stale job removed")
	}
	if _, err := s.GetJob(ctx, "job-fresh"); err != nil {
		t.Errorf("recent terminal job should survive: %v", err)
	}
	if _, err := s.GetJob(ctx, "job-active"); err != nil {
		t.Errorf("active job should survive: %v", err)
	}
}

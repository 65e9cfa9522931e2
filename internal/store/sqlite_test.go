package store

import (
	"context"
	"testing"
	"time"

	"github.com/me/stardis/internal/logging"
	"github.com/me/stardis/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testJob(id string) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        id,
		Function:  "observe",
		Backend:   model.BackendTorque,
		Phase:     model.PhaseConfiguring,
		Status:    model.JobStatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := testJob("job-1")
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("GetJob returned nil for existing job")
	}
	if got.Function != "observe" || got.Backend != model.BackendTorque {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Phase != model.PhaseConfiguring || got.Status != model.JobStatusSubmitted {
		t.Errorf("phase/status mismatch: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestGetJobMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got != nil {
		t.Errorf("GetJob on missing id = %+v, want nil", got)
	}
}

func TestUpdateJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := testJob("job-2")
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Phase = model.PhaseDone
	job.Status = model.JobStatusComplete
	job.ExternalID = "42.cluster"
	job.Command = "echo ... | qsub"
	done := time.Now().UTC()
	job.CompletedAt = &done

	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != model.PhaseDone || got.Status != model.JobStatusComplete {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.ExternalID != "42.cluster" {
		t.Errorf("ExternalID = %q", got.ExternalID)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		job := testJob(id)
		job.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		job.UpdatedAt = job.CreatedAt
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := s.ListJobs(ctx, 2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "c" || jobs[1].ID != "b" {
		t.Errorf("order = %s, %s; want c, b", jobs[0].ID, jobs[1].ID)
	}
}

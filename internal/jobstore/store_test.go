package jobstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/logger"
)

func testLog() *logger.Logger {
	return logger.New(&logger.Config{Level: "error"})
}

func sampleJob(id string) *domain.Job {
	return &domain.Job{
		JobID:     id,
		Status:    domain.JobStatusRunning,
		StartTime: time.Now().UTC().Truncate(time.Second),
		Params:    domain.TrainingParams{DatasetRepoID: "user/dataset"},
		Logs:      []string{"Step 1/100"},
		Progress:  1.0,
	}
}

func TestSaveAndGet(t *testing.T) {
	store, err := New(t.TempDir(), testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	job := sampleJob("job-1")
	if err := store.Create(job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.JobStatusRunning || got.Progress != 1.0 {
		t.Errorf("Get() = %+v, want status=running progress=1", got)
	}

	// Snapshots must not alias the indexed record.
	got.Logs = append(got.Logs, "mutated")
	again, _ := store.Get("job-1")
	if len(again.Logs) != 1 {
		t.Errorf("stored record mutated through snapshot: %v", again.Logs)
	}
}

func TestGetMissingJob(t *testing.T) {
	store, err := New(t.TempDir(), testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Get("no-such-job"); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSaveWritesWholeRecordToDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	job := sampleJob("job-1")
	job.Error = "boom"
	if err := store.Save(job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "job-1.json"))
	if err != nil {
		t.Fatalf("reading job file: %v", err)
	}
	var onDisk domain.Job
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decoding job file: %v", err)
	}
	if onDisk.JobID != "job-1" || onDisk.Error != "boom" || len(onDisk.Logs) != 1 {
		t.Errorf("on-disk record incomplete: %+v", onDisk)
	}
}

func TestRestartRecoversJobsFromDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, id := range []string{"job-a", "job-b"} {
		if err := store.Create(sampleJob(id)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	// A fresh store over the same directory sees the same jobs.
	reopened, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	if got := len(reopened.List()); got != 2 {
		t.Errorf("List() after restart = %d jobs, want 2", got)
	}
	if _, err := reopened.Get("job-a"); err != nil {
		t.Errorf("Get(job-a) after restart error = %v", err)
	}
}

func TestListPicksUpExternalWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Simulate another process instance dropping a job file.
	data, _ := json.Marshal(sampleJob("external"))
	if err := os.WriteFile(filepath.Join(dir, "external.json"), data, 0o644); err != nil {
		t.Fatalf("writing external file: %v", err)
	}

	jobs := store.List()
	if len(jobs) != 1 || jobs[0].JobID != "external" {
		t.Errorf("List() = %+v, want the externally written job", jobs)
	}
}

func TestMalformedJobFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing malformed file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("writing stray file: %v", err)
	}

	store, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := len(store.List()); got != 0 {
		t.Errorf("List() = %d jobs, want 0", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	store, err := New(t.TempDir(), testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Create(sampleJob("job-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.UpdateStatus("job-1", domain.JobStatusFailed, "Process exited with code 1"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, _ := store.Get("job-1")
	if got.Status != domain.JobStatusFailed || got.Error != "Process exited with code 1" {
		t.Errorf("UpdateStatus() result = %+v", got)
	}

	if err := store.UpdateStatus("missing", domain.JobStatusFailed, ""); err != ErrNotFound {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAppliesAndPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Create(sampleJob("job-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Update("job-1", func(job *domain.Job) {
		job.Progress = 50
		job.SessionName = "train_job_job-1"
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Progress != 50 || got.SessionName != "train_job_job-1" {
		t.Errorf("Update() = %+v", got)
	}

	// The change survives a fresh store over the same directory.
	reopened, _ := New(dir, testLog())
	onDisk, err := reopened.Get("job-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if onDisk.Progress != 50 || onDisk.SessionName != "train_job_job-1" {
		t.Errorf("persisted record = %+v", onDisk)
	}

	if _, err := store.Update("missing", func(job *domain.Job) {}); err != ErrNotFound {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateKeepsTerminalStatus(t *testing.T) {
	store, err := New(t.TempDir(), testLog())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Create(sampleJob("job-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.UpdateStatus("job-1", domain.JobStatusCancelled, "Job cancelled by user"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	// A stale writer that still believes the job is running cannot undo the
	// cancellation, but its other changes go through.
	got, err := store.Update("job-1", func(job *domain.Job) {
		job.Status = domain.JobStatusRunning
		job.Error = ""
		job.Progress = 75
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled to stick", got.Status)
	}
	if got.Error != "Job cancelled by user" {
		t.Errorf("error = %q, want the cancel message kept", got.Error)
	}
	if got.Progress != 75 {
		t.Errorf("progress = %v, want 75 applied", got.Progress)
	}

	// The rule applies to UpdateStatus too.
	if err := store.UpdateStatus("job-1", domain.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, _ = store.Get("job-1")
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("status = %s after terminal overwrite attempt", got.Status)
	}
}

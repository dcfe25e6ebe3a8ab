package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robolab/trainerd/internal/config"
	"github.com/robolab/trainerd/internal/domain"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	return db
}

func TestPodRepositoryCreateAndGet(t *testing.T) {
	repo := NewPodRepository(testDB(t))
	ctx := context.Background()

	ip := "1.2.3.4"
	cost := 0.39
	record := &domain.PodRecord{
		ID:        "pod-1",
		Name:      "Training Pod",
		GPUType:   "NVIDIA A40",
		GPUCount:  1,
		Status:    "STARTING",
		PublicIP:  &ip,
		CostPerHr: &cost,
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "pod-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != "STARTING" || got.PublicIP == nil || *got.PublicIP != ip {
		t.Errorf("GetByID() = %+v", got)
	}

	pods, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pods) != 1 {
		t.Errorf("List() = %d rows, want 1", len(pods))
	}
}

func TestPodRepositoryRefreshStatus(t *testing.T) {
	repo := NewPodRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.PodRecord{ID: "pod-1", Status: "STARTING", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ip := "5.6.7.8"
	if err := repo.RefreshStatus(ctx, "pod-1", "RUNNING", &ip); err != nil {
		t.Fatalf("RefreshStatus() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "pod-1")
	if got.Status != "RUNNING" || got.PublicIP == nil || *got.PublicIP != ip {
		t.Errorf("after refresh: %+v", got)
	}
}

func TestPodRepositoryMarkTerminatedIsIdempotent(t *testing.T) {
	repo := NewPodRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.PodRecord{ID: "pod-1", Status: "RUNNING", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkTerminated(ctx, "pod-1"); err != nil {
		t.Fatalf("MarkTerminated() error = %v", err)
	}
	first, _ := repo.GetByID(ctx, "pod-1")
	if first.Status != domain.PodStatusTerminated || first.TerminatedAt == nil {
		t.Fatalf("after first termination: %+v", first)
	}

	time.Sleep(10 * time.Millisecond)
	if err := repo.MarkTerminated(ctx, "pod-1"); err != nil {
		t.Fatalf("second MarkTerminated() error = %v", err)
	}
	second, _ := repo.GetByID(ctx, "pod-1")
	if !second.TerminatedAt.Equal(*first.TerminatedAt) {
		t.Errorf("termination timestamp moved: %v -> %v", first.TerminatedAt, second.TerminatedAt)
	}

	// Unknown ids are a no-op, not an error.
	if err := repo.MarkTerminated(ctx, "no-such-pod"); err != nil {
		t.Errorf("MarkTerminated(unknown) error = %v", err)
	}
}

func TestJobMirrorUpsert(t *testing.T) {
	repo := NewJobMirrorRepository(testDB(t))
	ctx := context.Background()

	record := &domain.JobRecord{ID: "job-1", PodID: "pod-1", Status: "running", Progress: 10}
	if err := repo.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert() insert error = %v", err)
	}

	created, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if created.Status != "running" || created.Progress != 10 {
		t.Errorf("inserted row = %+v", created)
	}

	update := &domain.JobRecord{ID: "job-1", PodID: "pod-1", Status: "completed", Progress: 100}
	if err := repo.Upsert(ctx, update); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "job-1")
	if got.Status != "completed" || got.Progress != 100 {
		t.Errorf("updated row = %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", created.CreatedAt, got.CreatedAt)
	}
}

func TestJobMirrorListByPod(t *testing.T) {
	repo := NewJobMirrorRepository(testDB(t))
	ctx := context.Background()

	for _, r := range []*domain.JobRecord{
		{ID: "job-1", PodID: "pod-a", Status: "running"},
		{ID: "job-2", PodID: "pod-a", Status: "completed"},
		{ID: "job-3", PodID: "pod-b", Status: "running"},
	} {
		if err := repo.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert(%s) error = %v", r.ID, err)
		}
	}

	jobs, err := repo.ListByPod(ctx, "pod-a")
	if err != nil {
		t.Fatalf("ListByPod() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("ListByPod(pod-a) = %d rows, want 2", len(jobs))
	}
}

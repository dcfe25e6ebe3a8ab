package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robolab/trainerd/internal/api/handler"
	"github.com/robolab/trainerd/internal/api/middleware"
	"github.com/robolab/trainerd/internal/config"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/jobs"
	"github.com/robolab/trainerd/internal/jobstore"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/monitor"
	"github.com/robolab/trainerd/internal/session"

	"github.com/gin-gonic/gin"
)

type fakeRunner struct {
	live map[string]bool
}

func (f *fakeRunner) Available(ctx context.Context) error { return nil }

func (f *fakeRunner) StartDetached(ctx context.Context, name, command string) error {
	if f.live == nil {
		f.live = map[string]bool{}
	}
	f.live[name] = true
	return nil
}

func (f *fakeRunner) Has(ctx context.Context, name string) (bool, error) {
	return f.live[name], nil
}

func (f *fakeRunner) Kill(ctx context.Context, name string) error {
	delete(f.live, name)
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	log := logger.New(&logger.Config{Level: "error"})
	store, err := jobstore.New(dir, log)
	if err != nil {
		t.Fatalf("jobstore.New() error = %v", err)
	}
	jobsCfg := config.JobsConfig{
		Dir:                    dir,
		WorkDir:                ".",
		PollInterval:           time.Hour,
		SentinelFallbackStatus: "completed",
	}
	executor := session.NewExecutor(&fakeRunner{}, jobsCfg, config.TrainingConfig{Script: "true"}, log)
	mon := monitor.New(store, jobsCfg, nil, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		mon.Shutdown(ctx)
	})
	svc := jobs.NewService(store, executor, mon, log)

	return SetupRouter(handler.NewJobHandler(svc), nil, middleware.CORSConfig{AllowAllOrigins: true}, "test")
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndRoot(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET / = %d", w.Code)
	}
	var banner map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &banner); err != nil {
		t.Fatalf("decoding banner: %v", err)
	}
	if banner["version"] != handler.Version {
		t.Errorf("version = %q", banner["version"])
	}
}

func TestCreateJobValidation(t *testing.T) {
	r := newTestRouter(t)

	// dataset_repo_id is required.
	w := do(r, http.MethodPost, "/jobs", `{"steps": 100}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /jobs without dataset = %d, want 400", w.Code)
	}

	w = do(r, http.MethodPost, "/jobs", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /jobs with garbage = %d, want 400", w.Code)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/jobs", `{"dataset_repo_id": "user/dataset", "steps": 100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /jobs = %d, body %s", w.Code, w.Body.String())
	}
	var created domain.Job
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created job: %v", err)
	}
	if created.Status != domain.JobStatusRunning {
		t.Errorf("created status = %s, want running", created.Status)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	w = do(r, http.MethodGet, "/jobs/"+created.JobID, "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /jobs/{id} = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/jobs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /jobs = %d", w.Code)
	}
	var list []domain.Job
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("GET /jobs = %d jobs, want 1", len(list))
	}

	w = do(r, http.MethodDelete, "/jobs/"+created.JobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE /jobs/{id} = %d, body %s", w.Code, w.Body.String())
	}

	// Cancelled jobs cannot be cancelled again.
	w = do(r, http.MethodDelete, "/jobs/"+created.JobID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}

	w = do(r, http.MethodGet, "/jobs/"+created.JobID, "")
	var got domain.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding job: %v", err)
	}
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("status after cancel = %s", got.Status)
	}
}

func TestGetUnknownJob(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/jobs/no-such-job", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET unknown job = %d, want 404", w.Code)
	}
	w = do(r, http.MethodDelete, "/jobs/no-such-job", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown job = %d, want 404", w.Code)
	}
}

func TestPodRoutesDisabledWithoutHandler(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/pods", `{"gpu_type_id": "NVIDIA A40"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("POST /pods with pods disabled = %d, want 404", w.Code)
	}
	w = do(r, http.MethodGet, "/pods", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /pods with pods disabled = %d, want 404", w.Code)
	}
}

// Package monitor supervises launched training jobs. One watcher goroutine
// per job polls session liveness and the job's log file, derives progress and
// terminal state, and persists a snapshot every iteration. Watchers are
// tracked in a cancellation-capable registry so shutdown can signal all of
// them instead of abandoning them.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robolab/trainerd/internal/config"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/jobstore"
	"github.com/robolab/trainerd/internal/logger"
)

// SessionLiveness answers whether a named session is still alive.
type SessionLiveness interface {
	Has(ctx context.Context, name string) (bool, error)
}

// ArtifactUploader pushes a completed job's log file to object storage.
// A nil uploader disables the feature.
type ArtifactUploader interface {
	UploadFile(ctx context.Context, key, path string) (string, error)
}

// Monitor owns the watcher registry.
type Monitor struct {
	store    *jobstore.Store
	interval time.Duration
	fallback domain.JobStatus
	uploader ArtifactUploader
	log      *logger.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a monitor from the jobs configuration.
func New(store *jobstore.Store, cfg config.JobsConfig, uploader ArtifactUploader, log *logger.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		store:      store,
		interval:   cfg.PollInterval,
		fallback:   domain.JobStatus(cfg.SentinelFallbackStatus),
		uploader:   uploader,
		log:        log,
		baseCtx:    ctx,
		baseCancel: cancel,
		watchers:   make(map[string]context.CancelFunc),
	}
}

// Watch starts a watcher goroutine for the job. It is the sole writer of the
// job's record until a terminal state is reached.
func (m *Monitor) Watch(jobID, sessionName, logPath string, liveness SessionLiveness) {
	ctx, cancel := context.WithCancel(m.baseCtx)

	m.mu.Lock()
	m.watchers[jobID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.watchers, jobID)
			m.mu.Unlock()
		}()
		m.run(ctx, jobID, sessionName, logPath, liveness)
	}()
}

// Active returns the number of watchers currently running.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Shutdown cancels every outstanding watcher and waits for them to exit,
// bounded by ctx. Watched jobs stay in their last persisted state; a restart
// will see them through the directory rescan.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor shutdown timed out: %w", ctx.Err())
	}
}

func (m *Monitor) run(ctx context.Context, jobID, sessionName, logPath string, liveness SessionLiveness) {
	log := m.log.WithFields(logger.Fields{
		logger.FieldJobID:   jobID,
		logger.FieldSession: sessionName,
	})
	log.Debug("watcher started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("watcher detached on shutdown")
			return
		case <-ticker.C:
			done, err := m.poll(ctx, jobID, sessionName, logPath, liveness)
			if err != nil {
				// Fail-stop: record the fault and stop watching.
				log.WithError(err).Error("watcher fault")
				if uerr := m.store.UpdateStatus(jobID, domain.JobStatusError, err.Error()); uerr != nil {
					log.WithError(uerr).Error("failed to record watcher fault")
				}
				return
			}
			if done {
				log.Info("watcher finished")
				return
			}
		}
	}
}

// poll performs one monitoring iteration. It returns done=true once the job
// has reached a terminal status.
func (m *Monitor) poll(ctx context.Context, jobID, sessionName, logPath string, liveness SessionLiveness) (bool, error) {
	alive, err := liveness.Has(ctx, sessionName)
	if err != nil {
		return false, fmt.Errorf("session liveness check failed: %w", err)
	}

	var logContent string
	hasLog := false
	if content, rerr := os.ReadFile(logPath); rerr == nil {
		logContent = string(content)
		hasLog = true
	} else if !os.IsNotExist(rerr) {
		return false, fmt.Errorf("failed to read log file: %w", rerr)
	}

	exitCode, hasCode, present := ParseSentinel(logContent)

	// The whole read-modify-write happens under the store lock so a
	// concurrent cancel cannot be clobbered by this iteration's write.
	var exited bool
	job, err := m.store.Update(jobID, func(job *domain.Job) {
		if hasLog {
			if progress, ok := ParseProgress(logContent); ok {
				job.Progress = progress
			}
			// The stored snapshot is replaced wholesale every poll.
			job.Logs = splitLines(logContent)
		}

		if job.Status.IsTerminal() {
			return
		}

		if present {
			exited = true
			switch {
			case hasCode && exitCode == 0:
				job.Status = domain.JobStatusCompleted
			case hasCode:
				job.Status = domain.JobStatusFailed
				job.Error = fmt.Sprintf("Process exited with code %d", exitCode)
			default:
				// Sentinel present but no extractable code.
				job.Status = m.fallback
				if m.fallback == domain.JobStatusError {
					job.Error = "completion sentinel carried no exit code"
				}
			}
			return
		}

		// A vanished session without a sentinel means the process died on us.
		if !alive {
			job.Status = domain.JobStatusFailed
			job.Error = "session ended unexpectedly"
		}
	})
	if err != nil {
		return false, err
	}

	if exited {
		fields := logger.Fields{
			logger.FieldJobID:    jobID,
			logger.FieldStatus:   job.Status,
			logger.FieldProgress: job.Progress,
		}
		if hasCode {
			fields[logger.FieldExitCode] = exitCode
		}
		m.log.WithFields(fields).Info("training process exited")
	}

	if job.Status == domain.JobStatusCompleted {
		m.uploadArtifacts(ctx, job, logPath)
	}

	return job.Status.IsTerminal(), nil
}

// uploadArtifacts ships the log file to object storage once. Failures are
// logged and never change the job's status.
func (m *Monitor) uploadArtifacts(ctx context.Context, job *domain.Job, logPath string) {
	if m.uploader == nil || job.ArtifactKey != "" {
		return
	}
	key := fmt.Sprintf("jobs/%s/train.log", job.JobID)
	if _, err := m.uploader.UploadFile(ctx, key, logPath); err != nil {
		m.log.WithField(logger.FieldJobID, job.JobID).WithError(err).Warn("artifact upload failed")
		return
	}
	if _, err := m.store.Update(job.JobID, func(j *domain.Job) {
		j.ArtifactKey = key
	}); err != nil {
		m.log.WithField(logger.FieldJobID, job.JobID).WithError(err).Warn("failed to record artifact key")
	}
}

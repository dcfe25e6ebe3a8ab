// Package jobs glues the session executor, the job store, and the monitor
// into the local-tier job lifecycle: launch, observe, cancel.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/jobstore"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/monitor"
	"github.com/robolab/trainerd/internal/session"
)

// ErrNotCancellable is returned when the job exists but is not in a state
// that can be cancelled.
var ErrNotCancellable = errors.New("job is not running or starting")

// ErrNotFound mirrors the store's not-found for callers of this package.
var ErrNotFound = jobstore.ErrNotFound

// Service owns local job creation and cancellation.
type Service struct {
	store    *jobstore.Store
	executor *session.Executor
	monitor  *monitor.Monitor
	log      *logger.Logger
}

// NewService wires the job lifecycle components together.
func NewService(store *jobstore.Store, executor *session.Executor, mon *monitor.Monitor, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		executor: executor,
		monitor:  mon,
		log:      log,
	}
}

// Start records the job, launches its session, and hands it to the monitor.
// A launch failure marks the job "error" but still returns the record: the
// caller learns about the failure by polling, never as a create error.
func (s *Service) Start(ctx context.Context, params domain.TrainingParams) (*domain.Job, error) {
	jobID := uuid.New().String()
	ctx = logger.SetJobID(ctx, jobID)

	job := &domain.Job{
		JobID:     jobID,
		Status:    domain.JobStatusStarting,
		StartTime: time.Now(),
		Params:    params,
		Logs:      []string{},
	}
	if err := s.store.Create(job); err != nil {
		return nil, err
	}

	sessionName, err := s.executor.Launch(ctx, jobID, params)
	if err != nil {
		logger.CtxError(ctx, "failed to launch training session: %v", err)
		if uerr := s.store.UpdateStatus(jobID, domain.JobStatusError, err.Error()); uerr != nil {
			logger.CtxError(ctx, "failed to record launch error: %v", uerr)
		}
		return s.store.Get(jobID)
	}

	// The exact session name is persisted so cancellation can target it;
	// deriving it from the job id could hit another job sharing an id prefix.
	job, err = s.store.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusRunning
		j.SessionName = sessionName
	})
	if err != nil {
		return nil, err
	}

	s.monitor.Watch(jobID, sessionName, s.executor.LogPath(jobID), s.executor)

	return job, nil
}

// Get returns a snapshot of the job record.
func (s *Service) Get(id string) (*domain.Job, error) {
	return s.store.Get(id)
}

// List returns snapshots of all known jobs, including ones persisted by
// other process instances.
func (s *Service) List() []*domain.Job {
	return s.store.List()
}

// Cancel kills the backing session (if alive) and force-sets the status.
// The job's watcher observes the terminal status on its next poll and exits;
// convergence is bounded by one polling interval.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusRunning && job.Status != domain.JobStatusStarting {
		return ErrNotCancellable
	}

	// Kill only the session recorded at launch. A job that never launched a
	// session (or predates the record) has nothing to kill.
	if job.SessionName != "" {
		if err := s.executor.Kill(ctx, job.SessionName); err != nil {
			return err
		}
	}

	return s.store.UpdateStatus(id, domain.JobStatusCancelled, "Job cancelled by user")
}

// Package jobstore persists training job records, one JSON file per job,
// with an in-memory index in front. Any well-formed file present on disk
// becomes visible on the next List, so the store survives process restarts
// and picks up jobs written by other instances.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/logger"
)

// ErrNotFound is returned when no record exists in memory or on disk.
var ErrNotFound = errors.New("job not found")

// Store indexes job records in memory and mirrors every write to disk.
type Store struct {
	dir string
	log *logger.Logger

	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// New creates the backing directory if needed and loads existing job files.
func New(dir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}
	s := &Store{
		dir:  dir,
		log:  log,
		jobs: make(map[string]*domain.Job),
	}
	s.mu.Lock()
	s.loadExistingLocked()
	s.mu.Unlock()
	return s, nil
}

// loadExistingLocked scans the directory and indexes every well-formed job
// file. Malformed files are logged and skipped, never fatal.
func (s *Store) loadExistingLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.WithError(err).Error("failed to scan jobs directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		job, err := readJobFile(path)
		if err != nil {
			s.log.WithError(err).Warnf("skipping malformed job file %s", path)
			continue
		}
		if job.JobID != "" {
			s.jobs[job.JobID] = job
		}
	}
}

func readJobFile(path string) (*domain.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &job, nil
}

func (s *Store) jobPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create persists a brand new record. It is Save under a clearer name.
func (s *Store) Create(job *domain.Job) error {
	return s.Save(job)
}

// Save overwrites the job's file with the full record and refreshes the
// index. There is no partial patch; the file always holds the whole record.
func (s *Store) Save(job *domain.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.JobID, err)
	}
	if err := os.WriteFile(s.jobPath(job.JobID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write job file for %s: %w", job.JobID, err)
	}

	s.mu.Lock()
	s.jobs[job.JobID] = job.Clone()
	s.mu.Unlock()
	return nil
}

// Update applies fn to the current record while holding the store lock, so a
// concurrent writer cannot slip between the read and the write, then persists
// the result and returns a snapshot of it. A terminal status is final: if fn
// tries to move the record off one, the original status and error are kept
// while the rest of fn's changes still apply.
func (s *Store) Update(id string, fn func(*domain.Job)) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		var err error
		job, err = readJobFile(s.jobPath(id))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, err
		}
	}

	updated := job.Clone()
	fn(updated)
	if job.Status.IsTerminal() && updated.Status != job.Status {
		updated.Status = job.Status
		updated.Error = job.Error
	}

	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", id, err)
	}
	if err := os.WriteFile(s.jobPath(id), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write job file for %s: %w", id, err)
	}

	s.jobs[id] = updated
	return updated.Clone(), nil
}

// Get returns a snapshot of the record, consulting memory first and falling
// back to disk on a miss.
func (s *Store) Get(id string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		return job.Clone(), nil
	}

	job, err := readJobFile(s.jobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return job.Clone(), nil
}

// List re-scans the backing directory so jobs created by other process
// instances become visible, then returns snapshots of the merged set.
func (s *Store) List() []*domain.Job {
	s.mu.Lock()
	s.loadExistingLocked()
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	s.mu.Unlock()
	return out
}

// UpdateStatus sets the status (and optional error message) and persists.
// Like any Update, it cannot move a record off a terminal status.
func (s *Store) UpdateStatus(id string, status domain.JobStatus, errMsg string) error {
	_, err := s.Update(id, func(job *domain.Job) {
		job.Status = status
		if errMsg != "" {
			job.Error = errMsg
		}
	})
	return err
}

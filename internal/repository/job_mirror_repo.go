package repository

import (
	"context"
	"errors"
	"time"

	"github.com/robolab/trainerd/internal/domain"
	"gorm.io/gorm"
)

// JobMirrorRepository caches remote jobs reported by pods' own runners.
// Every upsert is a full resynchronization of one row; concurrent upserts
// for the same id are last-write-wins.
type JobMirrorRepository struct {
	db *gorm.DB
}

// NewJobMirrorRepository creates a new JobMirrorRepository.
func NewJobMirrorRepository(db *gorm.DB) *JobMirrorRepository {
	return &JobMirrorRepository{db: db}
}

// Upsert inserts the row when absent, otherwise refreshes status, progress,
// error, and the update timestamp.
func (r *JobMirrorRepository) Upsert(ctx context.Context, record *domain.JobRecord) error {
	var existing domain.JobRecord
	err := r.db.WithContext(ctx).First(&existing, "id = ?", record.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		record.CreatedAt = now
		record.UpdatedAt = now
		return r.db.WithContext(ctx).Create(record).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&domain.JobRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"status":     record.Status,
		"progress":   record.Progress,
		"error":      record.Error,
		"updated_at": time.Now(),
	}).Error
}

// GetByID retrieves a mirrored job row.
func (r *JobMirrorRepository) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByPod returns all mirrored jobs owned by a pod.
func (r *JobMirrorRepository) ListByPod(ctx context.Context, podID string) ([]domain.JobRecord, error) {
	var records []domain.JobRecord
	if err := r.db.WithContext(ctx).Where("pod_id = ?", podID).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

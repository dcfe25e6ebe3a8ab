package repository

import (
	"context"
	"errors"
	"time"

	"github.com/robolab/trainerd/internal/domain"
	"gorm.io/gorm"
)

// PodRepository maintains the advisory local mirror of provisioned nodes.
type PodRepository struct {
	db *gorm.DB
}

// NewPodRepository creates a new PodRepository.
func NewPodRepository(db *gorm.DB) *PodRepository {
	return &PodRepository{db: db}
}

// Create inserts the mirror row for a freshly provisioned node.
func (r *PodRepository) Create(ctx context.Context, pod *domain.PodRecord) error {
	return r.db.WithContext(ctx).Create(pod).Error
}

// GetByID retrieves a pod mirror row.
func (r *PodRepository) GetByID(ctx context.Context, id string) (*domain.PodRecord, error) {
	var pod domain.PodRecord
	if err := r.db.WithContext(ctx).First(&pod, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pod, nil
}

// List returns all mirrored pods.
func (r *PodRepository) List(ctx context.Context) ([]domain.PodRecord, error) {
	var pods []domain.PodRecord
	if err := r.db.WithContext(ctx).Find(&pods).Error; err != nil {
		return nil, err
	}
	return pods, nil
}

// RefreshStatus updates the mirror from a provider status check.
func (r *PodRepository) RefreshStatus(ctx context.Context, id, status string, publicIP *string) error {
	updates := map[string]interface{}{
		"status":     status,
		"public_ip":  publicIP,
		"updated_at": time.Now(),
	}
	return r.db.WithContext(ctx).Model(&domain.PodRecord{}).Where("id = ?", id).Updates(updates).Error
}

// MarkTerminated records the teardown. Repeated calls keep the original
// termination timestamp.
func (r *PodRepository) MarkTerminated(ctx context.Context, id string) error {
	var pod domain.PodRecord
	err := r.db.WithContext(ctx).First(&pod, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if pod.Status == domain.PodStatusTerminated && pod.TerminatedAt != nil {
		return nil
	}

	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.PodRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        domain.PodStatusTerminated,
		"terminated_at": now,
		"updated_at":    now,
	}).Error
}

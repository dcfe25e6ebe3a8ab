// Package pods manages provisioned compute nodes: creating and terminating
// them through the provisioning API, mirroring their state into the local
// database, and polling the job runner embedded inside each node.
package pods

import (
	"context"
	"time"

	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/provider"
	"github.com/robolab/trainerd/internal/repository"
)

// Orchestrator proxies pod lifecycle calls to the provider and keeps the
// local mirror in step. The mirror is a cache; the provider stays
// authoritative for node existence and lifecycle.
type Orchestrator struct {
	provider *provider.Client
	podRepo  *repository.PodRepository
	log      *logger.Logger
}

// NewOrchestrator wires the provider client to the mirror repository.
func NewOrchestrator(client *provider.Client, podRepo *repository.PodRepository, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		provider: client,
		podRepo:  podRepo,
		log:      log,
	}
}

// CreatePod provisions a node and inserts its mirror row.
func (o *Orchestrator) CreatePod(ctx context.Context, req provider.CreatePodRequest) (*domain.PodInfo, error) {
	pod, err := o.provider.CreatePod(ctx, req)
	if err != nil {
		return nil, err
	}

	record := &domain.PodRecord{
		ID:        pod.ID,
		Name:      req.Name,
		GPUType:   req.GPUTypeID,
		GPUCount:  req.GPUCount,
		Status:    "STARTING",
		CreatedAt: time.Now(),
	}
	if pod.PublicIP != "" {
		ip := pod.PublicIP
		record.PublicIP = &ip
	}
	if pod.CostPerHr != 0 {
		cost := pod.CostPerHr
		record.CostPerHr = &cost
	}
	if err := o.podRepo.Create(ctx, record); err != nil {
		// The node exists on the provider side; a mirror failure must not
		// hide that from the caller.
		o.log.WithField(logger.FieldPodID, pod.ID).WithError(err).Error("failed to mirror created pod")
	}

	info := toPodInfo(pod)
	info.Name = req.Name
	info.GPUType = req.GPUTypeID
	if info.Status == "" {
		info.Status = "STARTING"
	}
	return info, nil
}

// ListPods returns all nodes as reported by the provider.
func (o *Orchestrator) ListPods(ctx context.Context) ([]domain.PodInfo, error) {
	pods, err := o.provider.ListPods(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PodInfo, 0, len(pods))
	for i := range pods {
		out = append(out, *toPodInfo(&pods[i]))
	}
	return out, nil
}

// fetchStatus retrieves the provider state and refreshes the mirror row.
func (o *Orchestrator) fetchStatus(ctx context.Context, podID string) (*provider.Pod, error) {
	pod, err := o.provider.GetPod(ctx, podID)
	if err != nil {
		return nil, err
	}

	status := pod.DesiredStatus
	if status == "" {
		status = "UNKNOWN"
	}
	var publicIP *string
	if pod.PublicIP != "" {
		ip := pod.PublicIP
		publicIP = &ip
	}
	if err := o.podRepo.RefreshStatus(ctx, podID, status, publicIP); err != nil {
		o.log.WithField(logger.FieldPodID, podID).WithError(err).Error("failed to refresh pod mirror")
	}

	return pod, nil
}

// TerminatePod tears the node down and marks the mirror TERMINATED.
func (o *Orchestrator) TerminatePod(ctx context.Context, podID string) error {
	if err := o.provider.TerminatePod(ctx, podID); err != nil {
		return err
	}
	if err := o.podRepo.MarkTerminated(ctx, podID); err != nil {
		o.log.WithField(logger.FieldPodID, podID).WithError(err).Error("failed to mark pod terminated in mirror")
	}
	return nil
}

func toPodInfo(pod *provider.Pod) *domain.PodInfo {
	status := pod.DesiredStatus
	if status == "" {
		status = "UNKNOWN"
	}
	name := pod.Name
	if name == "" {
		name = "Unknown"
	}
	return &domain.PodInfo{
		PodID:     pod.ID,
		Name:      name,
		Status:    status,
		PublicIP:  pod.PublicIP,
		Ports:     pod.PortMappings,
		GPUType:   pod.GPU.DisplayName,
		CostPerHr: pod.CostPerHr,
	}
}

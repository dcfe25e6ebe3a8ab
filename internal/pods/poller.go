package pods

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/repository"
)

// ErrPodUnreachable is returned when the node's embedded job runner does not
// answer on its mapped application port.
var ErrPodUnreachable = errors.New("pod API is not accessible")

const (
	probeTimeout = 5 * time.Second
	fetchTimeout = 10 * time.Second
)

// StatusPoller reconciles remote job state into the local mirror: every poll
// is a full resynchronization of one record against the pod's own runner,
// which stays authoritative.
type StatusPoller struct {
	orchestrator *Orchestrator
	jobMirror    *repository.JobMirrorRepository
	appPort      int
	http         *resty.Client
	log          *logger.Logger
}

// NewStatusPoller builds a poller that probes pods on appPort.
func NewStatusPoller(orch *Orchestrator, jobMirror *repository.JobMirrorRepository, appPort int, log *logger.Logger) *StatusPoller {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")

	return &StatusPoller{
		orchestrator: orch,
		jobMirror:    jobMirror,
		appPort:      appPort,
		http:         client,
		log:          log,
	}
}

// remoteAddr returns the base URL of the pod's job runner, or "" when the
// node has no public address or no mapping for the application port.
func (p *StatusPoller) remoteAddr(publicIP string, portMappings map[string]int) string {
	if publicIP == "" {
		return ""
	}
	port, ok := portMappings[strconv.Itoa(p.appPort)]
	if !ok || port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", publicIP, port)
}

// GetPodStatus fetches provider status and, when the node exposes its runner
// port, probes the runner's job-listing endpoint with a short timeout.
func (p *StatusPoller) GetPodStatus(ctx context.Context, podID string) (*domain.PodStatusInfo, error) {
	pod, err := p.orchestrator.fetchStatus(ctx, podID)
	if err != nil {
		return nil, err
	}

	status := pod.DesiredStatus
	if status == "" {
		status = "UNKNOWN"
	}
	info := &domain.PodStatusInfo{
		PodID:     podID,
		Status:    status,
		IsRunning: status == "RUNNING",
	}

	addr := p.remoteAddr(pod.PublicIP, pod.PortMappings)
	if addr == "" {
		return info, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var remoteJobs []domain.Job
	resp, err := p.http.R().
		SetContext(probeCtx).
		SetResult(&remoteJobs).
		Get(addr + "/jobs")
	if err != nil || resp.StatusCode() != 200 {
		p.log.WithField(logger.FieldPodID, podID).Warnf("could not connect to pod API at %s", addr)
		return info, nil
	}

	info.Reachable = true
	info.RemoteJobs = remoteJobs
	return info, nil
}

// GetJobStatus queries one job on the pod's own runner and upserts the
// result into the local jobs mirror. Requires a reachable runner.
func (p *StatusPoller) GetJobStatus(ctx context.Context, podID, jobID string) (*domain.RemoteJobStatus, error) {
	status, err := p.GetPodStatus(ctx, podID)
	if err != nil {
		return nil, err
	}
	if !status.Reachable {
		return nil, ErrPodUnreachable
	}

	pod, err := p.orchestrator.fetchStatus(ctx, podID)
	if err != nil {
		return nil, err
	}
	addr := p.remoteAddr(pod.PublicIP, pod.PortMappings)
	if addr == "" {
		return nil, ErrPodUnreachable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var remote domain.Job
	resp, err := p.http.R().
		SetContext(fetchCtx).
		SetResult(&remote).
		Get(addr + "/jobs/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote job status: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to get job status: %d", resp.StatusCode())
	}

	remoteStatus := string(remote.Status)
	if remoteStatus == "" {
		remoteStatus = "UNKNOWN"
	}

	record := &domain.JobRecord{
		ID:       jobID,
		PodID:    podID,
		Status:   remoteStatus,
		Progress: remote.Progress,
		Error:    remote.Error,
	}
	if err := p.jobMirror.Upsert(ctx, record); err != nil {
		p.log.WithFields(logger.Fields{
			logger.FieldPodID: podID,
			logger.FieldJobID: jobID,
		}).WithError(err).Error("failed to upsert job mirror")
	}

	return &domain.RemoteJobStatus{
		JobID:    jobID,
		Status:   remoteStatus,
		Progress: remote.Progress,
		Logs:     remote.Logs,
		Error:    remote.Error,
	}, nil
}

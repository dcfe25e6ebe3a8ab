// Package provider is the client for the external compute provisioning API.
// The provider remains the source of truth for node existence and lifecycle;
// this package only translates its wire vocabulary.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/robolab/trainerd/internal/config"
)

// APIError carries a non-2xx provider response back to the HTTP layer.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: %d - %s", e.StatusCode, e.Body)
}

// Pod is the provider's representation of a compute node.
type Pod struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	DesiredStatus string         `json:"desiredStatus"`
	PublicIP      string         `json:"publicIp"`
	PortMappings  map[string]int `json:"portMappings"`
	CostPerHr     float64        `json:"costPerHr"`
	GPU           struct {
		DisplayName string `json:"displayName"`
	} `json:"gpu"`
}

// CreatePodRequest carries the creation-time attributes of a node.
type CreatePodRequest struct {
	Name              string
	GPUTypeID         string
	GPUCount          int
	VolumeInGb        int
	ContainerDiskInGb int
	Interruptible     bool
	CloudType         string
	EnvVars           map[string]string
}

type createPayload struct {
	Name              string            `json:"name"`
	ImageName         string            `json:"imageName"`
	GPUCount          int               `json:"gpuCount"`
	VolumeInGb        int               `json:"volumeInGb"`
	ContainerDiskInGb int               `json:"containerDiskInGb"`
	GPUTypeID         string            `json:"gpuTypeId"`
	CloudType         string            `json:"cloudType"`
	Interruptible     bool              `json:"interruptible"`
	Ports             []string          `json:"ports"`
	Env               map[string]string `json:"env"`
}

type listResponse struct {
	Pods []Pod `json:"pods"`
}

// Client talks to the provisioning REST API with bearer-token auth.
type Client struct {
	http    *resty.Client
	baseURL string
	image   string
	appPort int
}

// NewClient builds a provisioning client from configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(30 * time.Second)

	return &Client{
		http:    client,
		baseURL: cfg.BaseURL,
		image:   cfg.DockerImage,
		appPort: cfg.AppPort,
	}
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

// CreatePod provisions a new node running the configured container image,
// exposing the embedded job runner's port and SSH.
func (c *Client) CreatePod(ctx context.Context, req CreatePodRequest) (*Pod, error) {
	payload := createPayload{
		Name:              req.Name,
		ImageName:         c.image,
		GPUCount:          req.GPUCount,
		VolumeInGb:        req.VolumeInGb,
		ContainerDiskInGb: req.ContainerDiskInGb,
		GPUTypeID:         req.GPUTypeID,
		CloudType:         req.CloudType,
		Interruptible:     req.Interruptible,
		Ports:             []string{fmt.Sprintf("%d/http", c.appPort), "22/tcp"},
		Env:               req.EnvVars,
	}

	var pod Pod
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&pod).
		Post(c.baseURL + "/pods")
	if err != nil {
		return nil, fmt.Errorf("failed to call provider API: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &pod, nil
}

// GetPod fetches the current provider-side state of a node.
func (c *Client) GetPod(ctx context.Context, podID string) (*Pod, error) {
	var pod Pod
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&pod).
		Get(c.baseURL + "/pod/" + podID)
	if err != nil {
		return nil, fmt.Errorf("failed to call provider API: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &pod, nil
}

// ListPods fetches all nodes owned by this account.
func (c *Client) ListPods(ctx context.Context) ([]Pod, error) {
	var list listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&list).
		Get(c.baseURL + "/pods")
	if err != nil {
		return nil, fmt.Errorf("failed to call provider API: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return list.Pods, nil
}

// TerminatePod asks the provider to tear the node down.
func (c *Client) TerminatePod(ctx context.Context, podID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(c.baseURL + "/pod/" + podID)
	if err != nil {
		return fmt.Errorf("failed to call provider API: %w", err)
	}
	return checkStatus(resp)
}

// AppPort returns the port the embedded job runner is expected to listen on.
func (c *Client) AppPort() int {
	return c.appPort
}

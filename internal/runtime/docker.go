package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"
)

const workspacePort = "80/tcp"

// Workspace containers are labelled so operators can attribute them to an
// owner without inspecting env.
const (
	labelOwner      = "com.triton.workspace.owner"
	labelPostAuth   = "com.triton.workspace.post_auth"
	labelAssignment = "com.triton.workspace.assignment"
)

// DockerRuntime drives workspace containers through the local Docker daemon.
type DockerRuntime struct {
	cli         *client.Client
	logger      *zap.Logger
	stopTimeout int
}

// NewDockerRuntime connects to the daemon using environment defaults
// (DOCKER_HOST et al) with API version negotiation.
func NewDockerRuntime(logger *zap.Logger, stopTimeoutSeconds int) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if stopTimeoutSeconds <= 0 {
		stopTimeoutSeconds = 10
	}
	return &DockerRuntime{cli: cli, logger: logger, stopTimeout: stopTimeoutSeconds}, nil
}

// Create creates (but does not start) a workspace container and returns its ID.
func (d *DockerRuntime) Create(ctx context.Context, spec CreateSpec) (string, error) {
	cfg := &container.Config{
		Image: spec.Image,
		ExposedPorts: nat.PortSet{
			workspacePort: struct{}{},
		},
		Labels: map[string]string{
			labelOwner:      spec.Owner,
			labelPostAuth:   spec.PostAuthToken,
			labelAssignment: spec.Assignment,
		},
		Env: []string{
			"POST_AUTH=" + spec.PostAuthToken,
			"BACKEND_1_PORT=" + spec.AdvertiseAddr,
			"ASSIGNMENTID=" + spec.Assignment,
			"USERNAME=" + spec.Owner,
			"EMAIL=" + spec.Email,
			"NAME=" + spec.DisplayName,
			"USERID=" + spec.UserID,
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			workspacePort: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: spec.HostPort},
			},
		},
		Binds: []string{spec.MountSource + ":/workspace"},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

// Start starts a created container.
func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}
	return nil
}

// Inspect returns the runtime identity of a container.
func (d *DockerRuntime) Inspect(ctx context.Context, id string) (*Info, error) {
	data, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", id, err)
	}

	info := &Info{ID: data.ID}
	if data.State != nil {
		info.Running = data.State.Running
	}
	if data.NetworkSettings != nil {
		info.IP = data.NetworkSettings.IPAddress
	}
	return info, nil
}

// Stop stops a container, waiting up to the configured timeout.
func (d *DockerRuntime) Stop(ctx context.Context, id string) error {
	timeout := d.stopTimeout
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// Remove removes a stopped container.
func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// PullImage pulls the workspace image, logging pull progress. Consecutive
// identical status lines are collapsed so layer-by-layer downloads do not
// flood the log.
func (d *DockerRuntime) PullImage(ctx context.Context, ref string) error {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	var lastStatus string
	for {
		var msg struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("pull progress %s: %w", ref, err)
		}
		if msg.Error != "" {
			return fmt.Errorf("pull image %s: %s", ref, msg.Error)
		}
		if msg.Status != "" && msg.Status != lastStatus {
			d.logger.Info("image pull", zap.String("image", ref), zap.String("status", msg.Status))
			lastStatus = msg.Status
		}
	}

	d.logger.Info("image pull complete", zap.String("image", ref))
	return nil
}

// Package runtime wraps the Docker Engine API for container, image and
// volume operations.
package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"aidev/internal/logging"
)

// ManagedLabel marks containers created by the launcher.
const ManagedLabel = "aidev.managed"

// State describes whether a named container exists and runs.
type State int

const (
	StateAbsent State = iota
	StateStopped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "absent"
	}
}

// Client wraps the Docker engine client.
type Client struct {
	cli *client.Client
	log *logging.Logger
}

// NewClient connects to the Docker daemon using the standard environment
// (DOCKER_HOST etc.) and verifies it responds.
func NewClient(ctx context.Context, log *logging.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("cannot connect to Docker daemon (is it running?): %w", err)
	}

	return &Client{cli: cli, log: log}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// ContainerState inspects the named container and classifies its state.
func (c *Client) ContainerState(ctx context.Context, name string) (State, string, error) {
	info, err := c.cli.ContainerInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return StateAbsent, "", nil
		}
		return StateAbsent, "", fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	if info.State != nil && info.State.Running {
		return StateRunning, info.ID, nil
	}
	return StateStopped, info.ID, nil
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	WorkingDir string
	Env        []string
	Binds      []string
	Labels     map[string]string
	CapAdd     []string
}

// CreateContainer creates a container from spec without starting it.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		WorkingDir: spec.WorkingDir,
		Env:        spec.Env,
		Labels:     spec.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds:  spec.Binds,
		CapAdd: spec.CapAdd,
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	c.log.Debugf("created container %s (%s)", spec.Name, shortID(resp.ID))
	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", shortID(id), err)
	}
	return nil
}

// StopContainer stops a running container, waiting up to timeout before
// the daemon kills it.
func (c *Client) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", shortID(id), err)
	}
	return nil
}

// RemoveContainer force-removes a container.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", shortID(id), err)
	}
	return nil
}

// ManagedContainer summarizes one launcher-managed container.
type ManagedContainer struct {
	ID        string
	Name      string
	Image     string
	State     string
	Status    string
	Workspace string
	Variant   string
	Created   time.Time
}

// ListManaged returns all containers carrying the managed label,
// including stopped ones.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	args := filters.NewArgs(filters.Arg("label", ManagedLabel+"=true"))
	list, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	managed := make([]ManagedContainer, 0, len(list))
	for _, item := range list {
		name := ""
		if len(item.Names) > 0 {
			name = trimSlash(item.Names[0])
		}
		managed = append(managed, ManagedContainer{
			ID:        item.ID,
			Name:      name,
			Image:     item.Image,
			State:     item.State,
			Status:    item.Status,
			Workspace: item.Labels["aidev.workspace"],
			Variant:   item.Labels["aidev.variant"],
			Created:   time.Unix(item.Created, 0),
		})
	}
	return managed, nil
}

// ImageExists reports whether the image reference is present locally.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return true, nil
}

// BuildImage builds an image from a tar build context and streams build
// progress to out (nil discards it). Build errors reported inside the
// JSON stream are surfaced as errors.
func (c *Client) BuildImage(ctx context.Context, buildContext io.Reader, tag string, buildArgs map[string]*string, out io.Writer) error {
	resp, err := c.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
		BuildArgs:  buildArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to start image build for %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		out = io.Discard
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return fmt.Errorf("image build failed for %s: %s", tag, msg.Error)
		}
		if msg.Stream != "" {
			_, _ = io.WriteString(out, msg.Stream)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read build output for %s: %w", tag, err)
	}

	c.log.Infof("built image %s", tag)
	return nil
}

// EnsureVolume creates a named volume if it does not exist. Volume
// creation is idempotent on the daemon side.
func (c *Client) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: labels,
	})
	if err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	return nil
}

// RemoveVolume removes a named volume. Missing volumes are not errors.
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	err := c.cli.VolumeRemove(ctx, name, false)
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove volume %s: %w", name, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

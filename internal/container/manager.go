// Package container implements the create-or-attach lifecycle for
// launcher-managed containers.
package container

import (
	"context"
	"fmt"
	"os"
	"time"

	"aidev/internal/firewall"
	"aidev/internal/logging"
	"aidev/internal/runtime"
	"aidev/internal/tools"
)

// Engine is the container runtime surface the manager depends on.
// *runtime.Client satisfies it.
type Engine interface {
	ContainerState(ctx context.Context, name string) (runtime.State, string, error)
	CreateContainer(ctx context.Context, spec runtime.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string) error
	EnsureVolume(ctx context.Context, name string, labels map[string]string) error
	ListManaged(ctx context.Context) ([]runtime.ManagedContainer, error)
	ExecInteractive(ctx context.Context, containerID string, cmd, env []string, workingDir string) (int, error)
}

// ImageProvider makes variant images available on demand.
// *image.Builder satisfies it.
type ImageProvider interface {
	Ensure(ctx context.Context, sel tools.Selection, force bool) (string, error)
}

// PolicyInstaller applies the egress firewall to a running container.
type PolicyInstaller interface {
	Install(ctx context.Context, containerID string, set *firewall.AddressSet) error
}

// AddressResolver computes the allow-list for a hostname set.
type AddressResolver interface {
	Resolve(ctx context.Context, hostnames []string) (*firewall.AddressSet, error)
}

// Options parameterizes one launcher invocation.
type Options struct {
	// Workspace is the absolute host path mounted into the container.
	Workspace string

	// Name is the container name, normally derived from Workspace.
	Name string

	// Selection picks the installed tools and the image variant.
	Selection tools.Selection

	// Firewall applies the egress policy after container start.
	Firewall bool

	// ExtraDomains extends the allow-list beyond tool requirements.
	ExtraDomains []string

	// Rebuild forces an image rebuild even when the variant exists.
	Rebuild bool

	// Shell is attached when no tool auto-launch is requested.
	Shell string

	// Launch names a tool to start instead of a shell.
	Launch string

	// Yolo relaxes the launched tool's confirmation prompts.
	Yolo bool
}

const stopTimeout = 10 * time.Second

// Manager drives the container lifecycle state machine.
type Manager struct {
	engine    Engine
	images    ImageProvider
	installer PolicyInstaller
	resolver  AddressResolver
	log       *logging.Logger

	// Stderr receives user-facing warnings (defaults to os.Stderr).
	Stderr *os.File
}

// NewManager wires a lifecycle manager.
func NewManager(engine Engine, images ImageProvider, installer PolicyInstaller, resolver AddressResolver, log *logging.Logger) *Manager {
	return &Manager{
		engine:    engine,
		images:    images,
		installer: installer,
		resolver:  resolver,
		log:       log,
		Stderr:    os.Stderr,
	}
}

// Run ensures the container for opts exists and is running, then
// attaches an interactive session. Re-running with the same options
// attaches to the same container. Returns the session's exit code.
//
// The read-then-act sequence against the runtime is not locked; two
// simultaneous invocations for the same name can race. Known
// limitation.
func (m *Manager) Run(ctx context.Context, opts Options) (int, error) {
	state, id, err := m.engine.ContainerState(ctx, opts.Name)
	if err != nil {
		return -1, err
	}

	switch state {
	case runtime.StateRunning:
		if opts.Rebuild {
			// The forced build refreshes the variant tag now; the
			// running container keeps its image until recreated.
			if _, err := m.images.Ensure(ctx, opts.Selection, true); err != nil {
				return -1, err
			}
		}
		m.log.Infof("attaching to running container %s", opts.Name)
		return m.attach(ctx, id, opts)

	case runtime.StateStopped:
		// Stopped containers are recreated rather than restarted so
		// a stale firewall or image never carries over.
		m.log.Infof("removing stopped container %s", opts.Name)
		if err := m.engine.RemoveContainer(ctx, id); err != nil {
			return -1, err
		}
	}

	id, err = m.create(ctx, opts)
	if err != nil {
		return -1, err
	}

	if opts.Firewall {
		if err := m.applyFirewall(ctx, id, opts); err != nil {
			// Degrade to an unrestricted session rather than
			// tearing the container down.
			m.log.Errorf("firewall installation failed: %v", err)
			fmt.Fprintf(m.Stderr, "warning: egress firewall could not be applied, container network is unrestricted: %v\n", err)
		}
	}

	return m.attach(ctx, id, opts)
}

// create builds the image if needed, provisions volumes, and starts a
// fresh container.
func (m *Manager) create(ctx context.Context, opts Options) (string, error) {
	imageRef, err := m.images.Ensure(ctx, opts.Selection, opts.Rebuild)
	if err != nil {
		return "", err
	}

	labels := map[string]string{
		runtime.ManagedLabel: "true",
		"aidev.workspace":    opts.Workspace,
		"aidev.variant":      opts.Selection.Variant(),
	}

	for _, vol := range volumeNames(opts.Name, opts.Selection) {
		if err := m.engine.EnsureVolume(ctx, vol, map[string]string{runtime.ManagedLabel: "true"}); err != nil {
			return "", err
		}
	}

	spec := runtime.ContainerSpec{
		Name:       opts.Name,
		Image:      imageRef,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: WorkspaceTarget,
		Env:        sessionEnv(opts.Selection),
		Binds:      binds(opts.Workspace, opts.Name, opts.Selection),
		Labels:     labels,
	}
	if opts.Firewall {
		spec.CapAdd = []string{"NET_ADMIN", "NET_RAW"}
	}

	id, err := m.engine.CreateContainer(ctx, spec)
	if err != nil {
		return "", err
	}
	if err := m.engine.StartContainer(ctx, id); err != nil {
		return "", err
	}

	m.log.Infof("started container %s from %s", opts.Name, imageRef)
	return id, nil
}

func (m *Manager) applyFirewall(ctx context.Context, id string, opts Options) error {
	hosts := firewallHosts(opts.Selection, opts.ExtraDomains)
	set, err := m.resolver.Resolve(ctx, hosts)
	if err != nil {
		return err
	}
	return m.installer.Install(ctx, id, set)
}

// attach runs the requested tool or an interactive login shell in the
// container.
func (m *Manager) attach(ctx context.Context, id string, opts Options) (int, error) {
	cmd := []string{shellOrDefault(opts.Shell), "-l"}
	if opts.Launch != "" {
		tool := tools.Get(opts.Launch)
		if tool == nil {
			return -1, fmt.Errorf("unknown tool %q", opts.Launch)
		}
		cmd = tool.LaunchCommand(opts.Yolo)
	}

	return m.engine.ExecInteractive(ctx, id, cmd, nil, WorkspaceTarget)
}

// StopAll stops every running managed container. Returns the number
// stopped.
func (m *Manager) StopAll(ctx context.Context) (int, error) {
	managed, err := m.engine.ListManaged(ctx)
	if err != nil {
		return 0, err
	}

	stopped := 0
	for _, c := range managed {
		if c.State != "running" {
			continue
		}
		if err := m.engine.StopContainer(ctx, c.ID, stopTimeout); err != nil {
			return stopped, err
		}
		m.log.Infof("stopped %s", c.Name)
		stopped++
	}
	return stopped, nil
}

// RemoveAll removes every managed container, stopping running ones
// first. Returns the number removed.
func (m *Manager) RemoveAll(ctx context.Context) (int, error) {
	managed, err := m.engine.ListManaged(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range managed {
		if err := m.engine.RemoveContainer(ctx, c.ID); err != nil {
			return removed, err
		}
		m.log.Infof("removed %s", c.Name)
		removed++
	}
	return removed, nil
}

// List returns all managed containers.
func (m *Manager) List(ctx context.Context) ([]runtime.ManagedContainer, error) {
	return m.engine.ListManaged(ctx)
}

// sessionEnv assembles the container environment: tool-specific
// settings, host credentials the selected tools consume, and the host
// timezone when set.
func sessionEnv(sel tools.Selection) []string {
	var env []string
	for _, tool := range sel.Selected() {
		env = append(env, tool.Environment()...)
		for _, key := range tool.Passthrough() {
			if val, ok := os.LookupEnv(key); ok {
				env = append(env, key+"="+val)
			}
		}
	}
	if tz, ok := os.LookupEnv("TZ"); ok {
		env = append(env, "TZ="+tz)
	}
	return env
}

// firewallHosts unions the selected tools' required hostnames with any
// user-configured extras, preserving order and dropping duplicates.
func firewallHosts(sel tools.Selection, extras []string) []string {
	seen := make(map[string]bool)
	var hosts []string
	add := func(h string) {
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		hosts = append(hosts, h)
	}

	for _, tool := range sel.Selected() {
		for _, h := range tool.FirewallHosts() {
			add(h)
		}
	}
	for _, h := range extras {
		add(h)
	}
	return hosts
}

func shellOrDefault(shell string) string {
	if shell == "" {
		return "bash"
	}
	return shell
}

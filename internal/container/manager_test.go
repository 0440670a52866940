package container

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"aidev/internal/firewall"
	"aidev/internal/runtime"
	"aidev/internal/tools"
)

type fakeContainer struct {
	id      string
	name    string
	running bool
	spec    runtime.ContainerSpec
}

type fakeEngine struct {
	containers map[string]*fakeContainer // by name
	volumes    map[string]bool
	nextID     int

	created  []runtime.ContainerSpec
	removed  []string
	stopped  []string
	attached [][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: make(map[string]*fakeContainer),
		volumes:    make(map[string]bool),
	}
}

func (f *fakeEngine) ContainerState(_ context.Context, name string) (runtime.State, string, error) {
	c, ok := f.containers[name]
	if !ok {
		return runtime.StateAbsent, "", nil
	}
	if c.running {
		return runtime.StateRunning, c.id, nil
	}
	return runtime.StateStopped, c.id, nil
}

func (f *fakeEngine) CreateContainer(_ context.Context, spec runtime.ContainerSpec) (string, error) {
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	f.containers[spec.Name] = &fakeContainer{id: id, name: spec.Name, spec: spec}
	f.created = append(f.created, spec)
	return id, nil
}

func (f *fakeEngine) StartContainer(_ context.Context, id string) error {
	for _, c := range f.containers {
		if c.id == id {
			c.running = true
			return nil
		}
	}
	return fmt.Errorf("no such container %s", id)
}

func (f *fakeEngine) StopContainer(_ context.Context, id string, _ time.Duration) error {
	f.stopped = append(f.stopped, id)
	for _, c := range f.containers {
		if c.id == id {
			c.running = false
			return nil
		}
	}
	return fmt.Errorf("no such container %s", id)
}

func (f *fakeEngine) RemoveContainer(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	for name, c := range f.containers {
		if c.id == id {
			delete(f.containers, name)
			return nil
		}
	}
	return nil
}

func (f *fakeEngine) EnsureVolume(_ context.Context, name string, _ map[string]string) error {
	f.volumes[name] = true
	return nil
}

func (f *fakeEngine) ListManaged(_ context.Context) ([]runtime.ManagedContainer, error) {
	var out []runtime.ManagedContainer
	for _, c := range f.containers {
		state := "exited"
		if c.running {
			state = "running"
		}
		out = append(out, runtime.ManagedContainer{ID: c.id, Name: c.name, State: state})
	}
	return out, nil
}

func (f *fakeEngine) ExecInteractive(_ context.Context, _ string, cmd, _ []string, _ string) (int, error) {
	f.attached = append(f.attached, cmd)
	return 0, nil
}

type fakeImages struct {
	ensured []bool // force flags, in call order
}

func (f *fakeImages) Ensure(_ context.Context, sel tools.Selection, force bool) (string, error) {
	f.ensured = append(f.ensured, force)
	return "aidev:" + sel.Variant(), nil
}

type fakeInstaller struct {
	installed int
	err       error
}

func (f *fakeInstaller) Install(_ context.Context, _ string, _ *firewall.AddressSet) error {
	f.installed++
	return f.err
}

type fakeResolver struct {
	hosts []string
}

func (f *fakeResolver) Resolve(_ context.Context, hostnames []string) (*firewall.AddressSet, error) {
	f.hosts = hostnames
	set := firewall.NewAddressSet()
	_ = set.Add("140.82.112.0/20")
	return set, nil
}

func testManager(t *testing.T) (*Manager, *fakeEngine, *fakeImages, *fakeInstaller, *fakeResolver) {
	t.Helper()
	eng := newFakeEngine()
	imgs := &fakeImages{}
	inst := &fakeInstaller{}
	res := &fakeResolver{}
	m := NewManager(eng, imgs, inst, res, nil)
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = devnull.Close() })
	m.Stderr = devnull
	return m, eng, imgs, inst, res
}

func defaultOpts() Options {
	return Options{
		Workspace: "/home/alice/projects/app",
		Name:      "ai-dev-home-alice-projects-app",
		Selection: tools.Selection{Claude: true},
		Firewall:  true,
		Shell:     "bash",
	}
}

func TestRunCreatesAndAttaches(t *testing.T) {
	m, eng, imgs, inst, _ := testManager(t)

	code, err := m.Run(context.Background(), defaultOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d", code)
	}

	if len(eng.created) != 1 {
		t.Fatalf("created %d containers, want 1", len(eng.created))
	}
	spec := eng.created[0]
	if spec.Image != "aidev:claude" {
		t.Errorf("image = %q", spec.Image)
	}
	if spec.Labels[runtime.ManagedLabel] != "true" {
		t.Error("managed label missing")
	}
	if len(spec.CapAdd) != 2 {
		t.Errorf("CapAdd = %v, want NET_ADMIN and NET_RAW", spec.CapAdd)
	}
	if spec.Cmd[0] != "sleep" {
		t.Errorf("Cmd = %v", spec.Cmd)
	}

	if !eng.volumes["ai-dev-home-alice-projects-app-history"] {
		t.Error("history volume not provisioned")
	}
	if !eng.volumes["aidev-claude-config"] {
		t.Error("shared claude config volume not provisioned")
	}

	if len(imgs.ensured) != 1 || imgs.ensured[0] {
		t.Errorf("image ensure calls = %v, want one non-forced", imgs.ensured)
	}
	if inst.installed != 1 {
		t.Errorf("firewall installed %d times, want 1", inst.installed)
	}
	if len(eng.attached) != 1 {
		t.Fatalf("attached %d times", len(eng.attached))
	}
	if got := eng.attached[0]; got[0] != "bash" {
		t.Errorf("attach cmd = %v", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	m, eng, _, inst, _ := testManager(t)
	opts := defaultOpts()

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if len(eng.created) != 1 {
		t.Errorf("second run created another container: %d", len(eng.created))
	}
	if inst.installed != 1 {
		t.Errorf("firewall reinstalled on attach: %d", inst.installed)
	}
	if len(eng.attached) != 2 {
		t.Errorf("attached %d times, want 2", len(eng.attached))
	}
}

func TestRunRebuildWhileRunningForcesImageBuild(t *testing.T) {
	m, eng, imgs, _, _ := testManager(t)
	opts := defaultOpts()

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	opts.Rebuild = true
	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if len(imgs.ensured) != 2 || imgs.ensured[0] || !imgs.ensured[1] {
		t.Errorf("image ensure calls = %v, want [false true]", imgs.ensured)
	}
	// The running container is kept; only the image tag moved.
	if len(eng.created) != 1 {
		t.Errorf("rebuild against a running container recreated it: %d creates", len(eng.created))
	}
	if len(eng.attached) != 2 {
		t.Errorf("attached %d times, want 2", len(eng.attached))
	}
}

func TestRunRecreatesStoppedContainer(t *testing.T) {
	m, eng, _, _, _ := testManager(t)
	opts := defaultOpts()

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	eng.containers[opts.Name].running = false
	oldID := eng.containers[opts.Name].id

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if len(eng.removed) != 1 || eng.removed[0] != oldID {
		t.Errorf("removed = %v, want [%s]", eng.removed, oldID)
	}
	if len(eng.created) != 2 {
		t.Errorf("created %d containers, want 2", len(eng.created))
	}
	if !eng.containers[opts.Name].running {
		t.Error("recreated container not running")
	}
}

func TestRunFirewallFailureIsNonFatal(t *testing.T) {
	m, eng, _, inst, _ := testManager(t)
	inst.err = fmt.Errorf("verification failed")

	code, err := m.Run(context.Background(), defaultOpts())
	if err != nil {
		t.Fatalf("firewall failure must not abort the session: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d", code)
	}
	if len(eng.attached) != 1 {
		t.Error("session was not attached after firewall failure")
	}
	if len(eng.removed) != 0 {
		t.Error("container must not be torn down on firewall failure")
	}
}

func TestRunWithoutFirewall(t *testing.T) {
	m, eng, _, inst, _ := testManager(t)
	opts := defaultOpts()
	opts.Firewall = false

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if inst.installed != 0 {
		t.Error("firewall installed despite being disabled")
	}
	if len(eng.created[0].CapAdd) != 0 {
		t.Errorf("CapAdd = %v, want none without firewall", eng.created[0].CapAdd)
	}
}

func TestRunLaunchTool(t *testing.T) {
	m, eng, _, _, _ := testManager(t)
	opts := defaultOpts()
	opts.Launch = "claude"
	opts.Yolo = true

	if _, err := m.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(eng.attached[0], " ")
	if !strings.HasPrefix(got, "claude") {
		t.Errorf("attach cmd = %q", got)
	}
	if !strings.Contains(got, "--dangerously-skip-permissions") {
		t.Errorf("yolo flag missing from %q", got)
	}
}

func TestFirewallHostsUnion(t *testing.T) {
	hosts := firewallHosts(tools.Selection{Claude: true, Copilot: true}, []string{"internal.example.com", "api.anthropic.com"})

	seen := make(map[string]int)
	for _, h := range hosts {
		seen[h]++
	}
	for h, n := range seen {
		if n > 1 {
			t.Errorf("host %s appears %d times", h, n)
		}
	}
	for _, want := range []string{"api.anthropic.com", "api.githubcopilot.com", "internal.example.com"} {
		if seen[want] == 0 {
			t.Errorf("host %s missing from %v", want, hosts)
		}
	}
}

func TestStopAllAndRemoveAll(t *testing.T) {
	m, eng, _, _, _ := testManager(t)

	for _, name := range []string{"a", "b"} {
		opts := defaultOpts()
		opts.Name = "ai-dev-" + name
		opts.Workspace = "/tmp/" + name
		if _, err := m.Run(context.Background(), opts); err != nil {
			t.Fatal(err)
		}
	}

	stopped, err := m.StopAll(context.Background())
	if err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if stopped != 2 {
		t.Errorf("stopped = %d, want 2", stopped)
	}

	removed, err := m.RemoveAll(context.Background())
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if len(eng.containers) != 0 {
		t.Errorf("%d containers left after RemoveAll", len(eng.containers))
	}
}

func TestBinds(t *testing.T) {
	got := binds("/home/alice/app", "ai-dev-app", tools.Selection{Claude: true})
	want := []string{
		"/home/alice/app:/workspace",
		"ai-dev-app-history:/commandhistory",
		"aidev-claude-config:/home/node/.claude",
	}
	if len(got) != len(want) {
		t.Fatalf("binds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("binds[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

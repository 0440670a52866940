// Package tools provides the modular tool catalog for dev containers.
// Each tool defines its image install step, persistent configuration
// volume, credential passthrough, firewall hosts, and launch command.
package tools

import "fmt"

// Mount describes a persistent volume a tool needs inside the container.
type Mount struct {
	// Volume is the runtime volume name. Shared volumes use a fixed
	// name so credentials persist across all workspaces.
	Volume string

	// Target is the mount path inside the container.
	Target string
}

// Tool defines the interface implemented by each installable assistant.
type Tool interface {
	// Name returns a unique identifier for this tool ("claude", "copilot").
	Name() string

	// Description returns a short description of what this tool provides.
	Description() string

	// InstallFragment returns the Dockerfile lines that install the tool.
	// The returned text references the tool's version build arg.
	InstallFragment() string

	// VersionArg returns the build-arg name carrying the pinned version.
	VersionArg() string

	// ConfigMount returns the shared configuration volume for this tool.
	ConfigMount() Mount

	// Environment returns variables set inside the container
	// unconditionally (for example a config-dir override).
	Environment() []string

	// Passthrough returns host environment variable names forwarded into
	// the container only when set on the invoking host.
	Passthrough() []string

	// FirewallHosts returns hostnames the tool needs reachable under the
	// default-deny egress policy.
	FirewallHosts() []string

	// LaunchCommand returns the argv used by --launch. yolo requests the
	// tool's reduced-confirmation mode.
	LaunchCommand(yolo bool) []string
}

// Selection records which tools the invocation installs.
type Selection struct {
	Claude  bool
	Copilot bool
}

// Validate rejects the empty selection before any image or container work.
func (s Selection) Validate() error {
	if !s.Claude && !s.Copilot {
		return fmt.Errorf("no tools selected: at least one of claude or copilot is required")
	}
	return nil
}

// Variant returns the image cache key for this selection. The three
// variants never collide on a cached image.
func (s Selection) Variant() string {
	switch {
	case s.Claude && s.Copilot:
		return "full"
	case s.Claude:
		return "claude"
	default:
		return "copilot"
	}
}

// Includes reports whether the named tool is part of the selection.
func (s Selection) Includes(name string) bool {
	switch name {
	case "claude":
		return s.Claude
	case "copilot":
		return s.Copilot
	default:
		return false
	}
}

// Selected returns the registered tools included in the selection,
// in registry order.
func (s Selection) Selected() []Tool {
	var out []Tool
	for _, t := range All() {
		if s.Includes(t.Name()) {
			out = append(out, t)
		}
	}
	return out
}

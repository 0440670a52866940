package container

import (
	"fmt"

	"aidev/internal/tools"
)

// WorkspaceTarget is where the host workspace is mounted.
const WorkspaceTarget = "/workspace"

// historyTarget persists shell history per container identity.
const historyTarget = "/commandhistory"

// historyVolume names the per-identity history volume.
func historyVolume(name string) string {
	return name + "-history"
}

// binds assembles the mount bindings for a container: the workspace
// directory read-write, the per-identity history volume, and the shared
// config volume of every selected tool.
func binds(workspace, name string, sel tools.Selection) []string {
	out := []string{
		fmt.Sprintf("%s:%s", workspace, WorkspaceTarget),
		fmt.Sprintf("%s:%s", historyVolume(name), historyTarget),
	}
	for _, tool := range sel.Selected() {
		m := tool.ConfigMount()
		out = append(out, fmt.Sprintf("%s:%s", m.Volume, m.Target))
	}
	return out
}

// volumeNames lists the volumes a container depends on, in creation
// order. The tool config volumes are intentionally shared across all
// containers so credentials survive and follow the user.
func volumeNames(name string, sel tools.Selection) []string {
	out := []string{historyVolume(name)}
	for _, tool := range sel.Selected() {
		out = append(out, tool.ConfigMount().Volume)
	}
	return out
}

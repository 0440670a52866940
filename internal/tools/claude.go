package tools

func init() {
	Register(&Claude{})
}

// Claude provides the Claude Code AI assistant.
type Claude struct{}

func (c *Claude) Name() string {
	return "claude"
}

func (c *Claude) Description() string {
	return "Claude Code AI assistant"
}

func (c *Claude) InstallFragment() string {
	return "RUN npm install -g @anthropic-ai/claude-code@${CLAUDE_VERSION}\n"
}

func (c *Claude) VersionArg() string {
	return "CLAUDE_VERSION"
}

func (c *Claude) ConfigMount() Mount {
	return Mount{
		Volume: "aidev-claude-config",
		Target: "/home/node/.claude",
	}
}

func (c *Claude) Environment() []string {
	// Point the CLI at the shared volume so credentials and settings
	// persist across workspaces.
	return []string{"CLAUDE_CONFIG_DIR=/home/node/.claude"}
}

func (c *Claude) Passthrough() []string {
	return []string{"ANTHROPIC_API_KEY"}
}

func (c *Claude) FirewallHosts() []string {
	return []string{
		"api.anthropic.com",
		"sentry.io",
		"statsig.anthropic.com",
		"statsig.com",
	}
}

func (c *Claude) LaunchCommand(yolo bool) []string {
	cmd := []string{"claude"}
	if yolo {
		cmd = append(cmd, "--dangerously-skip-permissions")
	}
	return cmd
}

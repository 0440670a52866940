package tools

func init() {
	Register(&Copilot{})
}

// Copilot provides the GitHub Copilot CLI.
type Copilot struct{}

func (c *Copilot) Name() string {
	return "copilot"
}

func (c *Copilot) Description() string {
	return "GitHub Copilot CLI"
}

func (c *Copilot) InstallFragment() string {
	return "RUN npm install -g @github/copilot@${COPILOT_VERSION}\n"
}

func (c *Copilot) VersionArg() string {
	return "COPILOT_VERSION"
}

func (c *Copilot) ConfigMount() Mount {
	return Mount{
		Volume: "aidev-copilot-config",
		Target: "/home/node/.config/github-copilot",
	}
}

func (c *Copilot) Environment() []string {
	return nil
}

func (c *Copilot) Passthrough() []string {
	return []string{"GITHUB_TOKEN", "GH_TOKEN"}
}

func (c *Copilot) FirewallHosts() []string {
	return []string{
		"api.githubcopilot.com",
		"copilot-proxy.githubusercontent.com",
	}
}

func (c *Copilot) LaunchCommand(yolo bool) []string {
	cmd := []string{"copilot"}
	if yolo {
		cmd = append(cmd, "--allow-all-tools")
	}
	return cmd
}

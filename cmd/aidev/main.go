// Command aidev launches per-project development containers preloaded
// with AI coding assistants behind an egress allow-list firewall.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aidev/internal/config"
	"aidev/internal/container"
	"aidev/internal/firewall"
	"aidev/internal/identity"
	"aidev/internal/image"
	"aidev/internal/logging"
	"aidev/internal/runtime"
	"aidev/internal/tools"
	"aidev/internal/version"
)

// sessionExitCode carries the interactive session's exit status out of
// the cobra run function.
var sessionExitCode int

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(sessionExitCode)
}

type rootFlags struct {
	claudeOnly  bool
	copilotOnly bool
	name        string
	noFirewall  bool
	rebuild     bool
	claudeVer   string
	copilotVer  string
	nodeVer     string
	shell       string
	launch      string
	yolo        bool

	list       bool
	stopAll    bool
	removeAll  bool
	initConfig bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "aidev [workspace]",
		Short: "Per-project AI dev containers with an egress firewall",
		Long: `aidev - isolated dev containers for AI coding assistants

Each workspace gets its own container, named deterministically from the
workspace path. Containers run Claude Code and/or GitHub Copilot behind
a default-deny egress firewall that allow-lists only the endpoints the
selected tools need. Tool credentials and settings persist in shared
volumes across all workspaces.`,
		Example: `  aidev                           # container for the current directory
  aidev ~/projects/app            # container for a specific workspace
  aidev --claude-only --launch claude
  aidev --no-firewall             # skip egress filtering
  aidev --list                    # show managed containers`,
		Version:       version.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.claudeOnly, "claude-only", false, "Install only Claude Code")
	cmd.Flags().BoolVar(&flags.copilotOnly, "copilot-only", false, "Install only GitHub Copilot")
	cmd.Flags().StringVar(&flags.name, "name", "", "Explicit container name (disables derived uniqueness)")
	cmd.Flags().BoolVar(&flags.noFirewall, "no-firewall", false, "Skip the egress firewall")
	cmd.Flags().BoolVar(&flags.rebuild, "rebuild", false, "Force an image rebuild")
	cmd.Flags().StringVar(&flags.claudeVer, "claude-version", "", "Pin the Claude Code version")
	cmd.Flags().StringVar(&flags.copilotVer, "copilot-version", "", "Pin the GitHub Copilot version")
	cmd.Flags().StringVar(&flags.nodeVer, "node-version", "", "Pin the Node.js base image version")
	cmd.Flags().StringVar(&flags.shell, "shell", "", "Shell to attach (bash, zsh, fish)")
	cmd.Flags().StringVar(&flags.launch, "launch", "", "Launch a tool instead of a shell (claude, copilot)")
	cmd.Flags().BoolVar(&flags.yolo, "yolo", false, "Launch the tool with reduced confirmation prompts")

	cmd.Flags().BoolVar(&flags.list, "list", false, "List managed containers and exit")
	cmd.Flags().BoolVar(&flags.stopAll, "stop-all", false, "Stop all managed containers and exit")
	cmd.Flags().BoolVar(&flags.removeAll, "remove-all", false, "Remove all managed containers and exit")
	cmd.Flags().BoolVar(&flags.initConfig, "init-config", false, "Write the default config file and exit")

	cmd.SetVersionTemplate(fmt.Sprintf("aidev %s (%s)\n", version.Version, version.Commit))

	return cmd
}

func run(cmd *cobra.Command, flags *rootFlags, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if flags.initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	}

	dispatcher, err := logging.NewDispatcherFromConfig(cfg.Logging, stateDir())
	if err != nil {
		return err
	}
	defer func() { _ = dispatcher.Close() }()

	log := dispatcher.Logger("launcher", nil)

	engine, err := runtime.NewClient(ctx, dispatcher.Logger("runtime", nil))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Hint: check that the Docker daemon is running and that your user can reach its socket (docker info).")
		return err
	}
	defer func() { _ = engine.Close() }()

	if flags.list || flags.stopAll || flags.removeAll {
		return runManagement(ctx, engine, flags, dispatcher)
	}

	selection, err := selectTools(flags)
	if err != nil {
		return err
	}

	if flags.launch != "" {
		if tools.Get(flags.launch) == nil {
			return fmt.Errorf("unknown tool for --launch: %q", flags.launch)
		}
		if !selection.Includes(flags.launch) {
			return fmt.Errorf("--launch %s conflicts with the tool selection (%s variant)", flags.launch, selection.Variant())
		}
	}

	shell := firstNonEmpty(flags.shell, cfg.Shell, "bash")
	switch shell {
	case "bash", "zsh", "fish":
	default:
		return fmt.Errorf("unsupported shell %q (use bash, zsh, or fish)", shell)
	}

	wsArg := ""
	if len(args) > 0 {
		wsArg = args[0]
	}
	workspace, err := identity.Resolve(wsArg)
	if err != nil {
		return err
	}

	name := flags.name
	if name == "" {
		name = identity.Derive(workspace)
	}

	versions := cfg.Versions
	versions.Claude = firstNonEmpty(flags.claudeVer, versions.Claude)
	versions.Copilot = firstNonEmpty(flags.copilotVer, versions.Copilot)
	versions.Node = firstNonEmpty(flags.nodeVer, versions.Node)

	builder := image.NewBuilder(engine, dispatcher.Logger("image", nil), cfg.Image.Base, versions)
	builder.Progress = os.Stderr

	resolver := firewall.NewResolver(dispatcher.Logger("firewall", nil))
	installer := firewall.NewInstaller(engine, dispatcher.Logger("firewall", nil))

	manager := container.NewManager(engine, builder, installer, resolver, dispatcher.Logger("container", nil))

	opts := container.Options{
		Workspace:    workspace,
		Name:         name,
		Selection:    selection,
		Firewall:     !flags.noFirewall && cfg.Firewall.IsEnabled(),
		ExtraDomains: cfg.Firewall.ExtraDomains,
		Rebuild:      flags.rebuild,
		Shell:        shell,
		Launch:       flags.launch,
		Yolo:         flags.yolo,
	}

	log.Infof("session start: %s (%s variant, firewall=%v)", name, selection.Variant(), opts.Firewall)

	code, err := manager.Run(ctx, opts)
	if err != nil {
		return err
	}
	sessionExitCode = code
	return nil
}

// selectTools maps the selection flags to a tool selection, defaulting
// to every registered tool.
func selectTools(flags *rootFlags) (tools.Selection, error) {
	if flags.claudeOnly && flags.copilotOnly {
		return tools.Selection{}, fmt.Errorf("--claude-only and --copilot-only are mutually exclusive")
	}

	sel := tools.Selection{Claude: true, Copilot: true}
	if flags.claudeOnly {
		sel.Copilot = false
	}
	if flags.copilotOnly {
		sel.Claude = false
	}
	return sel, sel.Validate()
}

// stateDir is where internal diagnostics land.
func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "aidev")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

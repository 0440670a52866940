package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"aidev/internal/container"
	"aidev/internal/logging"
	"aidev/internal/runtime"
)

// runManagement handles the list/stop-all/remove-all flags. These touch
// only already-managed containers and never enter the normal lifecycle.
func runManagement(ctx context.Context, engine *runtime.Client, flags *rootFlags, dispatcher *logging.Dispatcher) error {
	manager := container.NewManager(engine, nil, nil, nil, dispatcher.Logger("container", nil))

	switch {
	case flags.list:
		managed, err := manager.List(ctx)
		if err != nil {
			return err
		}
		return printContainers(managed)

	case flags.stopAll:
		stopped, err := manager.StopAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Stopped %d container(s)\n", stopped)
		return nil

	case flags.removeAll:
		removed, err := manager.RemoveAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d container(s)\n", removed)
		return nil
	}

	return nil
}

func printContainers(managed []runtime.ManagedContainer) error {
	if len(managed) == 0 {
		fmt.Println("No managed containers found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("NAME", "VARIANT", "WORKSPACE", "STATE", "CREATED")

	for _, c := range managed {
		workspace := c.Workspace
		if len(workspace) > 40 {
			workspace = "..." + workspace[len(workspace)-37:]
		}

		_ = table.Append(
			c.Name,
			c.Variant,
			workspace,
			c.State,
			c.Created.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}

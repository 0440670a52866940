package tools

import "testing"

func TestSelectionValidate(t *testing.T) {
	tests := []struct {
		name      string
		selection Selection
		wantErr   bool
	}{
		{name: "both", selection: Selection{Claude: true, Copilot: true}},
		{name: "claude only", selection: Selection{Claude: true}},
		{name: "copilot only", selection: Selection{Copilot: true}},
		{name: "neither", selection: Selection{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.selection.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelectionVariant(t *testing.T) {
	tests := []struct {
		name      string
		selection Selection
		expected  string
	}{
		{name: "both tools", selection: Selection{Claude: true, Copilot: true}, expected: "full"},
		{name: "claude only", selection: Selection{Claude: true}, expected: "claude"},
		{name: "copilot only", selection: Selection{Copilot: true}, expected: "copilot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.selection.Variant(); got != tt.expected {
				t.Errorf("Variant() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRegistryContainsBothTools(t *testing.T) {
	for _, name := range []string{"claude", "copilot"} {
		if Get(name) == nil {
			t.Errorf("tool %q not registered", name)
		}
	}

	all := All()
	if len(all) < 2 {
		t.Fatalf("expected at least 2 registered tools, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name() >= all[i].Name() {
			t.Errorf("All() not sorted: %q before %q", all[i-1].Name(), all[i].Name())
		}
	}
}

func TestSelectedRespectsSelection(t *testing.T) {
	sel := Selection{Claude: true}
	for _, tool := range sel.Selected() {
		if tool.Name() != "claude" {
			t.Errorf("Selected() returned deselected tool %q", tool.Name())
		}
	}
}

func TestLaunchCommands(t *testing.T) {
	claude := Get("claude")
	if got := claude.LaunchCommand(false); len(got) != 1 || got[0] != "claude" {
		t.Errorf("claude launch = %v", got)
	}
	if got := claude.LaunchCommand(true); len(got) != 2 || got[1] != "--dangerously-skip-permissions" {
		t.Errorf("claude yolo launch = %v", got)
	}

	copilot := Get("copilot")
	if got := copilot.LaunchCommand(true); len(got) != 2 {
		t.Errorf("copilot yolo launch = %v", got)
	}
}

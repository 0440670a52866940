package main

import "testing"

func TestSelectTools(t *testing.T) {
	tests := []struct {
		name        string
		flags       rootFlags
		wantVariant string
		wantErr     bool
	}{
		{name: "default both", flags: rootFlags{}, wantVariant: "full"},
		{name: "claude only", flags: rootFlags{claudeOnly: true}, wantVariant: "claude"},
		{name: "copilot only", flags: rootFlags{copilotOnly: true}, wantVariant: "copilot"},
		{name: "both exclusive flags", flags: rootFlags{claudeOnly: true, copilotOnly: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectTools(&tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("selectTools error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := sel.Variant(); got != tt.wantVariant {
				t.Errorf("Variant() = %q, want %q", got, tt.wantVariant)
			}
		})
	}
}

func TestLaunchValidation(t *testing.T) {
	// --claude-only with --launch copilot must fail before any
	// container work.
	flags := &rootFlags{claudeOnly: true}
	sel, err := selectTools(flags)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Includes("copilot") {
		t.Error("claude-only selection must not include copilot")
	}
	if !sel.Includes("claude") {
		t.Error("claude-only selection must include claude")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "flag", "config"); got != "flag" {
		t.Errorf("firstNonEmpty = %q, want flag", got)
	}
	if got := firstNonEmpty("", "", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}

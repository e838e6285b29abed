package main

import (
	"strings"
	"testing"

	"github.com/odvcencio/switchboard/pkg/config"
)

func TestRunStreamCommandUsageError(t *testing.T) {
	err := runStreamCommand(nil)
	if err == nil {
		t.Fatal("expected usage error for missing service and method")
	}
	if !strings.Contains(err.Error(), "usage:") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunStreamCommandSandbox(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Enabled = true
	stubConfig(t, cfg)

	// Sandbox streams are empty, so the command ends cleanly without
	// touching the network.
	out := captureStdout(t, func() {
		if err := runStreamCommand([]string{"jobs", "Watch"}); err != nil {
			t.Fatalf("stream: %v", err)
		}
	})
	if strings.TrimSpace(out) != "" {
		t.Errorf("sandbox stream should print nothing, got %q", out)
	}
}

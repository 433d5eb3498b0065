package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("unexpected model: %s", cfg.Model)
	}
	if cfg.Engine != "stream" {
		t.Fatalf("unexpected engine: %s", cfg.Engine)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Fatalf("unexpected timeout: %s", cfg.Timeout)
	}
	if !cfg.FifoNonBlocking {
		t.Fatalf("expected non-blocking fifo by default")
	}
	if cfg.FifoPath != DefaultFifoPath {
		t.Fatalf("unexpected fifo path: %s", cfg.FifoPath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CMDFIX_MODEL", "llama3.1:8b")
	t.Setenv("CMDFIX_ENGINE", "twocall")
	t.Setenv("CMDFIX_TIMEOUT", "30s")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "llama3.1:8b" {
		t.Fatalf("env model not applied: %s", cfg.Model)
	}
	if cfg.Engine != "twocall" {
		t.Fatalf("env engine not applied: %s", cfg.Engine)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("env timeout not applied: %s", cfg.Timeout)
	}
}

func TestLoadEnvOverridesTypedKeys(t *testing.T) {
	t.Setenv("CMDFIX_QUIET", "true")
	t.Setenv("CMDFIX_NO_HISTORY", "true")
	t.Setenv("CMDFIX_HISTORY_LINES", "5")
	t.Setenv("CMDFIX_MAX_STEPS", "3")
	t.Setenv("CMDFIX_FIFO_NONBLOCK", "false")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Quiet {
		t.Fatalf("env quiet not applied")
	}
	if !cfg.NoHistory {
		t.Fatalf("env no_history not applied")
	}
	if cfg.HistoryLines != 5 {
		t.Fatalf("env history_lines not applied: %d", cfg.HistoryLines)
	}
	if cfg.MaxSteps != 3 {
		t.Fatalf("env max_steps not applied: %d", cfg.MaxSteps)
	}
	if cfg.FifoNonBlocking {
		t.Fatalf("env fifo_nonblock not applied")
	}
}

func TestLoadBindsTimeoutFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("tool-timeout", DefaultToolTimeout.String(), "")
	cmd.Flags().String("fifo-open-timeout", DefaultFifoOpenTimeout.String(), "")
	if err := cmd.Flags().Set("tool-timeout", "3s"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := cmd.Flags().Set("fifo-open-timeout", "1s"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ToolTimeout != 3*time.Second {
		t.Fatalf("tool-timeout flag not applied: %s", cfg.ToolTimeout)
	}
	if cfg.FifoOpenTimeout != time.Second {
		t.Fatalf("fifo-open-timeout flag not applied: %s", cfg.FifoOpenTimeout)
	}
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	t.Setenv("CMDFIX_ENGINE", "assistant")
	if _, err := Load(nil); err == nil {
		t.Fatalf("expected unknown engine to be rejected")
	}
	_ = os.Unsetenv("CMDFIX_ENGINE")
}

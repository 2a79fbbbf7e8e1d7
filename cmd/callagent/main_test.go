package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/callagent/pkg/runner"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != "callagent "+runner.Version {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestServeFailsOnMissingConfig(t *testing.T) {
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "serve"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

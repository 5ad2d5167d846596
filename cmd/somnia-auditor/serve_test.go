package main

import (
	"strings"
	"testing"

	"github.com/nao1215/somnia-auditor/internal/config"
)

func TestNewServeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("expected use 'serve', got %q", cmd.Use)
	}
	if !strings.Contains(cmd.Long, "POST /audits") {
		t.Error("long help should list the endpoints")
	}

	tests := []struct {
		name     string
		defValue string
	}{
		{"addr", config.DefaultServeAddress},
		{"max-audits", "1"},
		{"log-json", "false"},
		{config.FlagJobs, "1"},
		{config.FlagDocker, "false"},
		{config.FlagAISummary, "false"},
		{"no-history", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestRunServeCmdValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid jobs", []string{"--jobs", "0"}, "configuration error"},
		{"missing config file", []string{"-c", "/nonexistent/.somnia-auditor.yaml"}, "configuration file not found"},
		{"positional argument", []string{"extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			root.SetOut(new(strings.Builder))
			root.SetErr(new(strings.Builder))
			root.SetArgs(append([]string{"serve", "--data-dir", t.TempDir()}, tt.args...))
			err := root.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

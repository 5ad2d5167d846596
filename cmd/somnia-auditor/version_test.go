package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
)

func TestBuildInfo(t *testing.T) {
	t.Parallel()

	if v := getVersion(); v == "" {
		t.Error("getVersion() returned empty string")
	}
	if d := getDate(); d == "" {
		t.Error("getDate() returned empty string")
	}
	c := getCommit()
	if c == "" {
		t.Error("getCommit() returned empty string")
	}
	if len(c) > 7 && c != "unknown" {
		t.Errorf("getCommit() = %q, want a short hash", c)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	tools := analyzer.RunnerFunc(func(_ context.Context, cmd analyzer.Command) (analyzer.Output, error) {
		if cmd.Name == "slither" {
			return analyzer.Output{Stdout: "0.10.4\n"}, nil
		}
		return analyzer.Output{ExitCode: -1}, fmt.Errorf("%s: %w", cmd.Name, analyzer.ErrToolNotFound)
	})

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name:    "build info only",
			want:    []string{"somnia-auditor version", "commit:", "built:"},
			notWant: []string{"slither:"},
		},
		{
			name: "with tools",
			args: []string{"--tools"},
			want: []string{"slither: 0.10.4", "solhint: not available (solhint: tool not found)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			cmd := newVersionCmd(tools)
			cmd.SetOut(&buf)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("expected output to contain %q, got %q", want, output)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(output, notWant) {
					t.Errorf("expected output not to contain %q, got %q", notWant, output)
				}
			}
		})
	}
}

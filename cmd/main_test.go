package main

import (
	"bytes"
	"strings"
	"testing"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"collab"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"collab", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"collab", "version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if out != "collab dev\n" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRunMissingSubcommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"collab", "token"}, "Usage: collab token"},
		{[]string{"collab", "project"}, "Usage: collab project"},
		{[]string{"collab", "workspace"}, "Usage: collab workspace <create|show>"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			code, out, _ := runWithArgs(tt.args)
			if code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	for _, args := range [][]string{
		{"collab", "token", "rotate"},
		{"collab", "project", "delete"},
		{"collab", "workspace", "delete"},
	} {
		code, out, _ := runWithArgs(args)
		if code != 1 {
			t.Fatalf("%v: expected exit code 1, got %d", args, code)
		}
		if !strings.Contains(out, "Unknown") {
			t.Fatalf("%v: expected unknown command output, got %q", args, out)
		}
	}
}

func TestCommandHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"collab", "serve", "--help"}, "Usage: collab serve"},
		{[]string{"collab", "status", "--help"}, "Usage: collab status"},
		{[]string{"collab", "token", "issue", "--help"}, "Usage: collab token issue"},
		{[]string{"collab", "token", "list", "--help"}, "Usage: collab token list"},
		{[]string{"collab", "token", "revoke", "--help"}, "Usage: collab token revoke"},
		{[]string{"collab", "project", "create", "--help"}, "Usage: collab project create"},
		{[]string{"collab", "project", "show", "--help"}, "Usage: collab project show"},
		{[]string{"collab", "project", "add-member", "--help"}, "Usage: collab project add-member"},
		{[]string{"collab", "project", "remove-member", "--help"}, "Usage: collab project remove-member"},
		{[]string{"collab", "workspace", "create", "--help"}, "Usage: collab workspace create"},
		{[]string{"collab", "workspace", "show", "--help"}, "Usage: collab workspace show"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:len(tt.args)-1], " "), func(t *testing.T) {
			code, _, errOut := runWithArgs(tt.args)
			if code != 0 {
				t.Fatalf("expected exit code 0, got %d", code)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Fatalf("expected %q in help, got %q", tt.want, errOut)
			}
		})
	}
}

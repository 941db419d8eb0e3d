package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v1.0.0" -o collab ./cmd
var Version = "dev"

const usage = `collab - real-time collaborative workspace server

Usage:
  collab <command> [options]

Commands:
  serve                     Start the WebSocket server
  status                    Show status of a running server
  token issue <user-id>     Issue a bearer token for a user
  token list                List issued tokens
  token revoke <token-id>   Revoke a token and close its sessions
  project create <id>       Create a project
  project show <id>         Show a project
  project add-member <project-id> <user-id>     Add a member to a project
  project remove-member <project-id> <user-id>  Remove a member from a project
  workspace create <id>     Create a workspace in a project
  workspace show <id>       Show a workspace's stored document
  version                   Print the version
Run 'collab <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "status":
		return runStatus(args[2:], stdout, stderr)
	case "token":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: collab token <issue|list|revoke>")
			return 1
		}
		switch args[2] {
		case "issue":
			return runTokenIssue(args[3:], stdout, stderr)
		case "list":
			return runTokenList(args[3:], stdout, stderr)
		case "revoke":
			return runTokenRevoke(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown token command: %s\n", args[2])
			return 1
		}
	case "project":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: collab project <create|show|add-member|remove-member>")
			return 1
		}
		switch args[2] {
		case "create":
			return runProjectCreate(args[3:], stdout, stderr)
		case "show":
			return runProjectShow(args[3:], stdout, stderr)
		case "add-member":
			return runProjectAddMember(args[3:], stdout, stderr)
		case "remove-member":
			return runProjectRemoveMember(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown project command: %s\n", args[2])
			return 1
		}
	case "workspace":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: collab workspace <create|show>")
			return 1
		}
		switch args[2] {
		case "create":
			return runWorkspaceCreate(args[3:], stdout, stderr)
		case "show":
			return runWorkspaceShow(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown workspace command: %s\n", args[2])
			return 1
		}
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "collab %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/boardsync/collab/internal/storage"
)

// The project app normally owns these rows. These commands provision them
// for local setups and demos.

func runProjectCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project create", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	name := fs.String("name", "", "Project name (default: the id)")
	owner := fs.String("owner", "", "Owner user id (required)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab project create [options] <project-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: project-id is required")
		fs.Usage()
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(stderr, "Error: --owner is required")
		return 1
	}

	p := &storage.Project{ID: fs.Arg(0), Name: *name, OwnerID: *owner}
	if p.Name == "" {
		p.Name = p.ID
	}

	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		if err := store.CreateProject(context.Background(), p); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created project %s (owner %s)\n", p.ID, p.OwnerID)
		return nil
	})
}

func runProjectAddMember(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project add-member", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	role := fs.String("role", "member", "Member role")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab project add-member [options] <project-id> <user-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "Error: project-id and user-id are required")
		fs.Usage()
		return 1
	}
	projectID, userID := fs.Arg(0), fs.Arg(1)

	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		if err := store.AddProjectMember(context.Background(), projectID, userID, *role); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Added %s to project %s as %s\n", userID, projectID, *role)
		return nil
	})
}

func runProjectShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project show", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab project show [options] <project-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: project-id is required")
		fs.Usage()
		return 1
	}

	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		p, err := store.GetProject(context.Background(), fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Project:  %s\n", p.ID)
		fmt.Fprintf(stdout, "Name:     %s\n", p.Name)
		fmt.Fprintf(stdout, "Owner:    %s\n", p.OwnerID)
		fmt.Fprintf(stdout, "Created:  %s\n", p.CreatedAt.Format(time.RFC3339))
		return nil
	})
}

func runProjectRemoveMember(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project remove-member", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab project remove-member [options] <project-id> <user-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "Error: project-id and user-id are required")
		fs.Usage()
		return 1
	}
	projectID, userID := fs.Arg(0), fs.Arg(1)

	// Sessions already bound keep their binding; the next join is denied.
	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		if err := store.RemoveProjectMember(context.Background(), projectID, userID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed %s from project %s\n", userID, projectID)
		return nil
	})
}

func runWorkspaceCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workspace create", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	projectID := fs.String("project", "", "Owning project id (required)")
	name := fs.String("name", "", "Workspace name (default: the id)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab workspace create [options] <workspace-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: workspace-id is required")
		fs.Usage()
		return 1
	}
	if *projectID == "" {
		fmt.Fprintln(stderr, "Error: --project is required")
		return 1
	}
	id := fs.Arg(0)
	if *name == "" {
		*name = id
	}

	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		ws, err := store.CreateWorkspace(context.Background(), id, *projectID, *name)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created workspace %s in project %s\n", ws.ID, ws.ProjectID)
		return nil
	})
}

func runWorkspaceShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workspace show", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	raw := fs.Bool("document", false, "Print the stored document as JSON")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab workspace show [options] <workspace-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: workspace-id is required")
		fs.Usage()
		return 1
	}

	return withStore(cfg, stderr, func(store *storage.SQLiteStore) error {
		ws, err := store.LoadWorkspace(context.Background(), fs.Arg(0))
		if err != nil {
			return err
		}

		if *raw {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]json.RawMessage{
				"elements":  ws.Elements,
				"viewState": ws.ViewState,
			})
		}

		var elements []json.RawMessage
		if err := json.Unmarshal(ws.Elements, &elements); err != nil {
			return fmt.Errorf("decode elements: %w", err)
		}
		fmt.Fprintf(stdout, "Workspace:  %s\n", ws.ID)
		fmt.Fprintf(stdout, "Name:       %s\n", ws.Name)
		fmt.Fprintf(stdout, "Project:    %s\n", ws.ProjectID)
		fmt.Fprintf(stdout, "Elements:   %d\n", len(elements))
		fmt.Fprintf(stdout, "Updated:    %s\n", ws.UpdatedAt.Format(time.RFC3339))
		return nil
	})
}

// withStore opens the database, runs fn, and reports its error.
func withStore(cfg *StoreFlags, stderr io.Writer, fn func(*storage.SQLiteStore) error) int {
	dbPath, err := resolveDatabasePath(cfg.Config, cfg.Database)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := fn(store); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

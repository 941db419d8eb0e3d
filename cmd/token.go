package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/boardsync/collab/internal/auth"
	"github.com/boardsync/collab/internal/server"
)

// formatDuration formats a duration in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func runTokenIssue(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token issue", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	name := fs.String("name", "", "Label for the token (e.g. the device or app using it)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab token issue [options] <user-id>\n\nIssue a bearer token for a user. The token is shown once.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: user-id is required")
		fs.Usage()
		return 1
	}
	userID := fs.Arg(0)

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

	tok, raw, err := auth.NewIssuer(store).Issue(userID, *name)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to issue token: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Issued token %s for user %s\n", tok.ID, tok.UserID)
	fmt.Fprintf(stdout, "Token (shown once):\n  %s\n", raw)
	return 0
}

func runTokenList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab token list [options]\n\nList issued tokens.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	dbPath, err := resolveDatabasePath(cfg.Config, cfg.Database)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No tokens found.")
		return 0
	}

	store, err := openDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	tokens, err := store.ListTokens()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list tokens: %v\n", err)
		return 1
	}
	if len(tokens) == 0 {
		fmt.Fprintln(stdout, "No tokens found.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN ID\tUSER\tNAME\tCREATED\tLAST SEEN")
	fmt.Fprintln(w, "--------\t----\t----\t-------\t---------")

	now := time.Now()
	for _, tok := range tokens {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tok.ID,
			tok.UserID,
			tok.Name,
			formatDuration(now.Sub(tok.CreatedAt)),
			formatDuration(now.Sub(tok.LastSeen)),
		)
	}
	w.Flush()
	return 0
}

func runTokenRevoke(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StoreFlags{}
	cfg.register(fs)
	addrFlag := fs.String("addr", "", "Running server to notify (default: addr from config, then 127.0.0.1:3001)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab token revoke [options] <token-id>\n\nRevoke a token and close any sessions using it.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: token-id is required")
		fs.Usage()
		return 1
	}
	tokenID := fs.Arg(0)

	dbPath, err := resolveDatabasePath(cfg.Config, cfg.Database)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(stderr, "Error: token %s not found\n", tokenID)
		return 1
	}

	store, err := openDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	tok, err := store.GetToken(tokenID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to lookup token: %v\n", err)
		return 1
	}
	if tok == nil {
		fmt.Fprintf(stderr, "Error: token %s not found\n", tokenID)
		return 1
	}

	addr, err := resolveServerAddr(cfg.Config, *addrFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// The running server closes the token's sessions before deleting it.
	if closed, ok := notifyServerRevocation(tokenID, addr); ok {
		fmt.Fprintf(stdout, "Revoked token: %s (user %s)\n", tok.ID, tok.UserID)
		fmt.Fprintf(stdout, "Closed %d active session(s).\n", closed)
		return 0
	}

	if err := store.DeleteToken(tokenID); err != nil {
		fmt.Fprintf(stderr, "Error: failed to revoke token: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Revoked token: %s (user %s)\n", tok.ID, tok.UserID)
	fmt.Fprintln(stdout, "Note: server is not running or unreachable. The token will be rejected on its next connection.")
	return 0
}

// notifyServerRevocation asks the running server to close the token's
// sessions and delete it. Returns false if the server could not be reached
// or did not handle the request.
func notifyServerRevocation(tokenID, addr string) (int, bool) {
	client := adminClient()
	for _, scheme := range []string{"https", "http"} {
		url := fmt.Sprintf("%s://%s/tokens/%s/revoke", scheme, addr, tokenID)
		resp, err := client.Post(url, "application/json", nil)
		if err != nil {
			continue
		}

		var result server.RevokeResponse
		ok := resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&result) == nil
		resp.Body.Close()
		if ok {
			return result.ConnectionsClosed, true
		}
	}
	return 0, false
}

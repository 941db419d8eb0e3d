package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/boardsync/collab/internal/config"
	"github.com/boardsync/collab/internal/server"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.collab/config.toml)")
	addr := fs.String("addr", "", "Server address to query (default: addr from config, then 127.0.0.1:3001)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab status [options]\n\nShow the status of a running server.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	target, err := resolveServerAddr(*configPath, *addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	status, err := queryStatus(target)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return 0
	}

	writeStatusOutput(stdout, status)
	return 0
}

// resolveServerAddr picks the address of the running server: --addr, then
// the config file's addr, then the default.
func resolveServerAddr(configPath, addrFlag string) (string, error) {
	if addrFlag != "" {
		return addrFlag, nil
	}
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if fileCfg.Addr != "" {
		return fileCfg.Addr, nil
	}
	return config.DefaultAddr, nil
}

func writeStatusOutput(stdout io.Writer, status *server.StatusResponse) {
	fmt.Fprintf(stdout, "Server Status\n")
	fmt.Fprintf(stdout, "=============\n")
	fmt.Fprintf(stdout, "Listening:    %s\n", status.ListeningAddress)
	fmt.Fprintf(stdout, "TLS:          %v\n", status.TLSEnabled)
	fmt.Fprintf(stdout, "Auth:         %v\n", status.RequireAuth)
	fmt.Fprintf(stdout, "Sessions:     %d connected\n", status.ConnectedSessions)
	fmt.Fprintf(stdout, "Rooms:        %d active\n", status.ActiveRooms)
	fmt.Fprintf(stdout, "Protocol:     %s\n", status.ProtocolVersion)
	fmt.Fprintf(stdout, "Uptime:       %s\n", formatUptime(status.UptimeSeconds))
}

// adminClient talks to the loopback-only admin endpoints. The server may be
// using a self-signed certificate.
func adminClient() *http.Client {
	return &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

// queryStatus tries HTTPS first, then plain HTTP.
func queryStatus(addr string) (*server.StatusResponse, error) {
	for _, scheme := range []string{"https", "http"} {
		status, err := queryStatusWithScheme(scheme, addr)
		if err == nil {
			return status, nil
		}
	}
	return nil, fmt.Errorf("server is not running at %s (or not reachable)", addr)
}

func queryStatusWithScheme(scheme, addr string) (*server.StatusResponse, error) {
	resp, err := adminClient().Get(fmt.Sprintf("%s://%s/status", scheme, addr))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

// formatUptime formats an uptime in seconds as a human-readable string.
// Examples: "45s", "5m 23s", "2h 15m", "3d 4h"
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", seconds)
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

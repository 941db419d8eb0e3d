package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/boardsync/collab/internal/auth"
	"github.com/boardsync/collab/internal/certs"
	"github.com/boardsync/collab/internal/config"
	"github.com/boardsync/collab/internal/server"
)

// ServeConfig holds the merged flag and file settings for "collab serve".
type ServeConfig struct {
	Config                string
	Addr                  string
	Database              string
	TLSCert               string
	TLSKey                string
	TLSSelfSigned         bool
	RequireAuth           bool
	AllowedOrigins        string
	CursorIntervalMs      int
	SendBuffer            int
	MaxProtocolViolations int
}

// notifyShutdown registers for the signals that stop the server.
// Tests replace it to deliver a signal directly.
var notifyShutdown = func(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
}

// onServeReady is called with the bound address once the listener is up.
var onServeReady = func(addr string) {}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ServeConfig{}
	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.collab/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address (default: 127.0.0.1:3001)")
	fs.StringVar(&cfg.Database, "db", "", "Path to SQLite database (default: ~/.collab/collab.db)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key file")
	fs.BoolVar(&cfg.TLSSelfSigned, "tls-self-signed", false, "Serve wss:// with a generated certificate in ~/.collab/certs")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", false, "Require a bearer token for WebSocket connections")
	fs.StringVar(&cfg.AllowedOrigins, "allowed-origins", "", "Comma-separated WebSocket Origin allow-list (default: any)")
	fs.IntVar(&cfg.CursorIntervalMs, "cursor-interval-ms", 0, "Minimum ms between relayed cursor events per session (default: 50)")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", 0, "Per-session outbound queue length (default: 256)")
	fs.IntVar(&cfg.MaxProtocolViolations, "max-protocol-violations", 0, "Violations before a session is closed, -1 for never (default: 5)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: collab serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	merged := mergeServeConfig(cfg, fileCfg, explicitFlags)
	if err := merged.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	merged.ApplyDefaults()

	store, err := openDatabase(merged.Database)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if merged.TLSSelfSigned && !merged.TLSEnabled() {
		info, err := certs.Ensure(certs.Options{Hosts: certHosts(merged.Addr)})
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to setup TLS certificate: %v\n", err)
			return 1
		}
		if info.Generated {
			fmt.Fprintln(stdout, "Generated new self-signed TLS certificate")
		} else {
			fmt.Fprintln(stdout, "Loaded existing TLS certificate")
		}
		fmt.Fprintf(stdout, "Valid until: %s\n", info.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(stdout, "Fingerprint (SHA-256):\n  %s\n", info.Fingerprint)
		merged.TLSCert = info.CertPath
		merged.TLSKey = info.KeyPath
	}

	wsServer := server.NewServer(merged.Addr, store)
	wsServer.SetRequireAuth(merged.RequireAuth)
	if merged.RequireAuth {
		wsServer.SetTokenValidator(auth.NewTokenValidator(store).ValidateToken)
	}
	wsServer.SetAllowedOrigins(merged.AllowedOrigins)
	wsServer.SetCursorInterval(merged.CursorInterval())
	wsServer.SetSendBuffer(merged.SendBuffer)
	wsServer.SetMaxProtocolViolations(merged.MaxProtocolViolations)
	wsServer.SetStatusHandler(server.NewStatusHandler(wsServer, merged.TLSEnabled()))
	wsServer.SetRevokeHandler(server.NewRevokeTokenHandler(wsServer, store))

	var errCh <-chan error
	scheme := "ws"
	if merged.TLSEnabled() {
		scheme = "wss"
		errCh = wsServer.StartAsyncTLS(server.TLSConfig{CertPath: merged.TLSCert, KeyPath: merged.TLSKey})
	} else {
		errCh = wsServer.StartAsync()
	}
	if err := <-errCh; err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Database: %s\n", merged.Database)
	if merged.RequireAuth {
		fmt.Fprintln(stdout, "Authentication: ENABLED (use 'collab token issue' to create tokens)")
	} else {
		fmt.Fprintln(stdout, "Authentication: disabled")
	}
	fmt.Fprintf(stdout, "Listening on %s://%s/ws\n", scheme, wsServer.Addr())
	onServeReady(wsServer.Addr())

	sigCh := make(chan os.Signal, 1)
	notifyShutdown(sigCh)
	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)

	if err := wsServer.Stop(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	return 0
}

// mergeServeConfig applies file values wherever the flag was not given.
func mergeServeConfig(cfg *ServeConfig, fileCfg *config.Config, explicitFlags map[string]bool) *config.Config {
	merged := *fileCfg

	if cfg.Addr != "" {
		merged.Addr = cfg.Addr
	}
	if cfg.Database != "" {
		merged.Database = cfg.Database
	}
	if cfg.TLSCert != "" {
		merged.TLSCert = cfg.TLSCert
	}
	if cfg.TLSKey != "" {
		merged.TLSKey = cfg.TLSKey
	}
	if explicitFlags["tls-self-signed"] {
		merged.TLSSelfSigned = cfg.TLSSelfSigned
	}
	// --require-auth=false overrides a config file that enables it.
	if explicitFlags["require-auth"] {
		merged.RequireAuth = cfg.RequireAuth
	}
	if explicitFlags["allowed-origins"] {
		merged.AllowedOrigins = splitList(cfg.AllowedOrigins)
	}
	if explicitFlags["cursor-interval-ms"] {
		merged.CursorIntervalMs = cfg.CursorIntervalMs
	}
	if explicitFlags["send-buffer"] {
		merged.SendBuffer = cfg.SendBuffer
	}
	if explicitFlags["max-protocol-violations"] {
		merged.MaxProtocolViolations = cfg.MaxProtocolViolations
	}
	return &merged
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// certHosts lists the SANs for a generated certificate: loopback plus the
// configured listen host.
func certHosts(addr string) []string {
	hosts := []string{"localhost", "127.0.0.1"}
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" || host == "localhost" || host == "127.0.0.1" {
		return hosts
	}
	return append(hosts, host)
}

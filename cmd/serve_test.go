package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardsync/collab/internal/config"
)

// isolateHome points HOME at a temp dir so the default config and database
// locations never touch the real ~/.collab.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

type runningServe struct {
	addr   string
	signal chan<- os.Signal
	done   chan int
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// startServe runs "collab serve" in the background until stop is called.
func startServe(t *testing.T, args ...string) *runningServe {
	t.Helper()

	ready := make(chan string, 1)
	sigChans := make(chan chan<- os.Signal, 1)
	oldNotify, oldReady := notifyShutdown, onServeReady
	notifyShutdown = func(c chan<- os.Signal) { sigChans <- c }
	onServeReady = func(addr string) { ready <- addr }
	t.Cleanup(func() {
		notifyShutdown, onServeReady = oldNotify, oldReady
	})

	rs := &runningServe{done: make(chan int, 1), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	go func() {
		rs.done <- runServe(args, rs.stdout, rs.stderr)
	}()

	select {
	case rs.addr = <-ready:
	case code := <-rs.done:
		t.Fatalf("serve exited early with %d: %s", code, rs.stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for serve to start")
	}
	select {
	case rs.signal = <-sigChans:
	case <-time.After(5 * time.Second):
		t.Fatal("serve never registered for shutdown signals")
	}
	return rs
}

func (rs *runningServe) stop(t *testing.T) (int, string) {
	t.Helper()
	rs.signal <- syscall.SIGTERM
	select {
	case code := <-rs.done:
		return code, rs.stdout.String()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for serve to stop")
		return 0, ""
	}
}

func TestServeInvalidFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--send-buffer=bad"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected error output for invalid flag")
	}
}

func TestServeConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "config file not found") {
		t.Fatalf("unexpected error output: %q", stderr.String())
	}
}

func TestServeRejectsInvalidSettings(t *testing.T) {
	isolateHome(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"cert without key", []string{"--tls-cert", "/tmp/server.crt"}, "tls_cert and tls_key"},
		{"negative buffer", []string{"--send-buffer=-1"}, "send_buffer"},
		{"bad violation limit", []string{"--max-protocol-violations=-2"}, "max_protocol_violations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runServe(tt.args, &stdout, &stderr)
			if code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, stderr.String())
			}
		})
	}
}

func TestServeStorageOpenFailure(t *testing.T) {
	isolateHome(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--db", filepath.Join(blocker, "collab.db")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.HasPrefix(stderr.String(), "Error: ") {
		t.Fatalf("expected 'Error: ' prefix, got %q", stderr.String())
	}
}

func TestMergeServeConfig(t *testing.T) {
	fileCfg := &config.Config{
		Addr:                  "0.0.0.0:9000",
		Database:              "/var/lib/collab.db",
		RequireAuth:           true,
		AllowedOrigins:        []string{"https://file.example"},
		CursorIntervalMs:      100,
		SendBuffer:            32,
		MaxProtocolViolations: 3,
	}

	t.Run("file values when flags absent", func(t *testing.T) {
		merged := mergeServeConfig(&ServeConfig{}, fileCfg, map[string]bool{})
		if !reflect.DeepEqual(merged, fileCfg) {
			t.Fatalf("merged = %+v, want %+v", merged, fileCfg)
		}
	})

	t.Run("flags override file", func(t *testing.T) {
		cfg := &ServeConfig{
			Addr:                  "127.0.0.1:4000",
			RequireAuth:           false,
			AllowedOrigins:        "https://a.example, https://b.example",
			CursorIntervalMs:      25,
			MaxProtocolViolations: -1,
		}
		explicit := map[string]bool{
			"addr":                    true,
			"require-auth":            true,
			"allowed-origins":         true,
			"cursor-interval-ms":      true,
			"max-protocol-violations": true,
		}
		merged := mergeServeConfig(cfg, fileCfg, explicit)

		if merged.Addr != "127.0.0.1:4000" {
			t.Errorf("Addr = %q", merged.Addr)
		}
		if merged.Database != fileCfg.Database {
			t.Errorf("Database = %q, want file value", merged.Database)
		}
		if merged.RequireAuth {
			t.Error("--require-auth=false must override the file")
		}
		if !reflect.DeepEqual(merged.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
			t.Errorf("AllowedOrigins = %v", merged.AllowedOrigins)
		}
		if merged.CursorIntervalMs != 25 || merged.MaxProtocolViolations != -1 {
			t.Errorf("numeric overrides not applied: %+v", merged)
		}
		if merged.SendBuffer != 32 {
			t.Errorf("SendBuffer = %d, want file value", merged.SendBuffer)
		}
	})

	t.Run("file is not mutated", func(t *testing.T) {
		mergeServeConfig(&ServeConfig{Addr: "x:1"}, fileCfg, map[string]bool{})
		if fileCfg.Addr != "0.0.0.0:9000" {
			t.Fatal("merge must copy the file config")
		}
	})
}

func TestCertHosts(t *testing.T) {
	tests := []struct {
		addr string
		want []string
	}{
		{"127.0.0.1:3001", []string{"localhost", "127.0.0.1"}},
		{"localhost:3001", []string{"localhost", "127.0.0.1"}},
		{":3001", []string{"localhost", "127.0.0.1"}},
		{"192.168.1.20:3001", []string{"localhost", "127.0.0.1", "192.168.1.20"}},
		{"bad", []string{"localhost", "127.0.0.1"}},
	}
	for _, tt := range tests {
		if got := certHosts(tt.addr); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("certHosts(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestServeLifecycle(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "collab.db")

	rs := startServe(t, "--addr", "127.0.0.1:0", "--db", db)

	resp, err := http.Get("http://" + rs.addr + "/health")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	var stdout, stderr bytes.Buffer
	if code := runStatus([]string{"--addr", rs.addr}, &stdout, &stderr); code != 0 {
		t.Fatalf("status failed: %s", stderr.String())
	}
	for _, want := range []string{"Listening:    " + rs.addr, "Sessions:     0 connected", "Protocol:     1.0.0"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, stdout.String())
		}
	}

	code, out := rs.stop(t)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	for _, want := range []string{"Listening on ws://" + rs.addr + "/ws", "Authentication: disabled", "stopping"} {
		if !strings.Contains(out, want) {
			t.Errorf("serve output missing %q:\n%s", want, out)
		}
	}
}

func TestServeSelfSignedTLS(t *testing.T) {
	home := isolateHome(t)
	db := filepath.Join(t.TempDir(), "collab.db")

	rs := startServe(t, "--addr", "127.0.0.1:0", "--db", db, "--tls-self-signed")

	if _, err := os.Stat(filepath.Join(home, ".collab", "certs", "server.crt")); err != nil {
		t.Fatalf("certificate not generated: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := runStatus([]string{"--addr", rs.addr, "--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("status failed: %s", stderr.String())
	}
	if !strings.Contains(stdout.String(), `"tls_enabled": true`) {
		t.Errorf("expected TLS in status:\n%s", stdout.String())
	}

	_, out := rs.stop(t)
	if !strings.Contains(out, "Generated new self-signed TLS certificate") {
		t.Errorf("expected generation notice:\n%s", out)
	}
	if !strings.Contains(out, "Listening on wss://") {
		t.Errorf("expected wss listener:\n%s", out)
	}
}

func TestServeRequireAuthAndRevoke(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "collab.db")

	mustRun(t, "project", "create", "--db", db, "--owner", "alice", "p1")
	mustRun(t, "workspace", "create", "--db", db, "--project", "p1", "w1")
	issued := mustRun(t, "token", "issue", "--db", db, "--name", "laptop", "alice")
	raw := issuedToken(t, issued)
	tokenID := strings.SplitN(raw, ".", 2)[0]

	rs := startServe(t, "--addr", "127.0.0.1:0", "--db", db, "--require-auth")
	defer rs.stop(t)

	url := "ws://" + rs.addr + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got err=%v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + raw}})
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type":    "join-workspace",
		"payload": map[string]string{"workspaceId": "w1", "userId": "alice"},
	}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "workspace-joined" {
		t.Fatalf("expected workspace-joined, got %+v (err=%v)", ack, err)
	}

	out := mustRun(t, "token", "revoke", "--db", db, "--addr", rs.addr, tokenID)
	if !strings.Contains(out, "Closed 1 active session(s).") {
		t.Fatalf("expected server-side revoke, got:\n%s", out)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the revoked session to be closed")
	}

	list := mustRun(t, "token", "list", "--db", db)
	if !strings.Contains(list, "No tokens found.") {
		t.Fatalf("token should be gone:\n%s", list)
	}
}

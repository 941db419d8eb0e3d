package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/boardsync/collab/internal/auth"
	apperrors "github.com/boardsync/collab/internal/errors"
)

func TestRevokeToken_ClosesSessionsAndDeletes(t *testing.T) {
	store := seedStore(t)

	tok, raw, err := auth.NewIssuer(store).Issue("alice", "laptop")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	s, ts := newTestServer(t, store, func(s *Server) {
		s.SetRequireAuth(true)
		s.SetTokenValidator(auth.NewTokenValidator(store).ValidateToken)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer " + raw}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer " + raw}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer peer.Close()
	join(t, conn, "w1", "alice")

	handler := NewRevokeTokenHandler(s, store)
	req := httptest.NewRequest(http.MethodPost, "/tokens/"+tok.ID+"/revoke", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp RevokeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokenID != tok.ID || resp.UserID != "alice" || resp.ConnectionsClosed != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	expectClosed(t, conn)
	expectClosed(t, peer)
	waitFor(t, "revoked sessions cleaned up", func() bool { return s.ClientCount() == 0 })

	got, err := store.GetToken(tok.ID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got != nil {
		t.Fatal("token should be deleted")
	}

	// The token no longer opens a session.
	_, httpResp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer " + raw}})
	if err == nil || httpResp == nil || httpResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got err=%v", err)
	}
}

func TestRevokeToken_Errors(t *testing.T) {
	store := seedStore(t)
	s := NewServer("127.0.0.1:3001", store)
	handler := NewRevokeTokenHandler(s, store)

	tests := []struct {
		name       string
		method     string
		path       string
		remoteAddr string
		wantCode   int
	}{
		{"non-loopback", http.MethodPost, "/tokens/abc/revoke", "10.0.0.5:1234", http.StatusForbidden},
		{"wrong method", http.MethodGet, "/tokens/abc/revoke", "127.0.0.1:1234", http.StatusMethodNotAllowed},
		{"bad path", http.MethodPost, "/tokens/abc", "127.0.0.1:1234", http.StatusBadRequest},
		{"empty id", http.MethodPost, "/tokens//revoke", "127.0.0.1:1234", http.StatusBadRequest},
		{"unknown token", http.MethodPost, "/tokens/abc/revoke", "127.0.0.1:1234", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = tt.remoteAddr
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}

// A token revoked after the handshake validated it must not end up with a
// registered session.
func TestRevokeToken_RacingHandshakeIsRefused(t *testing.T) {
	store := seedStore(t)
	s, ts := newTestServer(t, store, func(srv *Server) {
		srv.SetRequireAuth(true)
		srv.SetTokenValidator(func(token string) (string, error) {
			id, _, _ := strings.Cut(token, ".")
			srv.CloseTokenConnections(id)
			return "alice", nil
		})
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer tok1.secret"}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	expectClosed(t, conn)
	if n := s.ClientCount(); n != 0 {
		t.Fatalf("revoked token registered %d session(s)", n)
	}
}

func TestRevokeToken_DeletesBeforeClosing(t *testing.T) {
	store := seedStore(t)
	tok, raw, err := auth.NewIssuer(store).Issue("alice", "laptop")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	s, ts := newTestServer(t, store, func(s *Server) {
		s.SetRequireAuth(true)
		s.SetTokenValidator(auth.NewTokenValidator(store).ValidateToken)
	})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer " + raw}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	join(t, conn, "w1", "alice")

	req := httptest.NewRequest(http.MethodPost, "/tokens/"+tok.ID+"/revoke", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rr := httptest.NewRecorder()
	NewRevokeTokenHandler(s, store).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	expectCloseFrame(t, conn, websocket.ClosePolicyViolation, apperrors.CodeAuthUnauthorized)

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), http.Header{"Authorization": {"Bearer " + raw}}); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token must be rejected, err=%v", err)
	}
}

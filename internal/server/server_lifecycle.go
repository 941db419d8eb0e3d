package server

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/boardsync/collab/internal/certs"
)

// TLSConfig holds the TLS configuration for the server.
type TLSConfig struct {
	// CertPath is the path to the TLS certificate file.
	CertPath string
	// KeyPath is the path to the TLS private key file.
	KeyPath string
}

// StartAsync starts the server in a goroutine and returns any startup errors.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
// After receiving from the channel, the server is either running or failed.
func (s *Server) StartAsync() <-chan error {
	return s.start(nil)
}

// StartAsyncTLS is StartAsync over TLS. Only wss:// connections are
// accepted.
func (s *Server) StartAsyncTLS(tlsCfg TLSConfig) <-chan error {
	return s.start(&tlsCfg)
}

func (s *Server) start(tlsCfg *TLSConfig) <-chan error {
	errCh := make(chan error, 1)
	fail := func(err error) <-chan error {
		errCh <- err
		close(errCh)
		return errCh
	}

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fail(fmt.Errorf("failed to listen on %s: %w", s.addr, err))
	}

	// Record the bound address so ":0" resolves to the real port.
	s.addr = ln.Addr().String()

	mode := ""
	if tlsCfg != nil {
		cfg, err := certs.ServerConfig(tlsCfg.CertPath, tlsCfg.KeyPath)
		if err != nil {
			ln.Close()
			return fail(fmt.Errorf("failed to load TLS certificate: %w", err))
		}
		ln = tls.NewListener(ln, cfg)
		mode = " (TLS enabled)"
	}

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: mux}
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s%s", s.addr, mode)
		errCh <- nil
		close(errCh)

		// Serve blocks until the server is stopped.
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Stop shuts the server down. Every session is closed and goes through its
// normal disconnect cleanup before Stop returns; updates already queued are
// allowed to finish so the store can be closed safely afterwards.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// writePump sends the close frame and closes the connection; readPump
	// then fails and runs removeClient.
	for client := range s.clients {
		client.closeSend()
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		err = httpServer.Close()
	}

	s.pumps.Wait()
	s.dispatcher.Wait()
	log.Printf("server: stopped")
	return err
}

// Package hostserver runs the host side of the bridge: a socket server
// that reads framed command requests, hands them to the dispatcher, and
// writes framed results back. Connections are persistent; each one is
// served one request at a time.
package hostserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/dispatch"
	"github.com/forgebridge/forgebridge/internal/wire"
)

var peerUIDMatchesCurrentUserFn = peerUIDMatchesCurrentUser

// Config describes where the server listens. Network is "tcp" or "unix".
// Unix listeners get 0600 permissions and a peer-UID check.
type Config struct {
	Network string
	Addr    string
	// RequestTimeout bounds a single dispatch. Zero means no bound.
	RequestTimeout time.Duration
}

type Server struct {
	cfg      Config
	registry *dispatch.Registry
	log      *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func New(cfg Config, registry *dispatch.Registry, log *zap.Logger) *Server {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		log:      log,
		conns:    make(map[net.Conn]struct{}),
	}
}

// GenerateToken returns a random session token for privileged commands.
func GenerateToken() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating auth token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// Start begins accepting connections. For unix sockets any stale socket
// file is removed first.
func (s *Server) Start() error {
	if s.cfg.Network == "unix" {
		os.Remove(s.cfg.Addr)
	}
	ln, err := net.Listen(s.cfg.Network, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.cfg.Network, s.cfg.Addr, err)
	}
	if s.cfg.Network == "unix" {
		if err := os.Chmod(s.cfg.Addr, 0600); err != nil {
			ln.Close()
			os.Remove(s.cfg.Addr)
			return fmt.Errorf("setting socket permissions: %w", err)
		}
	}
	s.listener = ln
	s.log.Info("host server listening",
		zap.String("network", s.cfg.Network),
		zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all open connections, then waits for the
// per-connection loops to drain.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.cfg.Network == "unix" {
		os.Remove(s.cfg.Addr)
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				conn.Close()
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	if s.cfg.Network == "unix" {
		ok, err := peerUIDMatchesCurrentUserFn(conn)
		if err != nil {
			wire.WriteMessage(conn, wire.Errorf("peer uid check failed"))
			return
		}
		if !ok {
			wire.WriteMessage(conn, wire.Errorf("peer uid mismatch"))
			return
		}
	}

	remote := conn.RemoteAddr().String()
	s.log.Debug("client connected", zap.String("remote", remote))
	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if errors.Is(err, wire.ErrFraming) || errors.Is(err, wire.ErrMalformedPayload) {
				// Framing is lost; answer once and drop the connection.
				wire.WriteMessage(conn, wire.Errorf("malformed request: %v", err))
				s.log.Warn("dropping client after malformed request",
					zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if s.cfg.RequestTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		}
		res := s.registry.Dispatch(ctx, req)
		cancel()

		if err := wire.WriteMessage(conn, res); err != nil {
			s.log.Warn("writing result failed", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

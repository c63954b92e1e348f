// Package server owns the bot-facing TCP listener and the per-connection
// dispatch loop.
package server

import (
	"bufio"
	"fmt"
	"net"

	"github.com/osaibot/osaibot/internal/config"
	"github.com/osaibot/osaibot/internal/logger"
	"github.com/osaibot/osaibot/internal/session"
)

// Server accepts bot connections and runs one session at a time per
// connection, restarting the session when the sandbox side dies.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
}

func New(cfg *config.Config, registry *session.Registry) *Server {
	return &Server{cfg: cfg, registry: registry}
}

// Serve blocks on the accept loop.
func (srv *Server) Serve() error {
	ln, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	logger.Infof("listening on %s", srv.cfg.ListenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		go srv.handleConn(conn)
	}
}

// handleConn drives sessions over one connection until the client goes away.
// The sandbox dying is a restart, not a goodbye: the client keeps its TCP
// connection and gets a fresh shell.
func (srv *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	logger.Infof("client connected from %s", conn.RemoteAddr())

	// Shared across restarts so buffered client bytes are not lost.
	br := bufio.NewReader(conn)

	for {
		s := session.New(conn, br, srv.cfg)
		srv.registry.Add(s)
		restart, err := s.Run()
		srv.registry.Remove(s)

		if err != nil {
			logger.Errorf("session %s ended: %v", s.ID, err)
			return
		}
		if !restart {
			return
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

// Package gateway provides the line-oriented TCP adapter over the chat service.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/cliquechat/clique/internal/chat"
)

// Server accepts TCP connections and hands each one to a Handler.
type Server struct {
	addr     string
	listener net.Listener
	service  *chat.Service
	mu       sync.RWMutex
}

// NewServer creates a new gateway server.
func NewServer(addr string, service *chat.Service) *Server {
	return &Server{
		addr:    addr,
		service: service,
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("gateway started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			slog.Debug("error closing listener", "error", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		handler := NewHandler(conn, s.service)
		go handler.Handle(ctx)
	}
}

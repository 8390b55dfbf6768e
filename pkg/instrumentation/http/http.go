// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http implements the HTTP server of simple-lmkd, with support
// for registering and unregistering handlers at runtime.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	logger "github.com/intel/simple-lmk/pkg/log"
)

// Our logger instance.
var log = logger.NewLogger("http")

// ServeMux is an HTTP request multiplexer with removable handlers.
type ServeMux struct {
	sync.RWMutex
	handlers map[string]http.Handler
	mux      *http.ServeMux
}

// NewServeMux creates a new HTTP request multiplexer.
func NewServeMux() *ServeMux {
	return &ServeMux{
		handlers: make(map[string]http.Handler),
		mux:      http.NewServeMux(),
	}
}

// Handle registers a handler for the given pattern.
func (m *ServeMux) Handle(pattern string, handler http.Handler) error {
	m.Lock()
	defer m.Unlock()

	if _, ok := m.handlers[pattern]; ok {
		return httpError("duplicate handler for %q", pattern)
	}

	log.Debug("registering handler for %q...", pattern)
	m.handlers[pattern] = handler
	m.mux.Handle(pattern, handler)

	return nil
}

// HandleFunc registers a handler function for the given pattern.
func (m *ServeMux) HandleFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) error {
	return m.Handle(pattern, http.HandlerFunc(fn))
}

// Unregister removes the handler for the given pattern.
func (m *ServeMux) Unregister(pattern string) (http.Handler, bool) {
	m.Lock()
	defer m.Unlock()

	h, ok := m.handlers[pattern]
	if !ok {
		return nil, false
	}

	log.Debug("unregistering handler for %q...", pattern)

	// http.ServeMux can't drop patterns, rebuild it without this one
	delete(m.handlers, pattern)
	m.mux = http.NewServeMux()
	for p, h := range m.handlers {
		m.mux.Handle(p, h)
	}

	return h, true
}

// ServeHTTP serves an HTTP request.
func (m *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.RLock()
	mux := m.mux
	m.RUnlock()

	log.Debug("serving %s %s...", r.Method, r.URL)
	mux.ServeHTTP(w, r)
}

// Server is an HTTP server serving a ServeMux.
type Server struct {
	sync.Mutex
	server *http.Server
	mux    *ServeMux
}

// NewServer creates a new server instance.
func NewServer() *Server {
	return &Server{mux: NewServeMux()}
}

// Mux returns the mux of this server.
func (s *Server) Mux() *ServeMux {
	return s.mux
}

// Address returns the address the server is listening on, or an empty
// string if it is not running.
func (s *Server) Address() string {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Start starts serving on the given address. An empty address disables
// the server.
func (s *Server) Start(addr string) error {
	if addr == "" {
		log.Info("HTTP server is disabled")
		return nil
	}

	s.Lock()
	defer s.Unlock()

	if s.server != nil {
		return httpError("server already running on %s", s.server.Addr)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %q", addr)
	}

	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("HTTP server listening on %s", s.server.Addr)

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed: %v", err)
		}
	}(s.server)

	return nil
}

// Stop closes the server immediately.
func (s *Server) Stop() {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		return
	}

	log.Info("stopping HTTP server...")
	s.server.Close()
	s.server = nil
}

// Shutdown shuts the server down gracefully, waiting for active
// requests until the context is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		return nil
	}

	log.Info("shutting down HTTP server...")
	err := s.server.Shutdown(ctx)
	s.server = nil

	return err
}

// Restart restarts the server on the given address.
func (s *Server) Restart(addr string) error {
	s.Stop()
	return s.Start(addr)
}

func httpError(format string, args ...interface{}) error {
	return fmt.Errorf("http: "+format, args...)
}

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

// Package instrumentation serves the metrics and control endpoints of
// simple-lmkd over HTTP.
package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	xhttp "github.com/intel/simple-lmk/pkg/instrumentation/http"
	logger "github.com/intel/simple-lmk/pkg/log"
	"github.com/intel/simple-lmk/pkg/metrics"
)

const (
	// PrometheusMetricsPath is the URL path for exposing metrics to Prometheus.
	PrometheusMetricsPath = "/metrics"
)

// Our logger instance.
var log = logger.NewLogger("instrumentation")

// Service is the instrumentation service.
type Service struct {
	sync.Mutex
	registry *metrics.Registry
	server   *xhttp.Server
	running  bool
}

// NewService creates an instrumentation service exposing the given registry.
func NewService(registry *metrics.Registry) *Service {
	return &Service{
		registry: registry,
		server:   xhttp.NewServer(),
	}
}

// Mux returns the HTTP request multiplexer of the service, for
// registering extra handlers.
func (s *Service) Mux() *xhttp.ServeMux {
	return s.server.Mux()
}

// Address returns the address the service is listening on.
func (s *Service) Address() string {
	return s.server.Address()
}

// Start starts serving on the given address.
func (s *Service) Start(addr string) error {
	s.Lock()
	defer s.Unlock()

	if s.running {
		return instrumentationError("service already running")
	}

	if s.registry != nil {
		handler := promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{
			ErrorLog:      promLogger{},
			ErrorHandling: promhttp.ContinueOnError,
		})
		if err := s.Mux().Handle(PrometheusMetricsPath, handler); err != nil {
			return instrumentationError("failed to register metrics handler: %v", err)
		}
	}

	if err := s.server.Start(addr); err != nil {
		s.Mux().Unregister(PrometheusMetricsPath)
		return instrumentationError("failed to start HTTP server: %v", err)
	}

	s.running = true
	return nil
}

// Stop stops the service, waiting for active requests until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.Lock()
	defer s.Unlock()

	if !s.running {
		return
	}

	if err := s.server.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown: %v", err)
	}
	s.Mux().Unregister(PrometheusMetricsPath)
	s.running = false
}

// promLogger passes promhttp errors to our logger.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	log.Error("%s", fmt.Sprint(v...))
}

func instrumentationError(format string, args ...interface{}) error {
	return fmt.Errorf("instrumentation: "+format, args...)
}

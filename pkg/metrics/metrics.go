// Copyright 2020 Intel Corporation. All Rights Reserved.
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

// Package metrics collects the prometheus collectors of simple-lmkd
// components into a single gatherer.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	logger "github.com/intel/simple-lmk/pkg/log"
)

// Namespace is the metrics namespace of simple-lmkd.
const Namespace = "simple_lmk"

// InitCollector is the type for functions that initialize collectors.
type InitCollector func() (prometheus.Collector, error)

// Registry is a registry of named collectors.
type Registry struct {
	sync.Mutex
	reg   *prometheus.Registry
	names map[string]prometheus.Collector
}

// Our logger instance.
var log = logger.NewLogger("metrics")

// NewRegistry creates a new registry, optionally with the Go runtime
// and process collectors registered.
func NewRegistry(runtime bool) *Registry {
	r := &Registry{
		reg:   prometheus.NewPedanticRegistry(),
		names: make(map[string]prometheus.Collector),
	}

	if runtime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
		)
	}

	return r
}

// Register registers the named collector. If the collector fails to
// initialize, it is skipped with an error logged.
func (r *Registry) Register(name string, init InitCollector) error {
	r.Lock()
	defer r.Unlock()

	log.Info("registering collector %s...", name)

	if _, found := r.names[name]; found {
		return metricsError("collector %s already registered", name)
	}

	c, err := init()
	if err != nil {
		log.Error("failed to initialize collector %s: %v, skipping it", name, err)
		return nil
	}

	if err := r.reg.Register(c); err != nil {
		return metricsError("failed to register collector %s: %v", name, err)
	}
	r.names[name] = c

	return nil
}

// MustRegister registers the named, already initialized collector, and
// panics on failure.
func (r *Registry) MustRegister(name string, c prometheus.Collector) {
	if err := r.Register(name, func() (prometheus.Collector, error) { return c, nil }); err != nil {
		panic(err)
	}
}

// Unregister unregisters the named collector.
func (r *Registry) Unregister(name string) bool {
	r.Lock()
	defer r.Unlock()

	c, ok := r.names[name]
	if !ok {
		return false
	}
	delete(r.names, name)

	return r.reg.Unregister(c)
}

// Names returns the names of the registered collectors.
func (r *Registry) Names() []string {
	r.Lock()
	defer r.Unlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Gatherer returns the gatherer for the registered collectors.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func metricsError(format string, args ...interface{}) error {
	return fmt.Errorf("metrics: "+format, args...)
}

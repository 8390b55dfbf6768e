// Copyright 2022 Intel Corporation. All Rights Reserved.
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

// Package control implements the HTTP control interface of the
// reclaim engine.
package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sigs.k8s.io/yaml"

	xhttp "github.com/intel/simple-lmk/pkg/instrumentation/http"
	"github.com/intel/simple-lmk/pkg/lmk"
	logger "github.com/intel/simple-lmk/pkg/log"
)

const (
	// MinfreePath is the path of the minfree parameter, writing which activates the engine.
	MinfreePath = "/lowmemorykiller/parameters/minfree"
	// StartPath starts periodic reclaim.
	StartPath = "/lmk/start"
	// StopPath stops periodic reclaim.
	StopPath = "/lmk/stop"
	// ReclaimPath runs an urgent reclaim pass.
	ReclaimPath = "/lmk/reclaim"
	// StatusPath reports the engine status.
	StatusPath = "/lmk/status"

	// maximum accepted minfree parameter size
	maxParamSize = 4096
)

// Engine is the reclaim engine under control.
type Engine interface {
	SetMinfree(value string) error
	StartPeriodic()
	StopPeriodic()
	ForceReclaim() lmk.Result
	Status() lmk.Status
}

// Control serves the control interface of an Engine.
type Control struct {
	engine Engine
}

// Our logger instance.
var log = logger.NewLogger("control")

// New creates a control interface for the given engine.
func New(engine Engine) *Control {
	return &Control{engine: engine}
}

// Register registers the control handlers with the given mux.
func (c *Control) Register(mux *xhttp.ServeMux) error {
	handlers := map[string]http.HandlerFunc{
		MinfreePath: c.minfree,
		StartPath:   c.start,
		StopPath:    c.stop,
		ReclaimPath: c.reclaim,
		StatusPath:  c.status,
	}
	for path, fn := range handlers {
		if err := mux.Handle(path, fn); err != nil {
			return controlError("failed to register handler %s: %v", path, err)
		}
	}
	return nil
}

// Unregister removes the control handlers from the given mux.
func (c *Control) Unregister(mux *xhttp.ServeMux) {
	for _, path := range []string{MinfreePath, StartPath, StopPath, ReclaimPath, StatusPath} {
		mux.Unregister(path)
	}
}

func (c *Control) minfree(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPut, http.MethodPost) {
		return
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxParamSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := c.engine.SetMinfree(strings.TrimSpace(string(buf))); err != nil {
		log.Error("minfree write failed: %v", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *Control) start(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	c.engine.StartPeriodic()
	c.reply(w, r, c.engine.Status())
}

func (c *Control) stop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	c.engine.StopPeriodic()
	c.reply(w, r, c.engine.Status())
}

func (c *Control) reclaim(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	c.reply(w, r, c.engine.ForceReclaim())
}

func (c *Control) status(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	c.reply(w, r, c.engine.Status())
}

// reply writes obj as JSON, or as YAML if the request asks for it.
func (c *Control) reply(w http.ResponseWriter, r *http.Request, obj interface{}) {
	var (
		data  []byte
		ctype string
		err   error
	)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		data, err = json.MarshalIndent(obj, "", "  ")
		ctype = "application/json"
	case "yaml":
		data, err = yaml.Marshal(obj)
		ctype = "application/yaml"
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}

	if err != nil {
		log.Error("failed to marshal reply: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctype)
	_, _ = w.Write(data)
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func controlError(format string, args ...interface{}) error {
	return fmt.Errorf("control: "+format, args...)
}

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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/intel/simple-lmk/pkg/config"
	logger "github.com/intel/simple-lmk/pkg/log"
	"github.com/intel/simple-lmk/pkg/version"
)

const (
	// maximum time to wait for the HTTP server to shut down
	shutdownTimeout = 5 * time.Second
)

func main() {
	log := logger.Default()
	defer logger.Flush()

	flag.Parse()

	if len(flag.Args()) != 0 {
		log.Error("unknown command-line arguments: %s", strings.Join(flag.Args(), ","))
		flag.Usage()
		os.Exit(1)
	}

	if opt.version {
		version.Get().Print(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load(opt.configFile)
	if err != nil {
		log.Fatal("failed to load configuration: %v", err)
	}
	applyOverrides(cfg)

	if opt.printConfig {
		fmt.Print(cfg.Dump())
		os.Exit(0)
	}

	if err := setupLogging(cfg.Logger); err != nil {
		log.Fatal("failed to set up logging: %v", err)
	}
	logger.SetupDebugToggleSignal(syscall.SIGUSR1)

	log.Info("starting %s %s (build %s)...", version.Get().Binary, version.Version, version.Build)
	log.DebugBlock("  <config> ", "%s", cfg.Dump())

	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatal("failed to set up: %v", err)
	}

	if err := d.start(); err != nil {
		d.stop(context.Background())
		log.Fatal("failed to start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)

	log.Info("received %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.stop(ctx)
}

// applyOverrides applies command line overrides to the configuration.
func applyOverrides(cfg *config.Config) {
	if isSet(optHTTPEndpoint) {
		cfg.HTTPEndpoint = opt.httpEndpoint
	}
	if isSet(optPidFile) {
		cfg.PidFile = opt.pidFile
	}
	if opt.activate {
		cfg.Activate = true
	}
}

// setupLogging applies logger configuration, unless overridden on the
// command line.
func setupLogging(cfg config.Logger) error {
	if !isSet("logger") && cfg.Backend != "" {
		if err := logger.SetBackend(cfg.Backend); err != nil {
			return err
		}
	}
	if !isSet("logger-level") && cfg.Level != "" {
		level, err := logger.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	if !isSet("logger-debug") && cfg.Debug != "" {
		if err := logger.SetDebug(cfg.Debug); err != nil {
			return err
		}
	}
	return nil
}

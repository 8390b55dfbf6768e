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
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/intel/simple-lmk/pkg/boost"
	"github.com/intel/simple-lmk/pkg/config"
	"github.com/intel/simple-lmk/pkg/control"
	"github.com/intel/simple-lmk/pkg/instrumentation"
	"github.com/intel/simple-lmk/pkg/lmk"
	"github.com/intel/simple-lmk/pkg/lmk/procset"
	logger "github.com/intel/simple-lmk/pkg/log"
	"github.com/intel/simple-lmk/pkg/metrics"
	"github.com/intel/simple-lmk/pkg/pidfile"
	"github.com/intel/simple-lmk/pkg/pressure"
	"github.com/intel/simple-lmk/pkg/sysfs"
	"github.com/intel/simple-lmk/pkg/version"
)

const (
	// oom_score_adj of processes the kernel OOM killer never picks
	oomScoreAdjMin = -1000
)

// Our logger instance.
var log = logger.NewLogger("simple-lmkd")

// daemon wires together the components of simple-lmkd.
type daemon struct {
	cfg      *config.Config
	pidfile  *pidfile.PidFile
	booster  *boost.Coordinator
	engine   *lmk.Engine
	monitor  *pressure.Monitor
	registry *metrics.Registry
	service  *instrumentation.Service
	control  *control.Control
}

// newDaemon creates all components for the given configuration.
func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{
		cfg:      cfg,
		pidfile:  pidfile.New(cfg.PidFile),
		registry: metrics.NewRegistry(true),
	}

	clk := clock.RealClock{}

	d.booster = boost.NewCoordinator(clk)
	d.setupBoost()

	procs, err := procset.New(procset.Options{Root: cfg.ProcRoot})
	if err != nil {
		return nil, err
	}

	tiers, err := lmk.NewTierTable(cfg.AdjBoundaries)
	if err != nil {
		return nil, err
	}

	d.engine, err = lmk.NewEngine(lmk.Options{
		Procs:            procs,
		Tiers:            tiers,
		Booster:          d.booster,
		Clock:            clk,
		MinFree:          uint64(cfg.MinFree),
		PageSize:         uint64(os.Getpagesize()),
		PeriodicInterval: cfg.PeriodicInterval.Duration(),
		UrgentInterval:   cfg.UrgentInterval.Duration(),
		BoostDuration:    cfg.BoostDuration.Duration(),
		Prepare:          d.protectSelf,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create reclaim engine")
	}

	if cfg.Pressure.Enabled {
		if d.monitor, err = d.newMonitor(clk); err != nil {
			return nil, err
		}
	}

	d.control = control.New(d.engine)
	d.service = instrumentation.NewService(d.registry)
	if err := d.control.Register(d.service.Mux()); err != nil {
		return nil, err
	}

	collectors := map[string]prometheus.Collector{
		"lmk":     d.engine.Collector(),
		"boost":   d.booster.Collector(),
		"version": version.Collector(metrics.Namespace),
	}
	if d.monitor != nil {
		collectors["pressure"] = d.monitor.Collector()
	}
	for name, c := range collectors {
		d.registry.MustRegister(name, c)
	}

	return d, nil
}

// setupBoost adds the configured boost classes. Unavailable ones are skipped.
func (d *daemon) setupBoost() {
	if d.cfg.Boost.CPUFreq {
		pin, err := boost.NewCPUFreqPin(d.cfg.Boost.CPUFreqRoot)
		if err != nil {
			log.Warn("CPU frequency boost unavailable: %v", err)
		} else if err := d.booster.AddClass(boost.ClassCPU, pin); err != nil {
			log.Warn("%v", err)
		}
	}

	if len(d.cfg.Boost.DevfreqDevices) > 0 {
		pin, err := boost.NewDevfreqPin(d.cfg.Boost.DevfreqRoot, d.cfg.Boost.DevfreqDevices)
		if err != nil {
			log.Warn("memory bus boost unavailable: %v", err)
		} else if err := d.booster.AddClass(boost.ClassMemBus, pin); err != nil {
			log.Warn("%v", err)
		}
	}
}

// newMonitor creates the memory pressure monitor, resolving watermarks
// against total memory.
func (d *daemon) newMonitor(clk clock.Clock) (*pressure.Monitor, error) {
	src, err := pressure.NewProcfsSource(d.cfg.ProcRoot)
	if err != nil {
		return nil, err
	}

	smp, err := src.Sample()
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample memory")
	}

	p := d.cfg.Pressure
	w := pressure.Watermarks{
		StartReclaim:     p.StartReclaim.Resolve(smp.Total),
		StopReclaim:      p.StopReclaim.Resolve(smp.Total),
		UrgentReclaim:    p.UrgentReclaim.Resolve(smp.Total),
		PSIFullThreshold: p.PSIFullThreshold,
	}

	log.Info("total memory %s, pressure watermarks resolved", units.BytesSize(float64(smp.Total)))

	return pressure.NewMonitor(pressure.Options{
		Source:       src,
		Reclaimer:    d.engine,
		Clock:        clk,
		PollInterval: p.PollInterval.Duration(),
		Watermarks:   w,
	})
}

// protectSelf exempts us from the kernel OOM killer.
func (d *daemon) protectSelf() error {
	root := d.cfg.ProcRoot
	if root == "" {
		root = procset.DefaultRoot
	}
	_, err := sysfs.WriteEntry(filepath.Join(root, "self"), "oom_score_adj", oomScoreAdjMin, nil)
	return err
}

// start starts all components.
func (d *daemon) start() error {
	if err := d.pidfile.Acquire(); err != nil {
		return err
	}

	if err := d.booster.Start(); err != nil {
		return errors.Wrap(err, "failed to start boost coordinator")
	}

	if err := d.service.Start(d.cfg.HTTPEndpoint); err != nil {
		return err
	}

	if d.cfg.Activate {
		if err := d.engine.Activate(); err != nil {
			log.Error("self activation failed: %v", err)
		}
	} else {
		log.Info("waiting for a minfree write at %s to activate", control.MinfreePath)
	}

	if d.monitor != nil {
		if err := d.monitor.Start(); err != nil {
			return errors.Wrap(err, "failed to start pressure monitor")
		}
	}

	return nil
}

// stop stops all components in reverse order of starting them.
func (d *daemon) stop(ctx context.Context) {
	var errs *multierror.Error

	if d.monitor != nil {
		d.monitor.Stop()
	}
	if err := d.engine.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	d.service.Stop(ctx)
	d.booster.Stop()
	if err := d.pidfile.Release(); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		log.Error("shutdown: %v", err)
	}
}

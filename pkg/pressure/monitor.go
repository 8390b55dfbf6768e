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

// Package pressure implements a memory pressure monitor which drives the
// periodic and urgent reclaim triggers of the reclaim engine.
package pressure

import (
	"fmt"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/intel/simple-lmk/pkg/lmk"
	logger "github.com/intel/simple-lmk/pkg/log"
)

const (
	// DefaultPollInterval is the default memory pressure polling interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// Reclaimer is the reclaim engine driven by the monitor.
type Reclaimer interface {
	StartPeriodic()
	StopPeriodic()
	PeriodicRunning() bool
	ForceReclaim() lmk.Result
}

// Watermarks are the available memory thresholds of the monitor, in bytes.
type Watermarks struct {
	// StartReclaim starts periodic reclaim when available memory drops below it.
	StartReclaim uint64
	// StopReclaim stops periodic reclaim when available memory rises above it.
	StopReclaim uint64
	// UrgentReclaim triggers urgent reclaim when available memory drops below it.
	UrgentReclaim uint64
	// PSIFullThreshold triggers urgent reclaim when full memory stall
	// average (avg10, percent) reaches it. 0 disables PSI triggering.
	PSIFullThreshold float64
}

// Options for a Monitor.
type Options struct {
	Source       Source
	Reclaimer    Reclaimer
	Clock        clock.Clock
	PollInterval time.Duration
	Watermarks   Watermarks
}

// Monitor polls memory pressure and triggers reclaim.
type Monitor struct {
	sync.Mutex
	opts       Options
	stop       chan struct{}
	done       chan struct{}
	reclaiming bool // periodic reclaim last started by us
	metrics    *metrics
}

// Our logger instances.
var (
	log  = logger.NewLogger("pressure")
	rlog = logger.RateLimit(log, logger.Interval(10*time.Second))
)

// NewMonitor creates a new memory pressure monitor.
func NewMonitor(opts Options) (*Monitor, error) {
	if opts.Source == nil || opts.Reclaimer == nil {
		return nil, pressureError("missing source or reclaimer")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	w := opts.Watermarks
	if w.StopReclaim < w.StartReclaim {
		return nil, pressureError("stop watermark %s below start watermark %s",
			units.BytesSize(float64(w.StopReclaim)), units.BytesSize(float64(w.StartReclaim)))
	}

	return &Monitor{
		opts:    opts,
		metrics: newMetrics(),
	}, nil
}

// Start starts polling memory pressure.
func (m *Monitor) Start() error {
	m.Lock()
	defer m.Unlock()

	if m.stop != nil {
		return pressureError("monitor already running")
	}

	w := m.opts.Watermarks
	log.Info("monitoring memory pressure every %v, watermarks start %s, stop %s, urgent %s, PSI full %.2f%%",
		m.opts.PollInterval, units.BytesSize(float64(w.StartReclaim)), units.BytesSize(float64(w.StopReclaim)),
		units.BytesSize(float64(w.UrgentReclaim)), w.PSIFullThreshold)

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stop, m.done)

	return nil
}

// Stop stops polling memory pressure and any periodic reclaim started by us.
func (m *Monitor) Stop() {
	m.Lock()
	defer m.Unlock()

	if m.stop == nil {
		return
	}

	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil

	if m.reclaiming && m.opts.Reclaimer.PeriodicRunning() {
		m.opts.Reclaimer.StopPeriodic()
	}
	m.reclaiming = false
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := m.opts.Clock.NewTimer(m.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C():
			m.poll()
			timer.Reset(m.opts.PollInterval)
		}
	}
}

// poll takes a single sample and acts on it.
func (m *Monitor) poll() {
	s, err := m.opts.Source.Sample()
	if err != nil {
		rlog.Error("failed to sample memory pressure: %v", err)
		return
	}

	m.metrics.sampled(s)
	w := m.opts.Watermarks

	// periodic reclaim may also be toggled through the control interface
	running := m.opts.Reclaimer.PeriodicRunning()
	if !running {
		m.reclaiming = false
	}

	switch {
	case !running && s.Available < w.StartReclaim:
		m.opts.Reclaimer.StartPeriodic()
		if m.reclaiming = m.opts.Reclaimer.PeriodicRunning(); m.reclaiming {
			log.Info("available memory %s below %s, started periodic reclaim",
				units.BytesSize(float64(s.Available)), units.BytesSize(float64(w.StartReclaim)))
		} else {
			rlog.Warn("available memory %s below %s, but reclaim is not active",
				units.BytesSize(float64(s.Available)), units.BytesSize(float64(w.StartReclaim)))
		}
	case running && m.reclaiming && s.Available > w.StopReclaim:
		log.Info("available memory %s above %s, stopping periodic reclaim",
			units.BytesSize(float64(s.Available)), units.BytesSize(float64(w.StopReclaim)))
		m.opts.Reclaimer.StopPeriodic()
		m.reclaiming = false
	}

	reason := ""
	switch {
	case s.Available < w.UrgentReclaim:
		reason = "low-memory"
	case s.HavePSI && w.PSIFullThreshold > 0 && s.FullAvg10 >= w.PSIFullThreshold:
		reason = "psi"
	default:
		return
	}

	res := m.opts.Reclaimer.ForceReclaim()
	m.metrics.urgent(reason, res.Outcome)
	if res.Outcome == lmk.OutcomeReclaimed {
		log.Debug("urgent reclaim (%s) freed %d pages", reason, res.PagesFreed)
	}
}

// Collector returns the prometheus collector for pressure metrics.
func (m *Monitor) Collector() prometheus.Collector {
	return m.metrics
}

func pressureError(format string, args ...interface{}) error {
	return fmt.Errorf("pressure: "+format, args...)
}

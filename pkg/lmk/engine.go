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

package lmk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logger "github.com/intel/simple-lmk/pkg/log"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	// StateUninitialized is the state before activation.
	StateUninitialized State = iota
	// StateActive is the state after a successful activation.
	StateActive
	// StateFailed is the state after a failed activation.
	StateFailed
)

// Trigger identifies what requested a reclaim pass.
type Trigger int

const (
	// TriggerPeriodic is the periodic background trigger.
	TriggerPeriodic Trigger = iota
	// TriggerUrgent is the synchronous out-of-memory trigger.
	TriggerUrgent
)

// Outcome is the outcome of a reclaim trigger.
type Outcome int

const (
	// OutcomeInactive means the engine was not active.
	OutcomeInactive Outcome = iota
	// OutcomeContended means another reclaim pass was in progress.
	OutcomeContended
	// OutcomeRateLimited means the last reclaim was too recent.
	OutcomeRateLimited
	// OutcomeReclaimed means a reclaim pass was run.
	OutcomeReclaimed
)

// Result describes the outcome of a single reclaim trigger.
type Result struct {
	Trigger    Trigger       `json:"trigger"`
	Outcome    Outcome       `json:"outcome"`
	PagesFreed uint64        `json:"pagesFreed"`
	FreedMiB   uint64        `json:"freedMiB"`
	Victims    []Victim      `json:"victims,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// Status is a snapshot of the engine state.
type Status struct {
	State        State   `json:"state"`
	Periodic     bool    `json:"periodic"`
	MinFreePages uint64  `json:"minFreePages"`
	Tiers        []Tier  `json:"tiers"`
	LastResult   *Result `json:"lastResult,omitempty"`
}

// Engine is the low-memory reclaim engine.
type Engine struct {
	opts    Options
	minfree uint64 // pages reclaimed per pass
	state   atomic.Int32
	metrics *metrics

	reclaimLock sync.Mutex // serializes reclaim passes
	lastReclaim time.Time  // protected by reclaimLock

	lifecycle sync.Mutex    // protects activation and periodic worker
	stop      chan struct{} // stop channel of the periodic worker
	done      chan struct{} // closed when the periodic worker exits
	running   atomic.Bool   // periodic worker running, readable without lifecycle

	statusLock sync.Mutex
	lastResult *Result
}

// Our logger instance.
var log = logger.NewLogger("lmk")

// rate-limited logger for the urgent path
var rlog = logger.RateLimit(log, logger.Interval(5*time.Second))

// NewEngine creates a new, inactive reclaim engine.
func NewEngine(opts Options) (*Engine, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:    o,
		minfree: o.MinFree / o.PageSize,
		metrics: newMetrics(),
	}

	log.Info("created engine, minfree %d pages, tiers %s", e.minfree, o.Tiers)

	return e, nil
}

// SetMinfree activates the engine on first use. The value is ignored,
// victims are chosen by the tier table and the configured minfree.
func (e *Engine) SetMinfree(value string) error {
	log.Debug("minfree written: %q", value)
	return e.Activate()
}

// Activate activates the engine. Only the first call has any effect.
func (e *Engine) Activate() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	switch e.State() {
	case StateActive:
		return nil
	case StateFailed:
		return lmkError("activation failed earlier, engine permanently inactive")
	}

	if e.opts.Prepare != nil {
		if err := e.opts.Prepare(); err != nil {
			e.state.Store(int32(StateFailed))
			log.Error("activation failed, engine permanently inactive: %v", err)
			return lmkError("activation failed: %v", err)
		}
	}

	e.state.Store(int32(StateActive))
	log.Info("activated")

	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsActive checks if the engine is active.
func (e *Engine) IsActive() bool {
	return e.State() == StateActive
}

// StartPeriodic starts periodic reclaim if it is not running yet.
func (e *Engine) StartPeriodic() {
	if !e.IsActive() {
		return
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.stop != nil {
		return
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.periodic(e.stop, e.done)
	e.running.Store(true)

	log.Debug("periodic reclaim started")
}

// StopPeriodic stops periodic reclaim, waiting for any pass in progress.
func (e *Engine) StopPeriodic() {
	if !e.IsActive() {
		return
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.stop == nil {
		return
	}

	close(e.stop)
	<-e.done
	e.stop, e.done = nil, nil
	e.running.Store(false)

	log.Debug("periodic reclaim stopped")
}

// PeriodicRunning checks if periodic reclaim is running. It never
// waits for a pending StopPeriodic.
func (e *Engine) PeriodicRunning() bool {
	return e.running.Load()
}

// periodic is the periodic reclaim worker.
func (e *Engine) periodic(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := e.opts.Clock.NewTimer(e.opts.PeriodicInterval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C():
			e.periodicReclaim()
			timer.Reset(e.opts.PeriodicInterval)
		}
	}
}

// periodicReclaim runs a single periodic trigger.
func (e *Engine) periodicReclaim() Result {
	e.reclaimLock.Lock()

	now := e.opts.Clock.Now()
	if !e.elapsed(now, e.opts.PeriodicInterval) {
		e.reclaimLock.Unlock()
		e.metrics.triggered(TriggerPeriodic, OutcomeRateLimited)
		return Result{Trigger: TriggerPeriodic, Outcome: OutcomeRateLimited}
	}

	res := e.reclaim(request{pagesNeeded: e.minfree, trigger: TriggerPeriodic, issuedAt: now})
	e.reclaimLock.Unlock()

	e.finish(res)
	if res.FreedMiB > 0 {
		log.Info("periodic: freed %d MiB", res.FreedMiB)
	}

	return res
}

// ForceReclaim runs an urgent reclaim pass. It never blocks on another
// pass in progress and is rate limited by the urgent interval.
func (e *Engine) ForceReclaim() Result {
	if !e.IsActive() {
		e.metrics.triggered(TriggerUrgent, OutcomeInactive)
		return Result{Trigger: TriggerUrgent, Outcome: OutcomeInactive}
	}

	if !e.reclaimLock.TryLock() {
		rlog.Debug("urgent reclaim skipped, reclaim in progress")
		e.metrics.triggered(TriggerUrgent, OutcomeContended)
		return Result{Trigger: TriggerUrgent, Outcome: OutcomeContended}
	}

	now := e.opts.Clock.Now()
	if !e.elapsed(now, e.opts.UrgentInterval) {
		e.reclaimLock.Unlock()
		rlog.Debug("urgent reclaim skipped, last reclaim too recent")
		e.metrics.triggered(TriggerUrgent, OutcomeRateLimited)
		return Result{Trigger: TriggerUrgent, Outcome: OutcomeRateLimited}
	}

	res := e.reclaim(request{pagesNeeded: e.minfree, trigger: TriggerUrgent, issuedAt: now})
	e.reclaimLock.Unlock()

	e.finish(res)
	if res.FreedMiB > 0 {
		log.Info("urgent: freed %d MiB", res.FreedMiB)
	}

	return res
}

// finish records the result of a completed reclaim pass.
func (e *Engine) finish(res Result) {
	e.metrics.triggered(res.Trigger, res.Outcome)

	e.statusLock.Lock()
	defer e.statusLock.Unlock()
	e.lastResult = &res
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	s := Status{
		State:        e.State(),
		Periodic:     e.PeriodicRunning(),
		MinFreePages: e.minfree,
		Tiers:        e.opts.Tiers.Tiers(),
	}

	e.statusLock.Lock()
	defer e.statusLock.Unlock()
	if e.lastResult != nil {
		res := *e.lastResult
		s.LastResult = &res
	}

	return s
}

// Collector returns the prometheus collector for engine metrics.
func (e *Engine) Collector() prometheus.Collector {
	return e.metrics
}

// Close stops periodic reclaim.
func (e *Engine) Close() error {
	e.StopPeriodic()
	return nil
}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("<unknown state %d>", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (t Trigger) String() string {
	switch t {
	case TriggerPeriodic:
		return "periodic"
	case TriggerUrgent:
		return "urgent"
	}
	return fmt.Sprintf("<unknown trigger %d>", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (o Outcome) String() string {
	switch o {
	case OutcomeInactive:
		return "inactive"
	case OutcomeContended:
		return "contended"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeReclaimed:
		return "reclaimed"
	}
	return fmt.Sprintf("<unknown outcome %d>", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func lmkError(format string, args ...interface{}) error {
	return fmt.Errorf("lmk: "+format, args...)
}

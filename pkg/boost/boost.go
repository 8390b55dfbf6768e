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

// Package boost implements coalescing of time-limited max boost requests.
// Each boost class is boosted by its own worker until the latest
// requested expiry passes.
package boost

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	logger "github.com/intel/simple-lmk/pkg/log"
)

// Class is a boostable resource class.
type Class string

const (
	// ClassCPU is the CPU frequency boost class.
	ClassCPU Class = "cpu"
	// ClassMemBus is the memory bus (devfreq) boost class.
	ClassMemBus Class = "membus"
)

// Actuator boosts and unboosts a resource.
type Actuator interface {
	// Boost boosts the resource to its maximum.
	Boost() error
	// Unboost restores the resource from its boosted state.
	Unboost() error
}

// Coordinator coalesces boost requests for a set of boost classes.
type Coordinator struct {
	sync.Mutex
	clock    clock.Clock
	boosters []*booster
	metrics  *metrics
	stop     chan struct{}
	wg       sync.WaitGroup
}

// booster tracks the boost state of a single class.
type booster struct {
	class    Class
	actuator Actuator
	clock    clock.Clock
	metrics  *metrics
	expires  atomic.Int64 // expiry of max boost, in UnixNano
	boosted  atomic.Bool
	kick     chan struct{}
}

// Our logger instance.
var log = logger.NewLogger("boost")

// NewCoordinator creates a boost coordinator using the given clock, or the real one if nil.
func NewCoordinator(clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Coordinator{
		clock:   clk,
		metrics: newMetrics(),
	}
}

// AddClass adds a boost class with the given actuator. Classes can only
// be added before the coordinator is started.
func (c *Coordinator) AddClass(class Class, actuator Actuator) error {
	c.Lock()
	defer c.Unlock()

	if c.stop != nil {
		return boostError("can't add class %s, coordinator already running", class)
	}
	for _, b := range c.boosters {
		if b.class == class {
			return boostError("class %s already added", class)
		}
	}

	c.boosters = append(c.boosters, &booster{
		class:    class,
		actuator: actuator,
		clock:    c.clock,
		metrics:  c.metrics,
		kick:     make(chan struct{}, 1),
	})

	return nil
}

// Start starts the per-class boost workers.
func (c *Coordinator) Start() error {
	c.Lock()
	defer c.Unlock()

	if c.stop != nil {
		return boostError("coordinator already running")
	}

	c.stop = make(chan struct{})
	for _, b := range c.boosters {
		c.wg.Add(1)
		go b.run(c.stop, &c.wg)
	}

	log.Info("started, %d boost classes", len(c.boosters))

	return nil
}

// Stop stops the boost workers, unboosting any boosted classes.
func (c *Coordinator) Stop() {
	c.Lock()
	defer c.Unlock()

	if c.stop == nil {
		return
	}

	close(c.stop)
	c.wg.Wait()
	c.stop = nil
}

// KickMax requests maximum boost for all classes for at least the
// given duration. It never blocks.
func (c *Coordinator) KickMax(duration time.Duration) {
	for _, b := range c.boosters {
		b.kickMax(duration)
	}
}

// Expiry returns the expiry of max boost for the given class.
func (c *Coordinator) Expiry(class Class) time.Time {
	if b := c.booster(class); b != nil {
		if ns := b.expires.Load(); ns != 0 {
			return time.Unix(0, ns)
		}
	}
	return time.Time{}
}

// Boosted checks if the given class is currently boosted.
func (c *Coordinator) Boosted(class Class) bool {
	if b := c.booster(class); b != nil {
		return b.boosted.Load()
	}
	return false
}

func (c *Coordinator) booster(class Class) *booster {
	for _, b := range c.boosters {
		if b.class == class {
			return b
		}
	}
	return nil
}

// kickMax commits a new expiry unless a later one is already in effect,
// then wakes up the worker.
func (b *booster) kickMax(duration time.Duration) {
	newExpires := b.clock.Now().Add(duration).UnixNano()

	for {
		curr := b.expires.Load()
		if curr > newExpires {
			b.metrics.kicked(b.class, "coalesced")
			return
		}
		if b.expires.CompareAndSwap(curr, newExpires) {
			break
		}
	}

	b.metrics.kicked(b.class, "committed")

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// remaining returns the time left until the current expiry.
func (b *booster) remaining() time.Duration {
	return time.Duration(b.expires.Load() - b.clock.Now().UnixNano())
}

// run is the boost worker of a class.
func (b *booster) run(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	var (
		timer  clock.Timer
		expiry <-chan time.Time
	)

	arm := func(d time.Duration) {
		if timer == nil {
			timer = b.clock.NewTimer(d)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
			timer.Reset(d)
		}
		expiry = timer.C()
	}

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			if b.boosted.Load() {
				b.unboost()
			}
			return

		case <-b.kick:
			d := b.remaining()
			if d <= 0 {
				continue
			}
			if !b.boosted.Load() {
				b.boost()
			}
			arm(d)

		case <-expiry:
			if d := b.remaining(); d > 0 {
				arm(d)
				continue
			}
			expiry = nil
			if b.boosted.Load() {
				b.unboost()
			}
		}
	}
}

// boost engages the actuator. On failure any partially applied boost is
// rolled back and the class stays unboosted, so the next kick retries.
func (b *booster) boost() {
	if err := b.actuator.Boost(); err != nil {
		log.Error("failed to boost %s: %v", b.class, err)
		b.metrics.failed(b.class)
		if err := b.actuator.Unboost(); err != nil {
			log.Error("failed to roll back %s boost: %v", b.class, err)
		}
		return
	}
	log.Debug("%s boosted", b.class)
	b.metrics.setBoosted(b.class, true)
	b.boosted.Store(true)
}

func (b *booster) unboost() {
	if err := b.actuator.Unboost(); err != nil {
		log.Error("failed to unboost %s: %v", b.class, err)
		b.metrics.failed(b.class)
	}
	log.Debug("%s unboosted", b.class)
	b.metrics.setBoosted(b.class, false)
	b.boosted.Store(false)
}

func boostError(format string, args ...interface{}) error {
	return fmt.Errorf("boost: "+format, args...)
}

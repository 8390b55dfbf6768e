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
	"os"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultMinFree is the amount of memory reclaimed per reclaim pass.
	DefaultMinFree = 128 << 20
	// DefaultPeriodicInterval is the interval of periodic reclaim,
	// also the minimum spacing of periodic reclaim passes.
	DefaultPeriodicInterval = time.Second
	// DefaultUrgentInterval is the minimum spacing of urgent reclaim passes.
	DefaultUrgentInterval = 200 * time.Millisecond
	// DefaultBoostDuration is the duration of the boost kicked per pass.
	DefaultBoostDuration = 250 * time.Millisecond
)

// Options for creating an Engine.
type Options struct {
	// Procs is the process set to pick victims from.
	Procs ProcessSet
	// Tiers is the tier table, DefaultAdjBoundaries if nil.
	Tiers *TierTable
	// Booster is kicked before each reclaim pass.
	Booster Booster
	// Clock is used for timing, the real clock if nil.
	Clock clock.Clock
	// MinFree is the number of bytes to reclaim per pass.
	MinFree uint64
	// PageSize is the size of a memory page in bytes.
	PageSize uint64
	// PeriodicInterval is the periodic trigger interval and rate limit.
	PeriodicInterval time.Duration
	// UrgentInterval is the urgent trigger rate limit.
	UrgentInterval time.Duration
	// BoostDuration is the duration of boost kicked per pass.
	BoostDuration time.Duration
	// Prepare, if set, is run once at activation. If it fails the
	// engine stays permanently inactive.
	Prepare func() error
}

// withDefaults fills in defaults for unset options.
func (o Options) withDefaults() (Options, error) {
	if o.Procs == nil {
		return o, lmkError("no process set given")
	}
	if o.Tiers == nil {
		tiers, err := NewTierTable(DefaultAdjBoundaries)
		if err != nil {
			return o, err
		}
		o.Tiers = tiers
	}
	if o.Booster == nil {
		o.Booster = nopBooster{}
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.PageSize == 0 {
		o.PageSize = uint64(os.Getpagesize())
	}
	if o.MinFree == 0 {
		o.MinFree = DefaultMinFree
	}
	if o.MinFree < o.PageSize {
		return o, lmkError("minfree %d is smaller than page size %d", o.MinFree, o.PageSize)
	}
	if o.PeriodicInterval <= 0 {
		o.PeriodicInterval = DefaultPeriodicInterval
	}
	if o.UrgentInterval <= 0 {
		o.UrgentInterval = DefaultUrgentInterval
	}
	if o.BoostDuration <= 0 {
		o.BoostDuration = DefaultBoostDuration
	}
	return o, nil
}

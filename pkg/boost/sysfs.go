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

package boost

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/intel/simple-lmk/pkg/sysfs"
)

const (
	// DefaultCPUFreqRoot is the default cpufreq sysfs directory.
	DefaultCPUFreqRoot = "/sys/devices/system/cpu/cpufreq"
	// DefaultDevfreqRoot is the default devfreq sysfs directory.
	DefaultDevfreqRoot = "/sys/class/devfreq"
)

// FreqPin is an Actuator which boosts frequency domains by pinning
// their minimum frequency to the maximum.
type FreqPin struct {
	sync.Mutex
	dirs     []string
	minEntry string
	maxEntry string
	saved    map[string]uint64
}

var _ Actuator = &FreqPin{}

// NewCPUFreqPin creates a FreqPin for all cpufreq policies under root.
func NewCPUFreqPin(root string) (*FreqPin, error) {
	if root == "" {
		root = DefaultCPUFreqRoot
	}
	dirs, err := sysfs.ListEnumerated(root, "policy")
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, boostError("no cpufreq policies found under %s", root)
	}
	return newFreqPin(dirs, "scaling_min_freq", "scaling_max_freq"), nil
}

// NewDevfreqPin creates a FreqPin for the given devfreq devices under root.
func NewDevfreqPin(root string, devices []string) (*FreqPin, error) {
	if root == "" {
		root = DefaultDevfreqRoot
	}
	if len(devices) == 0 {
		return nil, boostError("no devfreq devices given")
	}
	dirs := make([]string, 0, len(devices))
	for _, dev := range devices {
		dir := filepath.Join(root, dev)
		if _, err := os.Stat(dir); err != nil {
			return nil, boostError("devfreq device %s: %v", dev, err)
		}
		dirs = append(dirs, dir)
	}
	return newFreqPin(dirs, "min_freq", "max_freq"), nil
}

func newFreqPin(dirs []string, minEntry, maxEntry string) *FreqPin {
	return &FreqPin{
		dirs:     dirs,
		minEntry: minEntry,
		maxEntry: maxEntry,
		saved:    make(map[string]uint64),
	}
}

// Boost pins the minimum frequency of all domains to their maximum.
func (p *FreqPin) Boost() error {
	p.Lock()
	defer p.Unlock()

	var errs *multierror.Error
	for _, dir := range p.dirs {
		var max, old uint64
		if _, err := sysfs.ReadEntry(dir, p.maxEntry, &max); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, err := sysfs.WriteEntry(dir, p.minEntry, max, &old); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, ok := p.saved[dir]; !ok {
			p.saved[dir] = old
		}
	}

	return errs.ErrorOrNil()
}

// Unboost restores the saved minimum frequencies.
func (p *FreqPin) Unboost() error {
	p.Lock()
	defer p.Unlock()

	var errs *multierror.Error
	for dir, old := range p.saved {
		if _, err := sysfs.WriteEntry(dir, p.minEntry, old, nil); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		delete(p.saved, dir)
	}

	return errs.ErrorOrNil()
}

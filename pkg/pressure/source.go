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

package pressure

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// Sample is a single memory pressure sample.
type Sample struct {
	// Total is the total amount of memory in bytes.
	Total uint64
	// Available is the amount of available memory in bytes.
	Available uint64
	// HavePSI is true if the PSI fields are valid.
	HavePSI bool
	// FullAvg10 is the 10 second average of full memory stall, in percent.
	FullAvg10 float64
	// SomeAvg10 is the 10 second average of some memory stall, in percent.
	SomeAvg10 float64
}

// Source provides memory pressure samples.
type Source interface {
	Sample() (Sample, error)
}

// ProcfsSource samples memory pressure from a procfs mount.
type ProcfsSource struct {
	fs     procfs.FS
	warned bool
}

// NewProcfsSource creates a Source for the given procfs mount point.
func NewProcfsSource(root string) (*ProcfsSource, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open procfs at %q", root)
	}
	return &ProcfsSource{fs: fs}, nil
}

// Sample takes a sample of memory pressure.
func (s *ProcfsSource) Sample() (Sample, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return Sample{}, errors.Wrap(err, "failed to read meminfo")
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil {
		return Sample{}, errors.New("meminfo lacks MemTotal or MemAvailable")
	}

	smp := Sample{
		Total:     *mi.MemTotal * 1024,
		Available: *mi.MemAvailable * 1024,
	}

	psi, err := s.fs.PSIStatsForResource("memory")
	if err != nil {
		if !s.warned {
			log.Warn("memory PSI not available: %v", err)
			s.warned = true
		}
		return smp, nil
	}
	if psi.Full != nil {
		smp.HavePSI = true
		smp.FullAvg10 = psi.Full.Avg10
	}
	if psi.Some != nil {
		smp.SomeAvg10 = psi.Some.Avg10
	}

	return smp, nil
}

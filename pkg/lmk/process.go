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

import "time"

// ProcessSet is the set of live processes victims are selected from.
type ProcessSet interface {
	// Walk calls fn for each process of a fresh snapshot, until fn returns false.
	Walk(fn func(Process) bool) error
}

// Process is a single process of a ProcessSet.
type Process interface {
	// PID returns the process ID.
	PID() int
	// IsSelf checks if the process is the one running the reclaimer.
	IsSelf() bool
	// IsKernelThread checks if the process is a kernel thread.
	IsKernelThread() bool
	// Lock locks the process for inspection. It returns false, with
	// the process left unlocked, if the process has no memory context.
	Lock() (Task, bool)
}

// Task is a locked process. Its state is only consistent while locked,
// but signaling and scheduling also work after Unlock. Release must be
// called once the task is no longer needed.
type Task interface {
	// KillSent checks if a kill has already been sent by the reclaimer.
	KillSent() bool
	// MarkedForDeath checks if the process is already exiting.
	MarkedForDeath() bool
	// Importance returns the process importance (oom_score_adj).
	Importance() int
	// ResidentPages returns the resident memory footprint in pages.
	ResidentPages() uint64
	// Unlock unlocks the process.
	Unlock()
	// Kill sends a forced termination signal to the process.
	Kill() error
	// MarkKillSent flags the process as having a kill outstanding.
	MarkKillSent()
	// Prioritize moves the process to the highest real-time scheduling class.
	Prioritize() error
	// Release releases any resources held for the task.
	Release()
}

// Booster accelerates victim teardown by temporarily boosting the system.
type Booster interface {
	// KickMax requests maximum boost for at least the given duration.
	KickMax(duration time.Duration)
}

type nopBooster struct{}

func (nopBooster) KickMax(time.Duration) {}

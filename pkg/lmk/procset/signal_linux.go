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

package procset

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// realtime priority given to victims, MAX_RT_PRIO-1
	victimRTPriority = 99
)

// Signaler opens processes for signaling.
type Signaler interface {
	// Open opens the process with the given PID.
	Open(pid int) (Target, error)
}

// Target is an opened process.
type Target interface {
	// Kill sends SIGKILL to the process.
	Kill() error
	// SetRealtime moves the process to SCHED_FIFO with the highest priority.
	SetRealtime() error
	// Close releases the process.
	Close() error
}

// PidfdSignaler signals processes using pidfds, falling back to plain
// PIDs if pidfds are not supported by the kernel.
type PidfdSignaler struct {
	noPidfd atomic.Bool
}

type pidfdTarget struct {
	pid int
	fd  int
}

type pidTarget struct {
	pid int
}

// Open opens a pidfd for the given process.
func (s *PidfdSignaler) Open(pid int) (Target, error) {
	if !s.noPidfd.Load() {
		fd, err := unix.PidfdOpen(pid, 0)
		switch {
		case err == nil:
			return &pidfdTarget{pid: pid, fd: fd}, nil
		case errors.Is(err, unix.ENOSYS):
			log.Warn("pidfds not supported, falling back to signaling by PID")
			s.noPidfd.Store(true)
		default:
			return nil, errors.Wrapf(err, "failed to open pidfd for %d", pid)
		}
	}
	return &pidTarget{pid: pid}, nil
}

func (t *pidfdTarget) Kill() error {
	if err := unix.PidfdSendSignal(t.fd, unix.SIGKILL, nil, 0); err != nil {
		return errors.Wrapf(err, "failed to send SIGKILL to %d", t.pid)
	}
	return nil
}

func (t *pidfdTarget) SetRealtime() error {
	return setRealtime(t.pid)
}

func (t *pidfdTarget) Close() error {
	return unix.Close(t.fd)
}

func (t *pidTarget) Kill() error {
	if err := unix.Kill(t.pid, unix.SIGKILL); err != nil {
		return errors.Wrapf(err, "failed to send SIGKILL to %d", t.pid)
	}
	return nil
}

func (t *pidTarget) SetRealtime() error {
	return setRealtime(t.pid)
}

func (t *pidTarget) Close() error {
	return nil
}

func setRealtime(pid int) error {
	attr := &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: victimRTPriority,
	}
	if err := unix.SchedSetAttr(pid, attr, 0); err != nil {
		return errors.Wrapf(err, "failed to set SCHED_FIFO for %d", pid)
	}
	return nil
}

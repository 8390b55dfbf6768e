// Copyright 2021 Intel Corporation. All Rights Reserved.
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

// Package pidfile implements an exclusive PID file, which makes sure
// only a single instance of the daemon is running.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PidFile is a PID file held by this process.
type PidFile struct {
	path string
	file *os.File
}

// New creates a PidFile for the given path.
func New(path string) *PidFile {
	return &PidFile{path: path}
}

// Path returns the path of the PID file.
func (p *PidFile) Path() string {
	return p.path
}

// Acquire creates the PID file and writes os.Getpid() to it. If the
// file exists and is owned by a live process Acquire fails. A stale
// PID file, left behind by a process that is gone, is replaced.
func (p *PidFile) Acquire() error {
	if p.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create PID file directory")
	}

	owner, err := p.Owner()
	if err != nil {
		return err
	}
	if owner > 0 && owner != os.Getpid() {
		return errors.Errorf("PID file %s held by running process %d", p.path, owner)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove stale PID file")
	}

	file, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}

	if _, err = file.Write([]byte(fmt.Sprintf("%d\n", os.Getpid()))); err != nil {
		file.Close()
		os.Remove(p.path)
		return errors.Wrap(err, "failed to write PID file")
	}

	p.file = file
	return nil
}

// Read reads the PID in the PID file. It returns 0 if the file does not exist.
func (p *PidFile) Read() (int, error) {
	buf, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, errors.Wrap(err, "failed to read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return -1, errors.Wrapf(err, "invalid PID (%q) in PID file", string(buf))
	}

	return pid, nil
}

// Owner returns the PID of the live process owning the PID file, or 0
// if no live process owns it.
func (p *PidFile) Owner() (int, error) {
	pid, err := p.Read()
	if err != nil || pid <= 0 {
		return 0, nil
	}

	switch err := unix.Kill(pid, 0); err {
	case nil, unix.EPERM:
		return pid, nil
	case unix.ESRCH:
		return 0, nil
	default:
		return -1, errors.Wrapf(err, "failed to check process %d", pid)
	}
}

// Release closes and removes the PID file if it is held by us.
func (p *PidFile) Release() error {
	if p.file == nil {
		return nil
	}
	p.file.Close()
	p.file = nil

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove PID file")
	}
	return nil
}

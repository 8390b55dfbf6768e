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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"github.com/intel/simple-lmk/pkg/lmk"
	logger "github.com/intel/simple-lmk/pkg/log"
)

const (
	// DefaultRoot is the default procfs mount point.
	DefaultRoot = procfs.DefaultMountPoint

	// PF_EXITING, process is getting shut down
	pfExiting = 0x00000004
	// PF_KTHREAD, process is a kernel thread
	pfKthread = 0x00200000
)

// Options for a ProcessSet.
type Options struct {
	// Root is the procfs mount point.
	Root string
	// SelfPID is the PID of the reclaimer itself.
	SelfPID int
	// Signaler is used to signal and reschedule victims.
	Signaler Signaler
}

// ProcessSet is an lmk.ProcessSet of the processes in a procfs mount.
type ProcessSet struct {
	sync.Mutex
	fs       procfs.FS
	root     string
	self     int
	signaler Signaler
	locks    map[int]*sync.Mutex  // per-PID locks
	killed   map[procKey]struct{} // processes with a kill outstanding
}

// procKey identifies a process across PID reuse.
type procKey struct {
	pid   int
	start uint64
}

// process is a process in a snapshot of a ProcessSet.
type process struct {
	set  *ProcessSet
	key  procKey
	stat procfs.ProcStat
}

// task is a locked process.
type task struct {
	p      *process
	lock   *sync.Mutex
	stat   procfs.ProcStat
	adj    int
	target Target
}

var _ lmk.ProcessSet = &ProcessSet{}

// Our logger instance.
var log = logger.NewLogger("procset")

// New creates a new process set.
func New(opts Options) (*ProcessSet, error) {
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.SelfPID == 0 {
		opts.SelfPID = os.Getpid()
	}
	if opts.Signaler == nil {
		opts.Signaler = &PidfdSignaler{}
	}

	fs, err := procfs.NewFS(opts.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open procfs at %q", opts.Root)
	}

	return &ProcessSet{
		fs:       fs,
		root:     opts.Root,
		self:     opts.SelfPID,
		signaler: opts.Signaler,
		locks:    make(map[int]*sync.Mutex),
		killed:   make(map[procKey]struct{}),
	}, nil
}

// Walk calls fn for the processes of a fresh snapshot, until fn returns false.
func (s *ProcessSet) Walk(fn func(lmk.Process) bool) error {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return errors.Wrap(err, "failed to list processes")
	}

	snapshot := make([]*process, 0, len(procs))
	for _, proc := range procs {
		stat, err := proc.Stat()
		if err != nil {
			// gone since listing
			continue
		}
		snapshot = append(snapshot, &process{
			set:  s,
			key:  procKey{pid: proc.PID, start: stat.Starttime},
			stat: stat,
		})
	}

	s.prune(snapshot)

	for _, p := range snapshot {
		if !fn(p) {
			break
		}
	}

	return nil
}

// prune forgets state of processes not present in the snapshot.
func (s *ProcessSet) prune(snapshot []*process) {
	alive := make(map[procKey]struct{}, len(snapshot))
	pids := make(map[int]struct{}, len(snapshot))
	for _, p := range snapshot {
		alive[p.key] = struct{}{}
		pids[p.key.pid] = struct{}{}
	}

	s.Lock()
	defer s.Unlock()

	for key := range s.killed {
		if _, ok := alive[key]; !ok {
			log.Debug("forgetting exited victim %d", key.pid)
			delete(s.killed, key)
		}
	}
	for pid, lock := range s.locks {
		if _, ok := pids[pid]; !ok && lock.TryLock() {
			delete(s.locks, pid)
			lock.Unlock()
		}
	}
}

func (s *ProcessSet) pidLock(pid int) *sync.Mutex {
	s.Lock()
	defer s.Unlock()
	lock, ok := s.locks[pid]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[pid] = lock
	}
	return lock
}

func (s *ProcessSet) killSent(key procKey) bool {
	s.Lock()
	defer s.Unlock()
	_, ok := s.killed[key]
	return ok
}

func (s *ProcessSet) markKillSent(key procKey) {
	s.Lock()
	defer s.Unlock()
	s.killed[key] = struct{}{}
}

// readOomScoreAdj reads the oom_score_adj of the given process.
func (s *ProcessSet) readOomScoreAdj(pid int) (int, error) {
	path := filepath.Join(s.root, strconv.Itoa(pid), "oom_score_adj")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", path)
	}
	adj, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s", path)
	}
	return adj, nil
}

func (p *process) PID() int {
	return p.key.pid
}

func (p *process) IsSelf() bool {
	return p.key.pid == p.set.self
}

func (p *process) IsKernelThread() bool {
	return p.stat.Flags&pfKthread != 0
}

// Lock locks the process and takes a fresh look at it. The process is
// reported to have no memory context if it has exited, its PID has been
// reused, or it has no address space.
func (p *process) Lock() (lmk.Task, bool) {
	lock := p.set.pidLock(p.key.pid)
	lock.Lock()

	target, err := p.set.signaler.Open(p.key.pid)
	if err != nil {
		lock.Unlock()
		log.Debug("failed to open pid %d: %v", p.key.pid, err)
		return nil, false
	}

	fail := func(format string, args ...interface{}) (lmk.Task, bool) {
		target.Close()
		lock.Unlock()
		log.Debug(format, args...)
		return nil, false
	}

	proc, err := p.set.fs.Proc(p.key.pid)
	if err != nil {
		return fail("pid %d gone: %v", p.key.pid, err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return fail("pid %d gone: %v", p.key.pid, err)
	}
	if stat.Starttime != p.key.start {
		return fail("pid %d reused", p.key.pid)
	}
	if stat.VSize == 0 {
		return fail("pid %d has no address space", p.key.pid)
	}
	adj, err := p.set.readOomScoreAdj(p.key.pid)
	if err != nil {
		return fail("pid %d: %v", p.key.pid, err)
	}

	return &task{
		p:      p,
		lock:   lock,
		stat:   stat,
		adj:    adj,
		target: target,
	}, true
}

func (t *task) KillSent() bool {
	return t.p.set.killSent(t.p.key)
}

func (t *task) MarkedForDeath() bool {
	switch t.stat.State {
	case "Z", "X":
		return true
	}
	return t.stat.Flags&pfExiting != 0
}

func (t *task) Importance() int {
	return t.adj
}

func (t *task) ResidentPages() uint64 {
	if t.stat.RSS < 0 {
		return 0
	}
	return uint64(t.stat.RSS)
}

func (t *task) Unlock() {
	t.lock.Unlock()
}

func (t *task) Kill() error {
	return t.target.Kill()
}

func (t *task) MarkKillSent() {
	t.p.set.markKillSent(t.p.key)
}

func (t *task) Prioritize() error {
	return t.target.SetRealtime()
}

func (t *task) Release() {
	if err := t.target.Close(); err != nil {
		log.Debug("failed to release pid %d: %v", t.p.key.pid, err)
	}
}

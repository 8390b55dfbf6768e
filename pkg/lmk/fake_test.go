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
	"sync"
	"sync/atomic"
	"time"
)

// fakeProc is a fake process for testing.
type fakeProc struct {
	pid     int
	self    bool
	kthread bool
	noMM    bool
	dying   bool
	adj     int
	pages   uint64
	killErr error

	mu          sync.Mutex
	killSent    atomic.Bool
	kills       atomic.Int32
	prioritized atomic.Bool
	released    atomic.Int32
}

type fakeTask struct {
	p *fakeProc
}

func (p *fakeProc) PID() int             { return p.pid }
func (p *fakeProc) IsSelf() bool         { return p.self }
func (p *fakeProc) IsKernelThread() bool { return p.kthread }

func (p *fakeProc) Lock() (Task, bool) {
	if p.noMM {
		return nil, false
	}
	p.mu.Lock()
	return &fakeTask{p: p}, true
}

func (t *fakeTask) KillSent() bool        { return t.p.killSent.Load() }
func (t *fakeTask) MarkedForDeath() bool  { return t.p.dying }
func (t *fakeTask) Importance() int       { return t.p.adj }
func (t *fakeTask) ResidentPages() uint64 { return t.p.pages }
func (t *fakeTask) Unlock()               { t.p.mu.Unlock() }
func (t *fakeTask) MarkKillSent()         { t.p.killSent.Store(true) }
func (t *fakeTask) Release()              { t.p.released.Add(1) }

func (t *fakeTask) Kill() error {
	if t.p.killErr != nil {
		return t.p.killErr
	}
	t.p.kills.Add(1)
	return nil
}

func (t *fakeTask) Prioritize() error {
	t.p.prioritized.Store(true)
	return nil
}

// fakeSet is a fake process set, optionally blocking in Walk.
type fakeSet struct {
	procs   []*fakeProc
	entered chan struct{}
	gate    chan struct{}
	walks   atomic.Int32
}

func (s *fakeSet) Walk(fn func(Process) bool) error {
	if s.walks.Add(1) == 1 && s.gate != nil {
		close(s.entered)
		<-s.gate
	}
	for _, p := range s.procs {
		if !fn(p) {
			break
		}
	}
	return nil
}

// fakeBooster records boost kicks.
type fakeBooster struct {
	sync.Mutex
	kicks []time.Duration
}

func (b *fakeBooster) KickMax(d time.Duration) {
	b.Lock()
	defer b.Unlock()
	b.kicks = append(b.kicks, d)
}

func (b *fakeBooster) count() int {
	b.Lock()
	defer b.Unlock()
	return len(b.kicks)
}

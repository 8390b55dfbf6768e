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

// Victim is a process the reclaimer sent a kill to.
type Victim struct {
	PID        int    `json:"pid"`
	Importance int    `json:"importance"`
	Pages      uint64 `json:"pages"`
}

// reasons for skipping a process during a scan
const (
	skipNoMemory     = "no-memory-context"
	skipKillSent     = "kill-sent"
	skipDying        = "dying"
	skipNoFootprint  = "no-footprint"
	skipSignalFailed = "signal-failed"
)

// scanAndKill kills processes of the given tier until pagesNeeded pages
// are freed or the process set runs out. It returns the pages freed.
func (e *Engine) scanAndKill(tier Tier, pagesNeeded uint64, res *Result) uint64 {
	var freed uint64

	err := e.opts.Procs.Walk(func(p Process) bool {
		if p.IsSelf() || p.IsKernelThread() {
			return true
		}

		task, ok := p.Lock()
		if !ok {
			e.metrics.skipped(skipNoMemory)
			return true
		}
		defer task.Release()

		if sent, dying := task.KillSent(), task.MarkedForDeath(); sent || dying {
			task.Unlock()
			if sent {
				e.metrics.skipped(skipKillSent)
			} else {
				e.metrics.skipped(skipDying)
			}
			return true
		}

		adj := task.Importance()
		if !tier.Contains(adj) {
			task.Unlock()
			return true
		}

		pages := task.ResidentPages()
		task.Unlock()
		if pages == 0 {
			e.metrics.skipped(skipNoFootprint)
			return true
		}

		if err := task.Kill(); err != nil {
			log.Warn("failed to kill pid %d (adj %d): %v", p.PID(), adj, err)
			e.metrics.skipped(skipSignalFailed)
			return true
		}

		task.MarkKillSent()
		if err := task.Prioritize(); err != nil {
			log.Debug("failed to prioritize pid %d: %v", p.PID(), err)
		}

		log.Info("killed pid %d (adj %d, %d pages, tier %s)", p.PID(), adj, pages, tier)

		freed += pages
		res.Victims = append(res.Victims, Victim{PID: p.PID(), Importance: adj, Pages: pages})
		e.metrics.victim(tier)

		return freed < pagesNeeded
	})

	if err != nil {
		log.Error("failed to scan processes for tier %s: %v", tier, err)
	}

	return freed
}

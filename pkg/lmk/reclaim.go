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
	"time"
)

// request is a single reclaim pass request.
type request struct {
	pagesNeeded uint64
	trigger     Trigger
	issuedAt    time.Time
}

// reclaim runs a reclaim pass with the reclaim lock held. It always
// kicks a boost first, then scans tiers, least important first, until
// the request is satisfied or the tiers run out.
func (e *Engine) reclaim(req request) Result {
	e.opts.Booster.KickMax(e.opts.BoostDuration)

	res := Result{
		Trigger: req.trigger,
		Outcome: OutcomeReclaimed,
		Started: req.issuedAt,
	}

	var freed uint64
	for i := 0; i < e.opts.Tiers.Count(); i++ {
		freed += e.scanAndKill(e.opts.Tiers.Tier(i), req.pagesNeeded-freed, &res)
		if freed >= req.pagesNeeded {
			break
		}
	}

	now := e.opts.Clock.Now()
	e.lastReclaim = now

	res.PagesFreed = freed
	res.FreedMiB = freed * e.opts.PageSize / (1 << 20)
	res.Duration = now.Sub(req.issuedAt)

	e.metrics.reclaimed(res)

	return res
}

// elapsed checks if at least interval has passed since the last reclaim.
func (e *Engine) elapsed(now time.Time, interval time.Duration) bool {
	return e.lastReclaim.IsZero() || !now.Before(e.lastReclaim.Add(interval))
}

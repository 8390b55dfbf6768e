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
	"fmt"
	"strings"
)

// DefaultAdjBoundaries are the importance (oom_score_adj) boundaries of
// the default tier table, the Android framework's process class ladder.
var DefaultAdjBoundaries = []int{906, 900, 800, 700, 600, 500, 400, 300, 200, 100, 0}

// Tier is a closed range of importance values scanned in a single step.
type Tier struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains checks if the given importance falls into the tier.
func (t Tier) Contains(adj int) bool {
	return t.Min <= adj && adj <= t.Max
}

func (t Tier) String() string {
	return fmt.Sprintf("[%d,%d]", t.Min, t.Max)
}

// TierTable is an immutable list of tiers, least important first.
type TierTable struct {
	tiers []Tier
}

// NewTierTable creates a tier table from strictly descending boundaries.
// N boundaries yield N-1 tiers, tier i spanning boundaries i and i-1.
func NewTierTable(boundaries []int) (*TierTable, error) {
	if len(boundaries) < 2 {
		return nil, lmkError("need at least 2 tier boundaries, got %d", len(boundaries))
	}
	t := &TierTable{tiers: make([]Tier, 0, len(boundaries)-1)}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] >= boundaries[i-1] {
			return nil, lmkError("tier boundaries not strictly descending at #%d (%d >= %d)",
				i, boundaries[i], boundaries[i-1])
		}
		t.tiers = append(t.tiers, Tier{Min: boundaries[i], Max: boundaries[i-1]})
	}
	return t, nil
}

// Count returns the number of tiers.
func (t *TierTable) Count() int {
	return len(t.tiers)
}

// Tier returns the tier with the given index.
func (t *TierTable) Tier(i int) Tier {
	return t.tiers[i]
}

// Tiers returns a copy of all tiers.
func (t *TierTable) Tiers() []Tier {
	return append([]Tier(nil), t.tiers...)
}

func (t *TierTable) String() string {
	strs := make([]string, 0, len(t.tiers))
	for _, tier := range t.tiers {
		strs = append(strs, tier.String())
	}
	return strings.Join(strs, " ")
}

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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const testPageSize = 4096

func newTestEngine(t *testing.T, procs ProcessSet, boundaries []int, minfreePages uint64) (*Engine, *fakeBooster, *testingclock.FakeClock) {
	tiers, err := NewTierTable(boundaries)
	require.NoError(t, err)

	booster := &fakeBooster{}
	clk := testingclock.NewFakeClock(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC))

	e, err := NewEngine(Options{
		Procs:    procs,
		Tiers:    tiers,
		Booster:  booster,
		Clock:    clk,
		MinFree:  minfreePages * testPageSize,
		PageSize: testPageSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	return e, booster, clk
}

func victimPIDs(res Result) []int {
	pids := []int{}
	for _, v := range res.Victims {
		pids = append(pids, v.PID)
	}
	return pids
}

func TestReclaimAcrossTiers(t *testing.T) {
	p1 := &fakeProc{pid: 101, adj: 150, pages: 50}
	p2 := &fakeProc{pid: 102, adj: 50, pages: 80}
	e, booster, _ := newTestEngine(t, &fakeSet{procs: []*fakeProc{p2, p1}}, []int{200, 100, 0}, 60)

	require.NoError(t, e.SetMinfree("ignored"))
	res := e.ForceReclaim()

	require.Equal(t, OutcomeReclaimed, res.Outcome)
	require.Equal(t, TriggerUrgent, res.Trigger)
	require.Equal(t, uint64(130), res.PagesFreed)
	require.Equal(t, []int{101, 102}, victimPIDs(res))
	require.Equal(t, []time.Duration{DefaultBoostDuration}, booster.kicks)
	require.True(t, p1.killSent.Load())
	require.True(t, p1.prioritized.Load())
	require.Equal(t, int32(1), p2.kills.Load())
}

func TestReclaimStopsWhenSatisfied(t *testing.T) {
	procs := []*fakeProc{
		{pid: 1, adj: 950, pages: 100},
		{pid: 2, adj: 920, pages: 100},
		{pid: 3, adj: 910, pages: 100},
		{pid: 4, adj: 500, pages: 100},
	}
	e, _, _ := newTestEngine(t, &fakeSet{procs: procs}, []int{1000, 900, 0}, 150)

	require.NoError(t, e.Activate())
	res := e.ForceReclaim()

	require.Equal(t, uint64(200), res.PagesFreed)
	require.Equal(t, []int{1, 2}, victimPIDs(res))
	require.Equal(t, int32(0), procs[2].kills.Load())
	require.Equal(t, int32(0), procs[3].kills.Load())
}

func TestScanSkipsIneligible(t *testing.T) {
	killErr := errors.New("no such process")
	procs := []*fakeProc{
		{pid: 1, adj: 150, pages: 10, self: true},
		{pid: 2, adj: 150, pages: 10, kthread: true},
		{pid: 3, adj: 150, pages: 10, noMM: true},
		{pid: 4, adj: 150, pages: 10, dying: true},
		{pid: 5, adj: 150, pages: 0},
		{pid: 6, adj: 150, pages: 10, killErr: killErr},
		{pid: 7, adj: 300, pages: 10},
		{pid: 8, adj: -100, pages: 10},
	}
	sent := &fakeProc{pid: 9, adj: 150, pages: 10}
	sent.killSent.Store(true)
	procs = append(procs, sent)

	e, booster, _ := newTestEngine(t, &fakeSet{procs: procs}, []int{200, 100, 0}, 100)
	require.NoError(t, e.Activate())

	res := e.ForceReclaim()
	require.Equal(t, OutcomeReclaimed, res.Outcome)
	require.Equal(t, uint64(0), res.PagesFreed)
	require.Empty(t, res.Victims)
	require.Equal(t, 1, booster.count(), "boost must be kicked even if nothing is freed")

	for _, p := range procs {
		require.Equal(t, int32(0), p.kills.Load(), "pid %d killed", p.pid)
	}
	require.False(t, procs[5].killSent.Load(), "failed kill must not be flagged")

	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.skips.WithLabelValues(skipNoMemory)))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.skips.WithLabelValues(skipSignalFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.skips.WithLabelValues(skipNoFootprint)))
	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.skips.WithLabelValues(skipKillSent)))
	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.skips.WithLabelValues(skipDying)))
}

func TestNoDoubleKill(t *testing.T) {
	p := &fakeProc{pid: 42, adj: 950, pages: 10}
	e, _, clk := newTestEngine(t, &fakeSet{procs: []*fakeProc{p}}, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	first := e.ForceReclaim()
	require.Equal(t, []int{42}, victimPIDs(first))

	clk.Step(time.Second)
	second := e.ForceReclaim()
	require.Equal(t, OutcomeReclaimed, second.Outcome)
	require.Empty(t, second.Victims)
	require.Equal(t, int32(1), p.kills.Load())
}

func TestInactiveEngine(t *testing.T) {
	p := &fakeProc{pid: 42, adj: 950, pages: 10}
	e, booster, _ := newTestEngine(t, &fakeSet{procs: []*fakeProc{p}}, []int{1000, 0}, 100)

	require.Equal(t, StateUninitialized, e.State())
	require.Equal(t, OutcomeInactive, e.ForceReclaim().Outcome)

	e.StartPeriodic()
	require.False(t, e.PeriodicRunning())
	e.StopPeriodic()

	require.Equal(t, 0, booster.count())
	require.Equal(t, int32(0), p.kills.Load())
}

func TestActivation(t *testing.T) {
	prepared := 0
	e, err := NewEngine(Options{
		Procs:   &fakeSet{},
		Prepare: func() error { prepared++; return nil },
	})
	require.NoError(t, err)

	require.NoError(t, e.SetMinfree("18432,23040,27648,32256,55296,80640"))
	require.NoError(t, e.SetMinfree("0"))
	require.NoError(t, e.Activate())
	require.Equal(t, 1, prepared)
	require.Equal(t, StateActive, e.State())
}

func TestFailedActivation(t *testing.T) {
	prepared := 0
	e, err := NewEngine(Options{
		Procs:   &fakeSet{procs: []*fakeProc{{pid: 1, adj: 950, pages: 10}}},
		Prepare: func() error { prepared++; return errors.New("out of resources") },
	})
	require.NoError(t, err)

	require.Error(t, e.Activate())
	require.Error(t, e.Activate())
	require.Equal(t, 1, prepared)
	require.Equal(t, StateFailed, e.State())
	require.Equal(t, OutcomeInactive, e.ForceReclaim().Outcome)

	e.StartPeriodic()
	require.False(t, e.PeriodicRunning())
}

func TestUrgentRateLimit(t *testing.T) {
	e, booster, clk := newTestEngine(t, &fakeSet{}, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	require.Equal(t, OutcomeReclaimed, e.ForceReclaim().Outcome)
	require.Equal(t, OutcomeRateLimited, e.ForceReclaim().Outcome)

	clk.Step(DefaultUrgentInterval - time.Millisecond)
	require.Equal(t, OutcomeRateLimited, e.ForceReclaim().Outcome)

	clk.Step(time.Millisecond)
	require.Equal(t, OutcomeReclaimed, e.ForceReclaim().Outcome)

	require.Equal(t, 2, booster.count())
	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.triggers.WithLabelValues("urgent", "rate-limited")))
	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.triggers.WithLabelValues("urgent", "reclaimed")))
}

func TestPeriodicRateLimit(t *testing.T) {
	e, booster, clk := newTestEngine(t, &fakeSet{}, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	require.Equal(t, OutcomeReclaimed, e.ForceReclaim().Outcome)
	require.Equal(t, OutcomeRateLimited, e.periodicReclaim().Outcome)

	clk.Step(DefaultPeriodicInterval)
	require.Equal(t, OutcomeReclaimed, e.periodicReclaim().Outcome)
	require.Equal(t, 2, booster.count())
}

func TestUrgentNeverBlocks(t *testing.T) {
	set := &fakeSet{
		procs:   []*fakeProc{{pid: 7, adj: 950, pages: 10}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	e, _, _ := newTestEngine(t, set, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	first := make(chan Result)
	go func() {
		first <- e.ForceReclaim()
	}()
	<-set.entered

	require.Equal(t, OutcomeContended, e.ForceReclaim().Outcome)

	close(set.gate)
	res := <-first
	require.Equal(t, OutcomeReclaimed, res.Outcome)
	require.Equal(t, []int{7}, victimPIDs(res))
}

func TestPeriodicTrigger(t *testing.T) {
	p := &fakeProc{pid: 9, adj: 950, pages: 10}
	e, booster, clk := newTestEngine(t, &fakeSet{procs: []*fakeProc{p}}, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	e.StartPeriodic()
	e.StartPeriodic()
	require.True(t, e.PeriodicRunning())

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(DefaultPeriodicInterval)
	require.Eventually(t, func() bool { return booster.count() == 1 }, time.Second, time.Millisecond)

	e.StopPeriodic()
	require.False(t, e.PeriodicRunning())
	require.Equal(t, int32(1), p.kills.Load())

	clk.Step(10 * DefaultPeriodicInterval)
	require.Equal(t, 1, booster.count())

	status := e.Status()
	require.NotNil(t, status.LastResult)
	require.Equal(t, TriggerPeriodic, status.LastResult.Trigger)
	require.Equal(t, []Victim{{PID: 9, Importance: 950, Pages: 10}}, status.LastResult.Victims)

	e.StartPeriodic()
	require.True(t, e.PeriodicRunning())
	e.StopPeriodic()
}

func TestPeriodicWaitsForPass(t *testing.T) {
	set := &fakeSet{
		procs:   []*fakeProc{{pid: 7, adj: 950, pages: 10}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	e, _, clk := newTestEngine(t, set, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	urgent := make(chan Result)
	go func() {
		urgent <- e.ForceReclaim()
	}()
	<-set.entered

	e.StartPeriodic()
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(DefaultPeriodicInterval)

	// the periodic tick is parked on the reclaim lock, not dropped
	require.Eventually(t, func() bool { return !clk.HasWaiters() }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), set.walks.Load())
	require.Equal(t, 0.0, testutil.ToFloat64(e.metrics.triggers.WithLabelValues("periodic", "rate-limited")))

	close(set.gate)
	require.Equal(t, OutcomeReclaimed, (<-urgent).Outcome)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(e.metrics.triggers.WithLabelValues("periodic", "rate-limited")) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond, "periodic trigger must re-arm")
	require.Equal(t, int32(1), set.walks.Load())

	e.StopPeriodic()
}

func TestStopPeriodicWaitsForPass(t *testing.T) {
	set := &fakeSet{
		procs:   []*fakeProc{{pid: 7, adj: 950, pages: 10}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	e, _, clk := newTestEngine(t, set, []int{1000, 0}, 100)
	require.NoError(t, e.Activate())

	e.StartPeriodic()
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(DefaultPeriodicInterval)
	<-set.entered

	stopped := make(chan struct{})
	go func() {
		e.StopPeriodic()
		close(stopped)
	}()

	require.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 5*time.Millisecond, "StopPeriodic returned during a pass")

	// status must not wait for the pending stop
	status := make(chan Status)
	go func() {
		status <- e.Status()
	}()
	select {
	case s := <-status:
		require.Equal(t, StateActive, s.State)
	case <-time.After(time.Second):
		t.Fatal("Status blocked by a pending StopPeriodic")
	}

	close(set.gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("StopPeriodic did not return after the pass finished")
	}

	require.False(t, e.PeriodicRunning())
	last := e.Status()
	require.NotNil(t, last.LastResult)
	require.Equal(t, TriggerPeriodic, last.LastResult.Trigger)
	require.Equal(t, []int{7}, victimPIDs(*last.LastResult))
}

func TestStatus(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeSet{}, []int{200, 100, 0}, 60)

	expected := Status{
		State:        StateUninitialized,
		MinFreePages: 60,
		Tiers:        []Tier{{Min: 100, Max: 200}, {Min: 0, Max: 100}},
	}
	if diff := cmp.Diff(expected, e.Status()); diff != "" {
		t.Errorf("unexpected status (-want +got):\n%s", diff)
	}
}

func TestEngineOptions(t *testing.T) {
	_, err := NewEngine(Options{})
	require.Error(t, err, "missing process set")

	_, err = NewEngine(Options{Procs: &fakeSet{}, MinFree: 100, PageSize: 4096})
	require.Error(t, err, "minfree below page size")

	e, err := NewEngine(Options{Procs: &fakeSet{}, PageSize: 4096})
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultMinFree/4096), e.minfree)
	require.Equal(t, len(DefaultAdjBoundaries)-1, e.opts.Tiers.Count())
}

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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "simple_lmk"
)

// metrics collects reclaim metrics of an Engine.
type metrics struct {
	triggers    *prometheus.CounterVec
	victims     *prometheus.CounterVec
	skips       *prometheus.CounterVec
	pagesFreed  prometheus.Counter
	lastReclaim prometheus.Gauge
	duration    prometheus.Histogram
}

var _ prometheus.Collector = &metrics{}

func newMetrics() *metrics {
	return &metrics{
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "triggers_total",
				Help:      "Reclaim triggers by trigger source and outcome.",
			},
			[]string{"trigger", "outcome"},
		),
		victims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "victims_total",
				Help:      "Processes killed by importance tier.",
			},
			[]string{"tier"},
		),
		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "skipped_processes_total",
				Help:      "In-tier candidate processes skipped by reason.",
			},
			[]string{"reason"},
		),
		pagesFreed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "freed_pages_total",
				Help:      "Resident pages of killed processes.",
			},
		),
		lastReclaim: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_reclaim_timestamp_seconds",
				Help:      "Completion time of the last reclaim pass.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "reclaim_duration_seconds",
				Help:      "Duration of reclaim passes.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
	}
}

func (m *metrics) triggered(trigger Trigger, outcome Outcome) {
	m.triggers.WithLabelValues(trigger.String(), outcome.String()).Inc()
}

func (m *metrics) skipped(reason string) {
	m.skips.WithLabelValues(reason).Inc()
}

func (m *metrics) victim(tier Tier) {
	m.victims.WithLabelValues(tier.String()).Inc()
}

func (m *metrics) reclaimed(res Result) {
	m.pagesFreed.Add(float64(res.PagesFreed))
	m.lastReclaim.Set(float64(res.Started.Add(res.Duration).UnixNano()) / 1e9)
	m.duration.Observe(res.Duration.Seconds())
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.triggers.Describe(ch)
	m.victims.Describe(ch)
	m.skips.Describe(ch)
	m.pagesFreed.Describe(ch)
	m.lastReclaim.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.triggers.Collect(ch)
	m.victims.Collect(ch)
	m.skips.Collect(ch)
	m.pagesFreed.Collect(ch)
	m.lastReclaim.Collect(ch)
	m.duration.Collect(ch)
}

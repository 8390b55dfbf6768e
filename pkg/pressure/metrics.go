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

package pressure

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intel/simple-lmk/pkg/lmk"
)

type metrics struct {
	available prometheus.Gauge
	psiFull   prometheus.Gauge
	urgents   *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		available: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "simple_lmk",
				Subsystem: "pressure",
				Name:      "available_bytes",
				Help:      "Last sampled available memory.",
			},
		),
		psiFull: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "simple_lmk",
				Subsystem: "pressure",
				Name:      "psi_full_avg10",
				Help:      "Last sampled full memory stall 10 second average.",
			},
		),
		urgents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "simple_lmk",
				Subsystem: "pressure",
				Name:      "urgent_triggers_total",
				Help:      "Urgent reclaim triggers by reason and outcome.",
			},
			[]string{"reason", "outcome"},
		),
	}
}

func (m *metrics) sampled(s Sample) {
	m.available.Set(float64(s.Available))
	if s.HavePSI {
		m.psiFull.Set(s.FullAvg10)
	}
}

func (m *metrics) urgent(reason string, outcome lmk.Outcome) {
	m.urgents.WithLabelValues(reason, outcome.String()).Inc()
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.available.Describe(ch)
	m.psiFull.Describe(ch)
	m.urgents.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.available.Collect(ch)
	m.psiFull.Collect(ch)
	m.urgents.Collect(ch)
}

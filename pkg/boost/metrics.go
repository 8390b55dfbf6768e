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

package boost

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	kicks    *prometheus.CounterVec
	failures *prometheus.CounterVec
	boosted  *prometheus.GaugeVec
}

func newMetrics() *metrics {
	return &metrics{
		kicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "simple_lmk",
				Subsystem: "boost",
				Name:      "kicks_total",
				Help:      "Max boost requests by class and result.",
			},
			[]string{"class", "result"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "simple_lmk",
				Subsystem: "boost",
				Name:      "actuator_failures_total",
				Help:      "Failed boost or unboost attempts by class.",
			},
			[]string{"class"},
		),
		boosted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "simple_lmk",
				Subsystem: "boost",
				Name:      "boosted",
				Help:      "Whether a class is currently boosted.",
			},
			[]string{"class"},
		),
	}
}

func (m *metrics) kicked(class Class, result string) {
	m.kicks.WithLabelValues(string(class), result).Inc()
}

func (m *metrics) failed(class Class) {
	m.failures.WithLabelValues(string(class)).Inc()
}

func (m *metrics) setBoosted(class Class, boosted bool) {
	v := 0.0
	if boosted {
		v = 1.0
	}
	m.boosted.WithLabelValues(string(class)).Set(v)
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.kicks.Describe(ch)
	m.failures.Describe(ch)
	m.boosted.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.kicks.Collect(ch)
	m.failures.Collect(ch)
	m.boosted.Collect(ch)
}

// Collector returns the prometheus collector for boost metrics.
func (c *Coordinator) Collector() prometheus.Collector {
	return c.metrics
}

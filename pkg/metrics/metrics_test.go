// Copyright 2020 Intel Corporation. All Rights Reserved.
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

package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counter(name string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      "Test counter " + name + ".",
	})
	c.Add(3)
	return c
}

func TestRegister(t *testing.T) {
	r := NewRegistry(false)

	r.MustRegister("a", counter("a_total"))
	require.NoError(t, r.Register("b", func() (prometheus.Collector, error) {
		return counter("b_total"), nil
	}))
	require.Error(t, r.Register("a", func() (prometheus.Collector, error) {
		return counter("c_total"), nil
	}))
	require.NoError(t, r.Register("broken", func() (prometheus.Collector, error) {
		return nil, fmt.Errorf("no such device")
	}))

	require.Equal(t, []string{"a", "b"}, r.Names())

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)
	require.Equal(t, "simple_lmk_a_total", families[0].GetName())
	require.Equal(t, float64(3), families[0].GetMetric()[0].GetCounter().GetValue())

	require.True(t, r.Unregister("a"))
	require.False(t, r.Unregister("a"))

	families, err = r.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "simple_lmk_b_total", families[0].GetName())
}

func TestRuntimeCollectors(t *testing.T) {
	families, err := NewRegistry(true).Gatherer().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["go_goroutines"])
}

// Copyright 2019 Intel Corporation. All Rights Reserved.
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

package instrumentation

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/intel/simple-lmk/pkg/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	registry := metrics.NewRegistry(false)
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "test_total",
		Help:      "Test counter.",
	})
	c.Inc()
	registry.MustRegister("test", c)

	s := NewService(registry)
	require.NoError(t, s.Start("127.0.0.1:0"))
	require.Error(t, s.Start("127.0.0.1:0"))

	res, err := http.Get("http://" + s.Address() + PrometheusMetricsPath)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "simple_lmk_test_total 1")

	s.Stop(context.Background())
	require.Equal(t, "", s.Address())

	// restartable after a stop
	require.NoError(t, s.Start("127.0.0.1:0"))
	s.Stop(context.Background())
}

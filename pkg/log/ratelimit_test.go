// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package log

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	goxrate "golang.org/x/time/rate"
)

func TestRateLimitWindow(t *testing.T) {
	ratelimit := RateLimit(Default(), Rate{Window: MinimumWindow, Limit: Every(time.Second)})
	rl := ratelimit.(*ratelimited)

	limiters := make(map[string]*goxrate.Limiter)

	messages := make([]string, 0, MinimumWindow)
	for idx := 0; idx < cap(messages); idx++ {
		msg := fmt.Sprintf("message #%d", idx)
		messages = append(messages, msg)
		limiters[msg] = rl.getMessageLimit(msg)
	}

	for msg, limiter := range limiters {
		require.Same(t, limiter, rl.getMessageLimit(msg), "limiter of %s", msg)
	}

	recent := make([]string, 0, MinimumWindow/4)
	for i := 0; i < cap(recent); i++ {
		msg := fmt.Sprintf("message #%d", len(messages)+i)
		recent = append(recent, msg)
		limiters[msg] = rl.getMessageLimit(msg)
	}

	require.Len(t, rl.limits, MinimumWindow)
	require.Len(t, rl.window, MinimumWindow)

	// oldest messages got shifted out of the window
	for idx := 0; idx < len(recent); idx++ {
		_, ok := rl.limits[messages[idx]]
		require.False(t, ok, "stale limiter for %s", messages[idx])
	}
	for idx := len(recent); idx < len(messages); idx++ {
		require.Same(t, limiters[messages[idx]], rl.limits[messages[idx]])
	}
}

func TestRateLimitSuppression(t *testing.T) {
	setupCapture(t)

	rl := RateLimit(Get("ratelimit-test"), Interval(time.Hour))
	for i := 0; i < 5; i++ {
		rl.Warn("urgent reclaim contended")
	}
	rl.Warn("another message")

	require.Equal(t, []string{
		"warning ratelimit-test <rate-limited> urgent reclaim contended",
		"warning ratelimit-test <rate-limited> another message",
	}, capture.reset())
}

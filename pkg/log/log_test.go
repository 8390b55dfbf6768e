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
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBackendName = "test"

type testBackend struct {
	sync.Mutex
	messages []string
}

var capture = &testBackend{}

func (*testBackend) Name() string { return testBackendName }

func (t *testBackend) Log(level Level, source, format string, args ...interface{}) {
	t.Lock()
	defer t.Unlock()
	t.messages = append(t.messages, level.String()+" "+source+" "+fmt.Sprintf(format, args...))
}

func (t *testBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		t.Log(level, source, "%s%s", prefix, line)
	}
}

func (*testBackend) Flush()                 {}
func (*testBackend) SetSourceAlignment(int) {}

func (t *testBackend) reset() []string {
	t.Lock()
	defer t.Unlock()
	msgs := t.messages
	t.messages = nil
	return msgs
}

func setupCapture(t *testing.T) {
	RegisterBackend(testBackendName, func() Backend { return capture })
	require.NoError(t, SetBackend(testBackendName))
	capture.reset()

	t.Cleanup(func() {
		require.NoError(t, SetBackend(FmtBackendName))
		SetLevel(DefaultLevel)
		log.Lock()
		log.enable = make(srcmap)
		log.debug = make(srcmap)
		log.forced = false
		log.Unlock()
	})
}

func TestLevelFiltering(t *testing.T) {
	setupCapture(t)
	l := Get("level-test")

	SetLevel(LevelWarn)
	l.Info("suppressed")
	l.Warn("warning %d", 1)
	l.Error("error %d", 2)

	require.Equal(t, []string{
		"warning level-test warning 1",
		"error level-test error 2",
	}, capture.reset())
}

func TestSourceDisabling(t *testing.T) {
	setupCapture(t)
	a, b := Get("source-a"), Get("source-b")

	require.NoError(t, SetSources("off:source-a"))
	a.Info("from a")
	b.Info("from b")
	a.Error("errors always pass")

	require.Equal(t, []string{
		"info source-b from b",
		"error source-a errors always pass",
	}, capture.reset())
}

func TestDebugging(t *testing.T) {
	setupCapture(t)
	l := Get("debug-test")

	l.Debug("not yet")
	require.False(t, l.DebugEnabled())

	require.False(t, l.EnableDebug(true))
	l.Debug("now %s", "yes")
	require.True(t, l.EnableDebug(false))
	l.Debug("not anymore")

	require.True(t, ToggleForcedDebug())
	l.Debug("forced")
	require.False(t, ToggleForcedDebug())

	require.NoError(t, SetDebug("on:debug-test"))
	l.DebugBlock("  ", "line1\nline2")

	require.Equal(t, []string{
		"debug debug-test now yes",
		"debug debug-test forced",
		"debug debug-test   line1",
		"debug debug-test   line2",
	}, capture.reset())
}

func TestSrcmap(t *testing.T) {
	tcases := []struct {
		name    string
		spec    string
		expect  srcmap
		invalid bool
	}{
		{
			name:   "plain list",
			spec:   "a,b",
			expect: srcmap{"a": true, "b": true},
		},
		{
			name:   "all",
			spec:   "all",
			expect: srcmap{"*": true},
		},
		{
			name:   "mixed states",
			spec:   "on:a,b,off:c,d",
			expect: srcmap{"a": true, "b": true, "c": false, "d": false},
		},
		{
			name:    "invalid state",
			spec:    "maybe:a",
			invalid: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			m := make(srcmap)
			err := m.Set(tc.spec)
			if tc.invalid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, m)
		})
	}

	m := srcmap{"x": false}
	require.False(t, m.enabled("x", true))
	require.True(t, m.enabled("y", true))
	m["*"] = false
	require.False(t, m.enabled("y", true))
	require.Equal(t, "off:*,x", m.String())
}

func TestParseLevel(t *testing.T) {
	for name, expected := range map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	} {
		level, err := ParseLevel(name)
		require.NoError(t, err)
		require.Equal(t, expected, level)
	}
	_, err := ParseLevel("chatty")
	require.Error(t, err)
}

func TestFmtBackend(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &fmtBackend{out: buf}
	f.SetSourceAlignment(6)
	f.Log(LevelWarn, "lmk", "freed %d MiB", 12)
	f.Block(LevelInfo, "boost", "> ", "a\nb")

	require.Equal(t,
		"W: [  lmk ] freed 12 MiB\n"+
			"I: [ boost] > a\n"+
			"I: [ boost] > b\n",
		buf.String())
}

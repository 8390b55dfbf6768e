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
	"flag"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultLevel is the default logging severity level.
	DefaultLevel = LevelInfo
	// command-line argument prefix.
	optPrefix = "logger"
	// Flag for enabling/disabling normal non-debug logging for sources.
	optEnable = optPrefix + "-sources"
	// Flag for enabling/disabling debug logging for sources.
	optDebug = optPrefix + "-debug"
	// Flag for selecting logging level.
	optLevel = optPrefix + "-level"
	// Flag for selecting logging backend.
	optLogger = optPrefix
)

// srcmap tracks logging or debugging settings for sources.
type srcmap map[string]bool

// ParseLevel parses the given name into a Level.
func ParseLevel(value string) (Level, error) {
	levels := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"panic":   LevelPanic,
		"fatal":   LevelFatal,
	}
	level, ok := levels[strings.ToLower(value)]
	if !ok {
		return LevelInfo, loggerError("invalid logging level %q", value)
	}
	return level, nil
}

// String returns the name of the level.
func (l Level) String() string {
	names := map[Level]string{
		LevelDebug: "debug",
		LevelInfo:  "info",
		LevelWarn:  "warning",
		LevelError: "error",
		LevelPanic: "panic",
		LevelFatal: "fatal",
	}
	if name, ok := names[l]; ok {
		return name
	}
	return names[LevelInfo]
}

// enabled returns the state for src, falling back to '*', then to def.
func (m srcmap) enabled(src string, def bool) bool {
	if state, ok := m[src]; ok {
		return state
	}
	if state, ok := m["*"]; ok {
		return state
	}
	return def
}

// Set sets entries of srcmap by parsing the given value.
func (m *srcmap) Set(value string) error {
	if *m == nil {
		*m = make(srcmap)
	}
	prev := ""
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		state, src := "", entry
		if split := strings.Split(entry, ":"); len(split) == 2 {
			state, src = split[0], split[1]
		} else if len(split) > 2 {
			return loggerError("invalid state spec %q in source map", entry)
		}

		if state != "" {
			prev = state
		} else if state = prev; state == "" {
			state = "on"
		}
		if src == "all" {
			src = "*"
		}

		enabled, err := parseEnabled(state)
		if err != nil {
			return err
		}
		(*m)[src] = enabled
	}
	return nil
}

// String returns a string representation of the srcmap.
func (m srcmap) String() string {
	var on, off []string
	for src, state := range m {
		if state {
			on = append(on, src)
		} else {
			off = append(off, src)
		}
	}
	sort.Strings(on)
	sort.Strings(off)

	switch {
	case len(off) == 0:
		return "on:" + strings.Join(on, ",")
	case len(on) == 0:
		return "off:" + strings.Join(off, ",")
	}
	return "on:" + strings.Join(on, ",") + ",off:" + strings.Join(off, ",")
}

func parseEnabled(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, loggerError("invalid state %q in source map", value)
	}
	return enabled, nil
}

// flag.Value wrappers for our command line options.
type levelFlag struct{}
type backendFlag struct{}
type srcmapFlag struct{ m *srcmap }

func (levelFlag) Set(value string) error {
	level, err := ParseLevel(value)
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

func (levelFlag) String() string {
	if log == nil {
		return DefaultLevel.String()
	}
	return GetLevel().String()
}

func (backendFlag) Set(value string) error {
	return SetBackend(value)
}

func (backendFlag) String() string {
	return FmtBackendName
}

func (f srcmapFlag) Set(value string) error {
	if log == nil {
		return loggerError("logging not initialized")
	}
	return log.updateSrcmap(f.m, value)
}

func (f srcmapFlag) String() string {
	if f.m == nil || *f.m == nil {
		return ""
	}
	return f.m.String()
}

func init() {
	flag.Var(backendFlag{}, optLogger,
		"logger backend to use (fmt, klog).")
	flag.Var(levelFlag{}, optLevel,
		"lowest severity level to pass through (debug, info, warning, error)")
	flag.Var(srcmapFlag{&log.enable}, optEnable,
		"comma-separated list of source names to enable/disable.\n"+
			"Specify '*' or 'all' to enable all sources, which is also the default.\n"+
			"Prefix a source or list with 'off:' to disable.")
	flag.Var(srcmapFlag{&log.debug}, optDebug,
		"comma-separated list of source names to enable debug messages for.\n"+
			"Specify '*' or 'all' to enable all sources.\n"+
			"Prefix a source or list with 'off:' to disable, which is also the default state.")
}

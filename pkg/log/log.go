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
	"os"
	"strings"
	"sync"
)

// Level describes the severity of log messages.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
	// LevelPanic is the severity for panic messages.
	LevelPanic
	// LevelFatal is the severity for fatal errors.
	LevelFatal
)

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// Panic formats and emits an error message then panics with the same.
	Panic(format string, args ...interface{})
	// Fatal formats and emits an error message and os.Exit()'s with status 1.
	Fatal(format string, args ...interface{})

	// DebugBlock formats and emits a multiline debug message.
	DebugBlock(prefix string, format string, args ...interface{})
	// InfoBlock formats and emits a multiline information message.
	InfoBlock(prefix string, format string, args ...interface{})
	// WarnBlock formats and emits a multiline warning message.
	WarnBlock(prefix string, format string, args ...interface{})
	// ErrorBlock formats and emits a multiline error message.
	ErrorBlock(prefix string, format string, args ...interface{})

	// EnableDebug enables debug messages for this Logger.
	EnableDebug(bool) bool
	// DebugEnabled checks if debug messages are enabled for this Logger.
	DebugEnabled() bool

	// Source returns the source name of this Logger.
	Source() string
}

// logging is our global runtime logging state.
type logging struct {
	sync.RWMutex
	level    Level                // lowest unsuppressed severity
	active   Backend              // active backend
	backends map[string]BackendFn // registered backends
	loggers  map[string]*logger   // known loggers by source
	enable   srcmap               // per-source logging overrides
	debug    srcmap               // per-source debugging overrides
	forced   bool                 // forced full debugging
	align    int                  // longest source name seen
}

var log = &logging{
	level:    DefaultLevel,
	active:   createFmtBackend(),
	backends: make(map[string]BackendFn),
	loggers:  make(map[string]*logger),
	enable:   make(srcmap),
	debug:    make(srcmap),
}

// logger implements Logger for a single source.
type logger struct {
	source string
}

// Get returns the Logger for the given source, creating it if necessary.
func Get(source string) Logger {
	return log.get(source)
}

// NewLogger is an alias for Get.
func NewLogger(source string) Logger {
	return log.get(source)
}

// SetLevel sets the lowest severity of messages to pass through.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// GetLevel returns the current logging severity level.
func GetLevel() Level {
	log.RLock()
	defer log.RUnlock()
	return log.level
}

// SetBackend activates the named logging backend.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()
	return log.setBackend(name)
}

// SetSources updates per-source logging from a spec like "on:a,b,off:c".
func SetSources(spec string) error {
	return log.updateSrcmap(&log.enable, spec)
}

// SetDebug updates per-source debugging from a spec like "on:a,b,off:c".
func SetDebug(spec string) error {
	return log.updateSrcmap(&log.debug, spec)
}

// Flush flushes any messages buffered by the active backend.
func Flush() {
	log.RLock()
	active := log.active
	log.RUnlock()
	active.Flush()
}

func (l *logging) get(source string) *logger {
	source = strings.Trim(source, "[] ")

	l.Lock()
	defer l.Unlock()

	if lg, ok := l.loggers[source]; ok {
		return lg
	}
	lg := &logger{source: source}
	l.loggers[source] = lg
	if len(source) > l.align {
		l.align = len(source)
		l.active.SetSourceAlignment(l.align)
	}
	return lg
}

func (l *logging) setBackend(name string) error {
	if l.active != nil && l.active.Name() == name {
		return nil
	}
	fn, ok := l.backends[name]
	if !ok {
		return loggerError("unknown logger backend %q", name)
	}
	if l.active != nil {
		l.active.Flush()
	}
	l.active = fn()
	l.active.SetSourceAlignment(l.align)
	return nil
}

func (l *logging) updateSrcmap(m *srcmap, spec string) error {
	parsed := make(srcmap)
	if err := parsed.Set(spec); err != nil {
		return err
	}
	l.Lock()
	defer l.Unlock()
	for src, state := range parsed {
		(*m)[src] = state
	}
	return nil
}

// passes checks if a message of the given severity should be emitted.
func (lg *logger) passes(level Level) (Backend, bool) {
	log.RLock()
	defer log.RUnlock()

	switch {
	case level == LevelDebug:
		return log.active, log.forced || log.debug.enabled(lg.source, false)
	case level >= LevelError:
		return log.active, true
	case level < log.level:
		return log.active, false
	default:
		return log.active, log.enable.enabled(lg.source, true)
	}
}

func (lg *logger) emit(level Level, format string, args ...interface{}) {
	if active, ok := lg.passes(level); ok {
		active.Log(level, lg.source, format, args...)
	}
}

func (lg *logger) block(level Level, prefix, format string, args ...interface{}) {
	if active, ok := lg.passes(level); ok {
		active.Block(level, lg.source, prefix, format, args...)
	}
}

func (lg *logger) Debug(format string, args ...interface{}) {
	lg.emit(LevelDebug, format, args...)
}

func (lg *logger) Info(format string, args ...interface{}) {
	lg.emit(LevelInfo, format, args...)
}

func (lg *logger) Warn(format string, args ...interface{}) {
	lg.emit(LevelWarn, format, args...)
}

func (lg *logger) Error(format string, args ...interface{}) {
	lg.emit(LevelError, format, args...)
}

func (lg *logger) Panic(format string, args ...interface{}) {
	lg.emit(LevelPanic, format, args...)
	Flush()
	panic(fmt.Sprintf("["+lg.source+"] "+format, args...))
}

func (lg *logger) Fatal(format string, args ...interface{}) {
	lg.emit(LevelFatal, format, args...)
	Flush()
	os.Exit(1)
}

func (lg *logger) DebugBlock(prefix string, format string, args ...interface{}) {
	lg.block(LevelDebug, prefix, format, args...)
}

func (lg *logger) InfoBlock(prefix string, format string, args ...interface{}) {
	lg.block(LevelInfo, prefix, format, args...)
}

func (lg *logger) WarnBlock(prefix string, format string, args ...interface{}) {
	lg.block(LevelWarn, prefix, format, args...)
}

func (lg *logger) ErrorBlock(prefix string, format string, args ...interface{}) {
	lg.block(LevelError, prefix, format, args...)
}

// EnableDebug enables/disables debug logging, returning the previous state.
func (lg *logger) EnableDebug(state bool) bool {
	log.Lock()
	defer log.Unlock()
	old := log.debug.enabled(lg.source, false)
	log.debug[lg.source] = state
	return old
}

// DebugEnabled checks if debug logging is enabled for this logger.
func (lg *logger) DebugEnabled() bool {
	_, ok := lg.passes(LevelDebug)
	return ok
}

func (lg *logger) Source() string {
	return lg.source
}

func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}

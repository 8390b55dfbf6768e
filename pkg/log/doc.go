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

// Package log implements source-based logging for simple-lmkd.
//
// Every package creates its own Logger with a source name using Get().
// Messages below the global severity level are suppressed. Informational
// messages can be turned off per source, debug messages need to be turned
// on per source, either with the -logger-debug command line option, by
// calling SetDebug(), or by toggling forced debugging with a signal set up
// using SetupDebugToggleSignal(). Messages are emitted by the active
// backend, the default fmt one or klog.
package log

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

package main

import (
	"flag"
)

const (
	// Option to specify a file to read configuration from.
	optConfigFile = "config"
	// Option to override the HTTP endpoint.
	optHTTPEndpoint = "http-endpoint"
	// Option to override the PID file.
	optPidFile = "pidfile"
	// Option to activate reclaim at startup.
	optActivate = "activate"
	// Option to print version information and exit.
	optVersion = "version"
	// Option to print the effective configuration and exit.
	optPrintConfig = "print-config"
)

// options captures our command line options.
type options struct {
	configFile   string
	httpEndpoint string
	pidFile      string
	activate     bool
	version      bool
	printConfig  bool
}

var opt = options{}

func init() {
	flag.StringVar(&opt.configFile, optConfigFile, "",
		"file to read configuration from.")
	flag.StringVar(&opt.httpEndpoint, optHTTPEndpoint, "",
		"HTTP endpoint for metrics and control, overrides the configuration.")
	flag.StringVar(&opt.pidFile, optPidFile, "",
		"PID file to use, overrides the configuration.")
	flag.BoolVar(&opt.activate, optActivate, false,
		"activate reclaim at startup instead of on the first minfree write.")
	flag.BoolVar(&opt.version, optVersion, false,
		"print version information and exit.")
	flag.BoolVar(&opt.printConfig, optPrintConfig, false,
		"print the effective configuration and exit.")
}

// isSet checks if the named flag was given on the command line.
func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

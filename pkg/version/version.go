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

// Package version lets one tag built binaries with version metadata.
//
// The defaults are overridden at link time, for instance:
//
//	LDFLAGS=-ldflags \
//	  "-X=github.com/intel/simple-lmk/pkg/version.Version=<version> \
//	   -X=github.com/intel/simple-lmk/pkg/version.Build=<build-id>"
package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Default values of variables we'll override with the linker.
var (
	// Version is our version as given by 'git describe'.
	Version = "unknown"
	// Build is the SHA1 of the repository we've been built from.
	Build = "unknown"
)

// Info is version information about a binary.
type Info struct {
	Binary    string `json:"binary"`
	Version   string `json:"version"`
	Build     string `json:"build"`
	GoVersion string `json:"goVersion"`
}

// Get returns version information about this binary.
func Get() Info {
	return Info{
		Binary:    filepath.Base(os.Args[0]),
		Version:   Version,
		Build:     Build,
		GoVersion: runtime.Version(),
	}
}

// Print prints version information to the given writer.
func (i Info) Print(w io.Writer) {
	fmt.Fprintf(w, "%s version information:\n", i.Binary)
	fmt.Fprintf(w, "  - version: %s\n", i.Version)
	fmt.Fprintf(w, "  - build:   %s\n", i.Build)
	fmt.Fprintf(w, "  - go:      %s\n", i.GoVersion)
}

// Collector returns a constant build_info gauge for this binary.
func Collector(namespace string) prometheus.Collector {
	i := Get()
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running binary, value is always 1.",
			ConstLabels: prometheus.Labels{
				"version":   i.Version,
				"build":     i.Build,
				"goversion": i.GoVersion,
			},
		},
		func() float64 { return 1 },
	)
}

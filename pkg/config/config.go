// Copyright 2019-2022 Intel Corporation. All Rights Reserved.
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

// Package config implements the configuration file of simple-lmkd.
package config

import (
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/intel/simple-lmk/pkg/lmk"
	logger "github.com/intel/simple-lmk/pkg/log"
)

const (
	// DefaultHTTPEndpoint is the default HTTP endpoint for metrics and control.
	DefaultHTTPEndpoint = ":8891"
	// DefaultPidFile is the default PID file path.
	DefaultPidFile = "/run/simple-lmkd/simple-lmkd.pid"
)

// Config is the configuration of simple-lmkd.
type Config struct {
	// MinFree is the amount of memory to reclaim per reclaim pass.
	MinFree Size `json:"minFree"`
	// AdjBoundaries are the descending oom_score_adj boundaries of victim tiers.
	AdjBoundaries []int `json:"adjBoundaries"`
	// PeriodicInterval is the interval and rate limit of periodic reclaim.
	PeriodicInterval Duration `json:"periodicInterval"`
	// UrgentInterval is the rate limit of urgent reclaim.
	UrgentInterval Duration `json:"urgentInterval"`
	// BoostDuration is the duration of max boost kicked per reclaim pass.
	BoostDuration Duration `json:"boostDuration"`
	// Activate activates reclaim at startup instead of on the first minfree write.
	Activate bool `json:"activate"`
	// ProcRoot is the procfs mount point.
	ProcRoot string `json:"procRoot"`
	// HTTPEndpoint is the HTTP endpoint for metrics and control, empty to disable.
	HTTPEndpoint string `json:"httpEndpoint"`
	// PidFile is the path of the PID file.
	PidFile string `json:"pidFile"`
	// Pressure configures the memory pressure monitor.
	Pressure Pressure `json:"pressure"`
	// Boost configures boosting during reclaim.
	Boost Boost `json:"boost"`
	// Logger configures logging.
	Logger Logger `json:"logger"`
}

// Pressure configures the memory pressure monitor.
type Pressure struct {
	Enabled          bool     `json:"enabled"`
	PollInterval     Duration `json:"pollInterval"`
	StartReclaim     Amount   `json:"startReclaim"`
	StopReclaim      Amount   `json:"stopReclaim"`
	UrgentReclaim    Amount   `json:"urgentReclaim"`
	PSIFullThreshold float64  `json:"psiFullThreshold"`
}

// Boost configures boosting during reclaim.
type Boost struct {
	CPUFreq        bool     `json:"cpuFreq"`
	CPUFreqRoot    string   `json:"cpuFreqRoot"`
	DevfreqRoot    string   `json:"devfreqRoot"`
	DevfreqDevices []string `json:"devfreqDevices"`
}

// Logger configures logging.
type Logger struct {
	Backend string `json:"backend"`
	Level   string `json:"level"`
	Debug   string `json:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MinFree:          Size(lmk.DefaultMinFree),
		AdjBoundaries:    append([]int(nil), lmk.DefaultAdjBoundaries...),
		PeriodicInterval: Duration(lmk.DefaultPeriodicInterval),
		UrgentInterval:   Duration(lmk.DefaultUrgentInterval),
		BoostDuration:    Duration(lmk.DefaultBoostDuration),
		HTTPEndpoint:     DefaultHTTPEndpoint,
		PidFile:          DefaultPidFile,
		Pressure: Pressure{
			Enabled:          true,
			PollInterval:     Duration(100 * time.Millisecond),
			StartReclaim:     Amount{Percent: 10},
			StopReclaim:      Amount{Percent: 15},
			UrgentReclaim:    Amount{Percent: 3},
			PSIFullThreshold: 30,
		},
		Boost: Boost{
			CPUFreq: true,
		},
		Logger: Logger{
			Backend: logger.FmtBackendName,
			Level:   logger.DefaultLevel.String(),
		},
	}
}

// Load loads configuration from the given file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file")
	}
	if err := Parse(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}

	return cfg, nil
}

// Parse parses YAML configuration data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return configError("failed to parse configuration: %v", err)
	}
	return cfg.Validate()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if _, err := lmk.NewTierTable(c.AdjBoundaries); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.MinFree == 0 {
		errs = multierror.Append(errs, configError("minFree must be positive"))
	}
	for name, d := range map[string]Duration{
		"periodicInterval": c.PeriodicInterval,
		"urgentInterval":   c.UrgentInterval,
		"boostDuration":    c.BoostDuration,
	} {
		if d <= 0 {
			errs = multierror.Append(errs, configError("%s must be positive, got %s", name, d))
		}
	}

	if c.UrgentInterval > 0 && c.UrgentInterval >= c.PeriodicInterval {
		errs = multierror.Append(errs, configError("urgentInterval %s must be shorter than periodicInterval %s",
			c.UrgentInterval, c.PeriodicInterval))
	}

	if p := c.Pressure; p.Enabled {
		if p.PollInterval <= 0 {
			errs = multierror.Append(errs, configError("pressure pollInterval must be positive"))
		}
		if p.StartReclaim.Percent != 0 && p.StopReclaim.Percent != 0 &&
			p.StopReclaim.Percent < p.StartReclaim.Percent {
			errs = multierror.Append(errs, configError("pressure stopReclaim %s below startReclaim %s",
				p.StopReclaim, p.StartReclaim))
		}
		if p.PSIFullThreshold < 0 || p.PSIFullThreshold > 100 {
			errs = multierror.Append(errs, configError("invalid pressure psiFullThreshold %v",
				p.PSIFullThreshold))
		}
	}

	if _, err := logger.ParseLevel(c.Logger.Level); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// Dump returns the configuration as YAML.
func (c *Config) Dump() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "# failed to dump configuration: " + err.Error()
	}
	return string(data)
}

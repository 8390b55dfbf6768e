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

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// Duration is a time.Duration which implements JSON marshalling/unmarshalling.
type Duration time.Duration

// MarshalJSON is the JSON marshaller for (time.)Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte("\"" + time.Duration(d).String() + "\""), nil
}

// UnmarshalJSON is the JSON unmarshaller for (time.)Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return configError("invalid Duration %s", string(data))
	}
	parsed, err := time.ParseDuration(string(data[1 : len(data)-1]))
	if err != nil {
		return configError("invalid Duration %s: %v", string(data), err)
	}
	*d = Duration(parsed)
	return nil
}

// String returns the value of Duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Size is an amount of memory in bytes, given as a number or in
// human-readable RAM units (512M, 1G).
type Size uint64

// MarshalJSON is the JSON marshaller for Size.
func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON is the JSON unmarshaller for Size.
func (s *Size) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return configError("invalid Size %s: %v", string(data), err)
	}
	switch val := v.(type) {
	case float64:
		if val < 0 {
			return configError("invalid negative Size %s", string(data))
		}
		*s = Size(val)
	case string:
		bytes, err := units.RAMInBytes(val)
		if err != nil {
			return configError("invalid Size %q: %v", val, err)
		}
		if bytes < 0 {
			return configError("invalid negative Size %q", val)
		}
		*s = Size(bytes)
	default:
		return configError("invalid Size %s", string(data))
	}
	return nil
}

// String returns Size in human-readable RAM units.
func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Amount is an amount of memory, either absolute or a percentage of
// total memory (10%).
type Amount struct {
	Bytes   Size
	Percent float64
}

// MarshalJSON is the JSON marshaller for Amount.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON is the JSON unmarshaller for Amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil && strings.HasSuffix(str, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(str, "%")), 64)
		if err != nil || pct < 0 || pct > 100 {
			return configError("invalid percentage %q", str)
		}
		*a = Amount{Percent: pct}
		return nil
	}

	var size Size
	if err := size.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount{Bytes: size}
	return nil
}

// Resolve returns the amount in bytes, for the given total memory.
func (a Amount) Resolve(total uint64) uint64 {
	if a.Percent != 0 {
		return uint64(float64(total) * a.Percent / 100)
	}
	return uint64(a.Bytes)
}

// String returns the amount as a string.
func (a Amount) String() string {
	if a.Percent != 0 {
		return strconv.FormatFloat(a.Percent, 'f', -1, 64) + "%"
	}
	return a.Bytes.String()
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("config: "+format, args...)
}

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

// Package sysfs implements reading and writing of sysfs entries.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// EnumeratedID returns the trailing enumeration part of a name, or -1.
func EnumeratedID(name string) int {
	id := 0
	base := 1
	for idx := len(name) - 1; idx > 0; idx-- {
		d := name[idx]

		if '0' <= d && d <= '9' {
			id += base * (int(d) - '0')
			base *= 10
		} else {
			if base > 1 {
				return id
			}

			return -1
		}
	}

	return -1
}

// ListEnumerated lists entries under base named prefix<N>, ordered by N.
func ListEnumerated(base, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(base, prefix+"[0-9]*"))
	if err != nil {
		return nil, sysfsError(base, "failed to list %s entries: %v", prefix, err)
	}
	sort.Slice(paths, func(i, j int) bool {
		return EnumeratedID(filepath.Base(paths[i])) < EnumeratedID(filepath.Base(paths[j]))
	})
	return paths, nil
}

// ReadEntry reads a sysfs entry and converts it according to the type of ptr.
func ReadEntry(base, entry string, ptr interface{}) (string, error) {
	path := filepath.Join(base, entry)

	blob, err := os.ReadFile(path)
	if err != nil {
		return "", sysfsError(path, "failed to read sysfs entry: %v", err)
	}
	buf := strings.Trim(string(blob), "\n")

	if ptr == nil {
		return buf, nil
	}

	if err := parseValue(buf, ptr); err != nil {
		return "", sysfsError(path, "%v", err)
	}

	return buf, nil
}

// WriteEntry writes a value to a sysfs entry, optionally reading its
// old value into oldp first.
func WriteEntry(base, entry string, val, oldp interface{}) (string, error) {
	var old string
	var err error

	if oldp != nil {
		if old, err = ReadEntry(base, entry, oldp); err != nil {
			return "", err
		}
	}

	path := filepath.Join(base, entry)

	buf, err := formatValue(val)
	if err != nil {
		return "", sysfsError(path, "%v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return "", sysfsError(path, "cannot open: %v", err)
	}
	defer f.Close()

	if _, err = f.Write([]byte(buf + "\n")); err != nil {
		return "", sysfsError(path, "cannot write: %v", err)
	}

	return old, nil
}

// Parse a value from a string.
func parseValue(str string, value interface{}) error {
	switch ptr := value.(type) {
	case *string:
		*ptr = str

	case *int, *int32, *int64:
		v, err := strconv.ParseInt(str, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid entry '%s': %v", str, err)
		}
		switch ptr := value.(type) {
		case *int:
			*ptr = int(v)
		case *int32:
			*ptr = int32(v)
		case *int64:
			*ptr = v
		}

	case *uint, *uint32, *uint64:
		v, err := strconv.ParseUint(str, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid entry '%s': %v", str, err)
		}
		switch ptr := value.(type) {
		case *uint:
			*ptr = uint(v)
		case *uint32:
			*ptr = uint32(v)
		case *uint64:
			*ptr = v
		}

	default:
		return fmt.Errorf("unsupported sysfs entry type %T", value)
	}

	return nil
}

// Format a value into a string.
func formatValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	}
	return "", fmt.Errorf("unsupported sysfs entry type %T", value)
}

func sysfsError(path, format string, args ...interface{}) error {
	return fmt.Errorf("sysfs "+path+": "+format, args...)
}

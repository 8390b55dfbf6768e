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

package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumeratedID(t *testing.T) {
	for name, id := range map[string]int{
		"policy0":  0,
		"policy12": 12,
		"cpu7":     7,
		"policy":   -1,
		"x1y":      -1,
	} {
		require.Equal(t, id, EnumeratedID(name), name)
	}
}

func TestListEnumerated(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"policy10", "policy2", "policy0", "boost"} {
		require.NoError(t, os.Mkdir(filepath.Join(base, name), 0755))
	}
	paths, err := ListEnumerated(base, "policy")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(base, "policy0"),
		filepath.Join(base, "policy2"),
		filepath.Join(base, "policy10"),
	}, paths)
}

func TestReadWriteEntry(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "scaling_min_freq"), []byte("300000\n"), 0644))

	var freq uint64
	buf, err := ReadEntry(base, "scaling_min_freq", &freq)
	require.NoError(t, err)
	require.Equal(t, "300000", buf)
	require.Equal(t, uint64(300000), freq)

	var old uint64
	_, err = WriteEntry(base, "scaling_min_freq", uint64(2400000), &old)
	require.NoError(t, err)
	require.Equal(t, uint64(300000), old)

	_, err = ReadEntry(base, "scaling_min_freq", &freq)
	require.NoError(t, err)
	require.Equal(t, uint64(2400000), freq)

	var adj int
	require.NoError(t, os.WriteFile(filepath.Join(base, "adj"), []byte("-1000\n"), 0644))
	_, err = ReadEntry(base, "adj", &adj)
	require.NoError(t, err)
	require.Equal(t, -1000, adj)

	_, err = ReadEntry(base, "missing", &freq)
	require.Error(t, err)
	_, err = ReadEntry(base, "adj", &freq)
	require.Error(t, err)
	_, err = WriteEntry(base, "adj", 1.5, nil)
	require.Error(t, err)
}

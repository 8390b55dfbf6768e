// Copyright 2020 Intel Corporation. All Rights Reserved.
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

// Package testutils has helpers shared by tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

// VerifyError checks that err is a multierror with the expected number
// of errors, each substring found in its message.
func VerifyError(t *testing.T, err error, expectedCount int, expectedSubstrings ...string) {
	t.Helper()

	if expectedCount == 0 {
		require.NoError(t, err)
		return
	}

	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected a multierror, got %#v", err)
	require.Len(t, merr.Errors, expectedCount, "unexpected errors: %v", merr)

	for _, s := range expectedSubstrings {
		require.Contains(t, err.Error(), s)
	}
}

// CreateTree creates the given files under root, with any missing
// parent directories. Keys are slash-separated relative paths.
func CreateTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

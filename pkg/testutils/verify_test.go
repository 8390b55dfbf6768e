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

package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestVerifyError(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("first"), errors.New("second"))

	VerifyError(t, merr, 2, "first", "second")
	VerifyError(t, nil, 0)
}

func TestCreateTree(t *testing.T) {
	root := t.TempDir()
	CreateTree(t, root, map[string]string{
		"meminfo":            "MemTotal: 1 kB\n",
		"42/stat":            "42 (x) S\n",
		"self/oom_score_adj": "0\n",
	})

	data, err := os.ReadFile(filepath.Join(root, "42", "stat"))
	require.NoError(t, err)
	require.Equal(t, "42 (x) S\n", string(data))
	_, err = os.Stat(filepath.Join(root, "self", "oom_score_adj"))
	require.NoError(t, err)
}

// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package load

import (
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBuildDeleteKeysOptimisticUsesTaskDeleteOnly(t *testing.T) {
	l := &ChangeLoader{}
	task := types.NewLoadTask(ordersTable())
	task.Delete["1"] = struct{}{}
	task.Insert["2"] = "2|b"

	keys := l.buildDeleteKeys(task, false)

	require.Len(t, keys, 1)
	require.Contains(t, keys, "1")
}

func TestBuildDeleteKeysPessimisticUnionsInsertKeys(t *testing.T) {
	l := &ChangeLoader{}
	task := types.NewLoadTask(ordersTable())
	task.Delete["1"] = struct{}{}
	task.Insert["2"] = "2|b"

	keys := l.buildDeleteKeys(task, true)

	require.Len(t, keys, 2)
	require.Contains(t, keys, "1")
	require.Contains(t, keys, "2")
}

func TestBuildDeleteKeysDoesNotMutateTask(t *testing.T) {
	l := &ChangeLoader{}
	task := types.NewLoadTask(ordersTable())
	task.Insert["2"] = "2|b"

	_ = l.buildDeleteKeys(task, true)

	require.Empty(t, task.Delete, "buildDeleteKeys must not write back into task.Delete")
}

func TestIsDuplicateKeyPgError(t *testing.T) {
	require.True(t, isDuplicateKeyPgError(&pgconn.PgError{Code: "23505"}))
	require.True(t, isDuplicateKeyPgError(errors.Wrap(&pgconn.PgError{Code: "23505"}, "copying rows")))
	require.False(t, isDuplicateKeyPgError(&pgconn.PgError{Code: "40001"}))
	require.False(t, isDuplicateKeyPgError(errors.New("unrelated")))
}

func TestErrKindClassifiesLoadError(t *testing.T) {
	err := types.NewLoadError(types.DuplicateKey, ordersTable(), errors.New("dup"))
	require.Equal(t, "duplicate-key", errKind(err))
	require.Equal(t, "unknown", errKind(errors.New("plain")))
}

func TestLoadModeString(t *testing.T) {
	require.Equal(t, "optimistic", optimistic.String())
	require.Equal(t, "pessimistic", pessimistic.String())
}

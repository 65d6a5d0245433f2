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

package sched

import (
	"sync"
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/stretchr/testify/require"
)

func tbl(name string) ident.Table {
	return ident.NewTable(ident.NewSchema("db", "public"), name)
}

type fakeInspector struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInspector) Inspect(mapped ident.Table) (types.TableMeta, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return types.TableMeta{Table: mapped, Columns: []string{"id", "v"}, KeyColumns: []string{"id"}}, nil
}

func TestSchedulerResolveCachesPerTable(t *testing.T) {
	inspector := &fakeInspector{}
	s := NewScheduler("p", nil, inspector, 0, 4)

	_, _, err := s.resolve(tbl("orders"))
	require.NoError(t, err)
	_, _, err = s.resolve(tbl("orders"))
	require.NoError(t, err)

	require.Equal(t, 1, inspector.calls, "resolve must only inspect a table once")
}

func TestSchedulerResolveDistinguishesTables(t *testing.T) {
	inspector := &fakeInspector{}
	s := NewScheduler("p", nil, inspector, 0, 4)

	mOrders, lOrders, err := s.resolve(tbl("orders"))
	require.NoError(t, err)
	mUsers, lUsers, err := s.resolve(tbl("users"))
	require.NoError(t, err)

	require.NotSame(t, mOrders, mUsers)
	require.NotSame(t, lOrders, lUsers)
	require.Equal(t, 2, inspector.calls)
}

func TestSchedulerConcurrencyDefaultsToOne(t *testing.T) {
	s := NewScheduler("p", nil, &fakeInspector{}, 0, 0)
	require.Equal(t, 1, s.Concurrency)
}

func TestSchedulerRunBatchEmptyIsNoop(t *testing.T) {
	s := NewScheduler("p", nil, &fakeInspector{}, 0, 4)
	err := s.RunBatch(nil, map[string]*types.RowSet{})
	require.NoError(t, err)
}

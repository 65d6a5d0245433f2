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

package dispatch_test

import (
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/dispatch"
	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/stretchr/testify/require"
)

func tbl(name string) ident.Table {
	return ident.NewTable(ident.NewSchema("db", "public"), name)
}

// S5 — batch fan-out across tables: offset advances only once every
// sibling callback has fired.
func TestDispatchFanOut(t *testing.T) {
	d := dispatch.NewDispatcher("test-pipeline", 1000)

	rows := []types.Row{
		{Type: types.Insert, MappedTable: tbl("t1"), Keys: "1", Tuple: "1|a"},
		{Type: types.Insert, MappedTable: tbl("t2"), Keys: "1", Tuple: "1|b"},
		{Type: types.Insert, MappedTable: tbl("t1"), Keys: "2", Tuple: "2|a"},
	}

	offsetAdvanced := false
	sets, committer := d.Dispatch(rows, func() { offsetAdvanced = true })

	require.Len(t, sets, 2)
	require.Equal(t, 2, sets[tbl("t1").Raw()].Len())
	require.Equal(t, 1, sets[tbl("t2").Raw()].Len())

	require.False(t, offsetAdvanced)
	sets[tbl("t1").Raw()].Callback.Fire()
	require.False(t, offsetAdvanced, "offset must not advance until all siblings fire")
	sets[tbl("t2").Raw()].Callback.Fire()
	require.True(t, offsetAdvanced)

	select {
	case <-committer.Done():
	default:
		t.Fatal("committer should be done once both callbacks fired")
	}
}

func TestDispatchEmptyBatchStillAdvancesOffset(t *testing.T) {
	d := dispatch.NewDispatcher("test-pipeline", 1000)
	advanced := false
	sets, _ := d.Dispatch(nil, func() { advanced = true })
	require.Empty(t, sets)
	require.True(t, advanced)
}

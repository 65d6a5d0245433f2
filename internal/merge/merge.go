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

// Package merge folds an ordered sequence of closed RowSets, all
// destined for the same mapped table, into a single LoadTask. The
// per-key compaction rule is "last write wins," the same rule
// github.com/cockroachdb/cdc-sink/internal/util/msort.UniqueByKey
// applies to a flat mutation slice, generalized here to also track
// deletes and key-change splits.
package merge

import (
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
)

// Merger folds RowSets for one mapped table into LoadTasks.
type Merger struct {
	Table ident.Table
}

// NewMerger returns a Merger for the given mapped table.
func NewMerger(table ident.Table) *Merger {
	return &Merger{Table: table}
}

// Merge folds the rows of a single RowSet into task, applying the
// algorithm of §4.3 in arrival order. task may already hold state from
// prior RowSets in the same merge window; Merge is the unit the
// Scheduler calls once a RowSet closes, so callers fold a window of
// RowSets by calling Merge repeatedly against the same task.
//
// It panics if any Row's key is empty, mirroring msort.UniqueByKey's
// refusal to silently swallow a malformed mutation.
func Merge(task *types.LoadTask, rs *types.RowSet) {
	start := time.Now()
	for _, r := range rs.Rows {
		if r.Keys == "" {
			panic("merge: row has empty key")
		}

		switch {
		case r.Type == types.Delete:
			delete(task.Insert, r.Keys)
			task.Delete[r.Keys] = struct{}{}

		case r.KeyChanged():
			// UPDATE where old-key != new-key: DELETE(old) then
			// INSERT(new), in that order.
			delete(task.Insert, r.OldKeys)
			task.Delete[r.OldKeys] = struct{}{}

			delete(task.Delete, r.Keys)
			task.Insert[r.Keys] = r.Tuple

		default: // INSERT or UPDATE with unchanged key
			delete(task.Delete, r.Keys)
			task.Insert[r.Keys] = r.Tuple
		}
	}

	if rs.Callback != nil {
		task.Callbacks = append(task.Callbacks, rs.Callback)
	}

	metrics.MergeDurations.WithLabelValues(task.Table.Raw()).Observe(time.Since(start).Seconds())
}

// NewTask returns an empty LoadTask ready to accumulate RowSets via
// repeated Merge calls.
func (m *Merger) NewTask() *types.LoadTask {
	return types.NewLoadTask(m.Table)
}

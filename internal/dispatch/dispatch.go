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

// Package dispatch routes a PipeLine's transformed Rows into per-table
// RowSets, one per mapped table per upstream batch, sharing a single
// BatchCommitter for that batch's sibling callbacks.
package dispatch

import (
	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	log "github.com/sirupsen/logrus"
)

// Dispatcher accumulates Rows, partitioned by mapped table, for one
// upstream batch at a time. RowSetThreshold is advisory: accumulating
// more rows than this for one table in a single batch only logs a
// warning, since splitting a batch's per-table accumulation into more
// than one closed RowSet would violate the "at most one closed RowSet
// per mappedTable per batch" invariant (§4.2). Operators should size
// their upstream poll batches (kafka.maxBatchMessages) so this warning
// is rare in steady state.
type Dispatcher struct {
	RowSetThreshold int
	Pipeline        string
}

// NewDispatcher returns a Dispatcher enforcing the given advisory
// per-table row-count threshold.
func NewDispatcher(pipeline string, threshold int) *Dispatcher {
	return &Dispatcher{RowSetThreshold: threshold, Pipeline: pipeline}
}

// Dispatch partitions one upstream batch of Rows by mapped table,
// closes one RowSet per table against a freshly allocated
// BatchCommitter, and returns both. onOffsetCommit is invoked — via the
// BatchCommitter — once every returned RowSet's callback has fired; the
// caller typically wires it to the upstream consumer's offset commit.
func (d *Dispatcher) Dispatch(rows []types.Row, onOffsetCommit func()) (map[string]*types.RowSet, *types.BatchCommitter) {
	order := make([]string, 0, 4)
	byTable := make(map[string]*types.RowSet, 4)

	for _, r := range rows {
		key := r.MappedTable.Raw()
		rs, ok := byTable[key]
		if !ok {
			rs = types.NewRowSet(r.MappedTable)
			byTable[key] = rs
			order = append(order, key)
		}
		rs.Append(r)
		metrics.DispatchRowCount.WithLabelValues(r.MappedTable.Raw()).Inc()
	}

	committer := types.NewBatchCommitter(len(byTable), onOffsetCommit)
	for _, key := range order {
		rs := byTable[key]
		if d.RowSetThreshold > 0 && rs.Len() > d.RowSetThreshold {
			log.WithFields(log.Fields{
				"pipeline": d.Pipeline,
				"table":    rs.Table.Raw(),
				"rows":     rs.Len(),
				"limit":    d.RowSetThreshold,
			}).Warn("rowset exceeded advisory threshold within a single upstream batch")
		}
		rs.Close(committer.NewCallback())
	}

	return byTable, committer
}

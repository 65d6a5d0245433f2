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

// Package metrics holds the Prometheus bucket and label definitions
// shared by every pipeline stage, so that histograms registered by
// different packages stay comparable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets bounds every duration histogram registered by this
// module, from sub-millisecond merges up to multi-minute bulk loads.
var LatencyBuckets = []float64{
	.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// TableLabels is attached to every per-table counter or histogram so
// that dashboards can break down load by destination table.
var TableLabels = []string{"table"}

// PipelineLabels is attached to counters that are scoped to a whole
// PipeLine rather than a single table.
var PipelineLabels = []string{"pipeline"}

var (
	// DispatchRowCount tracks rows handed to a Dispatcher, by mapped
	// table. Records skipped or rejected by transform never reach the
	// Dispatcher and are not counted here.
	DispatchRowCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_rows_total",
		Help: "the number of rows dispatched to a per-table RowSet",
	}, TableLabels)

	// TransformErrors tracks records a Transformer could not decode.
	TransformErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_errors_total",
		Help: "the number of records that failed transform decoding",
	}, PipelineLabels)

	// MergeDurations times folding one RowSet into a LoadTask.
	MergeDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "merge_duration_seconds",
		Help:    "the length of time it took to merge a RowSet into a LoadTask",
		Buckets: LatencyBuckets,
	}, TableLabels)

	// LoadDurations times the full apply protocol for one LoadTask.
	LoadDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "load_apply_duration_seconds",
		Help:    "the length of time it took to apply a LoadTask to the target",
		Buckets: LatencyBuckets,
	}, TableLabels)
	// LoadErrors counts failed apply attempts, by table and failure
	// kind (duplicate-key, copy-io, pipe-io, commit-failed).
	LoadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "load_apply_errors_total",
		Help: "the number of LoadTask apply attempts that failed",
	}, []string{"table", "kind"})
	// LoadModeFlips counts optimistic<->pessimistic transitions, by
	// table and destination mode.
	LoadModeFlips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "load_mode_flips_total",
		Help: "the number of optimistic/pessimistic mode transitions",
	}, []string{"table", "mode"})
	// LoadRowsInserted and LoadRowsDeleted count rows actually applied,
	// for comparing against upstream dispatch counts.
	LoadRowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "load_rows_inserted_total",
		Help: "the number of rows inserted by the apply protocol",
	}, TableLabels)
	LoadRowsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "load_rows_deleted_total",
		Help: "the number of rows deleted by the apply protocol",
	}, TableLabels)

	// PoolBorrowWaitDurations times how long a loader waited to borrow a
	// target connection.
	PoolBorrowWaitDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "targetpool_borrow_wait_seconds",
		Help:    "the length of time a caller waited to borrow a connection",
		Buckets: LatencyBuckets,
	}, PipelineLabels)
	// PoolSize reports the current live connection count, which can
	// shrink below its configured maximum as connections are dropped.
	PoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "targetpool_size",
		Help: "the current number of live connections in the pool",
	}, PipelineLabels)

	// UpstreamBatchSize records how many messages a PipeLine consumed
	// per poll.
	UpstreamBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_batch_size",
		Help:    "the number of messages consumed per upstream poll",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
	}, PipelineLabels)
	// UpstreamLag records consumer lag, in messages, per partition.
	UpstreamLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_consumer_lag",
		Help: "the difference between the high watermark and the offset of the most recently received message",
	}, []string{"pipeline", "partition"})

	// PipelineState exports the current PipeLine state as a gauge: 0
	// NORMAL, 1 DEGRADED, 2 STOPPED.
	PipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_state",
		Help: "the current PipeLine state (0=normal, 1=degraded, 2=stopped)",
	}, PipelineLabels)
	// WatchdogTrips counts how many times a Watchdog has raised the
	// global stop flag, by reason.
	WatchdogTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdog_trips_total",
		Help: "the number of times the watchdog raised the stop flag",
	}, []string{"reason"})
)

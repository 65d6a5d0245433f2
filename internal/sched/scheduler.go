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

// Package sched owns the per-table Merger/ChangeLoader pairs a PipeLine
// discovers lazily as new mapped tables appear in the upstream, and runs
// one merge window's worth of RowSets across them on a bounded worker
// pool, the same fixed-width fan-out the teacher's retireLoop gives its
// own background work. A PipeLine still admits one upstream batch at a
// time — that invariant is what gives CommitCallbacks their total order
// (see types.BatchCommitter) — but within a single batch, RowSets for
// different tables have nothing to serialize on, so the Scheduler runs
// their merge+apply concurrently up to Concurrency.
package sched

import (
	"sync"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/load"
	"github.com/DBAShand/cdc-sink-redshift/internal/merge"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"golang.org/x/sync/errgroup"
)

// Scheduler resolves mapped tables to Merger/ChangeLoader pairs on first
// sight and runs one merge window (the closed RowSets of a single
// upstream batch) across them.
type Scheduler struct {
	Pipeline            string
	Pool                *targetpool.Pool
	Inspector           types.SchemaInspector
	SlowDeleteThreshold time.Duration
	Concurrency         int

	mu      sync.Mutex
	mergers map[string]*merge.Merger
	loaders map[string]*load.ChangeLoader
}

// NewScheduler returns a Scheduler that discovers table metadata via
// inspector and applies loaded tasks through pool, running at most
// concurrency tables' worth of merge+apply work at once.
func NewScheduler(pipeline string, pool *targetpool.Pool, inspector types.SchemaInspector, slowDeleteThreshold time.Duration, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		Pipeline:            pipeline,
		Pool:                pool,
		Inspector:           inspector,
		SlowDeleteThreshold: slowDeleteThreshold,
		Concurrency:         concurrency,
		mergers:             make(map[string]*merge.Merger),
		loaders:             make(map[string]*load.ChangeLoader),
	}
}

// RunBatch folds and applies every RowSet in rowSets, one table at a
// time per table but up to Concurrency tables concurrently, and returns
// the first error encountered across all of them. A RowSet's callback
// only fires once its own table's ChangeLoader commits, so a slow table
// never blocks a fast sibling's contribution to the same
// BatchCommitter from completing early.
func (s *Scheduler) RunBatch(ctx *stopper.Context, rowSets map[string]*types.RowSet) error {
	g := new(errgroup.Group)
	sem := make(chan struct{}, s.Concurrency)

	for _, rs := range rowSets {
		rs := rs
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			m, l, err := s.resolve(rs.Table)
			if err != nil {
				return err
			}
			task := m.NewTask()
			merge.Merge(task, rs)
			return l.Apply(ctx, task)
		})
	}

	return g.Wait()
}

// resolve returns the Merger/ChangeLoader pair for table, creating and
// caching it on first sight via Inspector.
func (s *Scheduler) resolve(table ident.Table) (*merge.Merger, *load.ChangeLoader, error) {
	key := table.Raw()

	s.mu.Lock()
	m, ok := s.mergers[key]
	l := s.loaders[key]
	s.mu.Unlock()
	if ok {
		return m, l, nil
	}

	meta, err := s.Inspector.Inspect(table)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mergers[key]; ok {
		return m, s.loaders[key], nil
	}
	m = merge.NewMerger(table)
	l = load.NewChangeLoader(s.Pipeline, meta, s.Pool, s.SlowDeleteThreshold)
	s.mergers[key] = m
	s.loaders[key] = l
	return m, l, nil
}

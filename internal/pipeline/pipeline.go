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

// Package pipeline wires one upstream.Consumer to a transform.Transformer,
// a dispatch.Dispatcher, and a sched.Scheduler, the way
// logical.serialEvents wires a replication loop's OnBegin/OnData/OnCommit
// callbacks to a single target transaction per upstream commit. Here the
// unit of transactional sequencing is one upstream batch rather than one
// source transaction: handleBatch does not return, and therefore does
// not let the Consumer mark offsets, until every table touched by that
// batch has committed its own LoadTask and fired its callbacks.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/dispatch"
	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/sched"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/transform"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/DBAShand/cdc-sink-redshift/internal/upstream"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State is a PipeLine's coarse health, exported as metrics.PipelineState.
type State int32

// The three states a PipeLine can report.
const (
	Normal State = iota
	Degraded
	Stopped
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Degraded:
		return "degraded"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PipeLine drives one upstream.Consumer end to end: transform, dispatch,
// and — via its Scheduler — merge and load, admitting the next upstream
// batch only once every table touched by the current one has committed.
type PipeLine struct {
	Name        string
	Transformer transform.Transformer
	Dispatcher  *dispatch.Dispatcher
	Scheduler   *sched.Scheduler

	consumer *upstream.Consumer
	ctx      *stopper.Context

	state      int32 // atomic, holds a State
	lastCommit atomic.Value
}

// New constructs a PipeLine and the upstream.Consumer it drives,
// wiring the consumer's BatchFunc back to the PipeLine's own
// handleBatch so offsets only advance once a batch is fully applied.
func New(
	name string,
	brokers, topics []string,
	consumerGroup, clientID string,
	maxBatch int,
	maxWait time.Duration,
	transformer transform.Transformer,
	dispatcher *dispatch.Dispatcher,
	scheduler *sched.Scheduler,
) (*PipeLine, error) {
	p := &PipeLine{
		Name:        name,
		Transformer: transformer,
		Dispatcher:  dispatcher,
		Scheduler:   scheduler,
	}
	p.setState(Normal)

	consumer, err := upstream.NewConsumer(name, brokers, topics, consumerGroup, clientID, maxBatch, maxWait, p.handleBatch)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: constructing consumer")
	}
	p.consumer = consumer
	return p, nil
}

// Run drives the PipeLine until ctx's stop flag is raised or the
// consumer returns a fatal error.
func (p *PipeLine) Run(ctx *stopper.Context) error {
	p.ctx = ctx
	err := p.consumer.Run(ctx)
	if err != nil {
		p.setState(Stopped)
	}
	return err
}

// State reports the PipeLine's last-observed health.
func (p *PipeLine) State() State {
	return State(atomic.LoadInt32(&p.state))
}

// LastCommit reports the time of the most recently completed batch, the
// zero Time if none has completed yet. Wired into a Watchdog's
// StateProbe, which trips when the pipeline is Degraded and this time
// is older than the Watchdog's CommitTimeout.
func (p *PipeLine) LastCommit() time.Time {
	if v := p.lastCommit.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

func (p *PipeLine) setState(s State) {
	atomic.StoreInt32(&p.state, int32(s))
	metrics.PipelineState.WithLabelValues(p.Name).Set(float64(s))
}

// handleBatch is the upstream.BatchFunc driving this PipeLine: transform
// every record, dispatch the resulting Rows by mapped table, run the
// merge window across all of them via the Scheduler, and block until
// every sibling CommitCallback has fired before returning — which is
// what lets upstream.Consumer mark offsets past this batch and hand the
// next one to ConsumeClaim.
//
// A Transform failure is always a *types.TransformError: one malformed
// record, not a batch-wide fault. It is logged and counted, and the
// record is skipped exactly like a benign !ok decode, so it never
// withholds the rest of the batch's sibling callbacks or wedges the
// upstream offset behind a record that will never decode. Only a
// Scheduler.RunBatch failure — a schema-inspection error, a
// connection-borrow error, or a LoadError — degrades the pipeline and
// fails the batch.
func (p *PipeLine) handleBatch(batch []upstream.Record) error {
	rows := make([]types.Row, 0, len(batch))
	for _, rec := range batch {
		var row types.Row
		ok, err := p.Transformer.Transform(transform.UpstreamRecord{
			Topic:   rec.Topic,
			Key:     rec.Key,
			Value:   rec.Value,
			Headers: rec.Headers,
		}, &row)
		if err != nil {
			metrics.TransformErrors.WithLabelValues(p.Name).Inc()
			log.WithError(err).WithFields(log.Fields{
				"pipeline": p.Name,
				"topic":    rec.Topic,
			}).Warn("pipeline: skipping record that failed to transform")
			continue
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	rowSets, committer := p.Dispatcher.Dispatch(rows, func() {
		p.lastCommit.Store(time.Now())
	})

	if err := p.Scheduler.RunBatch(p.ctx, rowSets); err != nil {
		p.setState(Degraded)
		return err
	}

	<-committer.Done()
	p.setState(Normal)
	return nil
}

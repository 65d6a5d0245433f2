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

// Start wires one PipeLine from a config.Config, playing the role the
// teacher's wire_gen.go plays for its own Start function: a chain of
// fallible provider calls, each failure unwinding the cleanups already
// stacked by the providers that succeeded before it. google/wire itself
// is not run here (there is exactly one provider graph in this binary,
// not enough permutations to justify codegen), but the shape — one
// function per collaborator, explicit cleanup stacking on failure — is
// the same one wire_gen.go generates.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/config"
	"github.com/DBAShand/cdc-sink-redshift/internal/diag"
	"github.com/DBAShand/cdc-sink-redshift/internal/dispatch"
	"github.com/DBAShand/cdc-sink-redshift/internal/pipeline"
	"github.com/DBAShand/cdc-sink-redshift/internal/schema"
	"github.com/DBAShand/cdc-sink-redshift/internal/sched"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/tablemap"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/DBAShand/cdc-sink-redshift/internal/transform"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine bundles the running PipeLine, the diagnostics registry exposed
// over HTTP, and the http.Server serving both, so main can Run/Shutdown
// them as one unit.
type Engine struct {
	PipeLine    *pipeline.PipeLine
	Diagnostics *diag.Diagnostics
	Server      *http.Server
}

// Start builds every collaborator named in §4 from cfg and returns a
// ready-to-Run Engine. ctx governs the lifetime of everything Start
// hands a *stopper.Context to (the target pool's background drain, the
// watchdog loop); the PipeLine itself is driven separately by the
// caller's own call to Engine.PipeLine.Run(ctx).
func Start(ctx *stopper.Context, cfg *config.Config) (*Engine, error) {
	diagnostics := diag.New(ctx)

	resolver, err := tablemap.NewStaticResolver(cfg.Table.Mapping, cfg.Table.DefaultSchema)
	if err != nil {
		return nil, errors.Wrap(err, "inject: building table resolver")
	}

	inspector := schema.NewInspector(cfg.Target.DSN)

	pool, err := targetpool.Open(ctx, cfg.Kafka.ConsumerGroup, cfg.Target.DSN, cfg.Target.PoolSize, targetpool.Options{
		ApplyPlannerHints: cfg.Target.ApplyPlannerHints,
		DisableAutostats:  cfg.Target.DisableAutostats,
	})
	if err != nil {
		return nil, errors.Wrap(err, "inject: opening target pool")
	}

	transformer, err := provideTransformer(cfg, resolver, inspector)
	if err != nil {
		return nil, errors.Wrap(err, "inject: building transformer")
	}

	dispatcher := dispatch.NewDispatcher(cfg.Kafka.ConsumerGroup, cfg.Merge.RowSetThreshold)

	scheduler := sched.NewScheduler(
		cfg.Kafka.ConsumerGroup,
		pool,
		inspector,
		cfg.Merge.SlowDeleteThreshold,
		cfg.Target.LoadConcurrency,
	)

	pl, err := pipeline.New(
		cfg.Kafka.ConsumerGroup,
		cfg.Kafka.Brokers,
		cfg.Kafka.Topics,
		cfg.Kafka.ConsumerGroup,
		cfg.Kafka.ClientID,
		cfg.Kafka.MaxBatchMessages,
		cfg.Kafka.MaxBatchWait,
		transformer,
		dispatcher,
		scheduler,
	)
	if err != nil {
		return nil, errors.Wrap(err, "inject: constructing pipeline")
	}

	watchdog := sched.NewWatchdog(
		cfg.Kafka.ConsumerGroup,
		pool,
		cfg.Watchdog.PollInterval,
		cfg.Watchdog.CommitTimeout,
		cfg.Watchdog.StopGracePeriod,
		func() (lastCommit time.Time, degraded bool) {
			return pl.LastCommit(), pl.State() == pipeline.Degraded
		},
	)
	ctx.Go(func() error { return watchdog.Run(ctx) })

	diagnostics.Register(cfg.Kafka.ConsumerGroup, func(c context.Context) error {
		switch pl.State() {
		case pipeline.Stopped:
			return errors.New("pipeline stopped")
		case pipeline.Degraded:
			return errors.New("pipeline degraded")
		default:
			return nil
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", diagnostics.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.BindAddr, Handler: mux}

	return &Engine{PipeLine: pl, Diagnostics: diagnostics, Server: server}, nil
}

func provideTransformer(cfg *config.Config, resolver *tablemap.StaticResolver, inspector *schema.Inspector) (transform.Transformer, error) {
	hints := tablemap.NoHints{}
	switch cfg.Kafka.Dialect {
	case config.DialectTopicPerTable:
		return &transform.DebeziumPerTable{Resolver: resolver, Schema: inspector, Hints: hints}, nil
	case config.DialectPartitionedSingleTopic:
		return &transform.PartitionedSingleTopic{Resolver: resolver, Schema: inspector, Hints: hints}, nil
	default:
		return nil, errors.Errorf("inject: unrecognized dialect %q", cfg.Kafka.Dialect)
	}
}

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

//go:build wireinject

// This file is never part of a normal build (the wireinject tag is
// never set). It records part of this binary's provider graph as a
// declarative Set; inject.go is hand-written and is not generated from
// it.
package main

import (
	"github.com/DBAShand/cdc-sink-redshift/internal/config"
	"github.com/DBAShand/cdc-sink-redshift/internal/diag"
	"github.com/DBAShand/cdc-sink-redshift/internal/dispatch"
	"github.com/DBAShand/cdc-sink-redshift/internal/pipeline"
	"github.com/DBAShand/cdc-sink-redshift/internal/schema"
	"github.com/DBAShand/cdc-sink-redshift/internal/sched"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/tablemap"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/google/wire"
)

// Set lists the constructors inject.go's Start function calls. It omits
// the transformer selection, the Watchdog's StateProbe closure and the
// HTTP server that Start also builds.
var Set = wire.NewSet(
	diag.New,
	tablemap.NewStaticResolver,
	schema.NewInspector,
	targetpool.Open,
	dispatch.NewDispatcher,
	sched.NewScheduler,
	sched.NewWatchdog,
	pipeline.New,
	wire.Struct(new(Engine), "*"),
)

func injectEngine(ctx *stopper.Context, cfg *config.Config) (*Engine, error) {
	panic(wire.Build(Set))
}

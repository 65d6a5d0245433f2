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
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	log "github.com/sirupsen/logrus"
)

// StateProbe reports whatever a PipeLine considers its own health, so
// the Watchdog can sample it without importing the pipeline package
// (which itself depends on sched).
type StateProbe func() (lastCommit time.Time, degraded bool)

// Watchdog periodically samples a PipeLine's target pool and commit
// recency, the same poll-and-select shape as resolver.retireLoop, and
// raises the global stop flag once the pipeline looks unrecoverable:
// the pool has run out of connections, a background worker already
// recorded a fatal error, or the pipeline reports itself degraded and
// its last batch committed more than CommitTimeout ago. A pipeline that
// is merely idle (not degraded) never trips the commit check, nor does
// one that has not committed any batch yet.
type Watchdog struct {
	Pipeline        string
	Pool            *targetpool.Pool
	PollInterval    time.Duration
	CommitTimeout   time.Duration
	StopGracePeriod time.Duration
	Probe           StateProbe
}

// NewWatchdog returns a Watchdog for one pipeline's target pool.
func NewWatchdog(pipeline string, pool *targetpool.Pool, pollInterval, commitTimeout, stopGracePeriod time.Duration, probe StateProbe) *Watchdog {
	return &Watchdog{
		Pipeline:        pipeline,
		Pool:            pool,
		PollInterval:    pollInterval,
		CommitTimeout:   commitTimeout,
		StopGracePeriod: stopGracePeriod,
		Probe:           probe,
	}
}

// Run polls until ctx's stop flag is raised or the watchdog itself trips
// the stop flag in response to an unrecoverable condition. It returns
// types.ErrWatchdogStop in the latter case, nil otherwise.
func (w *Watchdog) Run(ctx *stopper.Context) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Stopping():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if reason, trip := w.check(ctx); trip {
				metrics.WatchdogTrips.WithLabelValues(reason).Inc()
				log.WithFields(log.Fields{
					"pipeline": w.Pipeline,
					"reason":   reason,
				}).Error("watchdog: raising stop flag")
				ctx.Stop(w.StopGracePeriod)
				return types.ErrWatchdogStop
			}
		}
	}
}

func (w *Watchdog) check(ctx *stopper.Context) (reason string, trip bool) {
	if w.Pool.Size() == 0 {
		return "pool-exhausted", true
	}
	if err := ctx.FirstErr(); err != nil {
		return "worker-error", true
	}
	if w.Probe != nil {
		lastCommit, degraded := w.Probe()
		if degraded && !lastCommit.IsZero() && time.Since(lastCommit) > w.CommitTimeout {
			return "commit-stalled", true
		}
	}
	return "", false
}

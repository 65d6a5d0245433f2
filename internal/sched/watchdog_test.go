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
	"context"
	"testing"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/stretchr/testify/require"
)

// A zero-valued targetpool.Pool reports Size() == 0, the same state a
// pool that has shrunk to nothing during steady-state operation would
// be in; exercising Open() itself needs a live target, so these tests
// stay at the boundary Watchdog.check can exercise without one.
func TestWatchdogCheckReportsPoolExhausted(t *testing.T) {
	w := &Watchdog{Pipeline: "p", Pool: &targetpool.Pool{}}
	reason, trip := w.check(stopper.WithContext(context.Background()))
	require.True(t, trip)
	require.Equal(t, "pool-exhausted", reason)
}

func TestWatchdogRunTripsAndReturnsErrWatchdogStop(t *testing.T) {
	w := NewWatchdog("p", &targetpool.Pool{}, time.Millisecond, time.Second, time.Millisecond, nil)
	ctx := stopper.WithContext(context.Background())

	err := w.Run(ctx)

	require.ErrorIs(t, err, types.ErrWatchdogStop)
	select {
	case <-ctx.Stopping():
	default:
		t.Fatal("watchdog trip must raise the stop flag")
	}
}

func TestWatchdogRunStopsCleanlyWhenContextStopsFirst(t *testing.T) {
	w := NewWatchdog("p", &targetpool.Pool{}, time.Hour, time.Second, time.Millisecond, nil)
	ctx := stopper.WithContext(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ctx.Stop(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

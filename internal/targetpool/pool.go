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

// Package targetpool shares a fixed set of target-database connections
// across a PipeLine's loaders. Unlike pgxpool.Pool, this pool never
// auto-refills: a connection dropped after a failed task is gone for
// good, which is the operator-visible degradation §4.5 calls for.
package targetpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Options configures the planner hints applied once per dialed
// connection, per §4.5.
type Options struct {
	ApplyPlannerHints bool
	DisableAutostats  bool
}

// plannerHintStatements are applied, in order, to every connection this
// pool dials: nested-loop joins are enabled while sequential scans and
// hash joins are disabled, steering the DELETE ... WHERE EXISTS join of
// the delete phase toward nested-loop plans.
var plannerHintStatements = []string{
	"SET enable_nestloop = on",
	"SET enable_seqscan = off",
	"SET enable_hashjoin = off",
}

// A BorrowedConn is a pool-owned physical connection plus the
// per-connection scratch state described in §3: the set of temp-table
// names already created on this connection. That state is
// single-writer (only the loader currently holding the connection ever
// touches it) and lives for the connection's lifetime, spanning many
// borrow/return cycles, so it is a field here rather than on the task.
type BorrowedConn struct {
	*pgx.Conn
	tempTables map[string]bool
}

// HasTempTable reports whether the given temp table was already created
// on this physical connection.
func (b *BorrowedConn) HasTempTable(name string) bool {
	return b.tempTables[name]
}

// MarkTempTableCreated records that name now exists on this connection.
func (b *BorrowedConn) MarkTempTableCreated(name string) {
	b.tempTables[name] = true
}

// Pool is a bounded FIFO queue of target connections.
type Pool struct {
	Pipeline string

	conns chan *BorrowedConn
	size  int32 // live connection count; shrinks as Drop is called
}

// Open dials n connections to dsn, applies planner hints to each, and
// returns a Pool holding them. It registers a cleanup with ctx that
// closes every remaining connection on Stopping, mirroring the
// teacher's stdpool.OpenMySQLAsTarget cleanup idiom
// (ctx.Go(func() error { <-ctx.Stopping(); ... })).
func Open(ctx *stopper.Context, pipeline, dsn string, n int, opts Options) (*Pool, error) {
	p := &Pool{
		Pipeline: pipeline,
		conns:    make(chan *BorrowedConn, n),
	}

	for i := 0; i < n; i++ {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			p.closeAll(ctx)
			return nil, errors.Wrapf(err, "targetpool: dialing connection %d/%d", i+1, n)
		}
		if err := applyHints(ctx, conn, opts); err != nil {
			_ = conn.Close(ctx)
			p.closeAll(ctx)
			return nil, err
		}
		p.conns <- &BorrowedConn{Conn: conn, tempTables: make(map[string]bool)}
	}
	atomic.StoreInt32(&p.size, int32(n))
	metrics.PoolSize.WithLabelValues(pipeline).Set(float64(n))

	ctx.Go(func() error {
		<-ctx.Stopping()
		p.closeAll(ctx)
		return nil
	})

	return p, nil
}

func applyHints(ctx context.Context, conn *pgx.Conn, opts Options) error {
	if !opts.ApplyPlannerHints {
		return nil
	}
	for _, stmt := range plannerHintStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "targetpool: applying planner hint %q", stmt)
		}
	}
	if opts.DisableAutostats {
		// Best-effort: only Greenplum-family targets understand this
		// setting, so a failure here is logged, not fatal.
		if _, err := conn.Exec(ctx, "SET gp_autostats_mode = none"); err != nil {
			log.WithError(err).Debug("targetpool: gp_autostats_mode not supported by target, ignoring")
		}
	}
	return nil
}

// Borrow removes one connection from the FIFO queue. If the pool has
// shrunk to zero live connections, Borrow fails fast with
// types.ErrNoConnection rather than blocking forever; otherwise it
// blocks until a connection is returned, the context is canceled, or
// the stopper's stop flag is raised.
func (p *Pool) Borrow(ctx *stopper.Context) (*BorrowedConn, error) {
	start := time.Now()
	if atomic.LoadInt32(&p.size) <= 0 {
		return nil, types.ErrNoConnection
	}
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, types.ErrNoConnection
		}
		metrics.PoolBorrowWaitDurations.WithLabelValues(p.Pipeline).Observe(time.Since(start).Seconds())
		return conn, nil
	case <-ctx.Stopping():
		return nil, stopper.ErrStopping
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return places a connection that completed its task successfully back
// onto the FIFO queue, temp-table cache intact.
func (p *Pool) Return(conn *BorrowedConn) {
	p.conns <- conn
}

// Drop closes a connection that failed its task and permanently shrinks
// the pool by one; it is never auto-refilled, per §4.5.
func (p *Pool) Drop(ctx context.Context, conn *BorrowedConn) {
	if err := conn.Close(ctx); err != nil {
		log.WithError(err).Warn("targetpool: error closing dropped connection")
	}
	n := atomic.AddInt32(&p.size, -1)
	metrics.PoolSize.WithLabelValues(p.Pipeline).Set(float64(n))
	log.WithFields(log.Fields{
		"pipeline":  p.Pipeline,
		"remaining": n,
	}).Warn("targetpool: connection dropped after task failure")
}

// Size reports the current number of live connections, including those
// currently borrowed.
func (p *Pool) Size() int { return int(atomic.LoadInt32(&p.size)) }

func (p *Pool) closeAll(ctx context.Context) {
	for {
		select {
		case conn := <-p.conns:
			if err := conn.Close(ctx); err != nil {
				log.WithError(err).Warn("targetpool: error closing connection during shutdown")
			}
		default:
			return
		}
	}
}

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

package load

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/jackc/pgx/v5/pgconn"
)

// copyFromer is the slice of *pgconn.PgConn's API streamCopy drives. It
// exists so tests can substitute a fake consumer without a live wire
// connection to a target database.
type copyFromer interface {
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
}

// copyOutcome separates a consumer-side failure (the COPY protocol
// itself, including a duplicate-key rejection from the target) from a
// producer-side failure (encoding/writing into the pipe), so the caller
// can classify the error per §7's CopyIO/PipeIO distinction.
type copyOutcome struct {
	rowsAffected int64
	consumerErr  error
	producerErr  error
}

// streamCopy produces the given lines on one goroutine and feeds them
// through an io.Pipe to a second goroutine driving the target's
// COPY-from-STDIN protocol, per §4.4's "streaming COPY" design. Both
// ends are closed on every exit path: the producer always closes its
// write end in a deferred call, and the consumer's read end is closed
// here once the consumer goroutine has returned, which also unblocks a
// producer that is still writing after the consumer gave up early (e.g.
// on cancellation).
//
// While awaiting the consumer, this polls the stop flag and yields
// briefly, canceling the COPY if a stop has been raised — the single
// cancellation point inside a task per §4.4.
func streamCopy(ctx *stopper.Context, conn copyFromer, sql string, lines []string) copyOutcome {
	pr, pw := io.Pipe()

	producerDone := make(chan error, 1)
	go func() {
		defer pw.Close()
		w := bufio.NewWriter(pw)
		for _, line := range lines {
			if _, err := w.WriteString(line); err != nil {
				producerDone <- err
				return
			}
			if err := w.WriteByte('\n'); err != nil {
				producerDone <- err
				return
			}
		}
		producerDone <- w.Flush()
	}()

	copyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type consumerResult struct {
		tag pgconn.CommandTag
		err error
	}
	consumerDone := make(chan consumerResult, 1)
	go func() {
		tag, err := conn.CopyFrom(copyCtx, pr, sql)
		consumerDone <- consumerResult{tag, err}
	}()

	var result consumerResult
wait:
	for {
		select {
		case result = <-consumerDone:
			break wait
		case <-ctx.Stopping():
			cancel()
		case <-time.After(50 * time.Millisecond):
			// Yield briefly and re-check the stop flag / completion.
		}
	}

	// Closing the read end here, rather than deferring it from the top
	// of the function, is what unblocks a producer still writing when
	// the consumer returned early (cancellation or protocol error):
	// the pipe write fails immediately instead of hanging forever.
	_ = pr.Close()
	producerErr := <-producerDone

	return copyOutcome{
		rowsAffected: result.tag.RowsAffected(),
		consumerErr:  result.err,
		producerErr:  producerErr,
	}
}

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
	"context"
	"io"
	"testing"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeCopyFromer drains r exactly like pgconn.PgConn.CopyFrom does, so
// tests can assert on what the producer goroutine wrote without a
// wire-protocol connection.
type fakeCopyFromer struct {
	readAll func(r io.Reader) (pgconn.CommandTag, error)
}

func (f *fakeCopyFromer) CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	return f.readAll(r)
}

func TestStreamCopyHappyPath(t *testing.T) {
	ctx := stopper.WithContext(context.Background())

	var captured []byte
	fake := &fakeCopyFromer{readAll: func(r io.Reader) (pgconn.CommandTag, error) {
		var err error
		captured, err = io.ReadAll(r)
		return pgconn.NewCommandTag("COPY 2"), err
	}}

	outcome := streamCopy(ctx, fake, "COPY t FROM STDIN", []string{"1|a", "2|b"})
	require.NoError(t, outcome.consumerErr)
	require.NoError(t, outcome.producerErr)
	require.Equal(t, int64(2), outcome.rowsAffected)
	require.Equal(t, "1|a\n2|b\n", string(captured))
}

// A consumer that gives up without draining the reader must not hang
// the producer: streamCopy must still return once the consumer goroutine
// does, with the pipe's read end closed to unblock the writer.
func TestStreamCopyConsumerAbandonsReader(t *testing.T) {
	ctx := stopper.WithContext(context.Background())

	fake := &fakeCopyFromer{readAll: func(r io.Reader) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("boom")
	}}

	lines := make([]string, 0, 10000)
	for i := 0; i < 10000; i++ {
		lines = append(lines, "some-reasonably-long-line-of-encoded-text-to-fill-pipe-buffers")
	}

	done := make(chan copyOutcome, 1)
	go func() { done <- streamCopy(ctx, fake, "COPY t FROM STDIN", lines) }()

	select {
	case outcome := <-done:
		require.Error(t, outcome.consumerErr)
	case <-time.After(5 * time.Second):
		t.Fatal("streamCopy did not return after consumer abandoned the reader")
	}
}

func TestStreamCopyCancelsOnStop(t *testing.T) {
	ctx := stopper.WithContext(context.Background())

	unblock := make(chan struct{})
	fake := &fakeCopyFromer{readAll: func(r io.Reader) (pgconn.CommandTag, error) {
		<-unblock
		return pgconn.CommandTag{}, context.Canceled
	}}

	done := make(chan copyOutcome, 1)
	go func() { done <- streamCopy(ctx, fake, "COPY t FROM STDIN", []string{"1"}) }()

	go func() {
		time.Sleep(100 * time.Millisecond)
		ctx.Stop(time.Second)
		close(unblock)
	}()

	select {
	case outcome := <-done:
		require.Error(t, outcome.consumerErr)
	case <-time.After(5 * time.Second):
		t.Fatal("streamCopy did not return after Stop")
	}
}

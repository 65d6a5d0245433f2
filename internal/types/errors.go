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

package types

import (
	"fmt"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/pkg/errors"
)

// TransformError wraps a failure decoding one upstream record. The
// originating topic is retained so the PipeLine that skips the record
// can attribute the failure in its logs without re-parsing the record.
type TransformError struct {
	Topic string
	cause error
}

// NewTransformError wraps cause with the topic that produced it.
func NewTransformError(topic string, cause error) *TransformError {
	return &TransformError{Topic: topic, cause: cause}
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: topic %s: %v", e.Topic, e.cause)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *TransformError) Unwrap() error { return e.cause }

// MergeError wraps a failure folding a RowSet into a LoadTask.
type MergeError struct {
	Table ident.Table
	cause error
}

// NewMergeError wraps cause with the table the merge was working on.
func NewMergeError(table ident.Table, cause error) *MergeError {
	return &MergeError{Table: table, cause: cause}
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: table %s: %v", e.Table, e.cause)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *MergeError) Unwrap() error { return e.cause }

// LoadErrorKind distinguishes the apply-protocol step that failed, so a
// ChangeLoader can decide whether to flip its optimistic/pessimistic
// mode and retry (DuplicateKey while optimistic) or fail the task
// (every other case).
type LoadErrorKind int

// The apply-protocol failure modes a ChangeLoader must distinguish.
const (
	// DuplicateKey is returned by the target when an optimistic insert
	// collides with an existing row. It is the sole trigger for an
	// optimistic-to-pessimistic mode flip.
	DuplicateKey LoadErrorKind = iota
	// CopyIO covers consumer-side COPY failures (a pgconn.CopyFrom
	// error) and a failed DELETE ... WHERE EXISTS statement.
	CopyIO
	// PipeIO covers producer-side failures writing encoded rows into
	// the io.Pipe, as distinct from the COPY protocol running over it.
	PipeIO
	// CommitFailed covers a failure of the final transaction commit, and
	// also failures creating the temp table, beginning a transaction, or
	// rolling back before the pessimistic retry.
	CommitFailed
)

func (k LoadErrorKind) String() string {
	switch k {
	case DuplicateKey:
		return "duplicate-key"
	case CopyIO:
		return "copy-io"
	case PipeIO:
		return "pipe-io"
	case CommitFailed:
		return "commit-failed"
	default:
		return "unknown"
	}
}

// LoadError wraps a failure applying a LoadTask to the target.
type LoadError struct {
	Kind  LoadErrorKind
	Table ident.Table
	cause error
}

// NewLoadError wraps cause with the apply step and table it occurred in.
func NewLoadError(kind LoadErrorKind, table ident.Table, cause error) *LoadError {
	return &LoadError{Kind: kind, Table: table, cause: cause}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load: table %s: %s: %v", e.Table, e.Kind, e.cause)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *LoadError) Unwrap() error { return e.cause }

// IsDuplicateKey reports whether err is a LoadError signaling a
// duplicate-key collision, the trigger for the optimistic-to-pessimistic
// mode flip.
func IsDuplicateKey(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == DuplicateKey
}

// ErrNoConnection is returned by a Connection Pool whose live connection
// count has shrunk to zero. A pool whose connections are all borrowed
// but still live blocks instead.
var ErrNoConnection = errors.New("types: no connection available in pool")

// ErrWatchdogStop is returned by Watchdog.Run once it has raised the
// global stop flag in response to an exhausted pool, a recorded worker
// error, or a stalled commit.
var ErrWatchdogStop = errors.New("types: watchdog requested stop")

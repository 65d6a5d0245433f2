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

// Package types contains the canonical data model shared by every
// pipeline stage: the Row produced by a Transformer, the RowSet a
// Dispatcher accumulates, and the LoadTask a Merger hands to a
// ChangeLoader. Collecting them into one package, rather than letting
// each stage define its own, keeps the stages composable as the
// pipeline evolves.
package types

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/google/uuid"
)

// RowType identifies the kind of change a Row represents.
type RowType int

// The three change kinds a CDC producer can emit.
const (
	Insert RowType = iota
	Update
	Delete
)

// String implements fmt.Stringer.
func (t RowType) String() string {
	switch t {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// A Row is one change event in canonical form, already encoded in the
// target's bulk-load text format (see EncodeField). Invariants: Keys is
// never empty; Tuple is present iff Type != Delete.
type Row struct {
	Type        RowType
	ProduceTime time.Time
	OriginTable string
	MappedTable ident.Table

	// Keys is the serialized primary-key tuple, in target text format.
	Keys string
	// Tuple is the serialized full row, in target text format. Empty
	// when Type == Delete.
	Tuple string

	// OldKeys holds the pre-image key encoding for an UPDATE whose
	// primary key changed. Empty in every other case. When non-empty,
	// the Merger treats the row as DELETE(OldKeys) followed by
	// INSERT(Keys), in that order.
	OldKeys string
}

// KeyChanged reports whether this Row is an UPDATE whose primary key
// value differs from its pre-image.
func (r Row) KeyChanged() bool {
	return r.Type == Update && r.OldKeys != "" && r.OldKeys != r.Keys
}

// A CommitCallback represents "upstream position P is durable," scoped
// to a single destination table's contribution to one upstream batch.
// It fires at most once.
type CommitCallback struct {
	parent *BatchCommitter
	once   sync.Once
}

// Fire marks this callback's contribution as durable. It is idempotent:
// calling it more than once has no additional effect. Firing the last
// outstanding callback of a BatchCommitter invokes that committer's
// completion function.
func (c *CommitCallback) Fire() {
	c.once.Do(func() {
		if c.parent != nil {
			c.parent.complete()
		}
	})
}

// A BatchCommitter coordinates the fan-out of one upstream batch into N
// per-table CommitCallbacks. The upstream offset is advanced — by
// invoking onComplete — only once every callback handed out by
// NewCallback has fired. Callbacks within one PipeLine are driven to
// completion in upstream arrival order by the caller (the PipeLine
// admits the next batch's BatchCommitter only after the previous one's
// Done channel closes), which is what gives callbacks their required
// total order without further bookkeeping here.
type BatchCommitter struct {
	pending    int64
	onComplete func()
	done       chan struct{}
	doneOnce   sync.Once
}

// NewBatchCommitter allocates a committer expecting n sibling callbacks.
// If n is zero, onComplete fires immediately: an upstream batch that
// produced no rows for any mapped table still needs its offset
// advanced.
func NewBatchCommitter(n int, onComplete func()) *BatchCommitter {
	b := &BatchCommitter{
		pending:    int64(n),
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
	if n == 0 {
		b.complete()
	}
	return b
}

// NewCallback hands out one more sibling callback. It must not be
// called after Done() has fired.
func (b *BatchCommitter) NewCallback() *CommitCallback {
	return &CommitCallback{parent: b}
}

func (b *BatchCommitter) complete() {
	if atomic.AddInt64(&b.pending, -1) <= 0 {
		b.doneOnce.Do(func() {
			close(b.done)
			if b.onComplete != nil {
				b.onComplete()
			}
		})
	}
}

// Done returns a channel that is closed once every sibling callback has
// fired.
func (b *BatchCommitter) Done() <-chan struct{} { return b.done }

// A RowSet is an ordered multiset of Rows destined for the same mapped
// table within one upstream batch; its size is not capped (the
// Dispatcher's row-count threshold only logs a warning). It is produced
// by a Dispatcher and consumed, in full, by exactly one Merger
// invocation.
type RowSet struct {
	Table    ident.Table
	Rows     []Row
	Callback *CommitCallback

	closed bool
}

// NewRowSet returns an empty, open RowSet for the given table.
func NewRowSet(table ident.Table) *RowSet {
	return &RowSet{Table: table}
}

// Append adds a Row to the set. It panics if called after Close, since
// every caller in this codebase treats a closed RowSet as immutable.
func (rs *RowSet) Append(r Row) {
	if rs.closed {
		panic("types: append to closed RowSet")
	}
	rs.Rows = append(rs.Rows, r)
}

// Len returns the number of Rows currently accumulated.
func (rs *RowSet) Len() int { return len(rs.Rows) }

// Close attaches the CommitCallback for the upstream batch this RowSet
// belongs to and marks the set as eligible for merge. The Dispatcher
// closes every RowSet at the end of its upstream batch.
func (rs *RowSet) Close(cb *CommitCallback) {
	rs.Callback = cb
	rs.closed = true
}

// Closed reports whether Close has been called.
func (rs *RowSet) Closed() bool { return rs.closed }

// A LoadTask is a merged batch of changes for one target table: the
// unit of work a ChangeLoader applies in a single transaction.
type LoadTask struct {
	// ID identifies this task in logs, independent of any upstream
	// offset, so a slow or retried apply can be correlated across the
	// optimistic attempt and a forced pessimistic retry.
	ID string

	Table ident.Table

	// Delete holds key-encodings to remove from the target before (or,
	// in optimistic mode, without) inserting.
	Delete map[string]struct{}

	// Insert maps key-encoding to the chronologically last non-DELETE
	// tuple-encoding observed for that key in the merge window.
	Insert map[string]string

	// Callbacks preserves upstream arrival order; every RowSet that
	// contributed to this task appended its Callback here.
	Callbacks []*CommitCallback
}

// NewLoadTask returns an empty LoadTask for the given table.
func NewLoadTask(table ident.Table) *LoadTask {
	return &LoadTask{
		ID:     uuid.NewString(),
		Table:  table,
		Delete: make(map[string]struct{}),
		Insert: make(map[string]string),
	}
}

// Empty reports whether the task has no deletes and no inserts. An
// empty LoadTask can still carry callbacks and must still be "applied"
// (committed, callbacks fired) so upstream offsets keep advancing.
func (t *LoadTask) Empty() bool {
	return len(t.Delete) == 0 && len(t.Insert) == 0
}

// FireCallbacks fires every callback attached to the task, in order.
func (t *LoadTask) FireCallbacks() {
	for _, cb := range t.Callbacks {
		cb.Fire()
	}
}

// TableMeta is the target-side descriptor for one table: its ordered
// column list and ordered primary-key column list, as reported by a
// SchemaInspector and treated as read-only.
type TableMeta struct {
	Table      ident.Table
	Columns    []string
	KeyColumns []string
}

// SchemaInspector discovers TableMeta for a mapped table.
type SchemaInspector interface {
	Inspect(mapped ident.Table) (TableMeta, error)
}

// TableResolver maps a source-qualified table name to its target
// mapped table.
type TableResolver interface {
	Resolve(sourceQualifiedName string) (ident.Table, bool)
}

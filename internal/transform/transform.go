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

// Package transform decodes one upstream CDC record into the canonical
// types.Row, for either of the two wire dialects this engine accepts.
package transform

import (
	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
)

// An UpstreamRecord is one opaque message read off the upstream broker:
// a byte payload, the topic it arrived on, and (for the
// partitioned-single-topic dialect) any envelope headers carrying
// source-table identity.
type UpstreamRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// A Transformer decodes one UpstreamRecord into out. A false return with
// a nil error is a benign skip (tombstone, empty payload): the record
// contributes nothing, but its sibling callback still fires. A non-nil
// error is always a *types.TransformError.
type Transformer interface {
	Transform(rec UpstreamRecord, out *types.Row) (ok bool, err error)
}

// ColumnKind tells the decoder which upstream encoding a column's raw
// JSON value is in.
type ColumnKind int

// The encodings §4.1 requires the transformer to understand.
const (
	KindPlain ColumnKind = iota
	KindDecimal
	KindTemporal
	KindDate
	KindBits
	KindBinary
)

// ColumnHint carries the extra metadata a decoder needs beyond the raw
// JSON value: a decimal's scale, or a bit string's declared precision.
type ColumnHint struct {
	Kind      ColumnKind
	Scale     int
	Precision int
}

// TypeHints supplies per-column decode hints. Its concrete
// implementation (derived from target schema metadata) is out of scope
// for this module, per spec §1's "column-metadata discovery query" is
// an external collaborator; it is referenced here only as an interface.
type TypeHints interface {
	Hint(mapped ident.Table, column string) ColumnHint
}

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

package transform

import (
	"encoding/json"

	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/pkg/errors"
)

// OriginTableHeader is the record-envelope header carrying source-table
// identity in the partitioned-single-topic dialect, per §6 Dialect B.
const OriginTableHeader = "table"

type partitionedBody struct {
	Op     string                 `json:"op"`
	TsMs   int64                  `json:"ts_ms"`
	Before map[string]interface{} `json:"before"`
	After  map[string]interface{} `json:"after"`
}

// PartitionedSingleTopic implements Dialect B: every source table is
// multiplexed onto one topic, with source-table identity carried in the
// record envelope rather than implied by the topic name. Because many
// tables share the topic, an unconfigured table is a benign skip rather
// than a configuration error.
type PartitionedSingleTopic struct {
	Resolver types.TableResolver
	Schema   types.SchemaInspector
	Hints    TypeHints
}

var _ Transformer = (*PartitionedSingleTopic)(nil)

// Transform implements Transformer.
func (p *PartitionedSingleTopic) Transform(rec UpstreamRecord, out *types.Row) (bool, error) {
	row, ok, err := p.transform(rec)
	if err != nil {
		return false, types.NewTransformError(rec.Topic, err)
	}
	if !ok {
		return false, nil
	}
	*out = row
	return true, nil
}

func (p *PartitionedSingleTopic) transform(rec UpstreamRecord) (types.Row, bool, error) {
	if len(rec.Value) == 0 {
		return types.Row{}, false, nil
	}

	originTable, ok := rec.Headers[OriginTableHeader]
	if !ok || originTable == "" {
		return types.Row{}, false, errors.New("record missing origin-table header")
	}

	mapped, ok := p.Resolver.Resolve(originTable)
	if !ok {
		// Unconfigured tables legitimately share this topic with
		// configured ones: skip rather than fail the pipeline.
		return types.Row{}, false, nil
	}

	var body partitionedBody
	if err := json.Unmarshal(rec.Value, &body); err != nil {
		return types.Row{}, false, errors.Wrap(err, "invalid JSON body")
	}
	if body.Op == "" {
		return types.Row{}, false, nil
	}

	meta, err := p.Schema.Inspect(mapped)
	if err != nil {
		return types.Row{}, false, errors.Wrapf(err, "inspecting schema for %s", mapped)
	}

	row, err := buildRow(
		originTable, mapped, meta, p.Hints,
		changeOp(body.Op), body.TsMs,
		body.Before, body.After,
	)
	if err != nil {
		return types.Row{}, false, err
	}
	return row, true, nil
}

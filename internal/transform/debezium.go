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

type debeziumPayload struct {
	Op     string                 `json:"op"`
	TsMs   int64                  `json:"ts_ms"`
	Before map[string]interface{} `json:"before"`
	After  map[string]interface{} `json:"after"`
}

type debeziumEnvelope struct {
	Payload *debeziumPayload `json:"payload"`
}

// DebeziumPerTable implements Dialect A: one Kafka topic per source
// table, Debezium-shaped JSON envelope. The topic-to-table mapping is
// expected to be exact, so an unmapped topic is treated as a
// configuration error rather than a benign skip.
type DebeziumPerTable struct {
	Resolver types.TableResolver
	Schema   types.SchemaInspector
	Hints    TypeHints
}

var _ Transformer = (*DebeziumPerTable)(nil)

// Transform implements Transformer.
func (d *DebeziumPerTable) Transform(rec UpstreamRecord, out *types.Row) (bool, error) {
	row, ok, err := d.transform(rec)
	if err != nil {
		return false, types.NewTransformError(rec.Topic, err)
	}
	if !ok {
		return false, nil
	}
	*out = row
	return true, nil
}

func (d *DebeziumPerTable) transform(rec UpstreamRecord) (types.Row, bool, error) {
	if len(rec.Value) == 0 {
		return types.Row{}, false, nil
	}

	var env debeziumEnvelope
	if err := json.Unmarshal(rec.Value, &env); err != nil {
		return types.Row{}, false, errors.Wrap(err, "invalid JSON envelope")
	}
	if env.Payload == nil {
		// A null payload is Debezium's tombstone convention: benign skip.
		return types.Row{}, false, nil
	}

	mapped, ok := d.Resolver.Resolve(rec.Topic)
	if !ok {
		return types.Row{}, false, errors.Errorf("no table mapping configured for topic %s", rec.Topic)
	}

	meta, err := d.Schema.Inspect(mapped)
	if err != nil {
		return types.Row{}, false, errors.Wrapf(err, "inspecting schema for %s", mapped)
	}

	row, err := buildRow(
		rec.Topic, mapped, meta, d.Hints,
		changeOp(env.Payload.Op), env.Payload.TsMs,
		env.Payload.Before, env.Payload.After,
	)
	if err != nil {
		return types.Row{}, false, err
	}
	return row, true, nil
}

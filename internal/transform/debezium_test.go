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

package transform_test

import (
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/transform"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]ident.Table

func (f fakeResolver) Resolve(name string) (ident.Table, bool) {
	t, ok := f[name]
	return t, ok
}

type fakeSchema map[string]types.TableMeta

func (f fakeSchema) Inspect(mapped ident.Table) (types.TableMeta, error) {
	return f[mapped.Raw()], nil
}

type fakeHints map[string]transform.ColumnHint

func (f fakeHints) Hint(_ ident.Table, column string) transform.ColumnHint {
	return f[column]
}

func ordersTable() ident.Table {
	return ident.NewTable(ident.NewSchema("analytics", "public"), "orders")
}

func setup() (*transform.DebeziumPerTable, ident.Table) {
	mapped := ordersTable()
	resolver := fakeResolver{"orders-topic": mapped}
	schema := fakeSchema{
		mapped.Raw(): types.TableMeta{
			Table:      mapped,
			Columns:    []string{"id", "price"},
			KeyColumns: []string{"id"},
		},
	}
	hints := fakeHints{
		"price": {Kind: transform.KindDecimal, Scale: 2},
	}
	return &transform.DebeziumPerTable{Resolver: resolver, Schema: schema, Hints: hints}, mapped
}

// S6 — Debezium decimal decoding.
func TestDecimalDecode(t *testing.T) {
	d, mapped := setup()
	rec := transform.UpstreamRecord{
		Topic: "orders-topic",
		Value: []byte(`{"payload":{"op":"c","ts_ms":0,"after":{"id":"1","price":"AJiWgA=="}}}`),
	}

	var row types.Row
	ok, err := d.Transform(rec, &row)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.Insert, row.Type)
	require.Equal(t, mapped, row.MappedTable)
	require.Equal(t, "1|100000.00", row.Tuple)
}

func TestNullPayloadIsBenignSkip(t *testing.T) {
	d, _ := setup()
	rec := transform.UpstreamRecord{
		Topic: "orders-topic",
		Value: []byte(`{"payload":null}`),
	}
	var row types.Row
	ok, err := d.Transform(rec, &row)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnmappedTopicIsTransformError(t *testing.T) {
	d, _ := setup()
	rec := transform.UpstreamRecord{
		Topic: "unknown-topic",
		Value: []byte(`{"payload":{"op":"c","ts_ms":0,"after":{"id":"1","price":"AA=="}}}`),
	}
	var row types.Row
	_, err := d.Transform(rec, &row)
	require.Error(t, err)
	var te *types.TransformError
	require.ErrorAs(t, err, &te)
}

func TestUpdateKeyChangeRecordsOldKeys(t *testing.T) {
	d, _ := setup()
	rec := transform.UpstreamRecord{
		Topic: "orders-topic",
		Value: []byte(`{"payload":{"op":"u","ts_ms":0,"before":{"id":"1","price":"AA=="},"after":{"id":"2","price":"AA=="}}}`),
	}
	var row types.Row
	ok, err := d.Transform(rec, &row)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, row.KeyChanged())
	require.Equal(t, "1", row.OldKeys)
	require.Equal(t, "2", row.Keys)
}

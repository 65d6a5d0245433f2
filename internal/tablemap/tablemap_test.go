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

package tablemap_test

import (
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/tablemap"
	"github.com/DBAShand/cdc-sink-redshift/internal/transform"
	"github.com/stretchr/testify/require"
)

func TestStaticResolverQualifiesBareTableNames(t *testing.T) {
	r, err := tablemap.NewStaticResolver(map[string]string{
		"orders.topic": "orders",
	}, "public")
	require.NoError(t, err)

	table, ok := r.Resolve("orders.topic")
	require.True(t, ok)
	require.Equal(t, "public", table.Schema.Name.Raw())
	require.Equal(t, "orders", table.Name.Raw())
}

func TestStaticResolverHonorsExplicitSchema(t *testing.T) {
	r, err := tablemap.NewStaticResolver(map[string]string{
		"orders.topic": "sales.orders",
	}, "public")
	require.NoError(t, err)

	table, ok := r.Resolve("orders.topic")
	require.True(t, ok)
	require.Equal(t, "sales", table.Schema.Name.Raw())
}

func TestStaticResolverUnmappedSourceMisses(t *testing.T) {
	r, err := tablemap.NewStaticResolver(nil, "public")
	require.NoError(t, err)

	_, ok := r.Resolve("unknown.topic")
	require.False(t, ok)
}

func TestStaticResolverRejectsMalformedTarget(t *testing.T) {
	_, err := tablemap.NewStaticResolver(map[string]string{
		"orders.topic": "a.b.c.d",
	}, "public")
	require.Error(t, err)
}

func TestStaticResolverPutAddsEntry(t *testing.T) {
	r, err := tablemap.NewStaticResolver(nil, "public")
	require.NoError(t, err)

	r.Put("late.topic", ident.NewTable(ident.NewSchema("", "public"), "late"))

	table, ok := r.Resolve("late.topic")
	require.True(t, ok)
	require.Equal(t, "late", table.Name.Raw())
}

func TestNoHintsAlwaysPlain(t *testing.T) {
	var h transform.TypeHints = tablemap.NoHints{}
	hint := h.Hint(ident.Table{}, "any_column")
	require.Equal(t, transform.KindPlain, hint.Kind)
}

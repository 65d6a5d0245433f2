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
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/stretchr/testify/require"
)

func ordersTable() ident.Table {
	return ident.NewTable(ident.NewSchema("db", "public"), "orders")
}

func TestEnsureTempTableSQLShapedLikeFullTarget(t *testing.T) {
	sql := ensureTempTableSQL(ordersTable(), []string{"id"}, `"cdc_keys_orders"`)
	require.Contains(t, sql, "ON COMMIT DELETE ROWS")
	require.Contains(t, sql, "SELECT * FROM")
	require.Contains(t, sql, "LIMIT 0")
}

func TestDeleteWhereExistsSQLJoinsEveryKeyColumn(t *testing.T) {
	sql := deleteWhereExistsSQL(ordersTable(), []string{"id", "region"}, `"cdc_keys_orders"`)
	require.Contains(t, sql, `"id" = "cdc_keys_orders"."id"`)
	require.Contains(t, sql, `"region" = "cdc_keys_orders"."region"`)
	require.Contains(t, sql, " AND ")
}

func TestCopySQLUsesCSVFormatMatchingEncodeField(t *testing.T) {
	sql := copyTargetSQL(ordersTable(), []string{"id", "amount"})
	require.Contains(t, sql, "FORMAT csv")
	require.Contains(t, sql, `DELIMITER '|'`)
	require.Contains(t, sql, `QUOTE '"'`)
	require.Contains(t, sql, `ESCAPE '\'`)
}

func TestExplainDeleteSQLWrapsTheSameDelete(t *testing.T) {
	del := deleteWhereExistsSQL(ordersTable(), []string{"id"}, `"cdc_keys_orders"`)
	explain := explainDeleteSQL(ordersTable(), []string{"id"}, `"cdc_keys_orders"`)
	require.Equal(t, "EXPLAIN "+del, explain)
}

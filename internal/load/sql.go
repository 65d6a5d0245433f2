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
	"fmt"
	"strings"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
)

// tempTableName derives the scratch temp-table name for a target table.
// Because CREATE TEMP TABLE always lands in pg_temp, no schema qualifier
// is needed; the target table name is embedded only to keep names
// legible in pg_stat_activity during a wide pipeline's concurrent loads.
func tempTableName(table ident.Table) string {
	return ident.New("cdc_keys_" + table.Name.Raw()).String()
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident.New(n).String()
	}
	return strings.Join(quoted, ", ")
}

// ensureTempTableSQL shapes the scratch temp table after the full
// target, not just its key columns, per §4.4 step 1 — a later change to
// what deletePhase copies into it shouldn't also require widening this
// statement.
func ensureTempTableSQL(table ident.Table, keyColumns []string, tempName string) string {
	return fmt.Sprintf(
		`CREATE TEMP TABLE %s ON COMMIT DELETE ROWS AS SELECT * FROM %s LIMIT 0`,
		tempName, table.String(),
	)
}

func copyTempKeysSQL(tempName string, keyColumns []string) string {
	return fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER '|', QUOTE '"', ESCAPE '\', NULL '')`,
		tempName, quoteList(keyColumns),
	)
}

func copyTargetSQL(table ident.Table, columns []string) string {
	return fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER '|', QUOTE '"', ESCAPE '\', NULL '')`,
		table.String(), quoteList(columns),
	)
}

// deleteWhereExistsSQL builds the row-deletion statement joining the
// target on every key column against the scratch temp table, per §4.4
// step 2b.
func deleteWhereExistsSQL(table ident.Table, keyColumns []string, tempName string) string {
	preds := make([]string, len(keyColumns))
	for i, k := range keyColumns {
		q := ident.New(k).String()
		preds[i] = fmt.Sprintf("%s.%s = %s.%s", table.String(), q, tempName, q)
	}
	return fmt.Sprintf(
		`DELETE FROM %s WHERE EXISTS (SELECT 1 FROM %s WHERE %s)`,
		table.String(), tempName, strings.Join(preds, " AND "),
	)
}

// explainDeleteSQL wraps the same predicate in EXPLAIN, for the
// diagnostic capture §4.4 step 2c calls for on a slow delete.
func explainDeleteSQL(table ident.Table, keyColumns []string, tempName string) string {
	return "EXPLAIN " + deleteWhereExistsSQL(table, keyColumns, tempName)
}

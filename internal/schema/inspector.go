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

// Package schema discovers target-table column metadata: the concrete
// types.SchemaInspector a Scheduler needs to build a ChangeLoader the
// first time it sees a mapped table. The column-metadata discovery
// query itself is left out of transform.TypeHints and
// types.SchemaInspector; this package is the concrete
// types.SchemaInspector (it does not implement transform.TypeHints),
// querying information_schema/pg_index directly rather than going
// through a cached watcher the way the teacher's (unretrieved)
// schemawatch package does.
package schema

import (
	"context"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Inspector discovers TableMeta by querying the target's catalog over a
// dedicated connection, separate from the Connection Pool's borrow/drop
// discipline. It keeps no cache: every Inspect call dials and queries
// again. The Scheduler caches the result once per table, but the
// transformers call Inspect for every record they decode.
type Inspector struct {
	DSN string
}

// NewInspector returns an Inspector dialing dsn on every Inspect call.
func NewInspector(dsn string) *Inspector {
	return &Inspector{DSN: dsn}
}

var _ types.SchemaInspector = (*Inspector)(nil)

// Inspect implements types.SchemaInspector, returning the ordered column
// list and ordered primary-key column list for mapped.
func (i *Inspector) Inspect(mapped ident.Table) (types.TableMeta, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, i.DSN)
	if err != nil {
		return types.TableMeta{}, errors.Wrap(err, "schema: dialing target for inspection")
	}
	defer func() { _ = conn.Close(ctx) }()

	columns, err := queryColumns(ctx, conn, mapped)
	if err != nil {
		return types.TableMeta{}, err
	}
	keys, err := queryKeyColumns(ctx, conn, mapped)
	if err != nil {
		return types.TableMeta{}, err
	}
	if len(keys) == 0 {
		return types.TableMeta{}, errors.Errorf("schema: table %s has no primary key", mapped.Raw())
	}

	return types.TableMeta{Table: mapped, Columns: columns, KeyColumns: keys}, nil
}

func queryColumns(ctx context.Context, conn *pgx.Conn, table ident.Table) ([]string, error) {
	const q = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	rows, err := conn.Query(ctx, q, table.Schema.Name.Raw(), table.Name.Raw())
	if err != nil {
		return nil, errors.Wrapf(err, "schema: querying columns for %s", table.Raw())
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "schema: scanning column row")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "schema: reading columns")
	}
	if len(cols) == 0 {
		return nil, errors.Errorf("schema: table %s not found", table.Raw())
	}
	return cols, nil
}

func queryKeyColumns(ctx context.Context, conn *pgx.Conn, table ident.Table) ([]string, error) {
	const q = `
SELECT a.attname
FROM pg_index idx
JOIN pg_class cls ON cls.oid = idx.indrelid
JOIN pg_namespace ns ON ns.oid = cls.relnamespace
JOIN pg_attribute a ON a.attrelid = cls.oid AND a.attnum = ANY(idx.indkey)
WHERE idx.indisprimary AND ns.nspname = $1 AND cls.relname = $2
ORDER BY array_position(idx.indkey, a.attnum)`
	rows, err := conn.Query(ctx, q, table.Schema.Name.Raw(), table.Name.Raw())
	if err != nil {
		return nil, errors.Wrapf(err, "schema: querying primary key for %s", table.Raw())
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "schema: scanning key column row")
		}
		keys = append(keys, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "schema: reading key columns")
	}
	return keys, nil
}

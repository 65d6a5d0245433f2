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
	"fmt"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/pkg/errors"
)

// changeOp is the Debezium-style single-character operation code
// carried by both dialects' envelopes.
type changeOp string

// The op codes §6 Dialect A requires mapping to RowType.
const (
	opRead   changeOp = "r"
	opCreate changeOp = "c"
	opUpdate changeOp = "u"
	opDelete changeOp = "d"
)

func (op changeOp) rowType() (types.RowType, error) {
	switch op {
	case opRead, opCreate:
		return types.Insert, nil
	case opUpdate:
		return types.Update, nil
	case opDelete:
		return types.Delete, nil
	default:
		return 0, errors.Errorf("unrecognized op %q", op)
	}
}

// decodeValue converts one raw JSON field value into its logical text
// form, per the hint's ColumnKind. A nil raw value is NULL.
func decodeValue(hint ColumnHint, raw interface{}) (value string, isNull bool, err error) {
	if raw == nil {
		return "", true, nil
	}
	switch hint.Kind {
	case KindDecimal:
		s, ok := raw.(string)
		if !ok {
			return "", false, errors.Errorf("decimal column: expected base64 string, got %T", raw)
		}
		v, err := decodeDecimal(s, hint.Scale)
		return v, false, err
	case KindTemporal:
		millis, err := asInt64(raw)
		if err != nil {
			return "", false, errors.Wrap(err, "temporal column")
		}
		return decodeTemporal(millis), false, nil
	case KindDate:
		days, err := asInt64(raw)
		if err != nil {
			return "", false, errors.Wrap(err, "date column")
		}
		return decodeDate(days), false, nil
	case KindBits:
		s, ok := raw.(string)
		if !ok {
			return "", false, errors.Errorf("bits column: expected base64 string, got %T", raw)
		}
		v, err := decodeBits(s, hint.Precision)
		return v, false, err
	case KindBinary:
		s, ok := raw.(string)
		if !ok {
			return "", false, errors.Errorf("binary column: expected base64 string, got %T", raw)
		}
		v, err := decodeBinary(s)
		return v, false, err
	default:
		return formatPlain(raw), false, nil
	}
}

func asInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, errors.Errorf("expected numeric value, got %T", raw)
	}
}

// formatPlain renders a JSON-decoded scalar as its textual, unescaped
// logical value; unknown types pass through via fmt.Sprint per §4.1.
func formatPlain(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprint(v)
	}
}

// encodeFields walks columns in order, decodes each from fields using
// hints, and returns the row's text-encoded line.
func encodeFields(mapped ident.Table, columns []string, fields map[string]interface{}, hints TypeHints) (string, error) {
	values := make([]string, len(columns))
	nulls := make([]bool, len(columns))
	for i, col := range columns {
		hint := hints.Hint(mapped, col)
		v, isNull, err := decodeValue(hint, fields[col])
		if err != nil {
			return "", errors.Wrapf(err, "column %s", col)
		}
		values[i] = v
		nulls[i] = isNull
	}
	return types.EncodeRow(values, nulls), nil
}

// buildRow assembles a canonical types.Row from a decoded change
// envelope, applying the key-change split described in §3/§4.3.
func buildRow(
	originTable string,
	mapped ident.Table,
	meta types.TableMeta,
	hints TypeHints,
	op changeOp,
	tsMillis int64,
	before, after map[string]interface{},
) (types.Row, error) {
	rowType, err := op.rowType()
	if err != nil {
		return types.Row{}, err
	}

	fields := after
	if rowType == types.Delete {
		fields = before
	}
	if fields == nil {
		return types.Row{}, errors.New("change envelope missing row image")
	}

	keys, err := encodeFields(mapped, meta.KeyColumns, fields, hints)
	if err != nil {
		return types.Row{}, errors.Wrap(err, "encoding keys")
	}
	if keys == "" {
		return types.Row{}, errors.New("encoded key is empty")
	}

	row := types.Row{
		Type:        rowType,
		ProduceTime: time.UnixMilli(tsMillis).UTC(),
		OriginTable: originTable,
		MappedTable: mapped,
		Keys:        keys,
	}

	if rowType != types.Delete {
		tuple, err := encodeFields(mapped, meta.Columns, fields, hints)
		if err != nil {
			return types.Row{}, errors.Wrap(err, "encoding tuple")
		}
		row.Tuple = tuple
	}

	if rowType == types.Update && before != nil {
		oldKeys, err := encodeFields(mapped, meta.KeyColumns, before, hints)
		if err != nil {
			return types.Row{}, errors.Wrap(err, "encoding old keys")
		}
		if oldKeys != keys {
			row.OldKeys = oldKeys
		}
	}

	return row, nil
}

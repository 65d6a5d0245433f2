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

package types

import "strings"

// fieldDelimiter separates fields within one encoded row.
const fieldDelimiter = '|'

// needsQuote reports whether s must be wrapped in quotes to survive a
// round trip through the delimiter-separated text format.
func needsQuote(s string) bool {
	return strings.ContainsAny(s, "|\"\\\n\r")
}

// EncodeField encodes a single column value into the target's bulk-load
// text format. A NULL is represented as an empty, unquoted field, which
// is why any non-NULL empty string is quoted below: an unquoted empty
// field must unambiguously mean NULL.
func EncodeField(s string, isNull bool) string {
	if isNull {
		return ""
	}
	if s == "" {
		return `""`
	}
	if !needsQuote(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// EncodeText joins already-encoded fields with the field delimiter into
// one row line, without a trailing newline. Encoding is a pure,
// deterministic function of its inputs: re-encoding the same logical
// tuple always produces the same bytes, which is what lets the Merger
// treat tuple-encodings as plain map values.
func EncodeText(fields []string) string {
	return strings.Join(fields, string(fieldDelimiter))
}

// EncodeRow encodes a full row given column values and a parallel NULL
// mask, then joins them into one line.
func EncodeRow(values []string, isNull []bool) string {
	fields := make([]string, len(values))
	for i, v := range values {
		var null bool
		if i < len(isNull) {
			null = isNull[i]
		}
		fields[i] = EncodeField(v, null)
	}
	return EncodeText(fields)
}

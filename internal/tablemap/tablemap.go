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

// Package tablemap is the minimal concrete collaborator for the two
// interfaces transform and types otherwise leave as injected,
// out-of-scope dependencies (types.TableResolver, transform.TypeHints) —
// the same posture the teacher takes with types.Watchers, whose own
// concrete factory lives outside the retrieved source tree. Static,
// config-file mapping is enough to run the two dialects end to end; a
// deployment wanting discovery-driven mapping or decimal/temporal
// column hints replaces this package, not internal/transform.
package tablemap

import (
	"strings"
	"sync"

	"github.com/DBAShand/cdc-sink-redshift/internal/ident"
	"github.com/DBAShand/cdc-sink-redshift/internal/transform"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/pkg/errors"
)

// StaticResolver implements types.TableResolver over a fixed map parsed
// once at construction time, keyed by source-qualified name.
type StaticResolver struct {
	mu     sync.RWMutex
	tables map[string]ident.Table
}

var _ types.TableResolver = (*StaticResolver)(nil)

// NewStaticResolver parses mapping (source name -> target table's raw
// dotted name) into a StaticResolver. A mapping value with no schema
// segment of its own (a bare table name) is qualified against
// defaultSchema in the current database. ParseTable failures abort
// construction: a malformed mapping entry is a configuration error, not
// a runtime skip.
func NewStaticResolver(mapping map[string]string, defaultSchema string) (*StaticResolver, error) {
	tables := make(map[string]ident.Table, len(mapping))
	for source, target := range mapping {
		qualified := target
		if !strings.Contains(target, ".") {
			qualified = defaultSchema + "." + target
		}
		table, err := ident.ParseTable(qualified)
		if err != nil {
			return nil, errors.Wrapf(err, "tablemap: parsing target for source %q", source)
		}
		tables[source] = table
	}
	return &StaticResolver{tables: tables}, nil
}

// Resolve implements types.TableResolver.
func (r *StaticResolver) Resolve(sourceQualifiedName string) (ident.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[sourceQualifiedName]
	return t, ok
}

// Put adds or replaces one mapping entry, letting a long-running process
// pick up newly mapped tables without a restart.
func (r *StaticResolver) Put(sourceQualifiedName string, target ident.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[sourceQualifiedName] = target
}

// NoHints is a transform.TypeHints that never overrides the decoder's
// default plain-JSON handling. It is the right choice whenever upstream
// columns need no decimal, temporal, bit, or binary special-casing;
// anything else needs a TypeHints backed by real target-schema metadata.
type NoHints struct{}

var _ transform.TypeHints = NoHints{}

// Hint implements transform.TypeHints, always returning KindPlain.
func (NoHints) Hint(ident.Table, string) transform.ColumnHint {
	return transform.ColumnHint{Kind: transform.KindPlain}
}

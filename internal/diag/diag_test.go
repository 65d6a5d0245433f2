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

package diag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DBAShand/cdc-sink-redshift/internal/diag"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckAllHealthy(t *testing.T) {
	d := diag.New(context.Background())
	d.Register("pipeline-a", func(context.Context) error { return nil })
	d.Register("pipeline-b", func(context.Context) error { return nil })

	healthy, results := d.Check(context.Background())

	require.True(t, healthy)
	require.Len(t, results, 2)
}

func TestCheckOneUnhealthyFailsOverall(t *testing.T) {
	d := diag.New(context.Background())
	d.Register("pipeline-a", func(context.Context) error { return nil })
	d.Register("pipeline-b", func(context.Context) error { return errors.New("degraded") })

	healthy, results := d.Check(context.Background())

	require.False(t, healthy)
	var found bool
	for _, r := range results {
		if r.Name == "pipeline-b" {
			found = true
			require.False(t, r.Healthy)
			require.Equal(t, "degraded", r.Error)
		}
	}
	require.True(t, found)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	d := diag.New(context.Background())
	d.Register("pipeline-a", func(context.Context) error { return errors.New("boom") })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var results []diag.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
}

func TestHandlerReturns200WhenHealthy(t *testing.T) {
	d := diag.New(context.Background())
	d.Register("pipeline-a", func(context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

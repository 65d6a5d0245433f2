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

package config

import (
	"testing"

	"github.com/magiconair/properties"
	"github.com/stretchr/testify/require"
)

func loadString(t *testing.T, s string) *Config {
	t.Helper()
	p, err := properties.LoadString(s)
	require.NoError(t, err)
	var c Config
	require.NoError(t, c.fromProperties(p))
	return &c
}

func TestFromPropertiesAppliesDefaults(t *testing.T) {
	c := loadString(t, `target.dsn=postgres://x`)

	require.Equal(t, DialectTopicPerTable, c.Kafka.Dialect)
	require.Equal(t, 8, c.Target.PoolSize)
	require.Equal(t, 8, c.Target.LoadConcurrency, "loadConcurrency defaults to poolSize")
	require.Equal(t, "public", c.Table.DefaultSchema)
	require.Equal(t, ":13013", c.BindAddr)
}

func TestFromPropertiesParsesTableMapping(t *testing.T) {
	c := loadString(t, `
table.mapping.orders.topic=sales.orders
table.mapping.customers.topic=customers
`)

	require.Equal(t, "sales.orders", c.Table.Mapping["orders.topic"])
	require.Equal(t, "customers", c.Table.Mapping["customers.topic"])
}

func TestFromPropertiesSplitsCSVLists(t *testing.T) {
	c := loadString(t, `
kafka.brokers=host1:9092, host2:9092
kafka.topics=orders,customers
`)

	require.Equal(t, []string{"host1:9092", "host2:9092"}, c.Kafka.Brokers)
	require.Equal(t, []string{"orders", "customers"}, c.Kafka.Topics)
}

func TestFromPropertiesExplicitLoadConcurrencyOverridesPoolSize(t *testing.T) {
	c := loadString(t, `
target.poolSize=16
target.loadConcurrency=4
`)

	require.Equal(t, 16, c.Target.PoolSize)
	require.Equal(t, 4, c.Target.LoadConcurrency)
}

func validConfig() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics:  []string{"orders"},
			Dialect: DialectTopicPerTable,
		},
		Target: TargetConfig{
			DSN:             "postgres://x",
			PoolSize:        4,
			LoadConcurrency: 4,
		},
		Merge: MergeConfig{
			RowSetThreshold: 100,
		},
		Table: TableConfig{
			Mapping: map[string]string{"orders.topic": "orders"},
		},
		BindAddr: ":13013",
	}
}

func TestPreflightAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Preflight())
}

func TestPreflightRejectsMissingBrokers(t *testing.T) {
	c := validConfig()
	c.Kafka.Brokers = nil
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsUnrecognizedDialect(t *testing.T) {
	c := validConfig()
	c.Kafka.Dialect = "made-up"
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsEmptyTableMapping(t *testing.T) {
	c := validConfig()
	c.Table.Mapping = nil
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsNonPositiveLoadConcurrency(t *testing.T) {
	c := validConfig()
	c.Target.LoadConcurrency = 0
	require.Error(t, c.Preflight())
}

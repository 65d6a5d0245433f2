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

// Package config defines the operator-visible configuration surface:
// a single .properties file, per the bireme heritage of this replication
// engine, bound to a pflag.FlagSet in the same style the teacher uses
// for its own Config types.
package config

import (
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Dialect selects the upstream wire format a PipeLine expects.
type Dialect string

// The two upstream wire dialects this engine understands.
const (
	// DialectTopicPerTable is the Debezium-style convention of one
	// Kafka topic per source table, JSON-encoded.
	DialectTopicPerTable Dialect = "topic-per-table"
	// DialectPartitionedSingleTopic multiplexes every source table
	// onto one topic, partitioned by origin table.
	DialectPartitionedSingleTopic Dialect = "partitioned-single-topic"
)

// KafkaConfig describes how to reach the upstream CDC topic(s).
type KafkaConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
	ClientID      string
	Dialect       Dialect

	// MaxBatchMessages bounds how many messages a single poll hands to
	// the Dispatcher before the batch is closed.
	MaxBatchMessages int
	// MaxBatchWait bounds how long a poll will wait to fill
	// MaxBatchMessages before closing a short batch.
	MaxBatchWait time.Duration
}

// TargetConfig describes the analytic warehouse being loaded.
type TargetConfig struct {
	DSN string

	// PoolSize is the number of connections the Connection Pool holds.
	PoolSize int
	// ApplyPlannerHints enables the enable_nestloop/enable_seqscan/
	// enable_hashjoin session settings applied once per connection.
	ApplyPlannerHints bool
	// DisableAutostats sets gp_autostats_mode=none; only meaningful
	// against Greenplum-family targets.
	DisableAutostats bool
	// TempTableSchema is read from target.tempTableSchema but is not
	// used by the ChangeLoader: its delete-phase staging table is an
	// unqualified CREATE TEMP TABLE, which always lands in pg_temp.
	TempTableSchema string
	// LoadConcurrency bounds how many tables' ChangeLoaders the
	// Scheduler runs concurrently for one merge window. It should not
	// exceed PoolSize, since each concurrent load borrows one
	// connection.
	LoadConcurrency int
}

// MergeConfig tunes the Dispatcher/Merger boundary.
type MergeConfig struct {
	// RowSetThreshold is the Dispatcher's advisory per-table row count:
	// a RowSet that exceeds it within one upstream batch is logged with
	// a warning. RowSets close only at upstream batch boundaries; this
	// threshold never closes one.
	RowSetThreshold int
	// SlowDeleteThreshold triggers an EXPLAIN capture on a delete
	// phase that takes longer than this to complete.
	SlowDeleteThreshold time.Duration
}

// WatchdogConfig tunes health sampling and stop-flag behavior.
type WatchdogConfig struct {
	PollInterval    time.Duration
	CommitTimeout   time.Duration
	StopGracePeriod time.Duration
}

// TableConfig carries the static source-to-target table mapping. A
// production deployment may replace this with a richer, discovery-driven
// TableResolver; the properties-file mapping here is the minimal
// collaborator internal/tablemap needs to satisfy types.TableResolver
// without requiring one.
type TableConfig struct {
	// Mapping is keyed by source-qualified name (the Kafka topic name
	// under DialectTopicPerTable, or the origin-table header value
	// under DialectPartitionedSingleTopic) and valued by the target
	// table's raw dotted name, resolved against DefaultSchema when the
	// value carries no schema segment of its own.
	Mapping map[string]string
	// DefaultSchema qualifies a mapping value that names only a bare
	// table, e.g. "orders" becomes "<DefaultSchema>.orders".
	DefaultSchema string
}

// Config is the full operator-visible configuration surface.
type Config struct {
	Kafka    KafkaConfig
	Target   TargetConfig
	Merge    MergeConfig
	Watchdog WatchdogConfig
	Table    TableConfig

	BindAddr string
	LogLevel string

	configPath string
}

// Bind registers the single --config flag, mirroring the teacher's
// Bind(flags *pflag.FlagSet) convention on source.server.Config.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "",
		"path to a .properties configuration file")
}

// Load reads the .properties file named by --config (or already set on
// c.configPath for callers that construct Config directly) and
// populates every field. It does not call Preflight.
func (c *Config) Load() error {
	if c.configPath == "" {
		return errors.New("config: --config is required")
	}
	p, err := properties.LoadFile(c.configPath, properties.UTF8)
	if err != nil {
		return errors.Wrapf(err, "config: loading %s", c.configPath)
	}
	return c.fromProperties(p)
}

func (c *Config) fromProperties(p *properties.Properties) error {
	c.Kafka.Brokers = splitCSV(p.GetString("kafka.brokers", ""))
	c.Kafka.Topics = splitCSV(p.GetString("kafka.topics", ""))
	c.Kafka.ConsumerGroup = p.GetString("kafka.consumerGroup", "cdc-replicator")
	c.Kafka.ClientID = p.GetString("kafka.clientId", "cdc-replicator")
	c.Kafka.Dialect = Dialect(p.GetString("kafka.dialect", string(DialectTopicPerTable)))
	c.Kafka.MaxBatchMessages = p.GetInt("kafka.maxBatchMessages", 1000)
	c.Kafka.MaxBatchWait = p.GetParsedDuration("kafka.maxBatchWait", time.Second)

	c.Target.DSN = p.GetString("target.dsn", "")
	c.Target.PoolSize = p.GetInt("target.poolSize", 8)
	c.Target.ApplyPlannerHints = p.GetBool("target.applyPlannerHints", true)
	c.Target.DisableAutostats = p.GetBool("target.disableAutostats", false)
	c.Target.TempTableSchema = p.GetString("target.tempTableSchema", "pg_temp")
	c.Target.LoadConcurrency = p.GetInt("target.loadConcurrency", c.Target.PoolSize)

	c.Merge.RowSetThreshold = p.GetInt("merge.rowSetThreshold", 5000)
	c.Merge.SlowDeleteThreshold = p.GetParsedDuration("merge.slowDeleteThreshold", 5*time.Second)

	c.Watchdog.PollInterval = p.GetParsedDuration("watchdog.pollInterval", 2*time.Second)
	c.Watchdog.CommitTimeout = p.GetParsedDuration("watchdog.commitTimeout", 30*time.Second)
	c.Watchdog.StopGracePeriod = p.GetParsedDuration("watchdog.stopGracePeriod", 10*time.Second)

	c.Table.DefaultSchema = p.GetString("table.defaultSchema", "public")
	c.Table.Mapping = p.FilterStripPrefix("table.mapping.").Map()

	c.BindAddr = p.GetString("bindAddr", ":13013")
	c.LogLevel = p.GetString("logLevel", "info")

	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Preflight validates that the configuration is complete enough to
// start a pipeline, mirroring the teacher's Preflight() error pattern.
func (c *Config) Preflight() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers unset")
	}
	if len(c.Kafka.Topics) == 0 {
		return errors.New("kafka.topics unset")
	}
	switch c.Kafka.Dialect {
	case DialectTopicPerTable, DialectPartitionedSingleTopic:
	default:
		return errors.Errorf("kafka.dialect %q not recognized", c.Kafka.Dialect)
	}
	if c.Target.DSN == "" {
		return errors.New("target.dsn unset")
	}
	if c.Target.PoolSize <= 0 {
		return errors.New("target.poolSize must be positive")
	}
	if c.Target.LoadConcurrency <= 0 {
		return errors.New("target.loadConcurrency must be positive")
	}
	if c.Merge.RowSetThreshold <= 0 {
		return errors.New("merge.rowSetThreshold must be positive")
	}
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if len(c.Table.Mapping) == 0 {
		return errors.New("table.mapping has no entries")
	}
	return nil
}

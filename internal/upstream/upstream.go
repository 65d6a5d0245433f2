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

// Package upstream batches Kafka records for a PipeLine, mirroring the
// "accumulate, hand off, then commit offsets" discipline of
// github.com/squareup/pranadb/push/source.MessageConsumer, adapted to
// sarama's callback-driven consumer group API rather than pranadb's
// pull-style GetMessage(timeout).
package upstream

import (
	"strconv"
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Record is one upstream message, translated out of sarama's
// *ConsumerMessage into a form the rest of this module doesn't need to
// import sarama to read.
type Record struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
}

// BatchFunc processes one closed batch of Records. It must not return
// until every Record's effect is durable enough to commit the upstream
// offsets past it — the same "blocks until messages were actually
// ingested" contract pranadb's handleMessages callback documents.
type BatchFunc func(batch []Record) error

// Consumer drives one sarama consumer group across a fixed topic set,
// batching records by count or time the way
// MessageConsumer.getBatch does, and committing offsets only after
// BatchFunc returns successfully for that batch.
type Consumer struct {
	Pipeline string

	group    sarama.ConsumerGroup
	topics   []string
	maxBatch int
	maxWait  time.Duration
	handle   BatchFunc
}

// NewConsumer dials brokers and joins consumerGroup, ready to consume
// topics once Run is called.
func NewConsumer(pipeline string, brokers, topics []string, consumerGroup, clientID string, maxBatch int, maxWait time.Duration, handle BatchFunc) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false

	group, err := sarama.NewConsumerGroup(brokers, consumerGroup, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "upstream: joining consumer group")
	}

	return &Consumer{
		Pipeline: pipeline,
		group:    group,
		topics:   topics,
		maxBatch: maxBatch,
		maxWait:  maxWait,
		handle:   handle,
	}, nil
}

// Run joins the consumer group and processes claims until ctx's stop
// flag is raised, mirroring the teacher's "background loop selecting on
// the stopper" idiom. Consume itself returns whenever the group
// rebalances, so Run loops calling it again until told to stop.
func (c *Consumer) Run(ctx *stopper.Context) error {
	defer c.group.Close()

	go func() {
		for err := range c.group.Errors() {
			log.WithError(err).WithField("pipeline", c.Pipeline).Error("upstream: consumer group error")
		}
	}()

	handler := &groupHandler{consumer: c}
	for {
		select {
		case <-ctx.Stopping():
			return nil
		default:
		}
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return errors.Wrap(err, "upstream: consume")
		}
	}
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim accumulates records from one partition claim into
// batches bounded by maxBatch or maxWait, calls handle once per batch,
// and marks the offset only once handle returns nil — the same
// process-then-commit ordering as pollLoop's
// handleMessages-then-CommitOffsets sequence.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	batch := make([]Record, 0, c.maxBatch)

	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		metrics.UpstreamBatchSize.WithLabelValues(c.Pipeline).Observe(float64(len(batch)))
		if err := c.handle(batch); err != nil {
			return err
		}
		last := batch[len(batch)-1]
		session.MarkOffset(last.Topic, last.Partition, last.Offset+1, "")
		batch = batch[:0]
		return nil
	}

	for {
		// Restart the wait only while no batch is open, so maxWait
		// bounds a batch's age rather than the gap between messages.
		if len(batch) == 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.maxWait)
		}

		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			batch = append(batch, toRecord(msg))
			metrics.UpstreamLag.WithLabelValues(c.Pipeline, partitionLabel(msg.Partition)).
				Set(float64(claim.HighWaterMarkOffset() - msg.Offset))
			if len(batch) >= c.maxBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
		case <-session.Context().Done():
			return flush()
		}
	}
}

func toRecord(msg *sarama.ConsumerMessage) Record {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	return Record{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
}

func partitionLabel(p int32) string {
	return strconv.Itoa(int(p))
}

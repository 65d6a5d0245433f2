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

package upstream

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
)

func TestToRecordFlattensHeaders(t *testing.T) {
	msg := &sarama.ConsumerMessage{
		Topic:     "orders",
		Key:       []byte("1"),
		Value:     []byte(`{"op":"c"}`),
		Partition: 3,
		Offset:    42,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("table"), Value: []byte("public.orders")},
		},
	}

	r := toRecord(msg)

	require.Equal(t, "orders", r.Topic)
	require.Equal(t, int32(3), r.Partition)
	require.Equal(t, int64(42), r.Offset)
	require.Equal(t, "public.orders", r.Headers["table"])
}

func TestPartitionLabel(t *testing.T) {
	require.Equal(t, "0", partitionLabel(0))
	require.Equal(t, "7", partitionLabel(7))
}

// Copyright 2025 StreamNative, Inc.
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

// Package planner partitions a key list into per-shard batches bounded by
// a byte-size ceiling and a key-count ceiling. Both ceilings exist to keep
// individual requests small: payload size bounds memory and wire cost, the
// key count bounds the latency tail of a single request.
package planner

import (
	"context"

	"github.com/streamnative/rangekv/internal/budget"
	"github.com/streamnative/rangekv/model"
)

// Batch is an ordered set of keys believed to belong to one shard
// snapshot. Batches are disposable: a fresh set is planned on every
// (re)planning pass, carrying a budget forked for this attempt.
type Batch struct {
	Shard  model.Shard
	Keys   [][]byte
	Bytes  int
	Budget *budget.Budget
}

// Limits bounds the footprint of a single batch.
type Limits struct {
	MaxBytes int
	MaxKeys  int
}

// Plan walks keys in caller order, resolving each through router and
// grouping consecutive keys that land on the same shard snapshot. A new
// batch starts when the shard changes, when the accumulated byte footprint
// would exceed the byte ceiling, or when the key count reaches the count
// ceiling. Every input key lands in exactly one batch; keys inside a batch
// keep their input order. An empty key list yields an empty plan.
//
// Each produced batch carries a budget forked from parent.
func Plan(ctx context.Context, router model.ShardRouter, keys [][]byte, limits Limits, parent *budget.Budget) ([]*Batch, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var batches []*Batch
	var current *Batch

	for _, key := range keys {
		shard, err := router.ResolveKey(ctx, key)
		if err != nil {
			return nil, err
		}

		if current != nil && !needSplit(current, shard, key, limits) {
			current.Keys = append(current.Keys, key)
			current.Bytes += len(key)
			continue
		}

		current = &Batch{
			Shard:  shard,
			Keys:   [][]byte{key},
			Bytes:  len(key),
			Budget: parent.Fork(),
		}
		batches = append(batches, current)
	}

	return batches, nil
}

func needSplit(current *Batch, shard model.Shard, key []byte, limits Limits) bool {
	if !current.Shard.Equals(shard) {
		return true
	}
	if limits.MaxKeys > 0 && len(current.Keys) >= limits.MaxKeys {
		return true
	}
	if limits.MaxBytes > 0 && current.Bytes+len(key) > limits.MaxBytes {
		return true
	}
	return false
}

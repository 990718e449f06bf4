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

// Package scan implements the lazily-paginated iterator over an arbitrary
// key range. Pages are fetched one shard at a time; when a shard is
// exhausted the cursor moves across the boundary and the next page comes
// from the neighbouring shard, with no gap or duplicate at the boundary
// key. A staleness error during a page fetch re-resolves the shard and
// retries that page alone.
package scan

import (
	"bytes"
	"context"

	"github.com/streamnative/rangekv/internal/budget"
	"github.com/streamnative/rangekv/internal/metrics"
	"github.com/streamnative/rangekv/model"
)

// Iterator walks the pairs in [start, end) ascending by key, or descending
// when reverse. A zero limit means unbounded. Iterators are single-use and
// must not be pulled concurrently.
type Iterator struct {
	router   model.ShardRouter
	reader   model.StoreReader
	version  uint64
	start    []byte
	end      []byte
	reverse  bool
	pageSize int
	metrics  *metrics.Metrics

	budget    *budget.Budget
	cursor    []byte
	remaining int
	buffer    []model.KeyValue
	done      bool
	err       error
}

type Config struct {
	Version  uint64
	Start    []byte
	End      []byte
	Reverse  bool
	Limit    int
	PageSize int
}

func NewIterator(router model.ShardRouter, reader model.StoreReader, cfg Config, b *budget.Budget, m *metrics.Metrics) *Iterator {
	it := &Iterator{
		router:    router,
		reader:    reader,
		version:   cfg.Version,
		start:     cfg.Start,
		end:       cfg.End,
		reverse:   cfg.Reverse,
		pageSize:  cfg.PageSize,
		metrics:   m,
		budget:    b,
		remaining: cfg.Limit,
	}
	if cfg.Limit <= 0 {
		it.remaining = -1
	}
	if it.reverse {
		// Going backward the cursor is the exclusive upper bound.
		it.cursor = cfg.End
	} else {
		it.cursor = cfg.Start
	}
	return it
}

// Next returns the next pair, or (nil, nil) once the range, the count
// limit or the keyspace is exhausted. The first error encountered is
// sticky.
func (it *Iterator) Next(ctx context.Context) (*model.KeyValue, error) {
	if it.err != nil {
		return nil, it.err
	}
	for len(it.buffer) == 0 && !it.done {
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return nil, err
		}
	}
	if len(it.buffer) == 0 {
		return nil, nil
	}

	pair := it.buffer[0]
	it.buffer = it.buffer[1:]
	if it.remaining > 0 {
		it.remaining--
		if it.remaining == 0 {
			it.done = true
			it.buffer = nil
		}
	}
	return &pair, nil
}

func (it *Iterator) fetchPage(ctx context.Context) error {
	if it.exhausted() {
		it.done = true
		return nil
	}

	shard, pairs, next, err := it.readPageWithRetries(ctx)
	if err != nil {
		return err
	}
	it.metrics.IncScanPage()

	for _, pair := range pairs {
		if !it.inBounds(pair.Key) {
			it.done = true
			return nil
		}
		it.buffer = append(it.buffer, pair)
	}

	if next != nil {
		it.cursor = next
		return nil
	}

	// Shard exhausted in the scan direction: step over the boundary.
	if it.reverse {
		if len(shard.Start) == 0 {
			it.done = true
			return nil
		}
		it.cursor = shard.Start
	} else {
		if len(shard.End) == 0 {
			it.done = true
			return nil
		}
		it.cursor = shard.End
	}
	if it.exhausted() {
		it.done = true
	}
	return nil
}

// readPageWithRetries resolves the shard owning the cursor and fetches one
// page, retrying resolve+fetch on staleness with a budget forked from the
// scan's budget.
func (it *Iterator) readPageWithRetries(ctx context.Context) (model.Shard, []model.KeyValue, []byte, error) {
	pageBudget := it.budget.Fork()
	for {
		shard, err := it.resolveCursor(ctx)
		if err != nil {
			return model.Shard{}, nil, nil, err
		}

		pairs, next, err := it.reader.PageRead(ctx, shard, it.cursor, it.version, it.pageSize, it.reverse)
		if err == nil {
			return shard, pairs, next, nil
		}
		if !model.IsRetriable(err) {
			return model.Shard{}, nil, nil, err
		}

		it.router.Invalidate(shard)
		it.metrics.IncRetry()

		class := budget.ClassTransport
		if model.IsShardMismatch(err) {
			class = budget.ClassShardMismatch
		}
		if werr := pageBudget.Wait(ctx, class, err); werr != nil {
			return model.Shard{}, nil, nil, werr
		}
	}
}

func (it *Iterator) resolveCursor(ctx context.Context) (model.Shard, error) {
	if !it.reverse {
		return it.router.ResolveKey(ctx, it.cursor)
	}

	// Backward the cursor is an exclusive bound, so the owning shard is
	// the last one covering [start, cursor).
	shards, err := it.router.ResolveRange(ctx, it.start, it.cursor)
	if err != nil {
		return model.Shard{}, err
	}
	if len(shards) == 0 {
		return model.Shard{}, model.ErrNoRoute
	}
	return shards[len(shards)-1], nil
}

func (it *Iterator) exhausted() bool {
	if it.reverse {
		// Cursor reached the lower bound.
		return it.cursor != nil && bytes.Compare(it.cursor, it.start) <= 0
	}
	return len(it.end) > 0 && bytes.Compare(it.cursor, it.end) >= 0
}

func (it *Iterator) inBounds(key []byte) bool {
	if it.reverse {
		return bytes.Compare(key, it.start) >= 0
	}
	return len(it.end) == 0 || bytes.Compare(key, it.end) < 0
}

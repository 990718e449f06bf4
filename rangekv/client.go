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

// Package rangekv is the client access layer for RangeKV, a
// horizontally-partitioned, range-sharded key-value store. Keys and ranges
// spanning many shards are planned into per-shard batches, dispatched in
// parallel over a bounded worker pool, and transparently retried with
// re-resolution when the client's view of the shard layout turns out to be
// stale.
package rangekv

import (
	"context"
	"io"

	"github.com/streamnative/rangekv/model"
)

// KeyValue is a single key-value pair returned by a read.
type KeyValue = model.KeyValue

// Shard is an immutable snapshot of one shard of the keyspace.
type Shard = model.Shard

// ShardRouter resolves keys to shards; see model.ShardRouter.
type ShardRouter = model.ShardRouter

// StoreReader reads from the primary of a single shard; see
// model.StoreReader.
type StoreReader = model.StoreReader

// Re-exported error values; see the model package for the taxonomy.
var (
	ErrShardMismatch   = model.ErrShardMismatch
	ErrNoRoute         = model.ErrNoRoute
	ErrBudgetExhausted = model.ErrBudgetExhausted
)

// Client is the public read surface. Every operation is scoped to a
// snapshot version obtained from the cluster's timestamp authority; the
// client passes it through unchanged.
//
// Operations are all-or-nothing: a batch or scan that cannot complete
// within its retry budget fails as a whole, it never returns partial
// results.
type Client interface {
	io.Closer

	// Get reads a single key. found is false when the key is absent at
	// the given version.
	Get(ctx context.Context, key []byte, version uint64) (value []byte, found bool, err error)

	// BatchGet reads a set of keys, spanning any number of shards. The
	// result holds exactly one entry per requested key that exists;
	// order is unspecified. An empty key list returns an empty result
	// without issuing any request.
	BatchGet(ctx context.Context, keys [][]byte, version uint64) ([]KeyValue, error)

	// Scan returns the pairs in [startKey, endKey) ascending by key, or
	// descending with ScanReverse. A nil endKey extends the range to the
	// end of the keyspace; combine with ScanLimit for the bounded-count
	// form.
	Scan(ctx context.Context, startKey, endKey []byte, version uint64, options ...ScanOption) ([]KeyValue, error)

	// ScanIterator returns a lazy iterator over the same range. The
	// iterator is single-use and must not be pulled concurrently.
	ScanIterator(startKey, endKey []byte, version uint64, options ...ScanOption) ScanIterator
}

// ScanIterator pulls one pair at a time across shard boundaries. Next
// returns (nil, nil) once the range, the count limit or the keyspace is
// exhausted.
type ScanIterator interface {
	Next(ctx context.Context) (*KeyValue, error)
}

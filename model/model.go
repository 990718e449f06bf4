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

// Package model holds the domain types shared between the RangeKV client
// and the collaborator services it talks to: shard snapshots, key-value
// pairs and the narrow contracts for routing and reading.
package model

import (
	"bytes"
	"context"
)

// KeyValue is a single key-value pair returned by a read operation.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Shard is an immutable snapshot of one shard of the keyspace, owning the
// half-open range [Start, End). An empty End means the shard extends to the
// end of the keyspace; an empty Start means it begins at the start.
//
// The Epoch token identifies the incarnation of the shard boundaries. Any
// mismatch between a snapshot held by the client and the truth known to the
// serving node surfaces as a shard-mismatch error, never as wrong data.
type Shard struct {
	ID     int64
	Epoch  int64
	Start  []byte
	End    []byte
	Leader string
}

// Contains reports whether key falls inside the shard's range.
func (s Shard) Contains(key []byte) bool {
	if bytes.Compare(s.Start, key) > 0 {
		return false
	}
	return len(s.End) == 0 || bytes.Compare(key, s.End) < 0
}

// Equals reports whether two snapshots refer to the same shard incarnation.
func (s Shard) Equals(other Shard) bool {
	return s.ID == other.ID && s.Epoch == other.Epoch
}

// ShardRouter resolves keys to the shard currently believed to own them.
//
// Implementations are expected to serve from a local cache and to treat
// Invalidate as an advisory, idempotent signal: the caller never waits for
// the refreshed truth, it re-resolves and re-detects staleness on its own.
type ShardRouter interface {
	// ResolveKey returns the shard snapshot believed to own key.
	// Fails with ErrNoRoute when no shard can be determined.
	ResolveKey(ctx context.Context, key []byte) (Shard, error)

	// ResolveRange returns the shard snapshots covering
	// [startInclusive, endExclusive) in key order. An empty end bound
	// extends the range to the end of the keyspace.
	ResolveRange(ctx context.Context, startInclusive, endExclusive []byte) ([]Shard, error)

	// Invalidate drops the cached entry for the shard, if still present.
	// Best effort, never blocks on a refresh.
	Invalidate(shard Shard)
}

// StoreReader performs snapshot reads against the primary of a single
// shard. The version argument scopes every read to a consistent
// point-in-time view; it is passed through unchanged.
//
// All methods fail with a shard-mismatch status when the contacted node no
// longer owns the shard named by the snapshot, or with a transport-level
// error. Both are retriable, see IsRetriable.
type StoreReader interface {
	// Get reads a single key. found is false when the key is absent.
	Get(ctx context.Context, shard Shard, key []byte, version uint64) (value []byte, found bool, err error)

	// BatchGet reads a set of keys that all belong to shard. Absent keys
	// are omitted from the result; order is unspecified.
	BatchGet(ctx context.Context, shard Shard, keys [][]byte, version uint64) ([]KeyValue, error)

	// PageRead returns up to pageSize pairs from the shard, starting at
	// cursor (inclusive going forward, exclusive going backward) and
	// moving towards the shard boundary. next is the cursor to resume
	// from within the same shard, or nil when the shard is exhausted in
	// the scan direction.
	PageRead(ctx context.Context, shard Shard, cursor []byte, version uint64, pageSize int, reverse bool) (pairs []KeyValue, next []byte, err error)
}

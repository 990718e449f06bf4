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

// Package shardcache provides the default ShardRouter: an ordered cache of
// shard snapshots in front of the cluster's routing authority.
//
// The cache is read concurrently by every in-flight operation and
// invalidated concurrently by their retry paths. Invalidation only drops
// the local entry; the refreshed truth is pulled in lazily on the next
// resolve. The cache never promises consistency with the cluster, callers
// re-detect staleness through the read path and invalidate again.
package shardcache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emirpasic/gods/maps/treemap"

	"github.com/streamnative/rangekv/model"
)

// Authority is the external service that knows the current shard layout,
// typically the cluster coordinator.
type Authority interface {
	// LookupShard returns the shard currently owning key.
	LookupShard(ctx context.Context, key []byte) (model.Shard, error)
}

// Cache implements model.ShardRouter.
type Cache struct {
	sync.RWMutex
	authority Authority
	shards    *treemap.Map // shard start key -> model.Shard
	log       *slog.Logger
}

func NewCache(authority Authority) *Cache {
	return &Cache{
		authority: authority,
		shards:    treemap.NewWith(byteKeyComparator),
		log:       slog.With(slog.String("component", "shard-cache")),
	}
}

func byteKeyComparator(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

// ResolveKey serves the shard owning key from the cache, loading it from
// the authority on a miss.
func (c *Cache) ResolveKey(ctx context.Context, key []byte) (model.Shard, error) {
	if shard, ok := c.cached(key); ok {
		return shard, nil
	}
	return c.load(ctx, key)
}

// ResolveRange returns the shards covering [startInclusive, endExclusive)
// in key order. An empty end bound extends to the end of the keyspace.
func (c *Cache) ResolveRange(ctx context.Context, startInclusive, endExclusive []byte) ([]model.Shard, error) {
	var shards []model.Shard
	cursor := startInclusive
	for {
		shard, err := c.ResolveKey(ctx, cursor)
		if err != nil {
			return nil, err
		}
		shards = append(shards, shard)
		if len(shard.End) == 0 {
			return shards, nil
		}
		if len(endExclusive) > 0 && bytes.Compare(shard.End, endExclusive) >= 0 {
			return shards, nil
		}
		cursor = shard.End
	}
}

// Invalidate drops the cached entry for the shard, if it is still the one
// cached for its start key. Idempotent; never consults the authority.
func (c *Cache) Invalidate(shard model.Shard) {
	c.Lock()
	defer c.Unlock()

	if value, ok := c.shards.Get(shard.Start); ok {
		if cached := value.(model.Shard); cached.Equals(shard) {
			c.shards.Remove(shard.Start)
		}
	}
}

func (c *Cache) cached(key []byte) (model.Shard, bool) {
	c.RLock()
	defer c.RUnlock()

	_, value := c.shards.Floor(key)
	if value == nil {
		return model.Shard{}, false
	}
	shard := value.(model.Shard)
	if !shard.Contains(key) {
		return model.Shard{}, false
	}
	return shard, true
}

// load fetches the owning shard from the authority, retrying transient
// lookup failures until the context expires.
func (c *Cache) load(ctx context.Context, key []byte) (model.Shard, error) {
	var shard model.Shard

	err := backoff.RetryNotify(
		func() error {
			var err error
			shard, err = c.authority.LookupShard(ctx, key)
			if err != nil && !model.IsRetriable(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, duration time.Duration) {
			c.log.Warn("Failed to look up shard from authority, retrying later",
				slog.Any("error", err),
				slog.Duration("retry-after", duration))
		},
	)
	if err != nil {
		return model.Shard{}, err
	}

	c.store(shard)
	return shard, nil
}

// store inserts a fresh snapshot, dropping any cached shards overlapping
// its range.
func (c *Cache) store(shard model.Shard) {
	c.Lock()
	defer c.Unlock()

	var stale [][]byte
	it := c.shards.Iterator()
	for it.Next() {
		existing := it.Value().(model.Shard)
		if overlap(existing, shard) && !existing.Equals(shard) {
			stale = append(stale, existing.Start)
		}
	}
	for _, start := range stale {
		c.shards.Remove(start)
	}

	c.shards.Put(shard.Start, shard)
}

func overlap(a, b model.Shard) bool {
	if len(a.End) > 0 && bytes.Compare(a.End, b.Start) <= 0 {
		return false
	}
	if len(b.End) > 0 && bytes.Compare(b.End, a.Start) <= 0 {
		return false
	}
	return true
}

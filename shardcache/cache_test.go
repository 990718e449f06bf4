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

package shardcache

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/streamnative/rangekv/memshard"
	"github.com/streamnative/rangekv/model"
)

func TestCache_ResolveKeyCaches(t *testing.T) {
	cluster := memshard.NewCluster([]byte("m"))
	cache := NewCache(cluster)

	shard, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.True(t, shard.Contains([]byte("a")))
	assert.EqualValues(t, 1, cluster.Lookups())

	// Second resolve within the same shard is served from the cache.
	again, err := cache.ResolveKey(context.Background(), []byte("b"))
	assert.NoError(t, err)
	assert.True(t, shard.Equals(again))
	assert.EqualValues(t, 1, cluster.Lookups())

	// A key in the other half misses and loads.
	other, err := cache.ResolveKey(context.Background(), []byte("z"))
	assert.NoError(t, err)
	assert.False(t, shard.Equals(other))
	assert.EqualValues(t, 2, cluster.Lookups())
}

func TestCache_Invalidate(t *testing.T) {
	cluster := memshard.NewCluster()
	cache := NewCache(cluster)

	shard, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.EqualValues(t, 1, cluster.Lookups())

	cache.Invalidate(shard)
	_, err = cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.EqualValues(t, 2, cluster.Lookups())
}

func TestCache_InvalidateStaleSnapshotOnly(t *testing.T) {
	cluster := memshard.NewCluster()
	cache := NewCache(cluster)

	shard, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)

	// Invalidating a different incarnation of the same range leaves the
	// cached entry alone.
	stale := shard
	stale.Epoch--
	cache.Invalidate(stale)

	_, err = cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.EqualValues(t, 1, cluster.Lookups())
}

func TestCache_StoreEvictsOverlapping(t *testing.T) {
	cluster := memshard.NewCluster()
	cache := NewCache(cluster)

	old, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)

	cluster.Split([]byte("m"))
	cache.Invalidate(old)

	// Loading the left half evicts nothing else; loading confirms the
	// fresh epochs are now served.
	left, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.False(t, left.Equals(old))

	right, err := cache.ResolveKey(context.Background(), []byte("z"))
	assert.NoError(t, err)
	assert.False(t, right.Equals(left))
	assert.True(t, right.Contains([]byte("z")))
}

func TestCache_ResolveRange(t *testing.T) {
	cluster := memshard.NewCluster([]byte("g"), []byte("p"))
	cache := NewCache(cluster)

	shards, err := cache.ResolveRange(context.Background(), []byte("a"), []byte("z"))
	assert.NoError(t, err)
	assert.Len(t, shards, 3)
	assert.Equal(t, []byte("g"), shards[0].End)
	assert.Equal(t, []byte("p"), shards[1].End)
	assert.Empty(t, shards[2].End)

	// A range contained in one shard resolves to just that shard.
	shards, err = cache.ResolveRange(context.Background(), []byte("a"), []byte("c"))
	assert.NoError(t, err)
	assert.Len(t, shards, 1)

	// An empty end bound extends to the end of the keyspace.
	shards, err = cache.ResolveRange(context.Background(), []byte("h"), nil)
	assert.NoError(t, err)
	assert.Len(t, shards, 2)
}

type flakyAuthority struct {
	sync.Mutex
	inner    Authority
	failures int
}

func (f *flakyAuthority) LookupShard(ctx context.Context, key []byte) (model.Shard, error) {
	f.Lock()
	defer f.Unlock()
	if f.failures > 0 {
		f.failures--
		return model.Shard{}, status.Error(codes.Unavailable, "authority restarting")
	}
	return f.inner.LookupShard(ctx, key)
}

func TestCache_LoadRetriesTransientLookup(t *testing.T) {
	cluster := memshard.NewCluster()
	authority := &flakyAuthority{inner: cluster, failures: 1}
	cache := NewCache(authority)

	shard, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.True(t, shard.Contains([]byte("a")))
}

type brokenAuthority struct{}

func (brokenAuthority) LookupShard(context.Context, []byte) (model.Shard, error) {
	return model.Shard{}, errors.WithMessage(model.ErrNoRoute, "nothing here")
}

func TestCache_LoadPermanentFailure(t *testing.T) {
	cache := NewCache(brokenAuthority{})

	_, err := cache.ResolveKey(context.Background(), []byte("a"))
	assert.True(t, model.IsNoRoute(err))
}

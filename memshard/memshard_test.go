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

package memshard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamnative/rangekv/model"
)

func TestCluster_SingleShard(t *testing.T) {
	cluster := NewCluster()

	shards := cluster.Shards()
	assert.Len(t, shards, 1)
	assert.Empty(t, shards[0].Start)
	assert.Empty(t, shards[0].End)
}

func TestCluster_PreSplit(t *testing.T) {
	cluster := NewCluster([]byte("g"), []byte("p"))

	shards := cluster.Shards()
	assert.Len(t, shards, 3)
	assert.Equal(t, []byte("g"), shards[0].End)
	assert.Equal(t, []byte("g"), shards[1].Start)
	assert.Equal(t, []byte("p"), shards[1].End)
	assert.Equal(t, []byte("p"), shards[2].Start)
}

func TestCluster_LookupShard(t *testing.T) {
	cluster := NewCluster([]byte("m"))

	shard, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("m"), shard.End)

	shard, err = cluster.LookupShard(context.Background(), []byte("m"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("m"), shard.Start)

	assert.EqualValues(t, 2, cluster.Lookups())
}

func TestCluster_SplitRejectsStaleSnapshot(t *testing.T) {
	cluster := NewCluster()
	cluster.Put([]byte("a"), []byte("1"), 1)

	old, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)

	cluster.Split([]byte("m"))

	_, _, err = cluster.Get(context.Background(), old, []byte("a"), 1)
	assert.True(t, model.IsShardMismatch(err))

	fresh, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)
	assert.False(t, fresh.Equals(old))

	value, found, err := cluster.Get(context.Background(), fresh, []byte("a"), 1)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)
}

func TestCluster_SplitAtExistingBoundaryIsNoop(t *testing.T) {
	cluster := NewCluster([]byte("m"))
	before := cluster.Shards()

	cluster.Split([]byte("m"))
	assert.Equal(t, before, cluster.Shards())
}

func TestCluster_Merge(t *testing.T) {
	cluster := NewCluster([]byte("m"))
	cluster.Put([]byte("a"), []byte("1"), 1)
	cluster.Put([]byte("z"), []byte("2"), 1)

	cluster.Merge([]byte("a"))
	shards := cluster.Shards()
	assert.Len(t, shards, 1)

	pairs, err := cluster.BatchGet(context.Background(), shards[0],
		[][]byte{[]byte("a"), []byte("z")}, 1)
	assert.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestCluster_VersionedReads(t *testing.T) {
	cluster := NewCluster()
	cluster.Put([]byte("a"), []byte("v1"), 1)
	cluster.Put([]byte("a"), []byte("v5"), 5)

	shard, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)

	tests := []struct {
		name     string
		version  uint64
		found    bool
		expected []byte
	}{
		{"before-first-write", 0, false, nil},
		{"first-version", 1, true, []byte("v1")},
		{"between-versions", 3, true, []byte("v1")},
		{"latest", 5, true, []byte("v5")},
		{"future", 100, true, []byte("v5")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			value, found, err := cluster.Get(context.Background(), shard, []byte("a"), test.version)
			assert.NoError(t, err)
			assert.Equal(t, test.found, found)
			assert.Equal(t, test.expected, value)
		})
	}
}

func TestCluster_PageReadForward(t *testing.T) {
	cluster := NewCluster()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		cluster.Put([]byte(key), []byte("v"), 1)
	}
	shard, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)

	pairs, next, err := cluster.PageRead(context.Background(), shard, []byte("a"), 1, 2, false)
	assert.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.Equal(t, []byte("a"), pairs[0].Key)
	assert.Equal(t, []byte("b"), pairs[1].Key)
	assert.Equal(t, []byte("c"), next)

	// Resuming from the cursor continues without gap or duplicate.
	pairs, next, err = cluster.PageRead(context.Background(), shard, next, 1, 10, false)
	assert.NoError(t, err)
	assert.Len(t, pairs, 3)
	assert.Equal(t, []byte("c"), pairs[0].Key)
	assert.Nil(t, next)
}

func TestCluster_PageReadBackward(t *testing.T) {
	cluster := NewCluster()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		cluster.Put([]byte(key), []byte("v"), 1)
	}
	shard, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)

	// Nil cursor starts from the top of the shard.
	pairs, next, err := cluster.PageRead(context.Background(), shard, nil, 1, 2, true)
	assert.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.Equal(t, []byte("e"), pairs[0].Key)
	assert.Equal(t, []byte("d"), pairs[1].Key)
	assert.Equal(t, []byte("d"), next)

	// The returned cursor is an exclusive upper bound.
	pairs, next, err = cluster.PageRead(context.Background(), shard, next, 1, 10, true)
	assert.NoError(t, err)
	assert.Len(t, pairs, 3)
	assert.Equal(t, []byte("c"), pairs[0].Key)
	assert.Equal(t, []byte("a"), pairs[2].Key)
	assert.Nil(t, next)
}

func TestCluster_PageReadRespectsShardBounds(t *testing.T) {
	cluster := NewCluster([]byte("c"))
	for _, key := range []string{"a", "b", "c", "d"} {
		cluster.Put([]byte(key), []byte("v"), 1)
	}
	left, err := cluster.LookupShard(context.Background(), []byte("a"))
	assert.NoError(t, err)

	pairs, next, err := cluster.PageRead(context.Background(), left, nil, 1, 10, false)
	assert.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.Nil(t, next)
}

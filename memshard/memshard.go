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

// Package memshard is an in-process, range-sharded key-value cluster. It
// implements both the routing authority and the per-shard read interface,
// enforcing the same staleness contract as a real cluster: a request
// carrying an outdated shard snapshot is rejected with a shard-mismatch
// status instead of being served.
//
// It backs the unit tests and the bench workload driver; shard topology
// can be mutated concurrently through Split and Merge.
package memshard

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"

	"github.com/streamnative/rangekv/model"
)

// Op identifies the request being served, for error-injection hooks.
type Op int

const (
	OpLookup Op = iota
	OpGet
	OpBatchGet
	OpPageRead
)

// Hook runs before a request is served. Returning a non-nil error fails
// the request with that error.
type Hook func(op Op, shard model.Shard) error

type versioned struct {
	version uint64
	value   []byte
}

// Cluster holds the keyspace truth: the shard table and the versioned
// data. Safe for concurrent use.
type Cluster struct {
	mu     sync.RWMutex
	shards *treemap.Map // start key -> model.Shard
	data   *treemap.Map // key -> []versioned, ascending by version
	nextID int64
	epoch  int64
	hook   Hook

	lookups   atomic.Int64
	gets      atomic.Int64
	batchGets atomic.Int64
	pageReads atomic.Int64
}

// NewCluster creates a cluster whose keyspace is pre-split at the given
// boundaries, which must be in ascending key order. No boundaries means a
// single shard owning everything.
func NewCluster(splitPoints ...[]byte) *Cluster {
	c := &Cluster{
		shards: treemap.NewWith(byteKeyComparator),
		data:   treemap.NewWith(byteKeyComparator),
	}

	start := []byte(nil)
	for _, point := range splitPoints {
		c.addShard(start, point)
		start = point
	}
	c.addShard(start, nil)
	return c
}

func byteKeyComparator(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

func (c *Cluster) addShard(start, end []byte) {
	c.nextID++
	c.epoch++
	c.shards.Put(start, model.Shard{
		ID:    c.nextID,
		Epoch: c.epoch,
		Start: start,
		End:   end,
	})
}

// SetHook installs an error-injection hook.
func (c *Cluster) SetHook(hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

// Put stores a value for key at the given version.
func (c *Cluster) Put(key, value []byte, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var history []versioned
	if existing, ok := c.data.Get(key); ok {
		history = existing.([]versioned)
	}
	c.data.Put(key, append(history, versioned{version: version, value: value}))
}

// Split divides the shard owning `at` into [start, at) and [at, end), both
// with fresh epochs. Requests carrying the old snapshot fail from then on.
func (c *Cluster) Split(at []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.ownerLocked(at)
	if !ok || bytes.Equal(owner.Start, at) {
		return
	}
	c.shards.Remove(owner.Start)
	c.addShard(owner.Start, at)
	c.addShard(at, owner.End)
}

// Merge joins the shard owning `at` with its right neighbour.
func (c *Cluster) Merge(at []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.ownerLocked(at)
	if !ok || len(owner.End) == 0 {
		return
	}
	neighbour, ok := c.ownerLocked(owner.End)
	if !ok {
		return
	}
	c.shards.Remove(owner.Start)
	c.shards.Remove(neighbour.Start)
	c.addShard(owner.Start, neighbour.End)
}

// Shards returns a snapshot of the current shard table in key order.
func (c *Cluster) Shards() []model.Shard {
	c.mu.RLock()
	defer c.mu.RUnlock()

	shards := make([]model.Shard, 0, c.shards.Size())
	it := c.shards.Iterator()
	for it.Next() {
		shards = append(shards, it.Value().(model.Shard))
	}
	return shards
}

// Lookups returns how many authority lookups were served.
func (c *Cluster) Lookups() int64 { return c.lookups.Load() }

// Reads returns how many read RPCs (point, batch and page) were served.
func (c *Cluster) Reads() int64 {
	return c.gets.Load() + c.batchGets.Load() + c.pageReads.Load()
}

// LookupShard implements the shardcache.Authority contract.
func (c *Cluster) LookupShard(_ context.Context, key []byte) (model.Shard, error) {
	c.lookups.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	owner, ok := c.ownerLocked(key)
	if !ok {
		return model.Shard{}, errors.WithMessagef(model.ErrNoRoute, "key %q", key)
	}
	return owner, nil
}

// Get implements model.StoreReader.
func (c *Cluster) Get(_ context.Context, shard model.Shard, key []byte, version uint64) ([]byte, bool, error) {
	c.gets.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.admitLocked(OpGet, shard); err != nil {
		return nil, false, err
	}
	value, found := c.readLocked(key, version)
	return value, found, nil
}

// BatchGet implements model.StoreReader.
func (c *Cluster) BatchGet(_ context.Context, shard model.Shard, keys [][]byte, version uint64) ([]model.KeyValue, error) {
	c.batchGets.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.admitLocked(OpBatchGet, shard); err != nil {
		return nil, err
	}

	var pairs []model.KeyValue
	for _, key := range keys {
		if value, found := c.readLocked(key, version); found {
			pairs = append(pairs, model.KeyValue{Key: key, Value: value})
		}
	}
	return pairs, nil
}

// PageRead implements model.StoreReader.
func (c *Cluster) PageRead(_ context.Context, shard model.Shard, cursor []byte, version uint64, pageSize int, reverse bool) ([]model.KeyValue, []byte, error) {
	c.pageReads.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.admitLocked(OpPageRead, shard); err != nil {
		return nil, nil, err
	}
	if reverse {
		return c.pageBackwardLocked(shard, cursor, version, pageSize)
	}
	return c.pageForwardLocked(shard, cursor, version, pageSize)
}

// admitLocked rejects requests whose shard snapshot no longer matches the
// current shard table.
func (c *Cluster) admitLocked(op Op, shard model.Shard) error {
	if c.hook != nil {
		if err := c.hook(op, shard); err != nil {
			return err
		}
	}

	current, ok := c.ownerLocked(shard.Start)
	if !ok || !current.Equals(shard) {
		return errors.WithMessagef(model.ErrShardMismatch, "shard %d epoch %d", shard.ID, shard.Epoch)
	}
	return nil
}

func (c *Cluster) ownerLocked(key []byte) (model.Shard, bool) {
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

// readLocked returns the latest value written at or before version.
func (c *Cluster) readLocked(key []byte, version uint64) ([]byte, bool) {
	value, ok := c.data.Get(key)
	if !ok {
		return nil, false
	}
	history := value.([]versioned)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].version <= version {
			return history[i].value, true
		}
	}
	return nil, false
}

func (c *Cluster) pageForwardLocked(shard model.Shard, cursor []byte, version uint64, pageSize int) ([]model.KeyValue, []byte, error) {
	from := cursor
	if bytes.Compare(shard.Start, from) > 0 {
		from = shard.Start
	}

	var pairs []model.KeyValue
	it := c.data.Iterator()
	for it.Next() {
		key := it.Key().([]byte)
		if bytes.Compare(key, from) < 0 || !shard.Contains(key) {
			continue
		}
		value, found := c.readLocked(key, version)
		if !found {
			continue
		}
		if len(pairs) == pageSize {
			// One more key exists in the shard: resume from it.
			return pairs, key, nil
		}
		pairs = append(pairs, model.KeyValue{Key: key, Value: value})
	}
	return pairs, nil, nil
}

func (c *Cluster) pageBackwardLocked(shard model.Shard, cursor []byte, version uint64, pageSize int) ([]model.KeyValue, []byte, error) {
	// The cursor is an exclusive upper bound; nil means from the top of
	// the shard.
	below := func(key []byte) bool {
		if cursor == nil {
			return shard.Contains(key)
		}
		return bytes.Compare(key, cursor) < 0 && shard.Contains(key)
	}

	var pairs []model.KeyValue
	it := c.data.Iterator()
	for it.End(); it.Prev(); {
		key := it.Key().([]byte)
		if !below(key) {
			continue
		}
		value, found := c.readLocked(key, version)
		if !found {
			continue
		}
		if len(pairs) == pageSize {
			return pairs, pairs[len(pairs)-1].Key, nil
		}
		pairs = append(pairs, model.KeyValue{Key: key, Value: value})
	}
	return pairs, nil, nil
}

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

// Package dispatch fans batches out to the worker pool and runs the
// per-batch retry state machine: attempt, and on a retriable failure
// invalidate the cached shard, wait on the batch's budget, re-plan exactly
// that batch's key set and retry each resulting batch.
//
// Re-planning after a shard split can fan one batch out into several; those
// are processed on an explicit work list inside the same worker, each with
// a budget forked from the failed batch's, so the recursion depth is
// bounded by the budget alone and never by the call stack.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/streamnative/rangekv/internal/budget"
	"github.com/streamnative/rangekv/internal/metrics"
	"github.com/streamnative/rangekv/internal/planner"
	"github.com/streamnative/rangekv/model"
)

// Dispatcher executes point and batch reads against a sharded keyspace.
type Dispatcher struct {
	router  model.ShardRouter
	reader  model.StoreReader
	pool    *Pool
	limits  planner.Limits
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewDispatcher(router model.ShardRouter, reader model.StoreReader, pool *Pool, limits planner.Limits, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		router:  router,
		reader:  reader,
		pool:    pool,
		limits:  limits,
		metrics: m,
		log:     slog.With(slog.String("component", "dispatcher")),
	}
}

// Get reads a single key, retrying with invalidate/re-resolve until it
// succeeds or the budget runs out.
func (d *Dispatcher) Get(ctx context.Context, key []byte, version uint64, b *budget.Budget) ([]byte, bool, error) {
	for {
		shard, err := d.router.ResolveKey(ctx, key)
		if err != nil {
			return nil, false, err
		}

		value, found, err := d.reader.Get(ctx, shard, key, version)
		if err == nil {
			return value, found, nil
		}
		if !model.IsRetriable(err) {
			return nil, false, err
		}

		d.router.Invalidate(shard)
		d.metrics.IncRetry()
		if werr := b.Wait(ctx, classOf(err), err); werr != nil {
			return nil, false, werr
		}
	}
}

type batchOutcome struct {
	pairs []model.KeyValue
	err   error
}

// BatchGet plans keys into per-shard batches, runs them in parallel on the
// pool and merges the completions as they arrive. The merge is keyed by the
// key bytes, so the result holds exactly one entry per requested key that
// exists, no matter how many shard transitions or retries occurred.
//
// Any batch failing fatally aborts the whole operation; partial results are
// discarded.
func (d *Dispatcher) BatchGet(ctx context.Context, keys [][]byte, version uint64, b *budget.Budget) ([]model.KeyValue, error) {
	batches, err := planner.Plan(ctx, d.router, keys, d.limits, b)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	d.metrics.RecordPlan(len(batches))

	completions := make(chan batchOutcome, len(batches))
	for _, batch := range batches {
		batch := batch
		if err := d.pool.Submit(func() {
			pairs, err := d.runBatch(ctx, batch, version)
			completions <- batchOutcome{pairs: pairs, err: err}
		}); err != nil {
			completions <- batchOutcome{err: err}
		}
	}

	merged := make(map[string][]byte)
	var firstErr error
	for range batches {
		outcome := <-completions
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			continue
		}
		for _, pair := range outcome.pairs {
			merged[string(pair.Key)] = pair.Value
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	result := make([]model.KeyValue, 0, len(merged))
	for key, value := range merged {
		result = append(result, model.KeyValue{Key: []byte(key), Value: value})
	}
	return result, nil
}

// runBatch drives one batch and everything it re-splits into to
// termination. Runs entirely within one pool worker.
func (d *Dispatcher) runBatch(ctx context.Context, batch *planner.Batch, version uint64) ([]model.KeyValue, error) {
	pending := []*planner.Batch{batch}
	var out []model.KeyValue

	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		// The cached route may have moved on since this batch was
		// planned. If so, re-plan against the fresh view instead of
		// burning an attempt on a node we already believe is wrong.
		if fresh, err := d.router.ResolveKey(ctx, current.Keys[0]); err == nil && !fresh.Equals(current.Shard) {
			replanned, err := planner.Plan(ctx, d.router, current.Keys, d.limits, current.Budget)
			if err != nil {
				return nil, err
			}
			pending = append(pending, replanned...)
			continue
		}

		pairs, err := d.reader.BatchGet(ctx, current.Shard, current.Keys, version)
		if err == nil {
			out = append(out, pairs...)
			continue
		}
		if !model.IsRetriable(err) {
			return nil, err
		}

		d.router.Invalidate(current.Shard)
		d.metrics.IncRetry()
		d.log.Warn("Re-splitting ranges for batch read",
			slog.Int64("shard", current.Shard.ID),
			slog.Int("keys", len(current.Keys)),
			slog.Any("error", err))

		if werr := current.Budget.Wait(ctx, classOf(err), err); werr != nil {
			return nil, werr
		}

		replanned, perr := planner.Plan(ctx, d.router, current.Keys, d.limits, current.Budget)
		if perr != nil {
			return nil, perr
		}
		pending = append(pending, replanned...)
	}

	return out, nil
}

func classOf(err error) budget.Class {
	if model.IsShardMismatch(err) {
		return budget.ClassShardMismatch
	}
	return budget.ClassTransport
}

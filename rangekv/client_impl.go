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

package rangekv

import (
	"context"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/streamnative/rangekv/internal/budget"
	"github.com/streamnative/rangekv/internal/dispatch"
	"github.com/streamnative/rangekv/internal/metrics"
	"github.com/streamnative/rangekv/internal/planner"
	"github.com/streamnative/rangekv/internal/scan"
	"github.com/streamnative/rangekv/model"
)

type clientImpl struct {
	options    clientOptions
	router     model.ShardRouter
	reader     model.StoreReader
	pool       *dispatch.Pool
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// NewClient creates a RangeKV client on top of the given router and store
// reader. The router is typically a shardcache.Cache in front of the
// cluster's routing authority; the reader sits on the wire transport to
// the shard primaries.
func NewClient(router model.ShardRouter, reader model.StoreReader, opts ...ClientOption) (Client, error) {
	options, err := newClientOptions(opts...)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(options.meterProvider)
	pool := dispatch.NewPool(options.workerPoolSize)
	limits := planner.Limits{
		MaxBytes: options.maxBatchBytes,
		MaxKeys:  options.maxKeysPerBatch,
	}

	return &clientImpl{
		options:    options,
		router:     router,
		reader:     reader,
		pool:       pool,
		dispatcher: dispatch.NewDispatcher(router, reader, pool, limits, m),
		metrics:    m,
		log: slog.With(
			slog.String("component", "rangekv-client"),
			slog.String("identity", options.identity),
		),
	}, nil
}

func (c *clientImpl) Close() error {
	c.log.Debug("Closing client")
	err := c.pool.Close()
	if closer, ok := c.router.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if closer, ok := c.reader.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

func (c *clientImpl) Get(ctx context.Context, key []byte, version uint64) ([]byte, bool, error) {
	complete := c.metrics.DecorateOp("get")
	ctx, cancel := context.WithTimeout(ctx, c.options.requestTimeout)
	defer cancel()

	value, found, err := c.dispatcher.Get(ctx, key, version, c.newBudget())
	complete(err)
	return value, found, err
}

func (c *clientImpl) BatchGet(ctx context.Context, keys [][]byte, version uint64) ([]KeyValue, error) {
	complete := c.metrics.DecorateOp("batch_get")
	ctx, cancel := context.WithTimeout(ctx, c.options.requestTimeout)
	defer cancel()

	pairs, err := c.dispatcher.BatchGet(ctx, keys, version, c.newBudget())
	complete(err)
	return pairs, err
}

func (c *clientImpl) Scan(ctx context.Context, startKey, endKey []byte, version uint64, options ...ScanOption) ([]KeyValue, error) {
	complete := c.metrics.DecorateOp("scan")

	it := c.ScanIterator(startKey, endKey, version, options...)
	var pairs []KeyValue
	for {
		pair, err := it.Next(ctx)
		if err != nil {
			complete(err)
			return nil, err
		}
		if pair == nil {
			complete(nil)
			return pairs, nil
		}
		pairs = append(pairs, *pair)
	}
}

func (c *clientImpl) ScanIterator(startKey, endKey []byte, version uint64, options ...ScanOption) ScanIterator {
	scanOpts := newScanOptions(options...)
	return scan.NewIterator(c.router, c.reader, scan.Config{
		Version:  version,
		Start:    startKey,
		End:      endKey,
		Reverse:  scanOpts.reverse,
		Limit:    scanOpts.limit,
		PageSize: c.options.scanPageSize,
	}, c.newBudget(), c.metrics)
}

func (c *clientImpl) newBudget() *budget.Budget {
	return budget.New(budget.Policy{
		InitialInterval: c.options.retryInitialInterval,
		MaxInterval:     c.options.retryMaxInterval,
		MaxAttempts:     c.options.maxRetryAttempts,
	}, c.options.requestTimeout)
}

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

// Package bench drives read traffic through the client against an
// in-process sharded cluster while continuously splitting shards, to
// exercise the staleness-recovery path under load and measure its cost.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/bmizerany/perks/quantile"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/streamnative/rangekv/memshard"
	"github.com/streamnative/rangekv/rangekv"
	"github.com/streamnative/rangekv/shardcache"
)

type Config struct {
	NumShards       int
	KeysCardinality uint32
	ValueSize       uint32

	RequestRate     float64
	BatchPercentage float64
	ScanPercentage  float64
	BatchSize       int
	ScanLimit       int
	SplitInterval   time.Duration

	MaxBatchBytes   int
	MaxKeysPerBatch int
	WorkerPoolSize  int
	RequestTimeout  time.Duration
}

type Bench interface {
	Run(ctx context.Context) error
}

func New(config Config, provider metric.MeterProvider) Bench {
	return &bench{
		config:   config,
		provider: provider,
		log:      slog.With(slog.String("component", "bench")),
	}
}

type bench struct {
	config    Config
	provider  metric.MeterProvider
	keys      [][]byte
	failedOps atomic.Int64
	log       *slog.Logger
}

const readVersion = 1

func (b *bench) Run(ctx context.Context) error {
	b.log.Info("Starting RangeKV bench", slog.Any("config", b.config))

	cluster := b.buildCluster()
	client, err := rangekv.NewClient(
		shardcache.NewCache(cluster),
		cluster,
		rangekv.WithMaxBatchBytes(b.config.MaxBatchBytes),
		rangekv.WithMaxKeysPerBatch(b.config.MaxKeysPerBatch),
		rangekv.WithWorkerPoolSize(b.config.WorkerPoolSize),
		rangekv.WithRequestTimeout(b.config.RequestTimeout),
		rangekv.WithMeterProvider(b.provider),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	latencyCh := make(chan time.Duration, 1024)
	go b.generateTraffic(ctx, client, latencyCh)
	go b.splitShards(ctx, cluster)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	q := quantile.NewTargeted(0.50, 0.95, 0.99, 0.999, 1.0)
	ops := 0

	for {
		select {
		case <-ticker.C:
			opsRate := float64(ops) / 10
			failedOpsRate := float64(b.failedOps.Swap(0)) / 10
			b.log.Info(fmt.Sprintf(
				"Stats - ops: %6.1f op/s - failed: %6.1f op/s - latency ms: 50%% %5.1f - 95%% %5.1f - 99%% %5.1f - 99.9%% %5.1f - max %6.1f",
				opsRate, failedOpsRate,
				q.Query(0.5), q.Query(0.95), q.Query(0.99), q.Query(0.999), q.Query(1.0)),
				slog.Int("shards", len(cluster.Shards())),
			)
			q.Reset()
			ops = 0

		case latency := <-latencyCh:
			ops++
			q.Insert(float64(latency) / float64(time.Millisecond))

		case <-ctx.Done():
			return nil
		}
	}
}

func (b *bench) buildCluster() *memshard.Cluster {
	b.keys = make([][]byte, b.config.KeysCardinality)
	for i := range b.keys {
		b.keys[i] = []byte(fmt.Sprintf("key-%09d", i))
	}

	var boundaries [][]byte
	step := len(b.keys) / b.config.NumShards
	if step > 0 {
		for i := 1; i < b.config.NumShards; i++ {
			boundaries = append(boundaries, b.keys[i*step])
		}
	}

	cluster := memshard.NewCluster(boundaries...)
	value := make([]byte, b.config.ValueSize)
	for _, key := range b.keys {
		cluster.Put(key, value, readVersion)
	}
	return cluster
}

func (b *bench) generateTraffic(ctx context.Context, client rangekv.Client, latencyCh chan time.Duration) {
	limiter := rate.NewLimiter(rate.Limit(b.config.RequestRate), int(b.config.RequestRate))

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		go func() {
			start := time.Now()
			err := b.singleOp(ctx, client)
			if err != nil {
				b.log.Warn("Operation has failed", slog.Any("error", err))
				b.failedOps.Add(1)
				return
			}
			select {
			case latencyCh <- time.Since(start):
			case <-ctx.Done():
			}
		}()
	}
}

func (b *bench) singleOp(ctx context.Context, client rangekv.Client) error {
	dice := rand.Float64() * 100

	switch {
	case dice < b.config.ScanPercentage:
		start := b.keys[rand.Intn(len(b.keys))]
		_, err := client.Scan(ctx, start, nil, readVersion, rangekv.ScanLimit(b.config.ScanLimit))
		return err

	case dice < b.config.ScanPercentage+b.config.BatchPercentage:
		keys := make([][]byte, b.config.BatchSize)
		for i := range keys {
			keys[i] = b.keys[rand.Intn(len(b.keys))]
		}
		_, err := client.BatchGet(ctx, keys, readVersion)
		return err

	default:
		_, _, err := client.Get(ctx, b.keys[rand.Intn(len(b.keys))], readVersion)
		return err
	}
}

// splitShards keeps mutating the shard topology so that cached routes go
// stale at a steady rate.
func (b *bench) splitShards(ctx context.Context, cluster *memshard.Cluster) {
	ticker := time.NewTicker(b.config.SplitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			at := b.keys[rand.Intn(len(b.keys))]
			cluster.Split(at)
			b.log.Debug("Split shard", slog.String("at", string(at)))

		case <-ctx.Done():
			return
		}
	}
}

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

package bench

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/rangekv/bench"
	"github.com/streamnative/rangekv/common/metric"
	"github.com/streamnative/rangekv/common/process"
	"github.com/streamnative/rangekv/rangekv"
)

var (
	config             = bench.Config{}
	configFile         string
	metricsBindAddress string

	Cmd = &cobra.Command{
		Use:     "bench",
		Short:   "RangeKV bench client",
		Long:    `Tool for exercising the client against an in-process sharded store`,
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	Cmd.Flags().IntVar(&config.NumShards, "shards", 4, "Number of shards to start with")
	Cmd.Flags().Uint32Var(&config.KeysCardinality, "keys-cardinality", 10_000, "Number of distinct keys")
	Cmd.Flags().Uint32VarP(&config.ValueSize, "value-size", "s", 128, "Size of the stored values")

	Cmd.Flags().Float64VarP(&config.RequestRate, "rate", "r", 100.0, "Request rate, ops/s")
	Cmd.Flags().Float64Var(&config.BatchPercentage, "batch-percent", 20.0, "Percentage of batch get requests, compared to total requests")
	Cmd.Flags().Float64Var(&config.ScanPercentage, "scan-percent", 10.0, "Percentage of scan requests, compared to total requests")
	Cmd.Flags().IntVar(&config.BatchSize, "batch-size", 100, "Number of keys per batch get request")
	Cmd.Flags().IntVar(&config.ScanLimit, "scan-limit", 100, "Maximum number of pairs per scan")
	Cmd.Flags().DurationVar(&config.SplitInterval, "split-interval", 10*time.Second, "Interval between shard splits")

	Cmd.Flags().IntVar(&config.MaxBatchBytes, "max-batch-bytes", rangekv.DefaultMaxBatchBytes, "Maximum bytes of keys per batch")
	Cmd.Flags().IntVar(&config.MaxKeysPerBatch, "max-keys-per-batch", rangekv.DefaultMaxKeysPerBatch, "Maximum keys per batch")
	Cmd.Flags().IntVar(&config.WorkerPoolSize, "worker-pool-size", rangekv.DefaultWorkerPoolSize, "Number of dispatch workers")
	Cmd.Flags().DurationVar(&config.RequestTimeout, "request-timeout", rangekv.DefaultRequestTimeout, "Request timeout")

	Cmd.Flags().StringVarP(&configFile, "conf", "f", "", "Bench config file")
	Cmd.Flags().StringVarP(&metricsBindAddress, "metrics-bind-address", "m", "0.0.0.0:8080", "Bind address for metrics endpoint")
}

func validate(*cobra.Command, []string) error {
	if configFile != "" {
		if err := loadConfig(); err != nil {
			return err
		}
	}
	if config.NumShards <= 0 {
		return errors.New("shards must be greater than zero")
	}
	if config.BatchPercentage+config.ScanPercentage > 100.0 {
		return errors.New("batch-percent and scan-percent must not exceed 100 combined")
	}
	return nil
}

func loadConfig() error {
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if err := v.Unmarshal(&config); err != nil {
		return errors.Wrap(err, "failed to load bench config")
	}
	return nil
}

func exec(*cobra.Command, []string) error {
	process.RunProcess(func() (io.Closer, error) {
		metrics, err := metric.Start(metricsBindAddress)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			if err := bench.New(config, metrics.Provider()).Run(ctx); err != nil {
				slog.Error("Bench run failed", slog.Any("error", err))
			}
		}()

		return &closer{cancel: cancel, metrics: metrics}, nil
	})
	return nil
}

type closer struct {
	cancel  context.CancelFunc
	metrics *metric.PrometheusMetrics
}

func (c *closer) Close() error {
	c.cancel()
	return c.metrics.Close()
}

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
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/multierr"
)

const (
	DefaultMaxBatchBytes        = 16 * 1024
	DefaultMaxKeysPerBatch      = 1024
	DefaultWorkerPoolSize       = 16
	DefaultRequestTimeout       = 30 * time.Second
	DefaultScanPageSize         = 256
	DefaultRetryInitialInterval = 10 * time.Millisecond
	DefaultRetryMaxInterval     = 2 * time.Second
)

var (
	ErrInvalidOptionMaxBatchBytes   = errors.New("MaxBatchBytes must be greater than zero")
	ErrInvalidOptionMaxKeysPerBatch = errors.New("MaxKeysPerBatch must be greater than zero")
	ErrInvalidOptionWorkerPoolSize  = errors.New("WorkerPoolSize must be greater than zero")
	ErrInvalidOptionRequestTimeout  = errors.New("RequestTimeout must be greater than zero")
	ErrInvalidOptionScanPageSize    = errors.New("ScanPageSize must be greater than zero")
	ErrInvalidOptionRetryBackoff    = errors.New("retry backoff intervals must be greater than zero")
	ErrInvalidOptionMaxRetries      = errors.New("MaxRetryAttempts must be greater than or equal to zero")
	ErrInvalidOptionIdentity        = errors.New("Identity must be non-empty")
)

// clientOptions contains options for the RangeKV client.
type clientOptions struct {
	maxBatchBytes        int
	maxKeysPerBatch      int
	workerPoolSize       int
	requestTimeout       time.Duration
	scanPageSize         int
	retryInitialInterval time.Duration
	retryMaxInterval     time.Duration
	maxRetryAttempts     int
	identity             string
	meterProvider        metric.MeterProvider
}

// ClientOption is an interface for applying RangeKV client options.
type ClientOption interface {
	apply(option clientOptions) (clientOptions, error)
}

func newClientOptions(opts ...ClientOption) (clientOptions, error) {
	options := clientOptions{
		maxBatchBytes:        DefaultMaxBatchBytes,
		maxKeysPerBatch:      DefaultMaxKeysPerBatch,
		workerPoolSize:       DefaultWorkerPoolSize,
		requestTimeout:       DefaultRequestTimeout,
		scanPageSize:         DefaultScanPageSize,
		retryInitialInterval: DefaultRetryInitialInterval,
		retryMaxInterval:     DefaultRetryMaxInterval,
		identity:             uuid.NewString(),
		meterProvider:        noop.NewMeterProvider(),
	}
	var errs error
	var err error
	for _, o := range opts {
		options, err = o.apply(options)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return options, errs
}

type clientOptionFunc func(clientOptions) (clientOptions, error)

func (f clientOptionFunc) apply(c clientOptions) (clientOptions, error) {
	return f(c)
}

// WithMaxBatchBytes caps the serialized key footprint of a single
// per-shard batch. Bounds the payload size of one request.
func WithMaxBatchBytes(maxBatchBytes int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if maxBatchBytes <= 0 {
			return options, ErrInvalidOptionMaxBatchBytes
		}
		options.maxBatchBytes = maxBatchBytes
		return options, nil
	})
}

// WithMaxKeysPerBatch caps how many keys a single per-shard batch may
// carry. Bounds the latency tail of one request.
func WithMaxKeysPerBatch(maxKeysPerBatch int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if maxKeysPerBatch <= 0 {
			return options, ErrInvalidOptionMaxKeysPerBatch
		}
		options.maxKeysPerBatch = maxKeysPerBatch
		return options, nil
	})
}

// WithWorkerPoolSize sets the capacity of the worker pool shared by all of
// this client's operations. Fixed at construction.
func WithWorkerPoolSize(workerPoolSize int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if workerPoolSize <= 0 {
			return options, ErrInvalidOptionWorkerPoolSize
		}
		options.workerPoolSize = workerPoolSize
		return options, nil
	})
}

// WithRequestTimeout bounds the wall-clock time of one public operation,
// including all of its retries. This is also the deadline of the
// operation's retry budget.
func WithRequestTimeout(requestTimeout time.Duration) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if requestTimeout <= 0 {
			return options, ErrInvalidOptionRequestTimeout
		}
		options.requestTimeout = requestTimeout
		return options, nil
	})
}

// WithScanPageSize sets the page size hint passed to shard endpoints
// during scans.
func WithScanPageSize(scanPageSize int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if scanPageSize <= 0 {
			return options, ErrInvalidOptionScanPageSize
		}
		options.scanPageSize = scanPageSize
		return options, nil
	})
}

// WithRetryBackoff overrides the initial and maximum delay of the retry
// backoff curve.
func WithRetryBackoff(initial, max time.Duration) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if initial <= 0 || max <= 0 || max < initial {
			return options, ErrInvalidOptionRetryBackoff
		}
		options.retryInitialInterval = initial
		options.retryMaxInterval = max
		return options, nil
	})
}

// WithMaxRetryAttempts caps the attempts of one retry budget. Zero (the
// default) leaves retries bounded by the request timeout only.
func WithMaxRetryAttempts(maxRetryAttempts int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if maxRetryAttempts < 0 {
			return options, ErrInvalidOptionMaxRetries
		}
		options.maxRetryAttempts = maxRetryAttempts
		return options, nil
	})
}

// WithIdentity sets the identity this client reports in logs.
func WithIdentity(identity string) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if identity == "" {
			return options, ErrInvalidOptionIdentity
		}
		options.identity = identity
		return options, nil
	})
}

func WithMeterProvider(meterProvider metric.MeterProvider) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if meterProvider == nil {
			options.meterProvider = noop.NewMeterProvider()
		} else {
			options.meterProvider = meterProvider
		}
		return options, nil
	})
}

// WithGlobalMeterProvider instructs the client to use the global
// OpenTelemetry MeterProvider.
func WithGlobalMeterProvider() ClientOption {
	return WithMeterProvider(otel.GetMeterProvider())
}

// ScanOption adjusts a single scan operation.
type ScanOption interface {
	applyScan(options scanOptions) scanOptions
}

type scanOptions struct {
	reverse bool
	limit   int
}

type scanOptionFunc func(scanOptions) scanOptions

func (f scanOptionFunc) applyScan(o scanOptions) scanOptions {
	return f(o)
}

func newScanOptions(opts ...ScanOption) scanOptions {
	var options scanOptions
	for _, o := range opts {
		options = o.applyScan(options)
	}
	return options
}

// ScanReverse emits the range in descending key order.
func ScanReverse() ScanOption {
	return scanOptionFunc(func(options scanOptions) scanOptions {
		options.reverse = true
		return options
	})
}

// ScanLimit stops the scan after at most limit pairs. Values below one are
// ignored.
func ScanLimit(limit int) ScanOption {
	return scanOptionFunc(func(options scanOptions) scanOptions {
		options.limit = limit
		return options
	})
}

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestClientOptions_Defaults(t *testing.T) {
	options, err := newClientOptions()
	assert.NoError(t, err)

	assert.Equal(t, DefaultMaxBatchBytes, options.maxBatchBytes)
	assert.Equal(t, DefaultMaxKeysPerBatch, options.maxKeysPerBatch)
	assert.Equal(t, DefaultWorkerPoolSize, options.workerPoolSize)
	assert.Equal(t, DefaultRequestTimeout, options.requestTimeout)
	assert.Equal(t, DefaultScanPageSize, options.scanPageSize)
	assert.Equal(t, DefaultRetryInitialInterval, options.retryInitialInterval)
	assert.Equal(t, DefaultRetryMaxInterval, options.retryMaxInterval)
	assert.Zero(t, options.maxRetryAttempts)
	assert.NotEmpty(t, options.identity)
	assert.NotNil(t, options.meterProvider)
}

func TestClientOptions_Apply(t *testing.T) {
	options, err := newClientOptions(
		WithMaxBatchBytes(1024),
		WithMaxKeysPerBatch(32),
		WithWorkerPoolSize(2),
		WithRequestTimeout(5*time.Second),
		WithScanPageSize(16),
		WithRetryBackoff(2*time.Millisecond, 100*time.Millisecond),
		WithMaxRetryAttempts(7),
		WithIdentity("test-client"),
	)
	assert.NoError(t, err)

	assert.Equal(t, 1024, options.maxBatchBytes)
	assert.Equal(t, 32, options.maxKeysPerBatch)
	assert.Equal(t, 2, options.workerPoolSize)
	assert.Equal(t, 5*time.Second, options.requestTimeout)
	assert.Equal(t, 16, options.scanPageSize)
	assert.Equal(t, 2*time.Millisecond, options.retryInitialInterval)
	assert.Equal(t, 100*time.Millisecond, options.retryMaxInterval)
	assert.Equal(t, 7, options.maxRetryAttempts)
	assert.Equal(t, "test-client", options.identity)
}

func TestClientOptions_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		option      ClientOption
		expectedErr error
	}{
		{"batch-bytes-zero", WithMaxBatchBytes(0), ErrInvalidOptionMaxBatchBytes},
		{"batch-bytes-negative", WithMaxBatchBytes(-1), ErrInvalidOptionMaxBatchBytes},
		{"keys-per-batch-zero", WithMaxKeysPerBatch(0), ErrInvalidOptionMaxKeysPerBatch},
		{"pool-size-zero", WithWorkerPoolSize(0), ErrInvalidOptionWorkerPoolSize},
		{"timeout-zero", WithRequestTimeout(0), ErrInvalidOptionRequestTimeout},
		{"page-size-zero", WithScanPageSize(0), ErrInvalidOptionScanPageSize},
		{"backoff-zero", WithRetryBackoff(0, time.Second), ErrInvalidOptionRetryBackoff},
		{"backoff-inverted", WithRetryBackoff(time.Second, time.Millisecond), ErrInvalidOptionRetryBackoff},
		{"retries-negative", WithMaxRetryAttempts(-1), ErrInvalidOptionMaxRetries},
		{"identity-empty", WithIdentity(""), ErrInvalidOptionIdentity},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := newClientOptions(test.option)
			assert.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestClientOptions_ErrorsAccumulate(t *testing.T) {
	_, err := newClientOptions(
		WithMaxBatchBytes(0),
		WithWorkerPoolSize(-1),
	)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestScanOptions(t *testing.T) {
	options := newScanOptions()
	assert.False(t, options.reverse)
	assert.Zero(t, options.limit)

	options = newScanOptions(ScanReverse(), ScanLimit(10))
	assert.True(t, options.reverse)
	assert.Equal(t, 10, options.limit)
}

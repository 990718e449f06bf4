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

package dispatch

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewPool(4)

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		assert.NoError(t, pool.Submit(func() {
			counter.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()

	assert.EqualValues(t, 100, counter.Load())
	assert.NoError(t, pool.Close())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(1)
	assert.NoError(t, pool.Close())

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestPool_CloseWaitsForInFlight(t *testing.T) {
	pool := NewPool(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	assert.NoError(t, pool.Submit(func() {
		close(started)
		<-release
		finished.Store(true)
	}))

	<-started
	close(release)
	assert.NoError(t, pool.Close())
	assert.True(t, finished.Load())
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool := NewPool(2)
	assert.NoError(t, pool.Close())
	assert.NoError(t, pool.Close())
}

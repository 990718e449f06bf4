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
)

const backlogPerWorker = 64

// Pool is a bounded worker pool shared by all operations of a client. Its
// capacity is fixed at construction; submissions beyond capacity queue on
// the backlog, and Submit blocks once the backlog is full.
type Pool struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	p := &Pool{
		tasks: make(chan func(), workers*backlogPerWorker),
		done:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.done:
			return
		}
	}
}

// Submit enqueues a unit of work. It returns io.ErrClosedPipe if the pool
// has been closed.
func (p *Pool) Submit(task func()) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

// Close stops the workers after their in-flight task, abandoning any work
// still queued on the backlog.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

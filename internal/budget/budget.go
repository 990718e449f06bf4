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

// Package budget implements the per-operation retry budget: an attempt
// counter, an absolute deadline and an error-class-indexed delay policy.
//
// A budget is created once at the top of a logical operation and forked for
// every parallel sub-batch and every recursive retry. Children carry the
// same absolute deadline but independent attempt counters and delay curves,
// so one sub-batch's retries cannot starve a sibling's.
package budget

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/streamnative/rangekv/model"
)

// Class identifies the failure class a delay is applied for. Shard
// mismatch and transport failures currently share the same curve, but the
// policy is indexed by class so the curves can diverge.
type Class int

const (
	ClassShardMismatch Class = iota
	ClassTransport

	numClasses
)

const (
	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// Policy carries the knobs shared by a budget and all of its forks.
type Policy struct {
	// InitialInterval is the first delay applied after a failure.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth of the delay.
	MaxInterval time.Duration
	// MaxAttempts bounds the attempts of a single budget (not of its
	// forks). Zero means bounded by the deadline only.
	MaxAttempts int
}

// DefaultPolicy returns the policy used when the caller does not override
// the retry knobs.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

// Budget tracks the retry state of one unit of work. Not safe for
// concurrent use: each unit owns its budget exclusively and forks it for
// derived units.
type Budget struct {
	policy   Policy
	deadline time.Time
	attempts int
	delays   [numClasses]backoff.BackOff
}

// New creates a top-level budget whose deadline is maxDuration from now.
func New(policy Policy, maxDuration time.Duration) *Budget {
	return newWithDeadline(policy, time.Now().Add(maxDuration))
}

func newWithDeadline(policy Policy, deadline time.Time) *Budget {
	b := &Budget{
		policy:   policy,
		deadline: deadline,
	}
	for i := range b.delays {
		e := backoff.NewExponentialBackOff()
		e.InitialInterval = policy.InitialInterval
		e.MaxInterval = policy.MaxInterval
		e.MaxElapsedTime = 0
		e.Reset()
		b.delays[i] = e
	}
	return b
}

// Fork derives a child budget with an independent attempt counter and a
// fresh delay curve, inheriting the remaining deadline.
func (b *Budget) Fork() *Budget {
	return newWithDeadline(b.policy, b.deadline)
}

// Deadline returns the absolute instant at which the budget expires.
func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Attempts returns how many failures this budget has absorbed so far.
func (b *Budget) Attempts() int {
	return b.attempts
}

// Wait consumes one attempt and sleeps the next delay for the given error
// class. It returns nil when the caller may retry, a budget-exhausted error
// (wrapping cause) when the deadline or attempt ceiling has been reached,
// or the context error when ctx ends first.
func (b *Budget) Wait(ctx context.Context, class Class, cause error) error {
	b.attempts++

	if b.policy.MaxAttempts > 0 && b.attempts > b.policy.MaxAttempts {
		return b.exhausted(cause)
	}

	delay := b.delays[class].NextBackOff()
	if delay == backoff.Stop || time.Now().Add(delay).After(b.deadline) {
		return b.exhausted(cause)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Budget) exhausted(cause error) error {
	if cause == nil {
		return model.ErrBudgetExhausted
	}
	return errors.Wrap(model.ErrBudgetExhausted, cause.Error())
}

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

package model

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Custom gRPC status codes used by RangeKV nodes. A gRPC-backed StoreReader
// surfaces these unchanged; the in-process implementations use the same
// codes so the retry path classifies errors uniformly.
const (
	CodeShardMismatch codes.Code = 120
	CodeNoRoute       codes.Code = 121
)

var (
	// ErrShardMismatch signals that the contacted node no longer owns the
	// range named by the request's shard snapshot.
	ErrShardMismatch = status.Error(CodeShardMismatch, "rangekv: node does not own the requested shard")

	// ErrNoRoute signals that no shard could be determined for a key, even
	// after consulting the routing authority.
	ErrNoRoute = status.Error(CodeNoRoute, "rangekv: no shard found for key")

	// ErrBudgetExhausted is returned when an operation's retry budget ran
	// out before any attempt succeeded. The last underlying cause is
	// attached via error wrapping.
	ErrBudgetExhausted = errors.New("rangekv: retry budget exhausted")
)

// IsRetriable reports whether an error from a shard endpoint should be
// handled by the invalidate/re-resolve/retry path. Shard mismatch and
// transport-level failures are treated alike: both mean the client's view
// of the cluster may be stale.
func IsRetriable(err error) bool {
	switch status.Code(err) {
	case CodeShardMismatch:
		return true
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		// Transport-level failures. The node may have moved or restarted,
		// so the shard entry is re-resolved just like a mismatch.
		return true
	default:
		return false
	}
}

// IsShardMismatch reports whether err carries the shard-mismatch status.
func IsShardMismatch(err error) bool {
	return status.Code(err) == CodeShardMismatch
}

// IsNoRoute reports whether err carries the no-route status.
func IsNoRoute(err error) bool {
	return status.Code(err) == CodeNoRoute
}

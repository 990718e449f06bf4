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

package metrics

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics collects the client-side instruments: operation latency, the
// fan-out of each planning pass, retries and scan pages fetched.
type Metrics struct {
	opLatency   metric.Float64Histogram
	planBatches metric.Int64Histogram
	retries     metric.Int64Counter
	scanPages   metric.Int64Counter
}

func NewMetrics(provider metric.MeterProvider) *Metrics {
	meter := provider.Meter("rangekv_client")
	return &Metrics{
		opLatency:   newLatencyHistogram(meter, "rangekv_client_op"),
		planBatches: newHistogram(meter, "rangekv_client_plan_batches"),
		retries:     newCounter(meter, "rangekv_client_retries"),
		scanPages:   newCounter(meter, "rangekv_client_scan_pages"),
	}
}

// DecorateOp returns a completion callback recording the latency and
// outcome of one public operation.
func (m *Metrics) DecorateOp(opType string) func(error) {
	start := time.Now()
	return func(err error) {
		m.opLatency.Record(context.Background(),
			float64(time.Since(start))/float64(time.Millisecond),
			metric.WithAttributes(attrs(opType, err)...))
	}
}

func (m *Metrics) RecordPlan(batches int) {
	m.planBatches.Record(context.Background(), int64(batches))
}

func (m *Metrics) IncRetry() {
	m.retries.Add(context.Background(), 1)
}

func (m *Metrics) IncScanPage() {
	m.scanPages.Add(context.Background(), 1)
}

func newLatencyHistogram(meter metric.Meter, name string) metric.Float64Histogram {
	histogram, err := meter.Float64Histogram(name, metric.WithUnit("ms"))
	fatalOnErr(err, name)
	return histogram
}

func newHistogram(meter metric.Meter, name string) metric.Int64Histogram {
	histogram, err := meter.Int64Histogram(name)
	fatalOnErr(err, name)
	return histogram
}

func newCounter(meter metric.Meter, name string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name)
	fatalOnErr(err, name)
	return counter
}

func fatalOnErr(err error, name string) {
	if err != nil {
		slog.Error(
			"Failed to create metric",
			slog.String("metric", name),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

func attrs(opType string, err error) []attribute.KeyValue {
	result := "success"
	if err != nil {
		result = "failure"
	}
	return []attribute.KeyValue{
		attribute.Key("type").String(opType),
		attribute.Key("result").String(result),
	}
}

package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
)

// maxLatencySamples bounds per-operation latency memory; older samples are
// overwritten ring-buffer style.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalComputations  int64                        `json:"total_computations"`
	ByOperation        map[EventType]OperationStats `json:"by_operation"`
	ErrorsByKind       map[string]int64             `json:"errors_by_kind"`
	CacheHitRate       float64                      `json:"cache_hit_rate"`
	AvgCompressionRate float64                      `json:"avg_compression_ratio"`
	TopDocuments       []DocumentCount              `json:"top_documents"`
	TopCollections     []DocumentCount              `json:"top_collections"`
	PerMinute          float64                      `json:"computations_per_minute"`
}

type OperationStats struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	Cached       int64   `json:"cached"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs int64   `json:"p50_latency_ms"`
	P95LatencyMs int64   `json:"p95_latency_ms"`
	P99LatencyMs int64   `json:"p99_latency_ms"`
}

type DocumentCount struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

type opState struct {
	count, errors, cached int64
	latencies             []int64
	next                  int
}

type Aggregator struct {
	mu          sync.RWMutex
	total       int64
	ops         map[EventType]*opState
	errorKinds  map[string]int64
	documents   map[int64]int64
	collections map[int64]int64
	ratioSum    float64
	ratioCount  int64
	startTime   time.Time
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewAggregator returns an empty Aggregator. m may be nil.
func NewAggregator(m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		metrics:     m,
		ops:         make(map[EventType]*opState),
		errorKinds:  make(map[string]int64),
		documents:   make(map[int64]int64),
		collections: make(map[int64]int64),
		startTime:   time.Now(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handle decodes computation events from Kafka. Undecodable messages are
// logged and acknowledged so one bad record cannot stall the partition.
func (a *Aggregator) Handle() kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[ComputationEvent](msg.Value)
		if err != nil {
			a.logger.Error("failed to decode analytics event", "type", msg.Type, "error", err)
			return nil
		}
		if event.Type == "" {
			event.Type = EventType(msg.Type)
		}
		a.Record(event)
		return nil
	}
}

// Record folds one event into the running totals.
func (a *Aggregator) Record(event ComputationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if a.metrics != nil {
		a.metrics.EventsConsumedTotal.WithLabelValues(string(event.Type), string(event.Outcome)).Inc()
	}
	op, ok := a.ops[event.Type]
	if !ok {
		op = &opState{latencies: make([]int64, 0, 256)}
		a.ops[event.Type] = op
	}
	op.count++
	switch event.Outcome {
	case OutcomeError:
		op.errors++
		kind := event.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		a.errorKinds[kind]++
	case OutcomeCached:
		op.cached++
	}
	if len(op.latencies) < maxLatencySamples {
		op.latencies = append(op.latencies, event.LatencyMs)
	} else {
		op.latencies[op.next] = event.LatencyMs
		op.next = (op.next + 1) % maxLatencySamples
	}

	if event.DocumentID != 0 {
		a.documents[event.DocumentID]++
	}
	if event.CollectionID != 0 {
		a.collections[event.CollectionID]++
	}
	if event.Type == EventHuffmanEncode && event.Outcome != OutcomeError && event.Ratio > 0 {
		a.ratioSum += event.Ratio
		a.ratioCount++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalComputations: a.total,
		ByOperation:       make(map[EventType]OperationStats, len(a.ops)),
		ErrorsByKind:      make(map[string]int64, len(a.errorKinds)),
	}
	var cached, eligible int64
	for t, op := range a.ops {
		s := OperationStats{Count: op.count, Errors: op.errors, Cached: op.cached}
		if len(op.latencies) > 0 {
			sorted := make([]int64, len(op.latencies))
			copy(sorted, op.latencies)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			var sum int64
			for _, l := range sorted {
				sum += l
			}
			s.AvgLatencyMs = float64(sum) / float64(len(sorted))
			s.P50LatencyMs = percentile(sorted, 50)
			s.P95LatencyMs = percentile(sorted, 95)
			s.P99LatencyMs = percentile(sorted, 99)
		}
		stats.ByOperation[t] = s
		if t != EventHuffmanDecode {
			cached += op.cached
			eligible += op.count - op.errors
		}
	}
	for k, v := range a.errorKinds {
		stats.ErrorsByKind[k] = v
	}
	if eligible > 0 {
		stats.CacheHitRate = float64(cached) / float64(eligible)
	}
	if a.ratioCount > 0 {
		stats.AvgCompressionRate = a.ratioSum / float64(a.ratioCount)
	}
	stats.TopDocuments = topN(a.documents, 10)
	stats.TopCollections = topN(a.collections, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.PerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[int64]int64, n int) []DocumentCount {
	result := make([]DocumentCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, DocumentCount{ID: id, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

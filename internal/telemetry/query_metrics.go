// Package telemetry collects local query diagnostics for the answer
// retrieval pipeline. All data stays in process - no external reporting.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryPath identifies which retrieval path served a query.
type QueryPath string

const (
	// PathBaseline is a single search on the original query.
	PathBaseline QueryPath = "baseline"
	// PathFused is the paraphrase fanout with rank fusion.
	PathFused QueryPath = "fused"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent represents a single served query.
type QueryEvent struct {
	Query          string
	Path           QueryPath
	VotingMethod   string
	ResultCount    int
	BranchCount    int
	BranchFailures int
	Degraded       bool
	Latency        time.Duration
	Timestamp      time.Time
}

// IsZeroResult returns true if this query returned no answers.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Snapshot is an immutable view of the collected metrics.
type Snapshot struct {
	PathCounts          map[QueryPath]int64     `json:"path_counts"`
	MethodCounts        map[string]int64        `json:"method_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	DegradedCount       int64                   `json:"degraded_count"`
	BranchFailureCount  int64                   `json:"branch_failure_count"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	UniqueQueryCount    int64                   `json:"unique_query_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// DegradedPercentage returns the percentage of queries that fell back to
// the baseline path after attempting fusion.
func (s *Snapshot) DegradedPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.DegradedCount) / float64(s.TotalQueries) * 100
}

// Config configures the metrics collector.
type Config struct {
	ZeroResultsCapacity   int // Max zero-result queries to keep (default: 100)
	RecentQueriesCapacity int // Max query hashes for repeat tracking (default: 500)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics collects query telemetry. Thread-safe for concurrent access.
type QueryMetrics struct {
	mu sync.RWMutex

	pathCounts         map[QueryPath]int64
	methodCounts       map[string]int64
	latencies          map[LatencyBucket]int64
	zeroResults        *CircularBuffer[string]
	totalQueries       int64
	degradedCount      int64
	branchFailureCount int64
	zeroResultCount    int64
	startTime          time.Time

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64
}

// NewQueryMetrics creates a metrics collector.
func NewQueryMetrics(cfg Config) (*QueryMetrics, error) {
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = DefaultConfig().ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = DefaultConfig().RecentQueriesCapacity
	}
	recent, err := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	if err != nil {
		return nil, err
	}
	return &QueryMetrics{
		pathCounts:    make(map[QueryPath]int64),
		methodCounts:  make(map[string]int64),
		latencies:     make(map[LatencyBucket]int64),
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		startTime:     time.Now(),
		recentQueries: recent,
	}, nil
}

// Record ingests one query event. Nil receivers are a no-op, so callers can
// wire metrics optionally.
func (m *QueryMetrics) Record(event QueryEvent) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.pathCounts[event.Path]++
	if event.VotingMethod != "" {
		m.methodCounts[event.VotingMethod]++
	}
	m.latencies[LatencyToBucket(event.Latency)]++
	m.branchFailureCount += int64(event.BranchFailures)
	if event.Degraded {
		m.degradedCount++
	}
	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
	}

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	if m == nil {
		return &Snapshot{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make(map[QueryPath]int64, len(m.pathCounts))
	for k, v := range m.pathCounts {
		paths[k] = v
	}
	methods := make(map[string]int64, len(m.methodCounts))
	for k, v := range m.methodCounts {
		methods[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		PathCounts:          paths,
		MethodCounts:        methods,
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		DegradedCount:       m.degradedCount,
		BranchFailureCount:  m.branchFailureCount,
		ZeroResultCount:     m.zeroResultCount,
		ZeroResultQueries:   m.zeroResults.Items(),
		ExactRepeatCount:    m.exactRepeatCount,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
		Since:               m.startTime,
	}
}

// Reset clears all collected metrics.
func (m *QueryMetrics) Reset() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pathCounts = make(map[QueryPath]int64)
	m.methodCounts = make(map[string]int64)
	m.latencies = make(map[LatencyBucket]int64)
	m.zeroResults = NewCircularBuffer[string](m.zeroResults.capacity)
	m.totalQueries = 0
	m.degradedCount = 0
	m.branchFailureCount = 0
	m.zeroResultCount = 0
	m.exactRepeatCount = 0
	m.recentQueries.Purge()
	m.startTime = time.Now()
}

func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
